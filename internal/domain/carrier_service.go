package domain

import (
	"context"
	"fmt"
)

// CarrierService is the domain port for carrier integration
type CarrierService interface {
	// EnsureSession establishes or refreshes the carrier session. A failure
	// means no shipment can be created for the job.
	EnsureSession(ctx context.Context) error

	// CreateShipment books a shipment and returns its tracking and charges
	CreateShipment(ctx context.Context, req *NormalizedRequest) (*CarrierResult, error)

	// RateShipment prices a shipment without booking it
	RateShipment(ctx context.Context, req *NormalizedRequest) (*CarrierResult, error)

	CarrierCode() string
}

// Charge is a monetary amount as returned by the carrier
type Charge struct {
	MonetaryValue string `json:"monetaryValue" bson:"monetaryValue"`
	CurrencyCode  string `json:"currencyCode" bson:"currencyCode"`
}

// ChargeBreakdownVersion is the schema version of ChargeBreakdown
const ChargeBreakdownVersion = "1.0"

// ChargeBreakdown is the itemized cost of a shipment. Only present when the
// carrier itemized its charges.
type ChargeBreakdown struct {
	Version               string  `json:"version" bson:"version"`
	TransportationCharges *Charge `json:"transportationCharges,omitempty" bson:"transportationCharges,omitempty"`
	ServiceOptionsCharges *Charge `json:"serviceOptionsCharges,omitempty" bson:"serviceOptionsCharges,omitempty"`
	DutiesAndTaxes        *Charge `json:"dutiesAndTaxes,omitempty" bson:"dutiesAndTaxes,omitempty"`
	BrokerageCharges      *Charge `json:"brokerageCharges,omitempty" bson:"brokerageCharges,omitempty"`
}

// CarrierResult is the normalized outcome of a shipment or rate call
type CarrierResult struct {
	TrackingNumber               string           `json:"trackingNumber,omitempty"`
	TrackingNumbers              []string         `json:"trackingNumbers,omitempty"`
	ShipmentIdentificationNumber string           `json:"shipmentIdentificationNumber,omitempty"`
	TotalCharges                 Charge           `json:"totalCharges"`
	ChargeBreakdown              *ChargeBreakdown `json:"chargeBreakdown,omitempty"`
	Warnings                     []string         `json:"warnings,omitempty"`
}

// CarrierError is a carrier failure translated into the compliance taxonomy
type CarrierError struct {
	Code        string // taxonomy code
	CarrierCode string // raw carrier error code, if any
	Message     string
	Retryable   bool
	// Fatal marks failures that invalidate the whole carrier session
	Fatal bool
	Err   error
}

func (e *CarrierError) Error() string {
	if e.CarrierCode != "" {
		return fmt.Sprintf("[%s] carrier error %s: %s", e.Code, e.CarrierCode, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CarrierError) Unwrap() error {
	return e.Err
}

// TaxonomyCode returns the compliance error code
func (e *CarrierError) TaxonomyCode() string {
	return e.Code
}

// NewCarrierError builds a CarrierError whose retryability follows the
// taxonomy registry
func NewCarrierError(code, carrierCode, message string) *CarrierError {
	return &CarrierError{
		Code:        code,
		CarrierCode: carrierCode,
		Message:     message,
		Retryable:   IsRetryableCode(code),
	}
}

// NewSessionError builds a job-fatal carrier session failure
func NewSessionError(message string, cause error) *CarrierError {
	return &CarrierError{
		Code:    CodeCarrierSessionUnavailable,
		Message: message,
		Fatal:   true,
		Err:     cause,
	}
}

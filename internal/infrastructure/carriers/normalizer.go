package carriers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

// ErrMissingCharges is returned when a carrier response carries no total
var ErrMissingCharges = errors.New("carrier response has no total charges")

// oneOrMany decodes a JSON value that may be a single object or an array
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}
	if trimmed[0] == '[' {
		var many []T
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

type upsMoney struct {
	CurrencyCode  string `json:"CurrencyCode"`
	MonetaryValue string `json:"MonetaryValue"`
}

func (m *upsMoney) present() bool {
	return m != nil && strings.TrimSpace(m.MonetaryValue) != ""
}

func (m *upsMoney) charge() *domain.Charge {
	if !m.present() {
		return nil
	}
	return &domain.Charge{MonetaryValue: strings.TrimSpace(m.MonetaryValue), CurrencyCode: m.CurrencyCode}
}

type upsAlert struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
}

type upsNegotiated struct {
	TotalCharge *upsMoney `json:"TotalCharge"`
}

// upsCharges is the itemized charge block shared by shipment and rate results
type upsCharges struct {
	TransportationCharges *upsMoney `json:"TransportationCharges"`
	ServiceOptionsCharges *upsMoney `json:"ServiceOptionsCharges"`
	DutyAndTaxCharges     *upsMoney `json:"DutyAndTaxCharges"`
	BrokerageCharges      *upsMoney `json:"BrokerageCharges"`
	TotalCharges          *upsMoney `json:"TotalCharges"`
}

type upsShipmentResponse struct {
	ShipmentResponse struct {
		Response struct {
			Alert oneOrMany[upsAlert] `json:"Alert"`
		} `json:"Response"`
		ShipmentResults struct {
			ShipmentIdentificationNumber string         `json:"ShipmentIdentificationNumber"`
			ShipmentCharges              *upsCharges    `json:"ShipmentCharges"`
			NegotiatedRateCharges        *upsNegotiated `json:"NegotiatedRateCharges"`
			PackageResults               oneOrMany[struct {
				TrackingNumber string `json:"TrackingNumber"`
			}] `json:"PackageResults"`
		} `json:"ShipmentResults"`
	} `json:"ShipmentResponse"`
}

type upsRatedShipment struct {
	upsCharges
	NegotiatedRateCharges *upsNegotiated      `json:"NegotiatedRateCharges"`
	RatedShipmentAlert    oneOrMany[upsAlert] `json:"RatedShipmentAlert"`
}

type upsRateResponse struct {
	RateResponse struct {
		Response struct {
			Alert oneOrMany[upsAlert] `json:"Alert"`
		} `json:"Response"`
		RatedShipment oneOrMany[upsRatedShipment] `json:"RatedShipment"`
	} `json:"RateResponse"`
}

// NormalizeShipmentResponse converts a raw UPS shipment response into a
// CarrierResult
func NormalizeShipmentResponse(raw []byte) (*domain.CarrierResult, error) {
	var resp upsShipmentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode shipment response: %w", err)
	}
	results := resp.ShipmentResponse.ShipmentResults

	var published *upsMoney
	if results.ShipmentCharges != nil {
		published = results.ShipmentCharges.TotalCharges
	}
	total, err := pickTotal(results.NegotiatedRateCharges, published)
	if err != nil {
		return nil, err
	}

	out := &domain.CarrierResult{
		ShipmentIdentificationNumber: results.ShipmentIdentificationNumber,
		TotalCharges:                 total,
		ChargeBreakdown:              breakdown(results.ShipmentCharges),
		Warnings:                     alertMessages(resp.ShipmentResponse.Response.Alert),
	}
	for _, pkg := range results.PackageResults {
		out.TrackingNumbers = append(out.TrackingNumbers, pkg.TrackingNumber)
	}

	if len(out.TrackingNumbers) > 0 {
		out.TrackingNumber = out.TrackingNumbers[0]
	}
	if out.TrackingNumber == "" || strings.Contains(out.TrackingNumber, "XXXX") {
		if results.ShipmentIdentificationNumber != "" {
			out.TrackingNumber = results.ShipmentIdentificationNumber
		}
	}
	return out, nil
}

// NormalizeRateResponse converts a raw UPS rate response into a
// CarrierResult without tracking data
func NormalizeRateResponse(raw []byte) (*domain.CarrierResult, error) {
	var resp upsRateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode rate response: %w", err)
	}
	if len(resp.RateResponse.RatedShipment) == 0 {
		return nil, ErrMissingCharges
	}
	rated := resp.RateResponse.RatedShipment[0]

	total, err := pickTotal(rated.NegotiatedRateCharges, rated.TotalCharges)
	if err != nil {
		return nil, err
	}

	warnings := alertMessages(resp.RateResponse.Response.Alert)
	warnings = append(warnings, alertMessages(rated.RatedShipmentAlert)...)

	return &domain.CarrierResult{
		TotalCharges:    total,
		ChargeBreakdown: breakdown(&rated.upsCharges),
		Warnings:        warnings,
	}, nil
}

// pickTotal prefers negotiated over published charges
func pickTotal(negotiated *upsNegotiated, published *upsMoney) (domain.Charge, error) {
	if negotiated != nil && negotiated.TotalCharge.present() {
		return *negotiated.TotalCharge.charge(), nil
	}
	if published.present() {
		return *published.charge(), nil
	}
	return domain.Charge{}, ErrMissingCharges
}

// breakdown itemizes charges only when at least one component is present
func breakdown(c *upsCharges) *domain.ChargeBreakdown {
	if c == nil {
		return nil
	}
	if !c.TransportationCharges.present() && !c.ServiceOptionsCharges.present() &&
		!c.DutyAndTaxCharges.present() && !c.BrokerageCharges.present() {
		return nil
	}
	return &domain.ChargeBreakdown{
		Version:               domain.ChargeBreakdownVersion,
		TransportationCharges: c.TransportationCharges.charge(),
		ServiceOptionsCharges: c.ServiceOptionsCharges.charge(),
		DutiesAndTaxes:        c.DutyAndTaxCharges.charge(),
		BrokerageCharges:      c.BrokerageCharges.charge(),
	}
}

func alertMessages(alerts oneOrMany[upsAlert]) []string {
	var out []string
	for _, a := range alerts {
		if a.Description != "" {
			out = append(out, a.Description)
		}
	}
	return out
}

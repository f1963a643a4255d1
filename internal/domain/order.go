package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Default UPS unit of measure for commodity lines
const DefaultUnitOfMeasure = "PCS"

// OrderRecord is the flat order data a batch row ships. The pipeline never
// mutates a caller's record; enrichment works on copies.
type OrderRecord struct {
	OrderID     string `json:"orderId" bson:"orderId"`
	OrderNumber string `json:"orderNumber,omitempty" bson:"orderNumber,omitempty"`
	ServiceCode string `json:"serviceCode,omitempty" bson:"serviceCode,omitempty"`

	ShipToName          string `json:"shipToName" bson:"shipToName"`
	ShipToCompany       string `json:"shipToCompany,omitempty" bson:"shipToCompany,omitempty"`
	ShipToAttentionName string `json:"shipToAttentionName,omitempty" bson:"shipToAttentionName,omitempty"`
	ShipToPhone         string `json:"shipToPhone,omitempty" bson:"shipToPhone,omitempty"`
	ShipToAddress1      string `json:"shipToAddress1" bson:"shipToAddress1"`
	ShipToAddress2      string `json:"shipToAddress2,omitempty" bson:"shipToAddress2,omitempty"`
	ShipToAddress3      string `json:"shipToAddress3,omitempty" bson:"shipToAddress3,omitempty"`
	ShipToCity          string `json:"shipToCity" bson:"shipToCity"`
	ShipToState         string `json:"shipToState,omitempty" bson:"shipToState,omitempty"`
	ShipToPostalCode    string `json:"shipToPostalCode,omitempty" bson:"shipToPostalCode,omitempty"`
	ShipToCountry       string `json:"shipToCountry" bson:"shipToCountry"`

	ShipperAttentionName string `json:"shipperAttentionName,omitempty" bson:"shipperAttentionName,omitempty"`
	ShipperPhone         string `json:"shipperPhone,omitempty" bson:"shipperPhone,omitempty"`

	ShipmentDescription string `json:"shipmentDescription,omitempty" bson:"shipmentDescription,omitempty"`

	Weight        string `json:"weight,omitempty" bson:"weight,omitempty"` // lbs, decimal string
	Length        string `json:"length,omitempty" bson:"length,omitempty"` // in
	Width         string `json:"width,omitempty" bson:"width,omitempty"`
	Height        string `json:"height,omitempty" bson:"height,omitempty"`
	PackagingType string `json:"packagingType,omitempty" bson:"packagingType,omitempty"`

	InvoiceCurrencyCode  string `json:"invoiceCurrencyCode,omitempty" bson:"invoiceCurrencyCode,omitempty"`
	InvoiceMonetaryValue string `json:"invoiceMonetaryValue,omitempty" bson:"invoiceMonetaryValue,omitempty"`

	Commodities []CommodityLine `json:"commodities,omitempty" bson:"commodities,omitempty"`
}

// Clone returns a copy whose commodity slice is independent of o
func (o OrderRecord) Clone() OrderRecord {
	c := o
	if o.Commodities != nil {
		c.Commodities = make([]CommodityLine, len(o.Commodities))
		copy(c.Commodities, o.Commodities)
	}
	return c
}

// Reference returns the best human identifier for the order
func (o OrderRecord) Reference() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	return o.OrderID
}

// Checksum returns a SHA-256 hex digest of the order's JSON form
func (o OrderRecord) Checksum() string {
	data, err := json.Marshal(o)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CommodityLine is one line of goods declared on customs forms
type CommodityLine struct {
	OrderID       string `json:"orderId,omitempty" bson:"orderId"`
	Description   string `json:"description" bson:"description"`
	CommodityCode string `json:"commodityCode" bson:"commodityCode"` // HS tariff code
	OriginCountry string `json:"originCountry" bson:"originCountry"`
	Quantity      *int   `json:"quantity" bson:"quantity"`
	UnitValue     string `json:"unitValue" bson:"unitValue"`
	UnitOfMeasure string `json:"unitOfMeasure,omitempty" bson:"unitOfMeasure,omitempty"`
	CurrencyCode  string `json:"currencyCode,omitempty" bson:"currencyCode,omitempty"`
}

// Shipper is the account holder sending the shipment
type Shipper struct {
	Name          string `json:"name" bson:"name" validate:"required"`
	AttentionName string `json:"attentionName,omitempty" bson:"attentionName,omitempty" yaml:"attentionName"`
	Phone         string `json:"phone,omitempty" bson:"phone,omitempty"`
	Address1      string `json:"address1" bson:"address1" validate:"required"`
	Address2      string `json:"address2,omitempty" bson:"address2,omitempty"`
	City          string `json:"city" bson:"city" validate:"required"`
	State         string `json:"state,omitempty" bson:"state,omitempty"`
	PostalCode    string `json:"postalCode,omitempty" bson:"postalCode,omitempty" yaml:"postalCode"`
	Country       string `json:"country" bson:"country" validate:"required,len=2"`
	ShipperNumber string `json:"shipperNumber,omitempty" bson:"shipperNumber,omitempty" yaml:"shipperNumber"`
}

// WithShipperContact fills empty shipper contact fields on a copy of order
// from the shipper profile.
func WithShipperContact(order OrderRecord, shipper Shipper) OrderRecord {
	c := order.Clone()
	if c.ShipperAttentionName == "" {
		c.ShipperAttentionName = shipper.AttentionName
		if c.ShipperAttentionName == "" {
			c.ShipperAttentionName = shipper.Name
		}
	}
	if c.ShipperPhone == "" {
		c.ShipperPhone = shipper.Phone
	}
	return c
}

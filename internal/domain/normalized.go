package domain

// NormalizedRequest is the enriched, carrier-agnostic shipment built from an
// order. Carrier payloads are rendered from this structure alone.
type NormalizedRequest struct {
	OrderID            string              `json:"orderId"`
	Reference          string              `json:"reference"`
	ServiceCode        string              `json:"serviceCode"`
	ServiceName        string              `json:"serviceName"`
	Shipper            Party               `json:"shipper"`
	ShipTo             Party               `json:"shipTo"`
	Packages           []Package           `json:"packages"`
	Description        string              `json:"description"`
	DestinationCountry string              `json:"destinationCountry,omitempty"`
	InvoiceLineTotal   *Charge             `json:"invoiceLineTotal,omitempty"`
	InternationalForms *InternationalForms `json:"internationalForms,omitempty"`
	Requirements       RequirementSet      `json:"requirements"`
}

// IsInternational reports whether the request crosses a border
func (r *NormalizedRequest) IsInternational() bool {
	return r.Requirements.IsInternational
}

// Party is a normalized shipper or recipient
type Party struct {
	Name          string   `json:"name"`
	AttentionName string   `json:"attentionName,omitempty"`
	Phone         string   `json:"phone,omitempty"` // digits only
	AddressLines  []string `json:"addressLines"`
	City          string   `json:"city"`
	State         string   `json:"state,omitempty"`
	PostalCode    string   `json:"postalCode,omitempty"`
	Country       string   `json:"country"`
	ShipperNumber string   `json:"shipperNumber,omitempty"`
}

// Package is one parcel in the shipment
type Package struct {
	PackagingType string `json:"packagingType"`
	Weight        string `json:"weight"`
	WeightUnit    string `json:"weightUnit"`
	Length        string `json:"length,omitempty"`
	Width         string `json:"width,omitempty"`
	Height        string `json:"height,omitempty"`
	DimensionUnit string `json:"dimensionUnit,omitempty"`
}

// HasDimensions reports whether all three dimensions are set
func (p Package) HasDimensions() bool {
	return p.Length != "" && p.Width != "" && p.Height != ""
}

// InternationalForms is the customs document for a cross-border shipment
type InternationalForms struct {
	FormType        string           `json:"formType"`
	InvoiceNumber   string           `json:"invoiceNumber,omitempty"`
	InvoiceDate     string           `json:"invoiceDate"` // YYYYMMDD
	ReasonForExport string           `json:"reasonForExport"`
	CurrencyCode    string           `json:"currencyCode"`
	Products        []CustomsProduct `json:"products"`
}

// CustomsProduct is one declared commodity line
type CustomsProduct struct {
	Description       string `json:"description"`
	CommodityCode     string `json:"commodityCode"`
	OriginCountryCode string `json:"originCountryCode"`
	UnitNumber        string `json:"unitNumber"`
	UnitValue         string `json:"unitValue"`
	UnitOfMeasure     string `json:"unitOfMeasure"`
}

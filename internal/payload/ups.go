package payload

import (
	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

// CodeDescription is the carrier's {Code, Description} pair
type CodeDescription struct {
	Code        string `json:"Code"`
	Description string `json:"Description,omitempty"`
}

// Phone is a carrier phone block
type Phone struct {
	Number string `json:"Number"`
}

// Address is a carrier address block
type Address struct {
	AddressLine       []string `json:"AddressLine"`
	City              string   `json:"City"`
	StateProvinceCode string   `json:"StateProvinceCode,omitempty"`
	PostalCode        string   `json:"PostalCode,omitempty"`
	CountryCode       string   `json:"CountryCode"`
}

// Party is a carrier shipper, ship-to or ship-from block
type Party struct {
	Name          string  `json:"Name"`
	AttentionName string  `json:"AttentionName,omitempty"`
	ShipperNumber string  `json:"ShipperNumber,omitempty"`
	Phone         *Phone  `json:"Phone,omitempty"`
	Address       Address `json:"Address"`
}

// MonetaryAmount is a carrier {CurrencyCode, MonetaryValue} block
type MonetaryAmount struct {
	CurrencyCode  string `json:"CurrencyCode"`
	MonetaryValue string `json:"MonetaryValue"`
}

// Dimensions is a carrier package dimensions block
type Dimensions struct {
	UnitOfMeasurement CodeDescription `json:"UnitOfMeasurement"`
	Length            string          `json:"Length"`
	Width             string          `json:"Width"`
	Height            string          `json:"Height"`
}

// PackageWeight is a carrier package weight block
type PackageWeight struct {
	UnitOfMeasurement CodeDescription `json:"UnitOfMeasurement"`
	Weight            string          `json:"Weight"`
}

// Package is a carrier package. Shipments name the packaging "Packaging",
// rate requests "PackagingType".
type Package struct {
	Packaging     *CodeDescription `json:"Packaging,omitempty"`
	PackagingType *CodeDescription `json:"PackagingType,omitempty"`
	Dimensions    *Dimensions      `json:"Dimensions,omitempty"`
	PackageWeight PackageWeight    `json:"PackageWeight"`
}

// ProductUnit is the quantity and value of a customs product
type ProductUnit struct {
	Number            string          `json:"Number"`
	Value             string          `json:"Value"`
	UnitOfMeasurement CodeDescription `json:"UnitOfMeasurement"`
}

// Product is one customs product line
type Product struct {
	Description       string      `json:"Description"`
	CommodityCode     string      `json:"CommodityCode"`
	OriginCountryCode string      `json:"OriginCountryCode"`
	Unit              ProductUnit `json:"Unit"`
}

// InternationalForms is the carrier customs section
type InternationalForms struct {
	FormType        []string  `json:"FormType"`
	InvoiceNumber   string    `json:"InvoiceNumber,omitempty"`
	InvoiceDate     string    `json:"InvoiceDate"`
	ReasonForExport string    `json:"ReasonForExport"`
	CurrencyCode    string    `json:"CurrencyCode"`
	Product         []Product `json:"Product"`
}

// ShipmentServiceOptions carries optional shipment sections
type ShipmentServiceOptions struct {
	InternationalForms *InternationalForms `json:"InternationalForms,omitempty"`
}

// BillShipper charges the shipper's account
type BillShipper struct {
	AccountNumber string `json:"AccountNumber"`
}

// ShipmentCharge is one payment instruction
type ShipmentCharge struct {
	Type        string      `json:"Type"`
	BillShipper BillShipper `json:"BillShipper"`
}

// PaymentInformation is the shipment payment section
type PaymentInformation struct {
	ShipmentCharge []ShipmentCharge `json:"ShipmentCharge"`
}

// ReferenceNumber tags the shipment with the order reference
type ReferenceNumber struct {
	Value string `json:"Value"`
}

// RatingOptions requests negotiated rates
type RatingOptions struct {
	NegotiatedRatesIndicator string `json:"NegotiatedRatesIndicator"`
}

// Shipment is the body shared by shipment and rate requests
type Shipment struct {
	Description            string                  `json:"Description"`
	Shipper                Party                   `json:"Shipper"`
	ShipTo                 Party                   `json:"ShipTo"`
	ShipFrom               Party                   `json:"ShipFrom"`
	PaymentInformation     *PaymentInformation     `json:"PaymentInformation,omitempty"`
	PaymentDetails         *PaymentInformation     `json:"PaymentDetails,omitempty"`
	Service                CodeDescription         `json:"Service"`
	Package                []Package               `json:"Package"`
	ReferenceNumber        *ReferenceNumber        `json:"ReferenceNumber,omitempty"`
	InvoiceLineTotal       *MonetaryAmount         `json:"InvoiceLineTotal,omitempty"`
	ShipmentRatingOptions  *RatingOptions          `json:"ShipmentRatingOptions,omitempty"`
	ShipmentServiceOptions *ShipmentServiceOptions `json:"ShipmentServiceOptions,omitempty"`
}

// RequestInfo is the carrier request envelope
type RequestInfo struct {
	RequestOption string `json:"RequestOption"`
}

// LabelSpecification selects the label image format
type LabelSpecification struct {
	LabelImageFormat CodeDescription `json:"LabelImageFormat"`
}

// ShipmentRequest is the shipment creation body
type ShipmentRequest struct {
	Request            RequestInfo        `json:"Request"`
	Shipment           Shipment           `json:"Shipment"`
	LabelSpecification LabelSpecification `json:"LabelSpecification"`
}

// ShipmentPayload is the complete shipment creation document
type ShipmentPayload struct {
	ShipmentRequest ShipmentRequest `json:"ShipmentRequest"`
}

// RateRequest is the rate quote body
type RateRequest struct {
	Request  RequestInfo `json:"Request"`
	Shipment Shipment    `json:"Shipment"`
}

// RatePayload is the complete rate quote document
type RatePayload struct {
	RateRequest RateRequest `json:"RateRequest"`
}

// ToCarrierPayload renders a shipment creation request. It reads only the
// enriched request.
func ToCarrierPayload(req *domain.NormalizedRequest, accountNumber string) ShipmentPayload {
	shipment := baseShipment(req, accountNumber)
	shipment.PaymentInformation = payment(accountNumber)
	for i := range shipment.Package {
		shipment.Package[i].Packaging = &CodeDescription{Code: req.Packages[i].PackagingType}
	}
	if req.Reference != "" {
		shipment.ReferenceNumber = &ReferenceNumber{Value: req.Reference}
	}
	if req.InternationalForms != nil {
		shipment.ShipmentServiceOptions = &ShipmentServiceOptions{
			InternationalForms: internationalForms(req.InternationalForms),
		}
	}

	return ShipmentPayload{
		ShipmentRequest: ShipmentRequest{
			Request:            RequestInfo{RequestOption: "nonvalidate"},
			Shipment:           shipment,
			LabelSpecification: LabelSpecification{LabelImageFormat: CodeDescription{Code: "PDF"}},
		},
	}
}

// ToRatePayload renders a rate request from the same enriched fields as
// ToCarrierPayload so quoted and booked costs agree.
func ToRatePayload(req *domain.NormalizedRequest, accountNumber string) RatePayload {
	shipment := baseShipment(req, accountNumber)
	shipment.PaymentDetails = payment(accountNumber)
	for i := range shipment.Package {
		shipment.Package[i].PackagingType = &CodeDescription{Code: req.Packages[i].PackagingType}
	}

	return RatePayload{
		RateRequest: RateRequest{
			Request:  RequestInfo{RequestOption: "Rate"},
			Shipment: shipment,
		},
	}
}

func baseShipment(req *domain.NormalizedRequest, accountNumber string) Shipment {
	shipper := party(req.Shipper)
	if shipper.ShipperNumber == "" {
		shipper.ShipperNumber = accountNumber
	}
	shipFrom := party(req.Shipper)
	shipFrom.ShipperNumber = ""

	s := Shipment{
		Description:           req.Description,
		Shipper:               shipper,
		ShipTo:                party(req.ShipTo),
		ShipFrom:              shipFrom,
		Service:               CodeDescription{Code: req.ServiceCode, Description: req.ServiceName},
		Package:               packages(req.Packages),
		ShipmentRatingOptions: &RatingOptions{NegotiatedRatesIndicator: "Y"},
	}
	if req.InvoiceLineTotal != nil {
		s.InvoiceLineTotal = &MonetaryAmount{
			CurrencyCode:  req.InvoiceLineTotal.CurrencyCode,
			MonetaryValue: req.InvoiceLineTotal.MonetaryValue,
		}
	}
	return s
}

func payment(accountNumber string) *PaymentInformation {
	return &PaymentInformation{
		ShipmentCharge: []ShipmentCharge{{
			Type:        "01",
			BillShipper: BillShipper{AccountNumber: accountNumber},
		}},
	}
}

func party(p domain.Party) Party {
	out := Party{
		Name:          p.Name,
		AttentionName: p.AttentionName,
		ShipperNumber: p.ShipperNumber,
		Address: Address{
			AddressLine:       append([]string(nil), p.AddressLines...),
			City:              p.City,
			StateProvinceCode: p.State,
			PostalCode:        p.PostalCode,
			CountryCode:       p.Country,
		},
	}
	if p.Phone != "" {
		out.Phone = &Phone{Number: p.Phone}
	}
	return out
}

func packages(pkgs []domain.Package) []Package {
	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		pkg := Package{
			PackageWeight: PackageWeight{
				UnitOfMeasurement: CodeDescription{Code: p.WeightUnit},
				Weight:            p.Weight,
			},
		}
		if p.HasDimensions() {
			pkg.Dimensions = &Dimensions{
				UnitOfMeasurement: CodeDescription{Code: p.DimensionUnit},
				Length:            p.Length,
				Width:             p.Width,
				Height:            p.Height,
			}
		}
		out = append(out, pkg)
	}
	return out
}

func internationalForms(f *domain.InternationalForms) *InternationalForms {
	out := &InternationalForms{
		FormType:        []string{f.FormType},
		InvoiceNumber:   f.InvoiceNumber,
		InvoiceDate:     f.InvoiceDate,
		ReasonForExport: f.ReasonForExport,
		CurrencyCode:    f.CurrencyCode,
		Product:         make([]Product, 0, len(f.Products)),
	}
	for _, p := range f.Products {
		out.Product = append(out.Product, Product{
			Description:       p.Description,
			CommodityCode:     p.CommodityCode,
			OriginCountryCode: p.OriginCountryCode,
			Unit: ProductUnit{
				Number:            p.UnitNumber,
				Value:             p.UnitValue,
				UnitOfMeasurement: CodeDescription{Code: p.UnitOfMeasure},
			},
		})
	}
	return out
}

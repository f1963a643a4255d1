package payload

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

const (
	DefaultServiceCode   = "03"
	DefaultPackagingType = "02"
	DefaultWeight        = "1.0"
	WeightUnitLBS        = "LBS"
	DimensionUnitIN      = "IN"
)

var serviceAliases = map[string]string{
	"ground":       "03",
	"ups ground":   "03",
	"ground saver": "13",
	"2nd day air":  "02",
	"2 day":        "02",
	"next day air": "01",
	"next day":     "01",
	"overnight":    "01",
	"3 day select": "12",
	"3 day":        "12",
}

// ResolveServiceCode picks the service for an order: an explicit override,
// then the order's own code or service name, then Ground.
func ResolveServiceCode(override string, order domain.OrderRecord) string {
	if code := strings.TrimSpace(override); code != "" {
		return code
	}
	code := strings.TrimSpace(order.ServiceCode)
	if code == "" {
		return DefaultServiceCode
	}
	if alias, ok := serviceAliases[strings.ToLower(code)]; ok {
		return alias
	}
	return code
}

// Resolver derives shipping requirements for a lane
type Resolver interface {
	Resolve(origin, destination, serviceCode string) domain.RequirementSet
}

// Builder turns raw orders into enriched NormalizedRequests
type Builder struct {
	resolver Resolver
	now      func() time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithClock overrides the clock used for customs invoice dates
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder backed by resolver
func NewBuilder(resolver Resolver, opts ...Option) *Builder {
	b := &Builder{resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Requirements resolves the RequirementSet for shipping order from shipper
func (b *Builder) Requirements(order domain.OrderRecord, shipper domain.Shipper, serviceCode string) domain.RequirementSet {
	return b.resolver.Resolve(shipper.Country, order.ShipToCountry, ResolveServiceCode(serviceCode, order))
}

// BuildRequest resolves requirements, validates the order and returns the
// enriched request. It returns *domain.ShippabilityError when the lane or
// service cannot ship and domain.ValidationErrors when the order is
// incomplete.
func (b *Builder) BuildRequest(order domain.OrderRecord, shipper domain.Shipper, serviceCode string) (*domain.NormalizedRequest, error) {
	service := ResolveServiceCode(serviceCode, order)
	req := b.resolver.Resolve(shipper.Country, order.ShipToCountry, service)
	if !req.Shippable() {
		return nil, domain.NewShippabilityError(req)
	}

	working := domain.WithShipperContact(order, shipper)
	working.ShipperPhone = NormalizePhone(working.ShipperPhone)
	working.ShipToPhone = NormalizePhone(working.ShipToPhone)
	if strings.TrimSpace(working.ShipToAttentionName) == "" {
		working.ShipToAttentionName = strings.TrimSpace(working.ShipToCompany)
	}

	errs := domain.ValidateReadiness(working, req)
	errs = append(errs, checkFormats(working, req)...)
	if len(errs) > 0 {
		return nil, errs
	}

	return b.enrich(working, shipper, service, req), nil
}

func (b *Builder) enrich(order domain.OrderRecord, shipper domain.Shipper, service string, req domain.RequirementSet) *domain.NormalizedRequest {
	reference := order.Reference()

	description := strings.TrimSpace(order.ShipmentDescription)
	if description == "" {
		description = "Shipment"
		if reference != "" {
			description = "Order #" + reference
		}
	}

	out := &domain.NormalizedRequest{
		OrderID:      order.OrderID,
		Reference:    reference,
		ServiceCode:  service,
		ServiceName:  domain.ServiceName(service),
		Shipper:      shipperParty(shipper, order),
		ShipTo:       recipientParty(order),
		Packages:     []domain.Package{buildPackage(order)},
		Description:  TruncateAddress(description, MaxAddressLength),
		Requirements: req,
	}

	if req.IsInternational {
		out.DestinationCountry = upper(order.ShipToCountry)
	}

	if req.RequiresInvoiceLineTotal {
		value, _ := normalizeDecimal(order.InvoiceMonetaryValue, 2)
		out.InvoiceLineTotal = &domain.Charge{
			MonetaryValue: value,
			CurrencyCode:  upper(order.InvoiceCurrencyCode),
		}
	}

	if req.RequiresInternationalForms {
		out.InternationalForms = buildInternationalForms(order, req, b.now())
	}

	return out
}

func shipperParty(shipper domain.Shipper, order domain.OrderRecord) domain.Party {
	country := upper(shipper.Country)
	return domain.Party{
		Name:          TruncateAddress(shipper.Name, MaxAddressLength),
		AttentionName: TruncateAddress(order.ShipperAttentionName, MaxAddressLength),
		Phone:         order.ShipperPhone,
		AddressLines:  addressLines(shipper.Address1, shipper.Address2),
		City:          strings.TrimSpace(shipper.City),
		State:         upper(shipper.State),
		PostalCode:    NormalizePostalCode(shipper.PostalCode, country),
		Country:       country,
		ShipperNumber: strings.TrimSpace(shipper.ShipperNumber),
	}
}

func recipientParty(order domain.OrderRecord) domain.Party {
	country := upper(order.ShipToCountry)

	name := TruncateAddress(order.ShipToName, MaxAddressLength)
	if name == "" {
		name = TruncateAddress(order.ShipToCompany, MaxAddressLength)
	}
	if name == "" {
		name = "Recipient"
	}

	return domain.Party{
		Name:          name,
		AttentionName: TruncateAddress(order.ShipToAttentionName, MaxAddressLength),
		Phone:         order.ShipToPhone,
		AddressLines:  addressLines(order.ShipToAddress1, order.ShipToAddress2, order.ShipToAddress3),
		City:          strings.TrimSpace(order.ShipToCity),
		State:         upper(order.ShipToState),
		PostalCode:    NormalizePostalCode(order.ShipToPostalCode, country),
		Country:       country,
	}
}

func addressLines(lines ...string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if l := TruncateAddress(line, MaxAddressLength); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func buildPackage(order domain.OrderRecord) domain.Package {
	pkg := domain.Package{
		PackagingType: strings.TrimSpace(order.PackagingType),
		Weight:        DefaultWeight,
		WeightUnit:    WeightUnitLBS,
	}
	if pkg.PackagingType == "" {
		pkg.PackagingType = DefaultPackagingType
	}
	if w, ok := normalizeDecimal(order.Weight, 1); ok {
		pkg.Weight = w
	}

	l, lok := normalizeDecimal(order.Length, 1)
	w, wok := normalizeDecimal(order.Width, 1)
	h, hok := normalizeDecimal(order.Height, 1)
	if lok && wok && hok {
		pkg.Length, pkg.Width, pkg.Height = l, w, h
		pkg.DimensionUnit = DimensionUnitIN
	}
	return pkg
}

// checkFormats rejects values that are present but cannot be sent as-is
func checkFormats(order domain.OrderRecord, req domain.RequirementSet) domain.ValidationErrors {
	var errs domain.ValidationErrors

	if w := strings.TrimSpace(order.Weight); w != "" {
		d, err := decimal.NewFromString(w)
		if err != nil || !d.IsPositive() {
			errs = append(errs, domain.ValidationError{
				MachineCode: domain.InvalidPackageWeight,
				Message:     fmt.Sprintf("Package weight '%s' must be a positive number.", w),
				FieldPath:   "Package[0].PackageWeight.Weight",
				ErrorCode:   domain.CodeInvalidWeight,
			})
		}
	}

	if req.RequiresInvoiceLineTotal && strings.TrimSpace(order.InvoiceMonetaryValue) != "" {
		if _, ok := normalizeDecimal(order.InvoiceMonetaryValue, 2); !ok {
			errs = append(errs, domain.ValidationError{
				MachineCode: domain.InvalidMonetaryValue,
				Message:     fmt.Sprintf("Invoice total '%s' is not a valid monetary value.", order.InvoiceMonetaryValue),
				FieldPath:   "InvoiceLineTotal.MonetaryValue",
				ErrorCode:   domain.CodeInvalidDataType,
			})
		}
	}

	if req.RequiresCommodities {
		for i, line := range order.Commodities {
			if strings.TrimSpace(line.UnitValue) == "" {
				continue
			}
			if _, ok := normalizeDecimal(line.UnitValue, 2); !ok {
				errs = append(errs, domain.ValidationError{
					MachineCode: domain.InvalidMonetaryValue,
					Message:     fmt.Sprintf("Commodity %d unit value '%s' is not a valid monetary value.", i+1, line.UnitValue),
					FieldPath:   fmt.Sprintf("InternationalForms.Product[%d].Unit.Value", i),
					ErrorCode:   domain.CodeInvalidDataType,
				})
			}
		}
	}

	return errs
}

package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Machine codes for readiness violations
const (
	MissingShipperAttentionName   = "MISSING_SHIPPER_ATTENTION_NAME"
	MissingShipperPhone           = "MISSING_SHIPPER_PHONE"
	MissingRecipientAttentionName = "MISSING_RECIPIENT_ATTENTION_NAME"
	MissingRecipientPhone         = "MISSING_RECIPIENT_PHONE"
	MissingShipmentDescription    = "MISSING_SHIPMENT_DESCRIPTION"
	MissingInvoiceCurrency        = "MISSING_INVOICE_CURRENCY"
	MissingInvoiceValue           = "MISSING_INVOICE_VALUE"
	MissingCommodities            = "MISSING_COMMODITIES"
	MissingCommodityDescription   = "MISSING_COMMODITY_DESCRIPTION"
	MissingHSCode                 = "MISSING_HS_CODE"
	InvalidHSCode                 = "INVALID_HS_CODE"
	MissingOriginCountry          = "MISSING_ORIGIN_COUNTRY"
	InvalidCommodityQuantity      = "INVALID_COMMODITY_QUANTITY"
	MissingCommodityValue         = "MISSING_COMMODITY_VALUE"
	CurrencyMismatch              = "CURRENCY_MISMATCH"

	InvalidPackageWeight = "INVALID_PACKAGE_WEIGHT"
	InvalidMonetaryValue = "INVALID_MONETARY_VALUE"
)

var hsCodePattern = regexp.MustCompile(`^\d{6,10}$`)

// ValidationError is a single readiness violation
type ValidationError struct {
	MachineCode string `json:"machineCode" bson:"machineCode"`
	Message     string `json:"message" bson:"message"`
	FieldPath   string `json:"fieldPath" bson:"fieldPath"`
	ErrorCode   string `json:"errorCode" bson:"errorCode"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// TaxonomyCode returns the compliance error code
func (e ValidationError) TaxonomyCode() string {
	return e.ErrorCode
}

// ValidationErrors is the ordered list of violations for one order
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	return strings.Join(v.Messages(), "; ")
}

// TaxonomyCode returns the primary compliance code
func (v ValidationErrors) TaxonomyCode() string {
	return v.PrimaryCode()
}

// PrimaryCode returns the first violation's compliance code
func (v ValidationErrors) PrimaryCode() string {
	if len(v) == 0 {
		return ""
	}
	return v[0].ErrorCode
}

// Messages returns every violation message in order
func (v ValidationErrors) Messages() []string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return msgs
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateReadiness checks order against requirements and returns every
// violation found. The result is empty when neither international nor
// invoice-total requirements apply.
func ValidateReadiness(order OrderRecord, req RequirementSet) ValidationErrors {
	if !req.IsInternational && !req.RequiresInvoiceLineTotal {
		return nil
	}

	var errs ValidationErrors
	add := func(machineCode, message, fieldPath, errorCode string) {
		errs = append(errs, ValidationError{
			MachineCode: machineCode,
			Message:     message,
			FieldPath:   fieldPath,
			ErrorCode:   errorCode,
		})
	}

	if req.RequiresShipperContact {
		if isBlank(order.ShipperAttentionName) {
			add(MissingShipperAttentionName, "Shipper attention name is required for international shipments.",
				"Shipper.AttentionName", CodeMissingInternationalData)
		}
		if isBlank(order.ShipperPhone) {
			add(MissingShipperPhone, "Shipper phone number is required for international shipments.",
				"Shipper.Phone.Number", CodeMissingInternationalData)
		}
	}

	if req.RequiresRecipientContact {
		if isBlank(order.ShipToAttentionName) {
			add(MissingRecipientAttentionName, "Recipient attention name is required for international shipments.",
				"ShipTo.AttentionName", CodeMissingInternationalData)
		}
		if isBlank(order.ShipToPhone) {
			add(MissingRecipientPhone, "Recipient phone number is required for international shipments.",
				"ShipTo.Phone.Number", CodeMissingInternationalData)
		}
	}

	if req.RequiresDescription && isBlank(order.ShipmentDescription) {
		add(MissingShipmentDescription, "Description of goods is required for international shipments.",
			"Shipment.Description", CodeMissingInternationalData)
	}

	if req.RequiresInvoiceLineTotal {
		if isBlank(order.InvoiceCurrencyCode) {
			add(MissingInvoiceCurrency, "Invoice currency code is required for this shipping lane.",
				"InvoiceLineTotal.CurrencyCode", CodeMissingInternationalData)
		}
		if isBlank(order.InvoiceMonetaryValue) {
			add(MissingInvoiceValue, "Invoice total monetary value is required for this shipping lane.",
				"InvoiceLineTotal.MonetaryValue", CodeMissingInternationalData)
		}
	}

	if req.RequiresCommodities {
		errs = append(errs, validateCommodities(order.Commodities)...)
	}

	if req.RequiresInvoiceLineTotal && len(order.Commodities) > 0 {
		errs = append(errs, validateCurrencies(order)...)
	}

	return errs
}

func validateCommodities(lines []CommodityLine) ValidationErrors {
	if len(lines) == 0 {
		return ValidationErrors{{
			MachineCode: MissingCommodities,
			Message:     "At least one commodity is required for international shipments.",
			FieldPath:   "InternationalForms.Product",
			ErrorCode:   CodeMissingInternationalData,
		}}
	}

	var errs ValidationErrors
	for i, line := range lines {
		n := i + 1
		path := fmt.Sprintf("InternationalForms.Product[%d]", i)

		if isBlank(line.Description) {
			errs = append(errs, ValidationError{MissingCommodityDescription,
				fmt.Sprintf("Commodity %d is missing a description.", n),
				path + ".Description", CodeMissingInternationalData})
		}

		hs := strings.TrimSpace(line.CommodityCode)
		switch {
		case hs == "":
			errs = append(errs, ValidationError{MissingHSCode,
				fmt.Sprintf("Commodity %d is missing HS tariff code.", n),
				path + ".CommodityCode", CodeMissingInternationalData})
		case !hsCodePattern.MatchString(hs):
			errs = append(errs, ValidationError{InvalidHSCode,
				fmt.Sprintf("Commodity %d has invalid HS code '%s'. Must be 6-10 digits.", n, hs),
				path + ".CommodityCode", CodeInvalidHSCode})
		}

		if isBlank(line.OriginCountry) {
			errs = append(errs, ValidationError{MissingOriginCountry,
				fmt.Sprintf("Commodity %d is missing origin country.", n),
				path + ".OriginCountryCode", CodeMissingInternationalData})
		}

		if line.Quantity == nil || *line.Quantity <= 0 {
			errs = append(errs, ValidationError{InvalidCommodityQuantity,
				fmt.Sprintf("Commodity %d must have a positive quantity.", n),
				path + ".Unit.Number", CodeMissingInternationalData})
		}

		if isBlank(line.UnitValue) {
			errs = append(errs, ValidationError{MissingCommodityValue,
				fmt.Sprintf("Commodity %d is missing unit value.", n),
				path + ".Unit.Value", CodeMissingInternationalData})
		}
	}
	return errs
}

func validateCurrencies(order OrderRecord) ValidationErrors {
	invoice := strings.ToUpper(strings.TrimSpace(order.InvoiceCurrencyCode))
	if invoice == "" {
		return nil
	}

	var errs ValidationErrors
	for i, line := range order.Commodities {
		currency := strings.ToUpper(strings.TrimSpace(line.CurrencyCode))
		if currency == "" {
			currency = invoice
		}
		if currency != invoice {
			errs = append(errs, ValidationError{CurrencyMismatch,
				fmt.Sprintf("Commodity %d uses currency '%s' but invoice uses '%s'.", i+1, currency, invoice),
				fmt.Sprintf("InternationalForms.Product[%d].Unit.Value", i), CodeCurrencyMismatch})
		}
	}
	return errs
}

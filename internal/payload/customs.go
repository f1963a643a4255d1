package payload

import (
	"strconv"
	"strings"
	"time"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

const (
	ReasonForExportSale = "SALE"
	invoiceDateLayout   = "20060102"
)

// buildInternationalForms renders the commercial invoice for an order whose
// commodities already passed readiness validation
func buildInternationalForms(order domain.OrderRecord, req domain.RequirementSet, now time.Time) *domain.InternationalForms {
	currency := upper(order.InvoiceCurrencyCode)
	if currency == "" {
		currency = req.CurrencyCode
	}

	forms := &domain.InternationalForms{
		FormType:        req.FormType,
		InvoiceNumber:   order.Reference(),
		InvoiceDate:     now.Format(invoiceDateLayout),
		ReasonForExport: ReasonForExportSale,
		CurrencyCode:    currency,
		Products:        make([]domain.CustomsProduct, 0, len(order.Commodities)),
	}

	for _, line := range order.Commodities {
		forms.Products = append(forms.Products, customsProduct(line))
	}
	return forms
}

func customsProduct(line domain.CommodityLine) domain.CustomsProduct {
	uom := upper(line.UnitOfMeasure)
	if uom == "" {
		uom = domain.DefaultUnitOfMeasure
	}

	number := ""
	if line.Quantity != nil {
		number = strconv.Itoa(*line.Quantity)
	}

	value, ok := normalizeDecimal(line.UnitValue, 2)
	if !ok {
		value = strings.TrimSpace(line.UnitValue)
	}

	return domain.CustomsProduct{
		Description:       TruncateAddress(line.Description, MaxAddressLength),
		CommodityCode:     strings.TrimSpace(line.CommodityCode),
		OriginCountryCode: upper(line.OriginCountry),
		UnitNumber:        number,
		UnitValue:         value,
		UnitOfMeasure:     uom,
	}
}

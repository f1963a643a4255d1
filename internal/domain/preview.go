package domain

// PreviewRow is the rated estimate for one row
type PreviewRow struct {
	RowNumber          int      `json:"rowNumber"`
	OrderID            string   `json:"orderId"`
	RecipientName      string   `json:"recipientName"`
	CityState          string   `json:"cityState"`
	ServiceCode        string   `json:"serviceCode"`
	DestinationCountry string   `json:"destinationCountry,omitempty"`
	EstimatedCostCents int64    `json:"estimatedCostCents"`
	DutiesTaxesCents   int64    `json:"dutiesTaxesCents,omitempty"`
	RateError          string   `json:"rateError,omitempty"`
	ErrorCode          string   `json:"errorCode,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

// PreviewStats aggregates a batch preview for auto-confirm evaluation
type PreviewStats struct {
	JobID                          string       `json:"jobId"`
	TotalRows                      int          `json:"totalRows"`
	RatedRows                      int          `json:"ratedRows"`
	AdditionalRows                 int          `json:"additionalRows"`
	TotalEstimatedCostCents        int64        `json:"totalEstimatedCostCents"`
	MaxRowCostCents                int64        `json:"maxRowCostCents"`
	ServiceCodes                   []string     `json:"serviceCodes"`
	AllAddressesValid              bool         `json:"allAddressesValid"`
	HasAddressWarnings             bool         `json:"hasAddressWarnings"`
	InternationalRowCount          int          `json:"internationalRowCount"`
	TotalEstimatedDutiesTaxesCents int64        `json:"totalEstimatedDutiesTaxesCents"`
	Rows                           []PreviewRow `json:"rows"`
}

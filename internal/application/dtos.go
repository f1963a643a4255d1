package application

import (
	"time"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

// BatchJobDTO represents a batch job in responses
type BatchJobDTO struct {
	JobID                 string         `json:"jobId"`
	Name                  string         `json:"name,omitempty"`
	Status                string         `json:"status"`
	Shipper               domain.Shipper `json:"shipper"`
	ServiceCode           string         `json:"serviceCode,omitempty"`
	TotalRows             int            `json:"totalRows"`
	ProcessedRows         int            `json:"processedRows"`
	SuccessfulRows        int            `json:"successfulRows"`
	FailedRows            int            `json:"failedRows"`
	NeedsReviewRows       int            `json:"needsReviewRows"`
	TotalCostCents        int64          `json:"totalCostCents"`
	TotalCost             string         `json:"totalCost"`
	TotalDutiesTaxesCents int64          `json:"totalDutiesTaxesCents"`
	InternationalRowCount int            `json:"internationalRowCount"`
	FatalErrorCode        string         `json:"fatalErrorCode,omitempty"`
	FatalErrorMessage     string         `json:"fatalErrorMessage,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
	StartedAt             *time.Time     `json:"startedAt,omitempty"`
	CompletedAt           *time.Time     `json:"completedAt,omitempty"`
}

// BatchRowDTO represents a batch row in responses
type BatchRowDTO struct {
	JobID              string                  `json:"jobId"`
	RowNumber          int                     `json:"rowNumber"`
	OrderID            string                  `json:"orderId"`
	Status             string                  `json:"status"`
	TrackingNumber     string                  `json:"trackingNumber,omitempty"`
	CostCents          int64                   `json:"costCents"`
	DestinationCountry *string                 `json:"destinationCountry"`
	DutiesTaxesCents   int64                   `json:"dutiesTaxesCents"`
	ChargeBreakdown    *domain.ChargeBreakdown `json:"chargeBreakdown,omitempty"`
	ErrorCode          string                  `json:"errorCode,omitempty"`
	ErrorMessage       string                  `json:"errorMessage,omitempty"`
	ProcessedAt        *time.Time              `json:"processedAt,omitempty"`
}

// ValidationResultDTO is the readiness report for a single order
type ValidationResultDTO struct {
	Valid        bool                      `json:"valid"`
	ErrorCode    string                    `json:"errorCode,omitempty"`
	Message      string                    `json:"message,omitempty"`
	Errors       []domain.ValidationError  `json:"errors"`
	Requirements domain.RequirementSet     `json:"requirements"`
	Request      *domain.NormalizedRequest `json:"request,omitempty"`
}

// ToBatchJobDTO converts a domain BatchJob to BatchJobDTO
func ToBatchJobDTO(job *domain.BatchJob) *BatchJobDTO {
	if job == nil {
		return nil
	}
	return &BatchJobDTO{
		JobID:                 job.JobID,
		Name:                  job.Name,
		Status:                string(job.Status),
		Shipper:               job.Shipper,
		ServiceCode:           job.ServiceCode,
		TotalRows:             job.TotalRows,
		ProcessedRows:         job.ProcessedRows,
		SuccessfulRows:        job.SuccessfulRows,
		FailedRows:            job.FailedRows,
		NeedsReviewRows:       job.NeedsReviewRows,
		TotalCostCents:        job.TotalCostCents,
		TotalCost:             domain.FormatCost(job.TotalCostCents),
		TotalDutiesTaxesCents: job.TotalDutiesTaxesCents,
		InternationalRowCount: job.InternationalRowCount,
		FatalErrorCode:        job.FatalErrorCode,
		FatalErrorMessage:     job.FatalErrorMessage,
		CreatedAt:             job.CreatedAt,
		UpdatedAt:             job.UpdatedAt,
		StartedAt:             job.StartedAt,
		CompletedAt:           job.CompletedAt,
	}
}

// ToBatchRowDTO converts a domain BatchRow to BatchRowDTO
func ToBatchRowDTO(row *domain.BatchRow) BatchRowDTO {
	return BatchRowDTO{
		JobID:              row.JobID,
		RowNumber:          row.RowNumber,
		OrderID:            row.OrderID,
		Status:             string(row.Status),
		TrackingNumber:     row.TrackingNumber,
		CostCents:          row.CostCents,
		DestinationCountry: row.DestinationCountry,
		DutiesTaxesCents:   row.DutiesTaxesCents,
		ChargeBreakdown:    row.ChargeBreakdown,
		ErrorCode:          row.ErrorCode,
		ErrorMessage:       row.ErrorMessage,
		ProcessedAt:        row.ProcessedAt,
	}
}

// ToBatchRowDTOs converts rows in order
func ToBatchRowDTOs(rows []*domain.BatchRow) []BatchRowDTO {
	dtos := make([]BatchRowDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ToBatchRowDTO(row))
	}
	return dtos
}

package application

import "github.com/wms-platform/shipment-pipeline/internal/domain"

// CreateBatchCommand represents the command to queue a batch of orders.
// An empty JobID is generated; a nil Shipper falls back to the configured one.
type CreateBatchCommand struct {
	JobID       string
	Name        string
	Shipper     *domain.Shipper
	ServiceCode string
	Orders      []domain.OrderRecord
}

// GetBatchQuery represents the query to get a batch job by ID
type GetBatchQuery struct {
	JobID string
}

// GetBatchRowsQuery represents the query to list a job's rows. An empty
// Status returns every row.
type GetBatchRowsQuery struct {
	JobID  string
	Status domain.RowStatus
}

// PreviewBatchCommand represents the command to rate a batch without booking
type PreviewBatchCommand struct {
	JobID string
}

// ExecuteBatchCommand represents the command to book every pending row
type ExecuteBatchCommand struct {
	JobID string
}

// CancelBatchCommand represents the command to stop a queued batch
type CancelBatchCommand struct {
	JobID  string
	Reason string
}

// EvaluateAutoConfirmCommand represents the command to gate a batch. A nil
// Stats runs a preview first; nil Rules uses the configured rule set.
type EvaluateAutoConfirmCommand struct {
	JobID string
	Stats *domain.PreviewStats
	Rules *domain.AutoConfirmRuleSet
}

// RequirementsQuery represents the query for a lane's requirement set
type RequirementsQuery struct {
	OriginCountry      string
	DestinationCountry string
	ServiceCode        string
}

// ValidateOrderCommand represents the command to check one order's readiness
type ValidateOrderCommand struct {
	Order       domain.OrderRecord
	Shipper     *domain.Shipper
	ServiceCode string
}

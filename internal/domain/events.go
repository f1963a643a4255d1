package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// BatchCreatedEvent is published when a batch job is queued
type BatchCreatedEvent struct {
	JobID     string    `json:"jobId"`
	TotalRows int       `json:"totalRows"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *BatchCreatedEvent) EventType() string     { return "shipment.batch.created" }
func (e *BatchCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }
func (e *BatchCreatedEvent) AggregateID() string   { return e.JobID }

// BatchStartedEvent is published when execution begins
type BatchStartedEvent struct {
	JobID     string    `json:"jobId"`
	TotalRows int       `json:"totalRows"`
	StartedAt time.Time `json:"startedAt"`
}

func (e *BatchStartedEvent) EventType() string     { return "shipment.batch.started" }
func (e *BatchStartedEvent) OccurredAt() time.Time { return e.StartedAt }
func (e *BatchStartedEvent) AggregateID() string   { return e.JobID }

// BatchCompletedEvent is published when every pending row was processed
type BatchCompletedEvent struct {
	JobID           string    `json:"jobId"`
	TotalRows       int       `json:"totalRows"`
	SuccessfulRows  int       `json:"successfulRows"`
	FailedRows      int       `json:"failedRows"`
	NeedsReviewRows int       `json:"needsReviewRows"`
	TotalCostCents  int64     `json:"totalCostCents"`
	CompletedAt     time.Time `json:"completedAt"`
}

func (e *BatchCompletedEvent) EventType() string     { return "shipment.batch.completed" }
func (e *BatchCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
func (e *BatchCompletedEvent) AggregateID() string   { return e.JobID }

// BatchAbortedEvent is published when a job-level fatal error stops the job
type BatchAbortedEvent struct {
	JobID          string    `json:"jobId"`
	ErrorCode      string    `json:"errorCode"`
	ErrorMessage   string    `json:"errorMessage"`
	SuccessfulRows int       `json:"successfulRows"`
	FailedRows     int       `json:"failedRows"`
	AbortedAt      time.Time `json:"abortedAt"`
}

func (e *BatchAbortedEvent) EventType() string     { return "shipment.batch.aborted" }
func (e *BatchAbortedEvent) OccurredAt() time.Time { return e.AbortedAt }
func (e *BatchAbortedEvent) AggregateID() string   { return e.JobID }

// BatchCancelledEvent is published when dispatch is stopped by request
type BatchCancelledEvent struct {
	JobID         string    `json:"jobId"`
	Reason        string    `json:"reason,omitempty"`
	ProcessedRows int       `json:"processedRows"`
	CancelledAt   time.Time `json:"cancelledAt"`
}

func (e *BatchCancelledEvent) EventType() string     { return "shipment.batch.cancelled" }
func (e *BatchCancelledEvent) OccurredAt() time.Time { return e.CancelledAt }
func (e *BatchCancelledEvent) AggregateID() string   { return e.JobID }

// ProgressEventType is the kind of row outcome reported to progress sinks
type ProgressEventType string

const (
	ProgressRowCompleted   ProgressEventType = "rowCompleted"
	ProgressRowFailed      ProgressEventType = "rowFailed"
	ProgressRowNeedsReview ProgressEventType = "rowNeedsReview"
)

// ProgressEvent reports one row outcome
type ProgressEvent struct {
	Type             ProgressEventType `json:"type"`
	JobID            string            `json:"jobId"`
	RowNumber        int               `json:"rowNumber"`
	OrderID          string            `json:"orderId,omitempty"`
	TrackingNumber   string            `json:"trackingNumber,omitempty"`
	CostCents        int64             `json:"costCents"`
	DutiesTaxesCents int64             `json:"dutiesTaxesCents,omitempty"`
	ErrorCode        string            `json:"errorCode,omitempty"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	ProcessedRows    int               `json:"processedRows"`
	TotalRows        int               `json:"totalRows"`
	Timestamp        time.Time         `json:"timestamp"`
}

// NewProgressEvent builds the progress event for a processed row
func NewProgressEvent(job *BatchJob, row *BatchRow) ProgressEvent {
	ev := ProgressEvent{
		JobID:         row.JobID,
		RowNumber:     row.RowNumber,
		OrderID:       row.OrderID,
		ProcessedRows: job.ProcessedRows,
		TotalRows:     job.TotalRows,
		Timestamp:     time.Now().UTC(),
	}
	switch row.Status {
	case RowStatusCompleted:
		ev.Type = ProgressRowCompleted
		ev.TrackingNumber = row.TrackingNumber
		ev.CostCents = row.CostCents
		ev.DutiesTaxesCents = row.DutiesTaxesCents
	case RowStatusNeedsReview:
		ev.Type = ProgressRowNeedsReview
		ev.TrackingNumber = row.TrackingNumber
		ev.ErrorCode = row.ErrorCode
		ev.ErrorMessage = row.ErrorMessage
	default:
		ev.Type = ProgressRowFailed
		ev.ErrorCode = row.ErrorCode
		ev.ErrorMessage = row.ErrorMessage
	}
	return ev
}

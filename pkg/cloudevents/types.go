package cloudevents

import (
	"time"
)

// Event types emitted by the shipment pipeline
const (
	BatchCreated   = "shipment.batch.created"
	BatchStarted   = "shipment.batch.started"
	RowCompleted   = "shipment.batch.row-completed"
	RowFailed      = "shipment.batch.row-failed"
	RowNeedsReview = "shipment.batch.row-needs-review"
	BatchCompleted = "shipment.batch.completed"
	BatchAborted   = "shipment.batch.aborted"
	BatchCancelled = "shipment.batch.cancelled"
)

// SourceBatchEngine is the CloudEvents source for batch execution events
const SourceBatchEngine = "/shipment-pipeline/batch-engine"

// PipelineCloudEvent is a CloudEvents v1.0 envelope carrying pipeline extensions
type PipelineCloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype,omitempty"`
	Data            any       `json:"data,omitempty"`

	CorrelationID string `json:"correlationid,omitempty"`
	JobID         string `json:"jobid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
}

// RowOutcomeData is the payload of RowCompleted and RowFailed events
type RowOutcomeData struct {
	JobID          string `json:"jobId"`
	RowNumber      int    `json:"rowNumber"`
	OrderID        string `json:"orderId,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	CostCents      int64  `json:"costCents"`
	ErrorCode      string `json:"errorCode,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

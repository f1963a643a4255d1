package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors
var (
	ErrRowAlreadyProcessed = errors.New("batch row already processed")
	ErrJobAlreadyTerminal  = errors.New("batch job already processed")
	ErrJobNotRunning       = errors.New("batch job is not running")
	ErrJobAlreadyRunning   = errors.New("batch job is already running")
	ErrRowNotInFlight      = errors.New("batch row is not in flight")
	ErrJobNotFound         = errors.New("batch job not found")
)

// RowStatus represents the status of a batch row.
//
//	pending -> in_flight -> completed | failed | needs_review
//
// A row reaches in_flight when a run claims it, before any carrier call.
// needs_review means the carrier may have booked the shipment and the row
// must never be dispatched again automatically.
type RowStatus string

const (
	RowStatusPending     RowStatus = "pending"
	RowStatusInFlight    RowStatus = "in_flight"
	RowStatusCompleted   RowStatus = "completed"
	RowStatusFailed      RowStatus = "failed"
	RowStatusNeedsReview RowStatus = "needs_review"
)

// ValidRowStatus reports whether s names a row status
func ValidRowStatus(s RowStatus) bool {
	switch s {
	case RowStatusPending, RowStatusInFlight, RowStatusCompleted, RowStatusFailed, RowStatusNeedsReview:
		return true
	}
	return false
}

// JobStatus represents the status of a batch job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// BatchRow is one shipment within a batch job
type BatchRow struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	JobID              string             `bson:"jobId" json:"jobId"`
	RowNumber          int                `bson:"rowNumber" json:"rowNumber"`
	Checksum           string             `bson:"checksum" json:"checksum"`
	OrderID            string             `bson:"orderId" json:"orderId"`
	Order              OrderRecord        `bson:"order" json:"order"`
	Status             RowStatus          `bson:"status" json:"status"`
	TrackingNumber     string             `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	CostCents          int64              `bson:"costCents" json:"costCents"`
	DestinationCountry *string            `bson:"destinationCountry" json:"destinationCountry"`
	DutiesTaxesCents   int64              `bson:"dutiesTaxesCents" json:"dutiesTaxesCents"`
	ChargeBreakdown    *ChargeBreakdown   `bson:"chargeBreakdown,omitempty" json:"chargeBreakdown,omitempty"`
	ErrorCode          string             `bson:"errorCode,omitempty" json:"errorCode,omitempty"`
	ErrorMessage       string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	ProcessedAt        *time.Time         `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
}

// NewBatchRow creates a pending row for order
func NewBatchRow(jobID string, rowNumber int, order OrderRecord) *BatchRow {
	return &BatchRow{
		JobID:     jobID,
		RowNumber: rowNumber,
		Checksum:  order.Checksum(),
		OrderID:   order.OrderID,
		Order:     order,
		Status:    RowStatusPending,
	}
}

// IsPending reports whether the row still awaits processing
func (r *BatchRow) IsPending() bool {
	return r.Status == RowStatusPending
}

// isOpen reports whether the row has no outcome yet
func (r *BatchRow) isOpen() bool {
	return r.Status == RowStatusPending || r.Status == RowStatusInFlight
}

// Claim marks a pending row as taken by the current run
func (r *BatchRow) Claim() error {
	if !r.IsPending() {
		return ErrRowAlreadyProcessed
	}
	r.Status = RowStatusInFlight
	return nil
}

// RowSuccess carries the outcome of a created shipment
type RowSuccess struct {
	TrackingNumber     string
	CostCents          int64
	DestinationCountry *string
	DutiesTaxesCents   int64
	ChargeBreakdown    *ChargeBreakdown
}

// Complete records a created shipment on an open row
func (r *BatchRow) Complete(outcome RowSuccess, at time.Time) error {
	if !r.isOpen() {
		return ErrRowAlreadyProcessed
	}
	r.Status = RowStatusCompleted
	r.TrackingNumber = outcome.TrackingNumber
	r.CostCents = outcome.CostCents
	r.DestinationCountry = outcome.DestinationCountry
	r.DutiesTaxesCents = outcome.DutiesTaxesCents
	r.ChargeBreakdown = outcome.ChargeBreakdown
	r.ProcessedAt = &at
	return nil
}

// Fail records a failure on an open row
func (r *BatchRow) Fail(errorCode, message string, at time.Time) error {
	if !r.isOpen() {
		return ErrRowAlreadyProcessed
	}
	r.Status = RowStatusFailed
	r.ErrorCode = errorCode
	r.ErrorMessage = message
	r.ProcessedAt = &at
	return nil
}

// MarkNeedsReview parks an in-flight row whose shipment may exist.
// trackingNumber is kept when the carrier returned one.
func (r *BatchRow) MarkNeedsReview(errorCode, message, trackingNumber string, at time.Time) error {
	if r.Status != RowStatusInFlight {
		return ErrRowNotInFlight
	}
	r.Status = RowStatusNeedsReview
	r.TrackingNumber = trackingNumber
	r.ErrorCode = errorCode
	r.ErrorMessage = message
	r.ProcessedAt = &at
	return nil
}

// BatchJob is the aggregate root for a multi-shipment batch
type BatchJob struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	JobID                 string             `bson:"jobId" json:"jobId"`
	Name                  string             `bson:"name,omitempty" json:"name,omitempty"`
	Status                JobStatus          `bson:"status" json:"status"`
	Shipper               Shipper            `bson:"shipper" json:"shipper"`
	ServiceCode           string             `bson:"serviceCode,omitempty" json:"serviceCode,omitempty"`
	TotalRows             int                `bson:"totalRows" json:"totalRows"`
	ProcessedRows         int                `bson:"processedRows" json:"processedRows"`
	SuccessfulRows        int                `bson:"successfulRows" json:"successfulRows"`
	FailedRows            int                `bson:"failedRows" json:"failedRows"`
	NeedsReviewRows       int                `bson:"needsReviewRows" json:"needsReviewRows"`
	TotalCostCents        int64              `bson:"totalCostCents" json:"totalCostCents"`
	TotalDutiesTaxesCents int64              `bson:"totalDutiesTaxesCents" json:"totalDutiesTaxesCents"`
	InternationalRowCount int                `bson:"internationalRowCount" json:"internationalRowCount"`
	FatalErrorCode        string             `bson:"fatalErrorCode,omitempty" json:"fatalErrorCode,omitempty"`
	FatalErrorMessage     string             `bson:"fatalErrorMessage,omitempty" json:"fatalErrorMessage,omitempty"`
	CreatedAt             time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time          `bson:"updatedAt" json:"updatedAt"`
	StartedAt             *time.Time         `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt           *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	DomainEvents          []DomainEvent      `bson:"-" json:"-"`
}

// NewBatchJob creates a pending batch job
func NewBatchJob(jobID, name string, shipper Shipper, serviceCode string, totalRows int) *BatchJob {
	now := time.Now().UTC()
	j := &BatchJob{
		JobID:        jobID,
		Name:         name,
		Status:       JobStatusPending,
		Shipper:      shipper,
		ServiceCode:  serviceCode,
		TotalRows:    totalRows,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	j.AddDomainEvent(&BatchCreatedEvent{
		JobID:     jobID,
		TotalRows: totalRows,
		CreatedAt: now,
	})

	return j
}

// IsTerminal reports whether the job reached completed or failed
func (j *BatchJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Startable lists the statuses Start accepts. A cancelled job may be resumed.
var Startable = []JobStatus{JobStatusPending, JobStatusCancelled}

// Start moves the job to running. Only one run may own a job at a time.
func (j *BatchJob) Start() error {
	if j.IsTerminal() {
		return ErrJobAlreadyTerminal
	}
	if j.Status == JobStatusRunning {
		return ErrJobAlreadyRunning
	}

	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now

	j.AddDomainEvent(&BatchStartedEvent{
		JobID:     j.JobID,
		TotalRows: j.TotalRows,
		StartedAt: now,
	})
	return nil
}

// RecordRowCompleted folds a completed row into the job counters
func (j *BatchJob) RecordRowCompleted(row *BatchRow) {
	j.ProcessedRows++
	j.SuccessfulRows++
	j.TotalCostCents += row.CostCents
	j.TotalDutiesTaxesCents += row.DutiesTaxesCents
	if row.DestinationCountry != nil {
		j.InternationalRowCount++
	}
	j.UpdatedAt = time.Now().UTC()
}

// RecordRowFailed folds a failed row into the job counters
func (j *BatchJob) RecordRowFailed(row *BatchRow) {
	j.ProcessedRows++
	j.FailedRows++
	j.UpdatedAt = time.Now().UTC()
}

// RecordRowNeedsReview folds a row with an unknown carrier outcome into the
// job counters
func (j *BatchJob) RecordRowNeedsReview(row *BatchRow) {
	j.ProcessedRows++
	j.NeedsReviewRows++
	j.UpdatedAt = time.Now().UTC()
}

// Complete marks a running job completed. Row failures do not fail the job.
func (j *BatchJob) Complete() error {
	if j.Status != JobStatusRunning {
		return ErrJobNotRunning
	}

	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now

	j.AddDomainEvent(&BatchCompletedEvent{
		JobID:           j.JobID,
		TotalRows:       j.TotalRows,
		SuccessfulRows:  j.SuccessfulRows,
		FailedRows:      j.FailedRows,
		NeedsReviewRows: j.NeedsReviewRows,
		TotalCostCents:  j.TotalCostCents,
		CompletedAt:     now,
	})
	return nil
}

// Abort marks the job failed by a job-level fatal condition
func (j *BatchJob) Abort(errorCode, message string) error {
	if j.IsTerminal() {
		return ErrJobAlreadyTerminal
	}

	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.FatalErrorCode = errorCode
	j.FatalErrorMessage = message
	j.CompletedAt = &now
	j.UpdatedAt = now

	j.AddDomainEvent(&BatchAbortedEvent{
		JobID:          j.JobID,
		ErrorCode:      errorCode,
		ErrorMessage:   message,
		SuccessfulRows: j.SuccessfulRows,
		FailedRows:     j.FailedRows,
		AbortedAt:      now,
	})
	return nil
}

// Cancel stops the job; pending rows stay pending
func (j *BatchJob) Cancel(reason string) error {
	if j.IsTerminal() {
		return ErrJobAlreadyTerminal
	}

	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.UpdatedAt = now

	j.AddDomainEvent(&BatchCancelledEvent{
		JobID:         j.JobID,
		Reason:        reason,
		ProcessedRows: j.ProcessedRows,
		CancelledAt:   now,
	})
	return nil
}

// AddDomainEvent adds a domain event
func (j *BatchJob) AddDomainEvent(event DomainEvent) {
	j.DomainEvents = append(j.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (j *BatchJob) ClearDomainEvents() {
	j.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (j *BatchJob) GetDomainEvents() []DomainEvent {
	return j.DomainEvents
}

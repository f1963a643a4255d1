package domain

import "context"

// BatchJobRepository defines persistence for batch jobs and their rows
type BatchJobRepository interface {
	Save(ctx context.Context, job *BatchJob) error
	FindByID(ctx context.Context, jobID string) (*BatchJob, error)
	// ClaimJob persists a job that Start just moved to running, but only
	// if the stored job is still in a Startable status. Otherwise it
	// returns ErrJobAlreadyRunning or ErrJobAlreadyTerminal.
	ClaimJob(ctx context.Context, job *BatchJob) error
	SaveRows(ctx context.Context, rows []*BatchRow) error
	SaveRow(ctx context.Context, row *BatchRow) error
	// ClaimRow moves a stored pending row to in_flight. It reports false
	// when another run already took the row.
	ClaimRow(ctx context.Context, row *BatchRow) (bool, error)
	FindRows(ctx context.Context, jobID string) ([]*BatchRow, error)
	FindPendingRows(ctx context.Context, jobID string) ([]*BatchRow, error)
}

// CommodityRepository is the commodity data collaborator. Order IDs with no
// commodities are absent from the result.
type CommodityRepository interface {
	GetCommoditiesBulk(ctx context.Context, orderIDs []string) (map[string][]CommodityLine, error)
	ReplaceCommodities(ctx context.Context, orderID string, lines []CommodityLine) error
}

// ProgressSink receives row outcomes as they are recorded
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	PublishAll(ctx context.Context, events []DomainEvent) error
}

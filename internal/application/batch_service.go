package application

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/payload"
	"github.com/wms-platform/shipment-pipeline/pkg/errors"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
	"github.com/wms-platform/shipment-pipeline/pkg/tracing"
)

// BatchService handles batch shipment use cases
type BatchService struct {
	repo        domain.BatchJobRepository
	commodities domain.CommodityRepository
	engine      *BatchEngine
	builder     *payload.Builder
	resolver    payload.Resolver
	publisher   domain.EventPublisher
	rules       domain.AutoConfirmRuleSet
	shipper     domain.Shipper
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewBatchService creates a new BatchService. publisher and m may be nil.
func NewBatchService(
	repo domain.BatchJobRepository,
	commodities domain.CommodityRepository,
	engine *BatchEngine,
	builder *payload.Builder,
	resolver payload.Resolver,
	publisher domain.EventPublisher,
	rules domain.AutoConfirmRuleSet,
	shipper domain.Shipper,
	logger *logging.Logger,
	m *metrics.Metrics,
) *BatchService {
	return &BatchService{
		repo:        repo,
		commodities: commodities,
		engine:      engine,
		builder:     builder,
		resolver:    resolver,
		publisher:   publisher,
		rules:       rules,
		shipper:     shipper,
		logger:      logger.WithComponent("batch-service"),
		metrics:     m,
	}
}

// CreateBatch queues a batch job with one pending row per order. Inline
// commodity lines are stored so execution can hydrate them in bulk.
func (s *BatchService) CreateBatch(ctx context.Context, cmd CreateBatchCommand) (*BatchJobDTO, error) {
	if len(cmd.Orders) == 0 {
		return nil, errors.ErrValidation("a batch needs at least one order")
	}

	jobID := cmd.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	shipper := s.shipper
	if cmd.Shipper != nil {
		shipper = *cmd.Shipper
	}

	job := domain.NewBatchJob(jobID, cmd.Name, shipper, cmd.ServiceCode, len(cmd.Orders))
	rows := make([]*domain.BatchRow, 0, len(cmd.Orders))
	for i, order := range cmd.Orders {
		rows = append(rows, domain.NewBatchRow(jobID, i+1, order))
	}

	for _, order := range cmd.Orders {
		if order.OrderID == "" || len(order.Commodities) == 0 {
			continue
		}
		if err := s.commodities.ReplaceCommodities(ctx, order.OrderID, order.Commodities); err != nil {
			s.logger.WithError(err).Error("Failed to store commodities", "jobId", jobID, "orderId", order.OrderID)
			return nil, fmt.Errorf("failed to store commodities: %w", err)
		}
	}

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.WithError(err).Error("Failed to create batch job", "jobId", jobID)
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}
	if err := s.repo.SaveRows(ctx, rows); err != nil {
		s.logger.WithError(err).Error("Failed to save batch rows", "jobId", jobID)
		return nil, fmt.Errorf("failed to save batch rows: %w", err)
	}

	s.publishEvents(ctx, job)

	s.logger.Info("Created batch job", "jobId", jobID, "totalRows", len(rows))
	return ToBatchJobDTO(job), nil
}

// GetBatch retrieves a batch job by ID
func (s *BatchService) GetBatch(ctx context.Context, query GetBatchQuery) (*BatchJobDTO, error) {
	job, err := s.findJob(ctx, query.JobID)
	if err != nil {
		return nil, err
	}
	return ToBatchJobDTO(job), nil
}

// GetRows lists a job's rows in row order
func (s *BatchService) GetRows(ctx context.Context, query GetBatchRowsQuery) ([]BatchRowDTO, error) {
	if _, err := s.findJob(ctx, query.JobID); err != nil {
		return nil, err
	}

	var (
		rows []*domain.BatchRow
		err  error
	)
	if query.Status == domain.RowStatusPending {
		rows, err = s.repo.FindPendingRows(ctx, query.JobID)
	} else {
		rows, err = s.repo.FindRows(ctx, query.JobID)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to get batch rows", "jobId", query.JobID)
		return nil, fmt.Errorf("failed to get batch rows: %w", err)
	}

	if query.Status != "" && query.Status != domain.RowStatusPending {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Status == query.Status {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	return ToBatchRowDTOs(rows), nil
}

// PreviewBatch rates the job's pending rows
func (s *BatchService) PreviewBatch(ctx context.Context, cmd PreviewBatchCommand) (*domain.PreviewStats, error) {
	job, rows, err := s.loadPending(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}

	stats, err := s.engine.Preview(ctx, job, rows)
	if err != nil {
		s.logger.WithError(err).Error("Failed to preview batch", "jobId", cmd.JobID)
		return nil, fmt.Errorf("failed to preview batch: %w", err)
	}
	return stats, nil
}

// EvaluateAutoConfirm checks a preview against the auto-confirm rules
func (s *BatchService) EvaluateAutoConfirm(ctx context.Context, cmd EvaluateAutoConfirmCommand) (*domain.AutoConfirmResult, error) {
	stats := cmd.Stats
	if stats == nil {
		var err error
		stats, err = s.PreviewBatch(ctx, PreviewBatchCommand{JobID: cmd.JobID})
		if err != nil {
			return nil, err
		}
	}
	rules := s.rules
	if cmd.Rules != nil {
		rules = *cmd.Rules
	}

	result := domain.EvaluateAutoConfirm(rules, *stats)
	if s.metrics != nil {
		s.metrics.RecordAutoConfirm(result.Approved)
	}
	s.logger.Event(ctx, "auto_confirm_evaluated", map[string]any{
		"jobId":      cmd.JobID,
		"approved":   result.Approved,
		"violations": len(result.Violations),
	})
	return &result, nil
}

// ExecuteBatch books every pending row of the job. Extra sinks receive row
// progress as it is recorded.
func (s *BatchService) ExecuteBatch(ctx context.Context, cmd ExecuteBatchCommand, sinks ...domain.ProgressSink) (*ExecutionSummary, error) {
	job, rows, err := s.loadPending(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() || job.Status == domain.JobStatusRunning {
		return nil, errors.ErrConflict(fmt.Sprintf("batch job %s is already %s", job.JobID, job.Status))
	}

	var traceID string
	summary, err := tracing.TracedOperation(ctx, "batch.execute", func(ctx context.Context) (*ExecutionSummary, error) {
		traceID = tracing.GetTraceID(ctx)
		return s.engine.Execute(ctx, job, rows, sinks...)
	}, tracing.BatchSpanAttributes(job.JobID, job.TotalRows)...)
	if stderrors.Is(err, domain.ErrJobAlreadyRunning) || stderrors.Is(err, domain.ErrJobAlreadyTerminal) {
		// another run claimed the job between the load and the claim
		return nil, errors.ErrConflict(fmt.Sprintf("batch job %s is already claimed", job.JobID)).Wrap(err)
	}
	s.publishEvents(context.WithoutCancel(ctx), job)
	if err != nil {
		s.logger.WithError(err).Error("Failed to execute batch", "jobId", cmd.JobID)
		return summary, fmt.Errorf("failed to execute batch: %w", err)
	}

	s.logger.Info("Executed batch job",
		"jobId", job.JobID,
		"status", job.Status,
		"successfulRows", job.SuccessfulRows,
		"failedRows", job.FailedRows,
		"needsReviewRows", job.NeedsReviewRows,
		"traceId", traceID,
	)
	return summary, nil
}

// CancelBatch stops a job that has not finished. Processed rows keep their
// outcome and pending rows stay pending.
func (s *BatchService) CancelBatch(ctx context.Context, cmd CancelBatchCommand) (*BatchJobDTO, error) {
	job, err := s.findJob(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}

	if err := job.Cancel(cmd.Reason); err != nil {
		return nil, errors.ErrConflict(fmt.Sprintf("batch job %s is already %s", job.JobID, job.Status)).Wrap(err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.WithError(err).Error("Failed to cancel batch job", "jobId", cmd.JobID)
		return nil, fmt.Errorf("failed to cancel batch job: %w", err)
	}

	s.publishEvents(ctx, job)
	return ToBatchJobDTO(job), nil
}

// CheckRequirements resolves the requirement set for a lane
func (s *BatchService) CheckRequirements(query RequirementsQuery) domain.RequirementSet {
	service := payload.ResolveServiceCode(query.ServiceCode, domain.OrderRecord{})
	return s.resolver.Resolve(query.OriginCountry, query.DestinationCountry, service)
}

// ValidateOrder reports whether an order is ready to ship, with the enriched
// request when it is. Stored commodity lines replace inline ones.
func (s *BatchService) ValidateOrder(ctx context.Context, cmd ValidateOrderCommand) (*ValidationResultDTO, error) {
	shipper := s.shipper
	if cmd.Shipper != nil {
		shipper = *cmd.Shipper
	}
	order := cmd.Order.Clone()
	service := payload.ResolveServiceCode(cmd.ServiceCode, order)

	result := &ValidationResultDTO{
		Requirements: s.builder.Requirements(order, shipper, service),
		Errors:       []domain.ValidationError{},
	}

	if result.Requirements.RequiresCommodities && order.OrderID != "" {
		lines, err := s.commodities.GetCommoditiesBulk(ctx, []string{order.OrderID})
		if err != nil {
			s.logger.WithError(err).Error("Failed to fetch commodities", "orderId", order.OrderID)
			return nil, fmt.Errorf("failed to fetch commodities: %w", err)
		}
		if found := lines[order.OrderID]; len(found) > 0 {
			order.Commodities = found
		}
	}

	req, err := s.builder.BuildRequest(order, shipper, service)
	if err != nil {
		result.ErrorCode = domain.ErrorCodeOf(err)
		result.Message = err.Error()
		var violations domain.ValidationErrors
		if stderrors.As(err, &violations) {
			result.Errors = violations
		}
		return result, nil
	}

	result.Valid = true
	result.Request = req
	return result, nil
}

func (s *BatchService) findJob(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if stderrors.Is(err, domain.ErrJobNotFound) {
		return nil, errors.ErrNotFoundWithID("batch job", jobID)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to get batch job", "jobId", jobID)
		return nil, fmt.Errorf("failed to get batch job: %w", err)
	}
	return job, nil
}

func (s *BatchService) loadPending(ctx context.Context, jobID string) (*domain.BatchJob, []*domain.BatchRow, error) {
	job, err := s.findJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.repo.FindPendingRows(ctx, jobID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get pending rows", "jobId", jobID)
		return nil, nil, fmt.Errorf("failed to get pending rows: %w", err)
	}
	return job, rows, nil
}

// publishEvents publishes and clears the job's domain events. Publishing is
// best effort; the job state is already persisted.
func (s *BatchService) publishEvents(ctx context.Context, job *domain.BatchJob) {
	events := job.GetDomainEvents()
	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.PublishAll(ctx, events); err != nil {
			s.logger.WithError(err).Warn("Failed to publish batch events", "jobId", job.JobID)
		}
	}
	job.ClearDomainEvents()
}

package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/payload"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
	"github.com/wms-platform/shipment-pipeline/pkg/tracing"
)

const (
	DefaultConcurrency    = 5
	DefaultMaxPreviewRows = 20
)

// EngineConfig tunes batch dispatch
type EngineConfig struct {
	Concurrency    int
	MaxPreviewRows int
}

// DefaultEngineConfig returns the default dispatch settings
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Concurrency:    DefaultConcurrency,
		MaxPreviewRows: DefaultMaxPreviewRows,
	}
}

// ExecutionSummary is the result of one Execute call
type ExecutionSummary struct {
	JobID                 string           `json:"jobId"`
	Status                domain.JobStatus `json:"status"`
	TotalRows             int              `json:"totalRows"`
	ProcessedRows         int              `json:"processedRows"`
	SuccessfulRows        int              `json:"successfulRows"`
	FailedRows            int              `json:"failedRows"`
	NeedsReviewRows       int              `json:"needsReviewRows"`
	TotalCostCents        int64            `json:"totalCostCents"`
	TotalDutiesTaxesCents int64            `json:"totalDutiesTaxesCents"`
	InternationalRowCount int              `json:"internationalRowCount"`
	FatalErrorCode        string           `json:"fatalErrorCode,omitempty"`
	FatalErrorMessage     string           `json:"fatalErrorMessage,omitempty"`
	Duration              time.Duration    `json:"duration"`
}

func summarize(job *domain.BatchJob, duration time.Duration) *ExecutionSummary {
	return &ExecutionSummary{
		JobID:                 job.JobID,
		Status:                job.Status,
		TotalRows:             job.TotalRows,
		ProcessedRows:         job.ProcessedRows,
		SuccessfulRows:        job.SuccessfulRows,
		FailedRows:            job.FailedRows,
		NeedsReviewRows:       job.NeedsReviewRows,
		TotalCostCents:        job.TotalCostCents,
		TotalDutiesTaxesCents: job.TotalDutiesTaxesCents,
		InternationalRowCount: job.InternationalRowCount,
		FatalErrorCode:        job.FatalErrorCode,
		FatalErrorMessage:     job.FatalErrorMessage,
		Duration:              duration,
	}
}

// BatchEngine creates shipments for the rows of a batch job with bounded
// concurrency. One row's failure never affects another row.
type BatchEngine struct {
	carrier     domain.CarrierService
	commodities domain.CommodityRepository
	repo        domain.BatchJobRepository
	builder     *payload.Builder
	sink        domain.ProgressSink
	logger      *logging.Logger
	metrics     *metrics.Metrics
	config      EngineConfig
	now         func() time.Time
}

// NewBatchEngine creates a batch engine. sink and m may be nil.
func NewBatchEngine(
	carrier domain.CarrierService,
	commodities domain.CommodityRepository,
	repo domain.BatchJobRepository,
	builder *payload.Builder,
	sink domain.ProgressSink,
	logger *logging.Logger,
	m *metrics.Metrics,
	config EngineConfig,
) *BatchEngine {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.MaxPreviewRows <= 0 {
		config.MaxPreviewRows = DefaultMaxPreviewRows
	}
	return &BatchEngine{
		carrier:     carrier,
		commodities: commodities,
		repo:        repo,
		builder:     builder,
		sink:        sink,
		logger:      logger.WithComponent("batch-engine"),
		metrics:     m,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// workItem is a pending row with its hydrated order copy
type workItem struct {
	row     *domain.BatchRow
	order   domain.OrderRecord
	service string
	err     error
	// skipped is set when another run won the row claim
	skipped bool
}

// rowOutcome is what a worker reports back to the aggregator
type rowOutcome struct {
	row     *domain.BatchRow
	success *domain.RowSuccess
	code    string
	message string
	// review marks a row whose booking may have happened without a
	// readable answer from the carrier
	review bool
}

// Execute creates a shipment for every pending row. The job is claimed
// first: a job another run holds returns domain.ErrJobAlreadyRunning, and
// every row is claimed before its carrier call so no row is booked twice.
// Row failures are recorded on the rows; otherwise the returned error only
// reports persistence failures. Extra sinks receive progress alongside the
// engine's own sink.
func (e *BatchEngine) Execute(ctx context.Context, job *domain.BatchJob, rows []*domain.BatchRow, sinks ...domain.ProgressSink) (*ExecutionSummary, error) {
	start := time.Now()
	logger := e.logger.WithJob(job.JobID)
	ctx = logging.ContextWithJobID(ctx, job.JobID)
	persistCtx := context.WithoutCancel(ctx)

	if err := job.Start(); err != nil {
		return nil, err
	}
	if err := e.repo.ClaimJob(persistCtx, job); err != nil {
		if errors.Is(err, domain.ErrJobAlreadyRunning) || errors.Is(err, domain.ErrJobAlreadyTerminal) {
			logger.Warn("Batch job claimed by another run", "error", err)
			return nil, err
		}
		logger.WithError(err).Error("Failed to claim batch job")
		return nil, fmt.Errorf("failed to claim batch job: %w", err)
	}

	pending := make([]*domain.BatchRow, 0, len(rows))
	for _, row := range rows {
		if row.IsPending() {
			pending = append(pending, row)
		}
	}

	agg := &aggregator{
		engine: e,
		job:    job,
		sinks:  append(nonNil(e.sink), sinks...),
		logger: logger,
	}

	if err := e.carrier.EnsureSession(ctx); err != nil {
		msg := errorMessage(err)
		logger.WithError(err).Error("Carrier session unavailable, aborting batch")
		for _, row := range pending {
			agg.apply(persistCtx, rowOutcome{row: row, code: domain.CodeCarrierSessionUnavailable, message: msg})
		}
		_ = job.Abort(domain.CodeCarrierSessionUnavailable, msg)
		return e.finish(persistCtx, job, agg, start)
	}

	items := e.prepare(ctx, job, pending, logger)

	outcomes := make(chan rowOutcome, len(items))
	var aggWG sync.WaitGroup
	aggWG.Add(1)
	go func() {
		defer aggWG.Done()
		for out := range outcomes {
			agg.apply(persistCtx, out)
		}
	}()

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	var (
		fatalOnce sync.Once
		fatal     *domain.CarrierError
	)

	var g errgroup.Group
	g.SetLimit(e.config.Concurrency)
	for _, item := range items {
		if dispatchCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if dispatchCtx.Err() != nil {
				return nil
			}
			claimed, err := e.repo.ClaimRow(persistCtx, item.row)
			if err != nil {
				logger.WithError(err).Error("Failed to claim batch row", "rowNumber", item.row.RowNumber)
				outcomes <- rowOutcome{row: item.row, code: domain.CodeDatabaseError, message: "Failed to claim row"}
				return nil
			}
			if !claimed {
				logger.Warn("Row already claimed, skipping", "rowNumber", item.row.RowNumber)
				item.skipped = true
				return nil
			}
			_ = item.row.Claim()

			if e.metrics != nil {
				e.metrics.RowDispatched()
				defer e.metrics.RowSettled()
			}
			// In-flight carrier calls finish even when the job is cancelled
			out, carrierErr := e.processRow(context.WithoutCancel(ctx), job, item)
			if carrierErr != nil && carrierErr.Fatal {
				fatalOnce.Do(func() {
					fatal = carrierErr
					stopDispatch()
				})
			}
			outcomes <- out
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	aggWG.Wait()

	switch {
	case fatal != nil:
		msg := fmt.Sprintf("Carrier session lost: %s", fatal.Message)
		logger.WithError(fatal).Error("Fatal carrier error, failing undispatched rows")
		for _, item := range items {
			if !item.skipped && item.row.IsPending() {
				agg.apply(persistCtx, rowOutcome{row: item.row, code: domain.CodeCarrierSessionUnavailable, message: msg})
			}
		}
		_ = job.Abort(domain.CodeCarrierSessionUnavailable, msg)
	case ctx.Err() != nil && hasPending(items):
		logger.Warn("Batch cancelled, undispatched rows stay pending", "processedRows", job.ProcessedRows)
		_ = job.Cancel(ctx.Err().Error())
	default:
		if err := job.Complete(); err != nil {
			return nil, err
		}
	}

	return e.finish(persistCtx, job, agg, start)
}

func (e *BatchEngine) finish(ctx context.Context, job *domain.BatchJob, agg *aggregator, start time.Time) (*ExecutionSummary, error) {
	duration := time.Since(start)
	summary := summarize(job, duration)

	if err := e.repo.Save(ctx, job); err != nil {
		agg.logger.WithError(err).Error("Failed to persist finished batch job")
		return summary, fmt.Errorf("failed to save batch job: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordBatchCompleted(string(job.Status), duration)
	}
	agg.logger.Performance(ctx, "batch_execute", duration, job.Status == domain.JobStatusCompleted, map[string]any{
		"status":          job.Status,
		"successfulRows":  job.SuccessfulRows,
		"failedRows":      job.FailedRows,
		"needsReviewRows": job.NeedsReviewRows,
		"totalCostCents":  job.TotalCostCents,
	})
	if agg.persistErr != nil {
		return summary, fmt.Errorf("failed to save batch rows: %w", agg.persistErr)
	}
	return summary, nil
}

// prepare resolves the service for each row and hydrates commodities with a
// single bulk lookup. Rows whose lookup failed carry the error.
func (e *BatchEngine) prepare(ctx context.Context, job *domain.BatchJob, rows []*domain.BatchRow, logger *logging.Logger) []*workItem {
	items := make([]*workItem, 0, len(rows))
	var needIDs []string
	seen := make(map[string]bool)

	for _, row := range rows {
		order := row.Order.Clone()
		service := payload.ResolveServiceCode(job.ServiceCode, order)
		item := &workItem{row: row, order: order, service: service}
		items = append(items, item)

		req := e.builder.Requirements(order, job.Shipper, service)
		if req.Shippable() && req.RequiresCommodities && order.OrderID != "" && !seen[order.OrderID] {
			seen[order.OrderID] = true
			needIDs = append(needIDs, order.OrderID)
		}
	}
	if len(needIDs) == 0 {
		return items
	}

	lines, err := e.commodities.GetCommoditiesBulk(ctx, needIDs)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch commodities", "orders", len(needIDs))
		fetchErr := &rowError{code: domain.CodeDatabaseError, message: "Failed to load commodity data", err: err}
		for _, item := range items {
			if seen[item.order.OrderID] {
				item.err = fetchErr
			}
		}
		return items
	}

	for _, item := range items {
		if found, ok := lines[item.order.OrderID]; ok && len(found) > 0 {
			item.order.Commodities = append([]domain.CommodityLine(nil), found...)
		}
	}
	return items
}

// processRow builds and books one shipment. The returned CarrierError is
// non-nil when the carrier rejected the call.
func (e *BatchEngine) processRow(ctx context.Context, job *domain.BatchJob, item *workItem) (rowOutcome, *domain.CarrierError) {
	out := rowOutcome{row: item.row}
	if item.err != nil {
		out.code, out.message = domain.ErrorCodeOf(item.err), errorMessage(item.err)
		return out, nil
	}

	req, err := e.builder.BuildRequest(item.order, job.Shipper, item.service)
	if err != nil {
		out.code, out.message = domain.ErrorCodeOf(err), errorMessage(err)
		return out, nil
	}

	result, err := tracing.TracedOperation(ctx, "batch.create_shipment", func(ctx context.Context) (*domain.CarrierResult, error) {
		return e.carrier.CreateShipment(ctx, req)
	}, tracing.CarrierSpanAttributes(e.carrier.CarrierCode(), "create_shipment")...)
	if err != nil {
		out.code, out.message = domain.ErrorCodeOf(err), errorMessage(err)
		var carrierErr *domain.CarrierError
		if errors.As(err, &carrierErr) {
			out.review = carrierErr.Code == domain.CodeCarrierOutcomeUnknown
			return out, carrierErr
		}
		return out, nil
	}

	success, err := toRowSuccess(req, result)
	if err != nil {
		out.code = domain.ErrorCodeOf(err)
		out.message = fmt.Sprintf("Shipment %s created but charges are unreadable: %v", result.TrackingNumber, err)
		out.review = true
		out.success = &domain.RowSuccess{TrackingNumber: result.TrackingNumber}
		return out, nil
	}
	out.success = success
	return out, nil
}

func toRowSuccess(req *domain.NormalizedRequest, result *domain.CarrierResult) (*domain.RowSuccess, error) {
	cost, err := domain.ToCents(result.TotalCharges.MonetaryValue)
	if err != nil {
		return nil, err
	}
	duties, err := dutiesCents(result.ChargeBreakdown)
	if err != nil {
		return nil, err
	}

	success := &domain.RowSuccess{
		TrackingNumber:   result.TrackingNumber,
		CostCents:        cost,
		DutiesTaxesCents: duties,
		ChargeBreakdown:  result.ChargeBreakdown,
	}
	if req.IsInternational() {
		dest := req.DestinationCountry
		success.DestinationCountry = &dest
	}
	return success, nil
}

func dutiesCents(breakdown *domain.ChargeBreakdown) (int64, error) {
	if breakdown == nil || breakdown.DutiesAndTaxes == nil {
		return 0, nil
	}
	return domain.ToCents(breakdown.DutiesAndTaxes.MonetaryValue)
}

// errorMessage prefers the carrier's own message over the wrapped chain
func errorMessage(err error) string {
	var carrierErr *domain.CarrierError
	if errors.As(err, &carrierErr) && carrierErr.Message != "" {
		return carrierErr.Message
	}
	return err.Error()
}

func hasPending(items []*workItem) bool {
	for _, item := range items {
		if !item.skipped && item.row.IsPending() {
			return true
		}
	}
	return false
}

// rowError is a non-carrier row failure carrying its taxonomy code
type rowError struct {
	code    string
	message string
	err     error
}

func (e *rowError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *rowError) Unwrap() error        { return e.err }
func (e *rowError) TaxonomyCode() string { return e.code }

func nonNil(sink domain.ProgressSink) []domain.ProgressSink {
	if sink == nil {
		return nil
	}
	return []domain.ProgressSink{sink}
}

// aggregator is the only writer of job counters and row state during a run
type aggregator struct {
	engine     *BatchEngine
	job        *domain.BatchJob
	sinks      []domain.ProgressSink
	logger     *logging.Logger
	persistErr error
}

func (a *aggregator) apply(ctx context.Context, out rowOutcome) {
	e := a.engine
	row := out.row
	at := e.now()

	switch {
	case out.review:
		var tracking string
		if out.success != nil {
			tracking = out.success.TrackingNumber
		}
		if err := row.MarkNeedsReview(out.code, out.message, tracking, at); err != nil {
			a.logger.WithError(err).Warn("Skipping row outcome", "rowNumber", row.RowNumber)
			return
		}
		a.job.RecordRowNeedsReview(row)
	case out.success != nil:
		if err := row.Complete(*out.success, at); err != nil {
			a.logger.WithError(err).Warn("Skipping row outcome", "rowNumber", row.RowNumber)
			return
		}
		a.job.RecordRowCompleted(row)
	default:
		if err := row.Fail(out.code, out.message, at); err != nil {
			a.logger.WithError(err).Warn("Skipping row outcome", "rowNumber", row.RowNumber)
			return
		}
		a.job.RecordRowFailed(row)
	}

	if err := e.repo.SaveRow(ctx, row); err != nil {
		a.logger.WithError(err).Error("Failed to persist batch row", "rowNumber", row.RowNumber)
		if a.persistErr == nil {
			a.persistErr = err
		}
	}

	event := domain.NewProgressEvent(a.job, row)
	for _, sink := range a.sinks {
		if err := sink.OnProgress(ctx, event); err != nil {
			a.logger.WithError(err).Warn("Progress sink failed", "rowNumber", row.RowNumber)
		}
	}

	a.logger.RowOutcome(ctx, a.job.JobID, row.RowNumber, string(row.Status), row.ErrorCode)
	if e.metrics != nil {
		e.metrics.RecordRowProcessed(string(row.Status), row.ErrorCode, row.CostCents)
	}
}

package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

type progressRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (p *progressRecorder) sink() FuncSink {
	return func(_ context.Context, event domain.ProgressEvent) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.events = append(p.events, event)
		return nil
	}
}

func TestBatchEngine_Execute_IsolatesRowFailures(t *testing.T) {
	f := newEngineFixture(5)

	orders := make([]domain.OrderRecord, 10)
	for i := range orders {
		orders[i] = domesticOrder(i + 1)
	}
	// Row 3 crosses the border without a recipient phone
	orders[2] = canadaOrder(3)
	orders[2].ShipToPhone = ""
	f.commodities.lines["ORD-3"] = shirts("ORD-3")

	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		if req.OrderID == "ORD-7" {
			return nil, domain.NewCarrierError(domain.CodeAddressValidationFailed, "120104", "The ship to postal code is invalid")
		}
		return okResult(req, "12.50"), nil
	}

	job, rows := f.newJob("JOB-10", orders...)
	progress := &progressRecorder{}

	summary, err := f.engine.Execute(context.Background(), job, rows, progress.sink())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 10, summary.ProcessedRows)
	assert.Equal(t, 8, summary.SuccessfulRows)
	assert.Equal(t, 2, summary.FailedRows)
	assert.Equal(t, int64(8*1250), summary.TotalCostCents)
	assert.Equal(t, 0, summary.InternationalRowCount)

	row3 := rows[2]
	assert.Equal(t, domain.RowStatusFailed, row3.Status)
	assert.Equal(t, domain.CodeMissingInternationalData, row3.ErrorCode)
	assert.Contains(t, row3.ErrorMessage, "Recipient phone number is required")

	row7 := rows[6]
	assert.Equal(t, domain.RowStatusFailed, row7.Status)
	assert.Equal(t, domain.CodeAddressValidationFailed, row7.ErrorCode)
	assert.Equal(t, "The ship to postal code is invalid", row7.ErrorMessage)

	for i, row := range rows {
		if i == 2 || i == 6 {
			continue
		}
		assert.Equal(t, domain.RowStatusCompleted, row.Status, "row %d", row.RowNumber)
		assert.Equal(t, "1Z"+row.OrderID, row.TrackingNumber)
		assert.Nil(t, row.DestinationCountry)
		assert.NotNil(t, row.ProcessedAt)
	}

	assert.Equal(t, 9, f.carrier.createdCount(), "invalid rows never reach the carrier")
	assert.Equal(t, 10, f.repo.rowSaves)
	assert.Len(t, progress.events, 10)
	assert.Equal(t, [][]string{{"ORD-3"}}, f.commodities.requests, "one bulk commodity lookup")

	last := progress.events[len(progress.events)-1]
	assert.Equal(t, 10, last.ProcessedRows)
	assert.Equal(t, 10, last.TotalRows)
}

func TestBatchEngine_Execute_CostsAndInternationalRows(t *testing.T) {
	f := newEngineFixture(2)
	f.commodities.lines["ORD-2"] = shirts("ORD-2")

	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		result := okResult(req, "10.555")
		if req.IsInternational() {
			result.TotalCharges.MonetaryValue = "48.10"
			result.ChargeBreakdown = &domain.ChargeBreakdown{
				Version:               domain.ChargeBreakdownVersion,
				TransportationCharges: &domain.Charge{MonetaryValue: "44.765", CurrencyCode: "USD"},
				DutiesAndTaxes:        &domain.Charge{MonetaryValue: "3.335", CurrencyCode: "USD"},
			}
		}
		return result, nil
	}

	job, rows := f.newJob("JOB-INTL", domesticOrder(1), canadaOrder(2))
	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, int64(1056), rows[0].CostCents)
	assert.Nil(t, rows[0].DestinationCountry)
	assert.Nil(t, rows[0].ChargeBreakdown)

	require.NotNil(t, rows[1].DestinationCountry)
	assert.Equal(t, "CA", *rows[1].DestinationCountry)
	assert.Equal(t, int64(4810), rows[1].CostCents)
	assert.Equal(t, int64(334), rows[1].DutiesTaxesCents)
	require.NotNil(t, rows[1].ChargeBreakdown)

	assert.Equal(t, int64(1056+4810), summary.TotalCostCents)
	assert.Equal(t, int64(334), summary.TotalDutiesTaxesCents)
	assert.Equal(t, 1, summary.InternationalRowCount)
}

func TestBatchEngine_Execute_UnreadableChargesNeedReview(t *testing.T) {
	f := newEngineFixture(1)
	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		return okResult(req, "N/A"), nil
	}

	job, rows := f.newJob("JOB-NA", domesticOrder(1))
	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NeedsReviewRows)
	assert.Zero(t, summary.FailedRows)
	assert.Equal(t, domain.RowStatusNeedsReview, rows[0].Status)
	assert.Equal(t, "1ZORD-1", rows[0].TrackingNumber, "the booked shipment stays traceable")
	assert.Equal(t, domain.CodeInvalidDataType, rows[0].ErrorCode)
	assert.Contains(t, rows[0].ErrorMessage, "1ZORD-1")
}

func TestBatchEngine_Execute_UnknownCarrierOutcomeNeedsReview(t *testing.T) {
	f := newEngineFixture(2)
	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		if req.OrderID == "ORD-2" {
			return nil, domain.NewCarrierError(domain.CodeCarrierOutcomeUnknown, "", "connection reset; the shipment may have been created")
		}
		return okResult(req, "12.50"), nil
	}

	job, rows := f.newJob("JOB-UNKNOWN", domesticOrder(1), domesticOrder(2), domesticOrder(3))
	progress := &progressRecorder{}
	summary, err := f.engine.Execute(context.Background(), job, rows, progress.sink())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.ProcessedRows)
	assert.Equal(t, 2, summary.SuccessfulRows)
	assert.Equal(t, 1, summary.NeedsReviewRows)
	assert.Equal(t, 3, f.carrier.createdCount(), "an unknown outcome is not replayed")

	assert.Equal(t, domain.RowStatusNeedsReview, rows[1].Status)
	assert.Equal(t, domain.CodeCarrierOutcomeUnknown, rows[1].ErrorCode)
	assert.Equal(t, domain.RowStatusNeedsReview, f.repo.storedRowStatus(job.JobID, 2))

	var reviewEvents int
	for _, event := range progress.events {
		if event.Type == domain.ProgressRowNeedsReview {
			reviewEvents++
		}
	}
	assert.Equal(t, 1, reviewEvents)
}

func TestBatchEngine_Execute_ConcurrentRunsBookOnce(t *testing.T) {
	f := newEngineFixture(3)
	gate := make(chan struct{})
	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		<-gate
		return okResult(req, "12.50"), nil
	}

	orders := []domain.OrderRecord{domesticOrder(1), domesticOrder(2), domesticOrder(3)}
	job, rows := f.newJob("JOB-RACE", orders...)

	type result struct {
		summary *ExecutionSummary
		err     error
	}
	first := make(chan result, 1)
	go func() {
		summary, err := f.engine.Execute(context.Background(), job, rows)
		first <- result{summary, err}
	}()
	require.Eventually(t, func() bool { return f.carrier.inFlight.Load() > 0 },
		time.Second, time.Millisecond, "first run reaches the carrier")

	// A second request loaded its own copy of the job before the first claim
	dup := domain.NewBatchJob(job.JobID, "", testShipper(), "", len(orders))
	dupRows := make([]*domain.BatchRow, len(orders))
	for i, order := range orders {
		dupRows[i] = domain.NewBatchRow(job.JobID, i+1, order)
	}
	_, err := f.engine.Execute(context.Background(), dup, dupRows)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyRunning)

	close(gate)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, 3, got.summary.SuccessfulRows)
	assert.Equal(t, 3, f.carrier.createdCount(), "every order is booked exactly once")
}

func TestBatchEngine_Execute_SkipsRowsClaimedElsewhere(t *testing.T) {
	f := newEngineFixture(2)
	job, rows := f.newJob("JOB-CLAIMED", domesticOrder(1), domesticOrder(2), domesticOrder(3))

	claimed, err := f.repo.ClaimRow(context.Background(), domain.NewBatchRow(job.JobID, 2, domesticOrder(2)))
	require.NoError(t, err)
	require.True(t, claimed)

	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.SuccessfulRows)
	assert.Equal(t, 2, f.carrier.createdCount())
	assert.True(t, rows[1].IsPending(), "the skipped row is left to its owner")
	assert.Equal(t, domain.RowStatusInFlight, f.repo.storedRowStatus(job.JobID, 2))
}

func TestBatchEngine_Execute_SessionFailureAbortsJob(t *testing.T) {
	f := newEngineFixture(5)
	f.carrier.sessionErr = domain.NewSessionError("Unable to obtain carrier access token", errors.New("connection refused"))

	job, rows := f.newJob("JOB-NOSESSION", domesticOrder(1), domesticOrder(2), domesticOrder(3))
	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, summary.Status)
	assert.Equal(t, domain.CodeCarrierSessionUnavailable, summary.FatalErrorCode)
	assert.Equal(t, 3, summary.FailedRows)
	assert.Zero(t, f.carrier.createdCount())
	for _, row := range rows {
		assert.Equal(t, domain.CodeCarrierSessionUnavailable, row.ErrorCode)
		assert.Equal(t, "Unable to obtain carrier access token", row.ErrorMessage)
	}
}

func TestBatchEngine_Execute_FatalErrorStopsDispatch(t *testing.T) {
	f := newEngineFixture(1)
	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		if req.OrderID == "ORD-3" {
			return nil, domain.NewSessionError("Carrier circuit breaker is open", nil)
		}
		return okResult(req, "12.50"), nil
	}

	orders := make([]domain.OrderRecord, 5)
	for i := range orders {
		orders[i] = domesticOrder(i + 1)
	}
	job, rows := f.newJob("JOB-FATAL", orders...)

	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, summary.Status)
	assert.Equal(t, 2, summary.SuccessfulRows)
	assert.Equal(t, 3, summary.FailedRows)
	assert.Equal(t, 3, f.carrier.createdCount())

	assert.Equal(t, domain.RowStatusCompleted, rows[0].Status)
	assert.Equal(t, domain.RowStatusCompleted, rows[1].Status)
	for _, row := range rows[2:] {
		assert.Equal(t, domain.CodeCarrierSessionUnavailable, row.ErrorCode, "row %d", row.RowNumber)
	}
	assert.Contains(t, rows[4].ErrorMessage, "Carrier session lost")
}

func TestBatchEngine_Execute_CancellationLeavesRowsPending(t *testing.T) {
	f := newEngineFixture(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		if req.OrderID == "ORD-2" {
			cancel()
		}
		return okResult(req, "12.50"), nil
	}

	orders := make([]domain.OrderRecord, 5)
	for i := range orders {
		orders[i] = domesticOrder(i + 1)
	}
	job, rows := f.newJob("JOB-CANCEL", orders...)

	summary, err := f.engine.Execute(ctx, job, rows)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCancelled, summary.Status)
	assert.Equal(t, 2, summary.SuccessfulRows, "the in-flight row finishes")
	for _, row := range rows[2:] {
		assert.True(t, row.IsPending(), "row %d", row.RowNumber)
	}

	// A cancelled job resumes with its pending rows
	pending, err := f.repo.FindPendingRows(context.Background(), job.JobID)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	f.carrier.createFn = nil
	summary, err = f.engine.Execute(context.Background(), job, pending)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 5, summary.SuccessfulRows)
}

func TestBatchEngine_Execute_BoundedConcurrency(t *testing.T) {
	f := newEngineFixture(3)
	f.carrier.createFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		time.Sleep(5 * time.Millisecond)
		return okResult(req, "12.50"), nil
	}

	orders := make([]domain.OrderRecord, 12)
	for i := range orders {
		orders[i] = domesticOrder(i + 1)
	}
	job, rows := f.newJob("JOB-BOUND", orders...)

	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, 12, summary.SuccessfulRows)
	assert.LessOrEqual(t, f.carrier.maxInFlight.Load(), int32(3))
}

func TestBatchEngine_Execute_CommodityLookupFailure(t *testing.T) {
	f := newEngineFixture(2)
	f.commodities.err = errors.New("mongo: no reachable servers")

	job, rows := f.newJob("JOB-COMMODITY", domesticOrder(1), canadaOrder(2))
	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, domain.RowStatusCompleted, rows[0].Status)
	assert.Equal(t, domain.CodeDatabaseError, rows[1].ErrorCode)
	assert.Contains(t, rows[1].ErrorMessage, "commodity")
	assert.Equal(t, 1, f.carrier.createdCount())
}

func TestBatchEngine_Execute_RowPersistenceFailureIsReported(t *testing.T) {
	f := newEngineFixture(1)
	f.repo.saveRowFn = func(row *domain.BatchRow) error {
		if row.RowNumber == 2 {
			return errors.New("write conflict")
		}
		return nil
	}

	job, rows := f.newJob("JOB-PERSIST", domesticOrder(1), domesticOrder(2))
	summary, err := f.engine.Execute(context.Background(), job, rows)
	require.Error(t, err)
	assert.ErrorContains(t, err, "write conflict")
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.SuccessfulRows)
}

func TestBatchEngine_Execute_TerminalJobRejected(t *testing.T) {
	f := newEngineFixture(1)
	job, rows := f.newJob("JOB-DONE", domesticOrder(1))
	_, err := f.engine.Execute(context.Background(), job, rows)
	require.NoError(t, err)

	_, err = f.engine.Execute(context.Background(), job, rows)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyTerminal)

	// a stale copy that still reads pending loses the claim too
	stale := domain.NewBatchJob(job.JobID, "", testShipper(), "", 1)
	_, err = f.engine.Execute(context.Background(), stale, []*domain.BatchRow{domain.NewBatchRow(job.JobID, 1, domesticOrder(1))})
	assert.ErrorIs(t, err, domain.ErrJobAlreadyTerminal)
	assert.Equal(t, 1, f.carrier.createdCount())
}

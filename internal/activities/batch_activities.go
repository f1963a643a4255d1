package activities

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/shipment-pipeline/internal/application"
	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/workflows"
	"github.com/wms-platform/shipment-pipeline/pkg/errors"
)

// BatchOperations is the slice of the batch service the activities drive
type BatchOperations interface {
	PreviewBatch(ctx context.Context, cmd application.PreviewBatchCommand) (*domain.PreviewStats, error)
	EvaluateAutoConfirm(ctx context.Context, cmd application.EvaluateAutoConfirmCommand) (*domain.AutoConfirmResult, error)
	ExecuteBatch(ctx context.Context, cmd application.ExecuteBatchCommand, sinks ...domain.ProgressSink) (*application.ExecutionSummary, error)
	CancelBatch(ctx context.Context, cmd application.CancelBatchCommand) (*application.BatchJobDTO, error)
}

// defaultHeartbeatInterval is used when the activity has no heartbeat timeout
const defaultHeartbeatInterval = 10 * time.Second

// BatchActivities contains activities for the batch shipment workflow
type BatchActivities struct {
	batches BatchOperations
}

// NewBatchActivities creates a new BatchActivities instance
func NewBatchActivities(batches BatchOperations) *BatchActivities {
	return &BatchActivities{batches: batches}
}

// heartbeatInterval is a third of the activity's heartbeat timeout
func heartbeatInterval(ctx context.Context) time.Duration {
	if timeout := activity.GetInfo(ctx).HeartbeatTimeout; timeout > 0 {
		return timeout / 3
	}
	return defaultHeartbeatInterval
}

// keepAlive calls beat on a ticker until the returned stop is called, so a
// single slow carrier call never outlives the heartbeat timeout
func keepAlive(ctx context.Context, interval time.Duration, beat func()) (stop func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat()
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// heartbeat keeps the current activity alive with details from progress
func heartbeat(ctx context.Context, progress func() any) (stop func()) {
	return keepAlive(ctx, heartbeatInterval(ctx), func() {
		activity.RecordHeartbeat(ctx, progress())
	})
}

// PreviewBatch rates the job's pending rows
func (a *BatchActivities) PreviewBatch(ctx context.Context, input workflows.JobInput) (*domain.PreviewStats, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Previewing batch", "jobId", input.JobID)

	stop := heartbeat(ctx, func() any { return "previewing " + input.JobID })
	defer stop()

	stats, err := a.batches.PreviewBatch(ctx, application.PreviewBatchCommand{JobID: input.JobID})
	if err != nil {
		logger.Error("Failed to preview batch", "jobId", input.JobID, "error", err)
		return nil, toActivityError(err)
	}

	logger.Info("Batch previewed",
		"jobId", input.JobID,
		"ratedRows", stats.RatedRows,
		"totalEstimatedCostCents", stats.TotalEstimatedCostCents,
	)
	return stats, nil
}

// EvaluateAutoConfirm gates the batch on the configured rules
func (a *BatchActivities) EvaluateAutoConfirm(ctx context.Context, input workflows.EvaluateAutoConfirmInput) (*domain.AutoConfirmResult, error) {
	logger := activity.GetLogger(ctx)

	// without stats the evaluation rates the batch itself
	stop := heartbeat(ctx, func() any { return "evaluating " + input.JobID })
	defer stop()

	result, err := a.batches.EvaluateAutoConfirm(ctx, application.EvaluateAutoConfirmCommand{
		JobID: input.JobID,
		Stats: input.Stats,
	})
	if err != nil {
		logger.Error("Failed to evaluate auto-confirm", "jobId", input.JobID, "error", err)
		return nil, toActivityError(err)
	}

	logger.Info("Auto-confirm evaluated", "jobId", input.JobID, "approved", result.Approved, "reason", result.Reason)
	return result, nil
}

// ExecuteBatch books the job's pending rows, heartbeating the processed row
// count after every row and on a ticker between rows. A retried attempt
// only sees rows still pending.
func (a *BatchActivities) ExecuteBatch(ctx context.Context, input workflows.JobInput) (*application.ExecutionSummary, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Executing batch", "jobId", input.JobID)

	var processed atomic.Int64
	stop := heartbeat(ctx, func() any { return int(processed.Load()) })
	defer stop()

	rowBeat := application.FuncSink(func(ctx context.Context, event domain.ProgressEvent) error {
		processed.Store(int64(event.ProcessedRows))
		activity.RecordHeartbeat(ctx, event.ProcessedRows)
		return nil
	})

	summary, err := a.batches.ExecuteBatch(ctx, application.ExecuteBatchCommand{JobID: input.JobID}, rowBeat)
	if err != nil {
		logger.Error("Failed to execute batch", "jobId", input.JobID, "error", err)
		return nil, toActivityError(err)
	}

	logger.Info("Batch executed",
		"jobId", input.JobID,
		"status", summary.Status,
		"successfulRows", summary.SuccessfulRows,
		"failedRows", summary.FailedRows,
		"needsReviewRows", summary.NeedsReviewRows,
	)
	return summary, nil
}

// CancelBatch marks a job that has not started executing as cancelled
func (a *BatchActivities) CancelBatch(ctx context.Context, input workflows.CancelBatchInput) error {
	logger := activity.GetLogger(ctx)

	if _, err := a.batches.CancelBatch(ctx, application.CancelBatchCommand{JobID: input.JobID, Reason: input.Reason}); err != nil {
		logger.Error("Failed to cancel batch", "jobId", input.JobID, "error", err)
		return toActivityError(err)
	}

	logger.Info("Batch cancelled", "jobId", input.JobID, "reason", input.Reason)
	return nil
}

// toActivityError stops retries for client errors such as a missing or
// already finished job
func toActivityError(err error) error {
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.HTTPStatus >= http.StatusInternalServerError {
		return err
	}
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf("%s: %s", appErr.Code, appErr.Message), appErr.Code, err)
}

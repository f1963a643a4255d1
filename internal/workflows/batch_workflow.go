package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/shipment-pipeline/internal/application"
	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/pkg/temporal"
)

// Activity names registered by the worker
const (
	PreviewBatchActivity        = "PreviewBatch"
	EvaluateAutoConfirmActivity = "EvaluateAutoConfirm"
	ExecuteBatchActivity        = "ExecuteBatch"
	CancelBatchActivity         = "CancelBatch"
)

// DefaultConfirmTimeout is how long an unapproved batch waits for a
// confirmBatch signal before the workflow gives up and leaves it pending
const DefaultConfirmTimeout = 24 * time.Hour

// Workflow result statuses beyond the job statuses
const (
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusPreviewFailed        = "preview_failed"
)

// BatchWorkflowInput represents the input for the batch shipment workflow
type BatchWorkflowInput struct {
	JobID          string        `json:"jobId"`
	ForceExecute   bool          `json:"forceExecute"`
	ConfirmTimeout time.Duration `json:"confirmTimeout,omitempty"`
}

// BatchWorkflowResult represents the result of the batch shipment workflow
type BatchWorkflowResult struct {
	JobID       string                        `json:"jobId"`
	Status      string                        `json:"status"`
	Preview     *domain.PreviewStats          `json:"preview,omitempty"`
	AutoConfirm *domain.AutoConfirmResult     `json:"autoConfirm,omitempty"`
	Confirmed   string                        `json:"confirmed,omitempty"` // auto, forced or signal
	Summary     *application.ExecutionSummary `json:"summary,omitempty"`
	Error       string                        `json:"error,omitempty"`
}

// JobInput identifies the job an activity works on
type JobInput struct {
	JobID string `json:"jobId"`
}

// EvaluateAutoConfirmInput is the input of the EvaluateAutoConfirm activity
type EvaluateAutoConfirmInput struct {
	JobID string               `json:"jobId"`
	Stats *domain.PreviewStats `json:"stats"`
}

// CancelBatchInput is the input of the CancelBatch activity
type CancelBatchInput struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason"`
}

// ConfirmBatchSignal is the payload of the confirmBatch signal
type ConfirmBatchSignal struct {
	ConfirmedBy string `json:"confirmedBy,omitempty"`
}

// CancelBatchSignal is the payload of the cancelBatch signal
type CancelBatchSignal struct {
	Reason string `json:"reason,omitempty"`
}

// BatchShipmentWorkflow previews a batch, gates it through the auto-confirm
// rules and books it. A batch the rules reject waits for a confirmBatch
// signal; cancelBatch stops it at any point before it finishes.
func BatchShipmentWorkflow(ctx workflow.Context, input BatchWorkflowInput) (*BatchWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch shipment workflow", "jobId", input.JobID, "forceExecute", input.ForceExecute)

	result := &BatchWorkflowResult{JobID: input.JobID, Status: string(domain.JobStatusPending)}

	shortCtx := workflow.WithActivityOptions(ctx, temporal.ShortActivityOptions())
	confirmCh := workflow.GetSignalChannel(ctx, temporal.Signals.ConfirmBatch)
	cancelCh := workflow.GetSignalChannel(ctx, temporal.Signals.CancelBatch)

	// Step 1: Preview
	var stats domain.PreviewStats
	if err := workflow.ExecuteActivity(shortCtx, PreviewBatchActivity, JobInput{JobID: input.JobID}).Get(ctx, &stats); err != nil {
		result.Status = StatusPreviewFailed
		result.Error = fmt.Sprintf("failed to preview batch: %v", err)
		return result, err
	}
	result.Preview = &stats

	// Step 2: Auto-confirm gate
	var decision domain.AutoConfirmResult
	err := workflow.ExecuteActivity(shortCtx, EvaluateAutoConfirmActivity, EvaluateAutoConfirmInput{
		JobID: input.JobID,
		Stats: &stats,
	}).Get(ctx, &decision)
	if err != nil {
		result.Error = fmt.Sprintf("failed to evaluate auto-confirm: %v", err)
		return result, err
	}
	result.AutoConfirm = &decision

	switch {
	case decision.Approved:
		result.Confirmed = "auto"
	case input.ForceExecute:
		result.Confirmed = "forced"
	default:
		logger.Info("Batch needs confirmation", "jobId", input.JobID, "reason", decision.Reason)

		timeout := input.ConfirmTimeout
		if timeout <= 0 {
			timeout = DefaultConfirmTimeout
		}
		timerCtx, cancelTimer := workflow.WithCancel(ctx)

		var (
			confirmed bool
			cancelled *CancelBatchSignal
		)
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(confirmCh, func(c workflow.ReceiveChannel, more bool) {
			var sig ConfirmBatchSignal
			c.Receive(ctx, &sig)
			confirmed = true
			logger.Info("Batch confirmed via signal", "jobId", input.JobID, "confirmedBy", sig.ConfirmedBy)
		})
		selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
			var sig CancelBatchSignal
			c.Receive(ctx, &sig)
			cancelled = &sig
		})
		selector.AddFuture(workflow.NewTimer(timerCtx, timeout), func(f workflow.Future) {})
		selector.Select(ctx)
		cancelTimer()

		if cancelled != nil {
			return cancelBatch(ctx, shortCtx, result, cancelled.Reason)
		}
		if !confirmed {
			logger.Info("Confirmation timed out, batch left pending", "jobId", input.JobID)
			result.Status = StatusAwaitingConfirmation
			return result, nil
		}
		result.Confirmed = "signal"
	}

	// Step 3: Execute. A cancel signal cancels the activity, which stops
	// dispatch and leaves unprocessed rows pending.
	execCtx, cancelExec := workflow.WithCancel(workflow.WithActivityOptions(ctx, executeOptions()))
	defer cancelExec()

	var summary application.ExecutionSummary
	future := workflow.ExecuteActivity(execCtx, ExecuteBatchActivity, JobInput{JobID: input.JobID})

	var execErr error
	cancelRequested := false
	selector := workflow.NewSelector(ctx)
	selector.AddFuture(future, func(f workflow.Future) {
		execErr = f.Get(ctx, &summary)
	})
	selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
		var sig CancelBatchSignal
		c.Receive(ctx, &sig)
		cancelRequested = true
		logger.Info("Cancelling batch execution", "jobId", input.JobID, "reason", sig.Reason)
		cancelExec()
	})
	selector.Select(ctx)
	if cancelRequested {
		execErr = future.Get(ctx, &summary)
	}

	if execErr != nil {
		if cancelRequested {
			result.Status = string(domain.JobStatusCancelled)
			return result, nil
		}
		result.Status = string(domain.JobStatusFailed)
		result.Error = fmt.Sprintf("failed to execute batch: %v", execErr)
		return result, execErr
	}

	result.Summary = &summary
	result.Status = string(summary.Status)
	logger.Info("Batch shipment workflow completed",
		"jobId", input.JobID,
		"status", result.Status,
		"successfulRows", summary.SuccessfulRows,
		"failedRows", summary.FailedRows,
	)
	return result, nil
}

func executeOptions() workflow.ActivityOptions {
	opts := temporal.BatchActivityOptions()
	opts.WaitForCancellation = true
	return opts
}

func cancelBatch(ctx, activityCtx workflow.Context, result *BatchWorkflowResult, reason string) (*BatchWorkflowResult, error) {
	if reason == "" {
		reason = "cancelled by request"
	}
	err := workflow.ExecuteActivity(activityCtx, CancelBatchActivity, CancelBatchInput{
		JobID:  result.JobID,
		Reason: reason,
	}).Get(ctx, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to cancel batch: %v", err)
		return result, err
	}
	result.Status = string(domain.JobStatusCancelled)
	return result, nil
}

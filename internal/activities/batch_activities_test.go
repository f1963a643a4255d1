package activities

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/wms-platform/shipment-pipeline/internal/application"
	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/workflows"
	"github.com/wms-platform/shipment-pipeline/pkg/errors"
)

// MockBatchOperations is a mock implementation of BatchOperations
type MockBatchOperations struct {
	mock.Mock
}

func (m *MockBatchOperations) PreviewBatch(ctx context.Context, cmd application.PreviewBatchCommand) (*domain.PreviewStats, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreviewStats), args.Error(1)
}

func (m *MockBatchOperations) EvaluateAutoConfirm(ctx context.Context, cmd application.EvaluateAutoConfirmCommand) (*domain.AutoConfirmResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AutoConfirmResult), args.Error(1)
}

func (m *MockBatchOperations) ExecuteBatch(ctx context.Context, cmd application.ExecuteBatchCommand, sinks ...domain.ProgressSink) (*application.ExecutionSummary, error) {
	args := m.Called(ctx, cmd, sinks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ExecutionSummary), args.Error(1)
}

func (m *MockBatchOperations) CancelBatch(ctx context.Context, cmd application.CancelBatchCommand) (*application.BatchJobDTO, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.BatchJobDTO), args.Error(1)
}

func newActivityEnv(ops BatchOperations) *testsuite.TestActivityEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	env.RegisterActivity(NewBatchActivities(ops))
	return env
}

func TestPreviewBatch_Success(t *testing.T) {
	ops := new(MockBatchOperations)
	ops.On("PreviewBatch", mock.Anything, application.PreviewBatchCommand{JobID: "JOB-1"}).
		Return(&domain.PreviewStats{JobID: "JOB-1", TotalRows: 3, RatedRows: 3, TotalEstimatedCostCents: 3750}, nil)

	env := newActivityEnv(ops)
	val, err := env.ExecuteActivity("PreviewBatch", workflows.JobInput{JobID: "JOB-1"})
	require.NoError(t, err)

	var stats domain.PreviewStats
	require.NoError(t, val.Get(&stats))
	assert.Equal(t, int64(3750), stats.TotalEstimatedCostCents)
	ops.AssertExpectations(t)
}

func TestPreviewBatch_MissingJobIsNotRetried(t *testing.T) {
	ops := new(MockBatchOperations)
	ops.On("PreviewBatch", mock.Anything, mock.Anything).
		Return(nil, errors.ErrNotFoundWithID("batch job", "JOB-404"))

	env := newActivityEnv(ops)
	_, err := env.ExecuteActivity("PreviewBatch", workflows.JobInput{JobID: "JOB-404"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, stderrors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, errors.CodeNotFound, appErr.Type())
}

func TestPreviewBatch_InfrastructureErrorIsRetryable(t *testing.T) {
	ops := new(MockBatchOperations)
	ops.On("PreviewBatch", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("failed to get batch job: connection reset"))

	env := newActivityEnv(ops)
	_, err := env.ExecuteActivity("PreviewBatch", workflows.JobInput{JobID: "JOB-1"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, stderrors.As(err, &appErr))
	assert.False(t, appErr.NonRetryable())
}

func TestEvaluateAutoConfirm_PassesPreviewStats(t *testing.T) {
	stats := &domain.PreviewStats{JobID: "JOB-1", TotalRows: 2, AllAddressesValid: true}
	ops := new(MockBatchOperations)
	ops.On("EvaluateAutoConfirm", mock.Anything, mock.MatchedBy(func(cmd application.EvaluateAutoConfirmCommand) bool {
		return cmd.JobID == "JOB-1" && cmd.Stats != nil && cmd.Stats.TotalRows == 2
	})).Return(&domain.AutoConfirmResult{Approved: true, Reason: "All rules satisfied"}, nil)

	env := newActivityEnv(ops)
	val, err := env.ExecuteActivity("EvaluateAutoConfirm", workflows.EvaluateAutoConfirmInput{JobID: "JOB-1", Stats: stats})
	require.NoError(t, err)

	var result domain.AutoConfirmResult
	require.NoError(t, val.Get(&result))
	assert.True(t, result.Approved)
	ops.AssertExpectations(t)
}

func TestExecuteBatch_HeartbeatsProgress(t *testing.T) {
	ops := new(MockBatchOperations)
	ops.On("ExecuteBatch", mock.Anything, application.ExecuteBatchCommand{JobID: "JOB-1"}, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			sinks := args.Get(2).([]domain.ProgressSink)
			for i := 1; i <= 2; i++ {
				_ = sinks[0].OnProgress(ctx, domain.ProgressEvent{
					Type: domain.ProgressRowCompleted, JobID: "JOB-1", RowNumber: i, ProcessedRows: i, TotalRows: 2,
				})
			}
		}).
		Return(&application.ExecutionSummary{JobID: "JOB-1", Status: domain.JobStatusCompleted, SuccessfulRows: 2}, nil)

	env := newActivityEnv(ops)
	val, err := env.ExecuteActivity("ExecuteBatch", workflows.JobInput{JobID: "JOB-1"})
	require.NoError(t, err)

	var summary application.ExecutionSummary
	require.NoError(t, val.Get(&summary))
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.SuccessfulRows)
	ops.AssertExpectations(t)
}

func TestKeepAlive_BeatsUntilStopped(t *testing.T) {
	var beats atomic.Int32
	stop := keepAlive(context.Background(), 2*time.Millisecond, func() { beats.Add(1) })

	// a carrier call that outlasts several intervals without reporting rows
	require.Eventually(t, func() bool { return beats.Load() >= 3 }, time.Second, time.Millisecond)
	stop()

	after := beats.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, beats.Load(), "no beats after stop")
}

func TestKeepAlive_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var beats atomic.Int32
	stop := keepAlive(ctx, time.Hour, func() { beats.Add(1) })
	cancel()
	stop()
	assert.Zero(t, beats.Load())
}

func TestExecuteBatch_SlowRowKeepsRunning(t *testing.T) {
	ops := new(MockBatchOperations)
	ops.On("ExecuteBatch", mock.Anything, application.ExecuteBatchCommand{JobID: "JOB-1"}, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(&application.ExecutionSummary{JobID: "JOB-1", Status: domain.JobStatusCompleted, NeedsReviewRows: 1}, nil)

	env := newActivityEnv(ops)
	val, err := env.ExecuteActivity("ExecuteBatch", workflows.JobInput{JobID: "JOB-1"})
	require.NoError(t, err)

	var summary application.ExecutionSummary
	require.NoError(t, val.Get(&summary))
	assert.Equal(t, 1, summary.NeedsReviewRows)
}

func TestExecuteBatch_FinishedJobIsNotRetried(t *testing.T) {
	ops := new(MockBatchOperations)
	ops.On("ExecuteBatch", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.ErrConflict("batch job JOB-1 is already completed"))

	env := newActivityEnv(ops)
	_, err := env.ExecuteActivity("ExecuteBatch", workflows.JobInput{JobID: "JOB-1"})

	var appErr *temporal.ApplicationError
	require.True(t, stderrors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, errors.CodeConflict, appErr.Type())
}

func TestCancelBatch(t *testing.T) {
	ops := new(MockBatchOperations)
	ops.On("CancelBatch", mock.Anything, application.CancelBatchCommand{JobID: "JOB-1", Reason: "operator request"}).
		Return(&application.BatchJobDTO{JobID: "JOB-1", Status: "cancelled"}, nil)

	env := newActivityEnv(ops)
	_, err := env.ExecuteActivity("CancelBatch", workflows.CancelBatchInput{JobID: "JOB-1", Reason: "operator request"})
	require.NoError(t, err)
	ops.AssertExpectations(t)
}

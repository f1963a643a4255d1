package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/wms-platform/shipment-pipeline/internal/application"
	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/workflows"
	"github.com/wms-platform/shipment-pipeline/pkg/errors"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
	"github.com/wms-platform/shipment-pipeline/pkg/middleware"
	"github.com/wms-platform/shipment-pipeline/pkg/temporal"
)

// MockBatchAPI is a mock implementation of BatchAPI
type MockBatchAPI struct {
	mock.Mock
}

func (m *MockBatchAPI) CreateBatch(ctx context.Context, cmd application.CreateBatchCommand) (*application.BatchJobDTO, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.BatchJobDTO), args.Error(1)
}

func (m *MockBatchAPI) GetBatch(ctx context.Context, query application.GetBatchQuery) (*application.BatchJobDTO, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.BatchJobDTO), args.Error(1)
}

func (m *MockBatchAPI) GetRows(ctx context.Context, query application.GetBatchRowsQuery) ([]application.BatchRowDTO, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]application.BatchRowDTO), args.Error(1)
}

func (m *MockBatchAPI) PreviewBatch(ctx context.Context, cmd application.PreviewBatchCommand) (*domain.PreviewStats, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreviewStats), args.Error(1)
}

func (m *MockBatchAPI) EvaluateAutoConfirm(ctx context.Context, cmd application.EvaluateAutoConfirmCommand) (*domain.AutoConfirmResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AutoConfirmResult), args.Error(1)
}

func (m *MockBatchAPI) ExecuteBatch(ctx context.Context, cmd application.ExecuteBatchCommand, sinks ...domain.ProgressSink) (*application.ExecutionSummary, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ExecutionSummary), args.Error(1)
}

func (m *MockBatchAPI) CancelBatch(ctx context.Context, cmd application.CancelBatchCommand) (*application.BatchJobDTO, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.BatchJobDTO), args.Error(1)
}

func (m *MockBatchAPI) CheckRequirements(query application.RequirementsQuery) domain.RequirementSet {
	args := m.Called(query)
	return args.Get(0).(domain.RequirementSet)
}

func (m *MockBatchAPI) ValidateOrder(ctx context.Context, cmd application.ValidateOrderCommand) (*application.ValidationResultDTO, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ValidationResultDTO), args.Error(1)
}

// MockWorkflowGateway is a mock implementation of WorkflowGateway
type MockWorkflowGateway struct {
	mock.Mock
}

func (m *MockWorkflowGateway) StartBatchWorkflow(ctx context.Context, jobID string, input any) (client.WorkflowRun, error) {
	args := m.Called(ctx, jobID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(client.WorkflowRun), args.Error(1)
}

func (m *MockWorkflowGateway) SignalWorkflow(ctx context.Context, workflowID, signalName string, arg any) error {
	args := m.Called(ctx, workflowID, signalName, arg)
	return args.Error(0)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(batches BatchAPI, gateway WorkflowGateway) *gin.Engine {
	h := &handlers{
		batches:        batches,
		confirmTimeout: time.Hour,
		logger:         logging.NewNop(),
	}
	if gateway != nil {
		h.workflows = gateway
	}
	return newRouter(h, metrics.New(metrics.DefaultConfig("api-test")), func(context.Context) error { return nil })
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.APIErrorResponse {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCheckRequirements(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("CheckRequirements", application.RequirementsQuery{
		OriginCountry: "US", DestinationCountry: "CA", ServiceCode: "11",
	}).Return(domain.RequirementSet{IsInternational: true, RequiresCommodities: true, CurrencyCode: "USD"})

	router := newTestRouter(batches, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/requirements",
		`{"originCountry":"US","destinationCountry":"CA","serviceCode":"11"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.RequirementSet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.IsInternational)
	assert.True(t, got.RequiresCommodities)
	batches.AssertExpectations(t)
}

func TestCheckRequirements_RejectsBadServiceCode(t *testing.T) {
	router := newTestRouter(new(MockBatchAPI), nil)
	w := doRequest(router, http.MethodPost, "/api/v1/requirements",
		`{"originCountry":"US","destinationCountry":"CA","serviceCode":"express"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeValidationError, decodeError(t, w).Code)
}

func TestValidateOrder_NotReady(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("ValidateOrder", mock.Anything, mock.MatchedBy(func(cmd application.ValidateOrderCommand) bool {
		return cmd.Order.OrderID == "ORD-9"
	})).Return(&application.ValidationResultDTO{
		Valid:     false,
		ErrorCode: domain.CodeMissingInternationalData,
		Errors:    []domain.ValidationError{{MachineCode: domain.MissingRecipientPhone}},
	}, nil)

	router := newTestRouter(batches, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/orders/validate",
		`{"order":{"orderId":"ORD-9","shipToName":"Jane","shipToCountry":"CA"}}`)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var got application.ValidationResultDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.CodeMissingInternationalData, got.ErrorCode)
}

func TestCreateBatch(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("CreateBatch", mock.Anything, mock.MatchedBy(func(cmd application.CreateBatchCommand) bool {
		return cmd.Name == "morning" && len(cmd.Orders) == 2
	})).Return(&application.BatchJobDTO{JobID: "JOB-1", Status: "pending", TotalRows: 2}, nil)

	router := newTestRouter(batches, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/batches",
		`{"name":"morning","orders":[{"orderId":"ORD-1"},{"orderId":"ORD-2"}]}`)

	require.Equal(t, http.StatusCreated, w.Code)
	var got application.BatchJobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "JOB-1", got.JobID)
	assert.Equal(t, 2, got.TotalRows)
}

func TestCreateBatch_RequiresOrders(t *testing.T) {
	router := newTestRouter(new(MockBatchAPI), nil)
	w := doRequest(router, http.MethodPost, "/api/v1/batches", `{"name":"empty","orders":[]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeValidationError, decodeError(t, w).Code)
}

func TestCreateBatch_RejectsNonJSON(t *testing.T) {
	router := newTestRouter(new(MockBatchAPI), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader("orderId=ORD-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestGetBatch_NotFound(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("GetBatch", mock.Anything, application.GetBatchQuery{JobID: "missing"}).
		Return(nil, errors.ErrNotFoundWithID("batch job", "missing"))

	router := newTestRouter(batches, nil)
	w := doRequest(router, http.MethodGet, "/api/v1/batches/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, errors.CodeNotFound, resp.Code)
	assert.Equal(t, "missing", resp.Details["id"])
}

func TestGetRows(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("GetRows", mock.Anything, application.GetBatchRowsQuery{JobID: "JOB-1", Status: domain.RowStatusFailed}).
		Return([]application.BatchRowDTO{{JobID: "JOB-1", RowNumber: 3, Status: "failed", ErrorCode: domain.CodeMissingInternationalData}}, nil)

	router := newTestRouter(batches, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/batches/JOB-1/rows?status=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Rows  []application.BatchRowDTO `json:"rows"`
		Count int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 3, body.Rows[0].RowNumber)

	batches.On("GetRows", mock.Anything, application.GetBatchRowsQuery{JobID: "JOB-1", Status: domain.RowStatusNeedsReview}).
		Return([]application.BatchRowDTO{{JobID: "JOB-1", RowNumber: 4, Status: "needs_review", ErrorCode: domain.CodeCarrierOutcomeUnknown}}, nil)
	w = doRequest(router, http.MethodGet, "/api/v1/batches/JOB-1/rows?status=needs_review", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Rows[0].RowNumber)

	w = doRequest(router, http.MethodGet, "/api/v1/batches/JOB-1/rows?status=done", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewBatch_SessionFailure(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("PreviewBatch", mock.Anything, application.PreviewBatchCommand{JobID: "JOB-1"}).
		Return(nil, fmt.Errorf("failed to establish carrier session: %w",
			domain.NewSessionError("UPS circuit breaker is open", stderrors.New("open"))))

	router := newTestRouter(batches, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/preview", "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, domain.CodeCarrierSessionUnavailable, decodeError(t, w).Details["errorCode"])
}

func TestEvaluateAutoConfirm_RuleOverride(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("EvaluateAutoConfirm", mock.Anything, mock.MatchedBy(func(cmd application.EvaluateAutoConfirmCommand) bool {
		return cmd.JobID == "JOB-1" && cmd.Rules != nil && cmd.Rules.MaxRows == 10
	})).Return(&domain.AutoConfirmResult{Approved: false, Reason: "1 rule(s) violated"}, nil)

	router := newTestRouter(batches, nil)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/auto-confirm",
		`{"rules":{"enabled":true,"maxRows":10}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.AutoConfirmResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.False(t, got.Approved)
	batches.AssertExpectations(t)
}

func TestExecuteBatch(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("ExecuteBatch", mock.Anything, application.ExecuteBatchCommand{JobID: "JOB-1"}).
		Return(&application.ExecutionSummary{JobID: "JOB-1", Status: domain.JobStatusCompleted, SuccessfulRows: 8, FailedRows: 2}, nil).Once()
	batches.On("ExecuteBatch", mock.Anything, application.ExecuteBatchCommand{JobID: "JOB-1"}).
		Return(nil, errors.ErrConflict("batch job JOB-1 is already completed"))

	router := newTestRouter(batches, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/execute", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary application.ExecutionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 8, summary.SuccessfulRows)

	w = doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/execute", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartWorkflow(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("GetBatch", mock.Anything, application.GetBatchQuery{JobID: "JOB-1"}).
		Return(&application.BatchJobDTO{JobID: "JOB-1", Status: "pending"}, nil)

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(temporal.BatchWorkflowID("JOB-1"))
	run.On("GetRunID").Return("run-1")

	gateway := new(MockWorkflowGateway)
	gateway.On("StartBatchWorkflow", mock.Anything, "JOB-1", workflows.BatchWorkflowInput{
		JobID:          "JOB-1",
		ForceExecute:   true,
		ConfirmTimeout: 2 * time.Hour,
	}).Return(run, nil)

	router := newTestRouter(batches, gateway)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/workflow", `{"forceExecute":true,"confirmTimeout":"2h"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	var got WorkflowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "batch-shipment-JOB-1", got.WorkflowID)
	assert.Equal(t, "run-1", got.RunID)
	gateway.AssertExpectations(t)
}

func TestStartWorkflow_Unavailable(t *testing.T) {
	router := newTestRouter(new(MockBatchAPI), nil)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/workflow", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStartWorkflow_FinishedJob(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("GetBatch", mock.Anything, application.GetBatchQuery{JobID: "JOB-1"}).
		Return(&application.BatchJobDTO{JobID: "JOB-1", Status: "completed"}, nil)
	gateway := new(MockWorkflowGateway)

	router := newTestRouter(batches, gateway)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/workflow", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	gateway.AssertNotCalled(t, "StartBatchWorkflow", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmBatch(t *testing.T) {
	gateway := new(MockWorkflowGateway)
	gateway.On("SignalWorkflow", mock.Anything, "batch-shipment-JOB-1", temporal.Signals.ConfirmBatch,
		workflows.ConfirmBatchSignal{ConfirmedBy: "ops"}).Return(nil)

	router := newTestRouter(new(MockBatchAPI), gateway)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/confirm", `{"confirmedBy":"ops"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	gateway.AssertExpectations(t)
}

func TestCancelBatch_SignalsLiveWorkflow(t *testing.T) {
	batches := new(MockBatchAPI)
	gateway := new(MockWorkflowGateway)
	gateway.On("SignalWorkflow", mock.Anything, "batch-shipment-JOB-1", temporal.Signals.CancelBatch,
		workflows.CancelBatchSignal{Reason: "wrong account"}).Return(nil)

	router := newTestRouter(batches, gateway)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/cancel", `{"reason":"wrong account"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	batches.AssertNotCalled(t, "CancelBatch", mock.Anything, mock.Anything)
}

func TestCancelBatch_WithoutWorkflow(t *testing.T) {
	batches := new(MockBatchAPI)
	batches.On("CancelBatch", mock.Anything, application.CancelBatchCommand{JobID: "JOB-1", Reason: "wrong account"}).
		Return(&application.BatchJobDTO{JobID: "JOB-1", Status: "cancelled"}, nil)
	gateway := new(MockWorkflowGateway)
	gateway.On("SignalWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(stderrors.New("workflow not found"))

	router := newTestRouter(batches, gateway)
	w := doRequest(router, http.MethodPost, "/api/v1/batches/JOB-1/cancel", `{"reason":"wrong account"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var got application.BatchJobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "cancelled", got.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(new(MockBatchAPI), nil)

	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

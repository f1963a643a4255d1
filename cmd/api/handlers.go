package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/client"

	"github.com/wms-platform/shipment-pipeline/internal/application"
	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/workflows"
	"github.com/wms-platform/shipment-pipeline/pkg/errors"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/middleware"
	"github.com/wms-platform/shipment-pipeline/pkg/temporal"
)

// BatchAPI is the application surface the HTTP handlers drive
type BatchAPI interface {
	CreateBatch(ctx context.Context, cmd application.CreateBatchCommand) (*application.BatchJobDTO, error)
	GetBatch(ctx context.Context, query application.GetBatchQuery) (*application.BatchJobDTO, error)
	GetRows(ctx context.Context, query application.GetBatchRowsQuery) ([]application.BatchRowDTO, error)
	PreviewBatch(ctx context.Context, cmd application.PreviewBatchCommand) (*domain.PreviewStats, error)
	EvaluateAutoConfirm(ctx context.Context, cmd application.EvaluateAutoConfirmCommand) (*domain.AutoConfirmResult, error)
	ExecuteBatch(ctx context.Context, cmd application.ExecuteBatchCommand, sinks ...domain.ProgressSink) (*application.ExecutionSummary, error)
	CancelBatch(ctx context.Context, cmd application.CancelBatchCommand) (*application.BatchJobDTO, error)
	CheckRequirements(query application.RequirementsQuery) domain.RequirementSet
	ValidateOrder(ctx context.Context, cmd application.ValidateOrderCommand) (*application.ValidationResultDTO, error)
}

// WorkflowGateway starts and signals batch workflows
type WorkflowGateway interface {
	StartBatchWorkflow(ctx context.Context, jobID string, input any) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, signalName string, arg any) error
}

// RequirementsRequest is the request body for a lane requirement lookup
type RequirementsRequest struct {
	OriginCountry      string `json:"originCountry" binding:"required,len=2"`
	DestinationCountry string `json:"destinationCountry" binding:"required,len=2"`
	ServiceCode        string `json:"serviceCode" binding:"omitempty,service_code"`
}

// ValidateOrderRequest is the request body for a single order readiness check
type ValidateOrderRequest struct {
	Order       domain.OrderRecord `json:"order" binding:"required"`
	Shipper     *domain.Shipper    `json:"shipper"`
	ServiceCode string             `json:"serviceCode" binding:"omitempty,service_code"`
}

// CreateBatchRequest is the request body for queueing a batch
type CreateBatchRequest struct {
	Name        string               `json:"name"`
	Shipper     *domain.Shipper      `json:"shipper"`
	ServiceCode string               `json:"serviceCode" binding:"omitempty,service_code"`
	Orders      []domain.OrderRecord `json:"orders" binding:"required,min=1"`
}

// AutoConfirmRequest optionally overrides the configured rules
type AutoConfirmRequest struct {
	Rules *domain.AutoConfirmRuleSet `json:"rules"`
}

// StartWorkflowRequest is the request body for starting a batch workflow
type StartWorkflowRequest struct {
	ForceExecute   bool   `json:"forceExecute"`
	ConfirmTimeout string `json:"confirmTimeout"`
}

// ConfirmRequest is the request body for confirming a batch
type ConfirmRequest struct {
	ConfirmedBy string `json:"confirmedBy"`
}

// CancelRequest is the request body for cancelling a batch
type CancelRequest struct {
	Reason string `json:"reason"`
}

// WorkflowResponse identifies a started or signalled workflow
type WorkflowResponse struct {
	JobID      string `json:"jobId"`
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId,omitempty"`
}

type handlers struct {
	batches        BatchAPI
	workflows      WorkflowGateway
	confirmTimeout time.Duration
	logger         *logging.Logger
}

func registerRoutes(router *gin.Engine, h *handlers) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/requirements", h.checkRequirements)
		v1.POST("/orders/validate", h.validateOrder)

		batches := v1.Group("/batches")
		{
			batches.POST("", h.createBatch)
			batches.GET("/:jobId", h.getBatch)
			batches.GET("/:jobId/rows", h.getRows)
			batches.POST("/:jobId/preview", h.previewBatch)
			batches.POST("/:jobId/auto-confirm", h.evaluateAutoConfirm)
			batches.POST("/:jobId/execute", h.executeBatch)
			batches.POST("/:jobId/cancel", h.cancelBatch)
			batches.POST("/:jobId/workflow", h.startWorkflow)
			batches.POST("/:jobId/confirm", h.confirmBatch)
		}
	}
}

func (h *handlers) checkRequirements(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req RequirementsRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	c.JSON(http.StatusOK, h.batches.CheckRequirements(application.RequirementsQuery{
		OriginCountry:      req.OriginCountry,
		DestinationCountry: req.DestinationCountry,
		ServiceCode:        req.ServiceCode,
	}))
}

func (h *handlers) validateOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req ValidateOrderRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.batches.ValidateOrder(c.Request.Context(), application.ValidateOrderCommand{
		Order:       req.Order,
		Shipper:     req.Shipper,
		ServiceCode: req.ServiceCode,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func (h *handlers) createBatch(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req CreateBatchRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	job, err := h.batches.CreateBatch(c.Request.Context(), application.CreateBatchCommand{
		Name:        req.Name,
		Shipper:     req.Shipper,
		ServiceCode: req.ServiceCode,
		Orders:      req.Orders,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *handlers) getBatch(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	job, err := h.batches.GetBatch(c.Request.Context(), application.GetBatchQuery{JobID: c.Param("jobId")})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *handlers) getRows(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	status := domain.RowStatus(c.Query("status"))
	if status != "" && !domain.ValidRowStatus(status) {
		responder.RespondWithAppError(errors.ErrValidation("status must be one of pending, in_flight, completed, failed, needs_review"))
		return
	}

	rows, err := h.batches.GetRows(c.Request.Context(), application.GetBatchRowsQuery{
		JobID:  c.Param("jobId"),
		Status: status,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows, "count": len(rows)})
}

func (h *handlers) previewBatch(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	stats, err := h.batches.PreviewBatch(c.Request.Context(), application.PreviewBatchCommand{JobID: c.Param("jobId")})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *handlers) evaluateAutoConfirm(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req AutoConfirmRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	result, err := h.batches.EvaluateAutoConfirm(c.Request.Context(), application.EvaluateAutoConfirmCommand{
		JobID: c.Param("jobId"),
		Rules: req.Rules,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *handlers) executeBatch(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	summary, err := h.batches.ExecuteBatch(c.Request.Context(), application.ExecuteBatchCommand{JobID: c.Param("jobId")})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *handlers) cancelBatch(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	jobID := c.Param("jobId")

	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	// A live workflow owns the job; without one the job is cancelled directly
	if h.workflows != nil {
		workflowID := temporal.BatchWorkflowID(jobID)
		err := h.workflows.SignalWorkflow(c.Request.Context(), workflowID, temporal.Signals.CancelBatch,
			workflows.CancelBatchSignal{Reason: req.Reason})
		if err == nil {
			c.JSON(http.StatusAccepted, WorkflowResponse{JobID: jobID, WorkflowID: workflowID})
			return
		}
		h.logger.WithError(err).Debug("No batch workflow to signal, cancelling directly", "jobId", jobID)
	}

	job, err := h.batches.CancelBatch(c.Request.Context(), application.CancelBatchCommand{JobID: jobID, Reason: req.Reason})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *handlers) startWorkflow(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	jobID := c.Param("jobId")

	if h.workflows == nil {
		responder.RespondWithAppError(errors.ErrServiceUnavailable("workflow orchestration"))
		return
	}

	var req StartWorkflowRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	timeout := h.confirmTimeout
	if req.ConfirmTimeout != "" {
		d, err := time.ParseDuration(req.ConfirmTimeout)
		if err != nil || d <= 0 {
			responder.RespondWithAppError(errors.ErrValidation("confirmTimeout must be a positive duration such as 2h"))
			return
		}
		timeout = d
	}

	// The job must exist and still be open before a workflow is started for it
	job, err := h.batches.GetBatch(c.Request.Context(), application.GetBatchQuery{JobID: jobID})
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	if job.Status == string(domain.JobStatusCompleted) || job.Status == string(domain.JobStatusFailed) {
		responder.RespondWithAppError(errors.ErrConflict("batch job " + jobID + " is already " + job.Status))
		return
	}

	run, err := h.workflows.StartBatchWorkflow(c.Request.Context(), jobID, workflows.BatchWorkflowInput{
		JobID:          jobID,
		ForceExecute:   req.ForceExecute,
		ConfirmTimeout: timeout,
	})
	if err != nil {
		responder.RespondWithAppError(errors.ErrServiceUnavailable("workflow orchestration").Wrap(err))
		return
	}

	c.JSON(http.StatusAccepted, WorkflowResponse{JobID: jobID, WorkflowID: run.GetID(), RunID: run.GetRunID()})
}

func (h *handlers) confirmBatch(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	jobID := c.Param("jobId")

	if h.workflows == nil {
		responder.RespondWithAppError(errors.ErrServiceUnavailable("workflow orchestration"))
		return
	}

	var req ConfirmRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	workflowID := temporal.BatchWorkflowID(jobID)
	err := h.workflows.SignalWorkflow(c.Request.Context(), workflowID, temporal.Signals.ConfirmBatch,
		workflows.ConfirmBatchSignal{ConfirmedBy: req.ConfirmedBy})
	if err != nil {
		responder.RespondWithAppError(errors.ErrNotFoundWithID("batch workflow", workflowID).Wrap(err))
		return
	}

	c.JSON(http.StatusAccepted, WorkflowResponse{JobID: jobID, WorkflowID: workflowID})
}

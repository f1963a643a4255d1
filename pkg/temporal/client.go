package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Config locates the Temporal frontend
type Config struct {
	HostPort  string `yaml:"hostPort" validate:"required"`
	Namespace string `yaml:"namespace" validate:"required"`
	Identity  string `yaml:"identity"`
}

// DefaultConfig returns a default Temporal configuration
func DefaultConfig() *Config {
	return &Config{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "shipment-pipeline-worker",
	}
}

// TaskQueues contains the pipeline's task queue names
var TaskQueues = struct {
	BatchShipping string
}{
	BatchShipping: "batch-shipping-queue",
}

// WorkflowNames contains registered workflow type names
var WorkflowNames = struct {
	BatchShipment string
}{
	BatchShipment: "BatchShipmentWorkflow",
}

// Signals contains signal names accepted by pipeline workflows
var Signals = struct {
	ConfirmBatch string
	CancelBatch  string
}{
	ConfirmBatch: "confirmBatch",
	CancelBatch:  "cancelBatch",
}

// Client pairs the SDK client with the pipeline's workflow conventions
type Client struct {
	client client.Client
}

// NewClient dials the Temporal frontend, logging through slog
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial Temporal at %s: %w", config.HostPort, err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Client() client.Client { return c.client }

func (c *Client) Close() { c.client.Close() }

// StartBatchWorkflow starts the batch workflow with the job ID as workflow ID,
// so a job can only have one live workflow.
func (c *Client) StartBatchWorkflow(ctx context.Context, jobID string, input any) (client.WorkflowRun, error) {
	return c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        BatchWorkflowID(jobID),
		TaskQueue: TaskQueues.BatchShipping,
	}, WorkflowNames.BatchShipment, input)
}

// SignalWorkflow signals the current run of workflowID
func (c *Client) SignalWorkflow(ctx context.Context, workflowID, signalName string, arg any) error {
	return c.client.SignalWorkflow(ctx, workflowID, "", signalName, arg)
}

// BatchWorkflowID derives the workflow ID for a batch job
func BatchWorkflowID(jobID string) string {
	return "batch-shipment-" + jobID
}

// WorkerOptions caps concurrent tasks on a worker. A batch activity fans
// out to the carrier on its own, so few activity slots are needed.
type WorkerOptions struct {
	TaskQueue  string
	Activities int
	Workflows  int
}

func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{TaskQueue: taskQueue, Activities: 8, Workflows: 50}
}

// NewWorker creates a worker polling opts.TaskQueue
func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.client, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     opts.Activities,
		MaxConcurrentWorkflowTaskExecutionSize: opts.Workflows,
	})
}

// BatchActivityOptions are used for the long-running execute activity. The
// activity heartbeats per processed row and on a ticker. A retry never
// rebooks: the job claim turns it into a non-retryable conflict.
func BatchActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
}

// ShortActivityOptions are used for preview and evaluation activities,
// which heartbeat on a ticker while the carrier rates rows
func ShortActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
}

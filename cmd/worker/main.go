package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/shipment-pipeline/internal/activities"
	"github.com/wms-platform/shipment-pipeline/internal/application"
	"github.com/wms-platform/shipment-pipeline/internal/config"
	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/infrastructure/carriers"
	kafkaInfra "github.com/wms-platform/shipment-pipeline/internal/infrastructure/kafka"
	mongoRepo "github.com/wms-platform/shipment-pipeline/internal/infrastructure/mongodb"
	"github.com/wms-platform/shipment-pipeline/internal/payload"
	"github.com/wms-platform/shipment-pipeline/internal/workflows"
	"github.com/wms-platform/shipment-pipeline/pkg/cloudevents"
	"github.com/wms-platform/shipment-pipeline/pkg/kafka"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
	"github.com/wms-platform/shipment-pipeline/pkg/mongodb"
	"github.com/wms-platform/shipment-pipeline/pkg/temporal"
	"github.com/wms-platform/shipment-pipeline/pkg/tracing"
)

const serviceName = "shipment-pipeline-worker"

func main() {
	_ = godotenv.Load()

	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting shipment pipeline worker")

	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	ctx := context.Background()

	tracerProvider, err := tracing.Initialize(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(shutdownCtx)
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	// Initialize MongoDB
	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	batchRepo := mongoRepo.NewBatchJobRepository(mongoClient.Database(), m)
	commodityRepo := mongoRepo.NewCommodityRepository(mongoClient.Database(), m)

	// Initialize Kafka producer
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceBatchEngine)
	publisher := kafkaInfra.NewEventPublisher(producer, eventFactory, kafka.Topics.BatchLifecycle, logger, m)
	progressSink := kafkaInfra.NewProgressSink(producer, eventFactory, kafka.Topics.BatchProgress, logger, m)

	// Core pipeline
	resolver := domain.NewLaneResolver(cfg.Lanes.InternationalEnabled)
	builder := payload.NewBuilder(resolver)
	carrier := carriers.NewUPSClient(cfg.Carrier, logger, m)
	engine := application.NewBatchEngine(carrier, commodityRepo, batchRepo, builder, progressSink, logger, m,
		application.EngineConfig{Concurrency: cfg.Batch.Concurrency, MaxPreviewRows: cfg.Batch.MaxPreviewRows})
	batchService := application.NewBatchService(batchRepo, commodityRepo, engine, builder, resolver,
		publisher, cfg.AutoConfirm, cfg.Shipper, logger, m)

	// Initialize Temporal client
	temporalClient, err := temporal.NewClient(ctx, cfg.Temporal, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", cfg.Temporal.HostPort)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.BatchShipping))

	w.RegisterWorkflowWithOptions(workflows.BatchShipmentWorkflow, workflow.RegisterOptions{
		Name: temporal.WorkflowNames.BatchShipment,
	})
	logger.Info("Registered workflow", "workflow", temporal.WorkflowNames.BatchShipment)

	batchActivities := activities.NewBatchActivities(batchService)
	w.RegisterActivityWithOptions(batchActivities.PreviewBatch, activity.RegisterOptions{Name: workflows.PreviewBatchActivity})
	w.RegisterActivityWithOptions(batchActivities.EvaluateAutoConfirm, activity.RegisterOptions{Name: workflows.EvaluateAutoConfirmActivity})
	w.RegisterActivityWithOptions(batchActivities.ExecuteBatch, activity.RegisterOptions{Name: workflows.ExecuteBatchActivity})
	w.RegisterActivityWithOptions(batchActivities.CancelBatch, activity.RegisterOptions{Name: workflows.CancelBatchActivity})
	logger.Info("Registered activities")

	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker failed")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.BatchShipping)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

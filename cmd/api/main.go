package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/wms-platform/shipment-pipeline/internal/application"
	"github.com/wms-platform/shipment-pipeline/internal/config"
	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/infrastructure/carriers"
	kafkaInfra "github.com/wms-platform/shipment-pipeline/internal/infrastructure/kafka"
	mongoRepo "github.com/wms-platform/shipment-pipeline/internal/infrastructure/mongodb"
	"github.com/wms-platform/shipment-pipeline/internal/payload"
	"github.com/wms-platform/shipment-pipeline/pkg/cloudevents"
	"github.com/wms-platform/shipment-pipeline/pkg/kafka"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
	"github.com/wms-platform/shipment-pipeline/pkg/middleware"
	"github.com/wms-platform/shipment-pipeline/pkg/mongodb"
	"github.com/wms-platform/shipment-pipeline/pkg/temporal"
	"github.com/wms-platform/shipment-pipeline/pkg/tracing"
)

const serviceName = "shipment-pipeline-api"

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting shipment pipeline API")

	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracerProvider, err := tracing.Initialize(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", cfg.Tracing.OTLPEndpoint)
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
	if err := batchRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create batch indexes")
		os.Exit(1)
	}
	if err := commodityRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create commodity indexes")
		os.Exit(1)
	}

	// Initialize Kafka producer
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceBatchEngine)
	publisher := kafkaInfra.NewEventPublisher(producer, eventFactory, kafka.Topics.BatchLifecycle, logger, m)
	progressSink := kafkaInfra.NewProgressSink(producer, eventFactory, kafka.Topics.BatchProgress, logger, m)
	logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

	// Core pipeline
	resolver := domain.NewLaneResolver(cfg.Lanes.InternationalEnabled)
	builder := payload.NewBuilder(resolver)
	carrier := carriers.NewUPSClient(cfg.Carrier, logger, m)
	engine := application.NewBatchEngine(carrier, commodityRepo, batchRepo, builder, progressSink, logger, m,
		application.EngineConfig{Concurrency: cfg.Batch.Concurrency, MaxPreviewRows: cfg.Batch.MaxPreviewRows})
	batchService := application.NewBatchService(batchRepo, commodityRepo, engine, builder, resolver,
		publisher, cfg.AutoConfirm, cfg.Shipper, logger, m)
	logger.Info("Pipeline initialized",
		"internationalLanes", resolver.EnabledLanes(),
		"concurrency", cfg.Batch.Concurrency,
	)

	h := &handlers{
		batches:        batchService,
		confirmTimeout: cfg.Batch.ConfirmTimeout,
		logger:         logger,
	}

	// Temporal is optional for the API: without it batches run synchronously only
	temporalClient, err := temporal.NewClient(ctx, cfg.Temporal, logger.Logger)
	if err != nil {
		logger.WithError(err).Warn("Temporal unavailable, workflow endpoints disabled")
	} else {
		defer temporalClient.Close()
		h.workflows = temporalClient
		logger.Info("Connected to Temporal", "namespace", cfg.Temporal.Namespace)
	}

	router := newRouter(h, m, func(ctx context.Context) error {
		return mongoClient.HealthCheck(ctx)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.Server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

func newRouter(h *handlers, m *metrics.Metrics, ready func(ctx context.Context) error) *gin.Engine {
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, h.logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.Tracing(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, ready))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	registerRoutes(router, h)
	return router
}

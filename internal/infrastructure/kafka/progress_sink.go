package kafka

import (
	"context"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/pkg/cloudevents"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
)

// ProgressSink publishes row outcomes as RowCompleted, RowFailed or
// RowNeedsReview CloudEvents.
// Events are keyed by job, so one job's progress stays ordered.
type ProgressSink struct {
	publisher
	eventFactory *cloudevents.EventFactory
}

// NewProgressSink creates a Kafka-backed progress sink. m may be nil.
func NewProgressSink(producer EventProducer, eventFactory *cloudevents.EventFactory, topic string, logger *logging.Logger, m *metrics.Metrics) *ProgressSink {
	return &ProgressSink{
		publisher: publisher{
			producer: producer,
			topic:    topic,
			logger:   logger.WithComponent("progress-sink"),
			metrics:  m,
		},
		eventFactory: eventFactory,
	}
}

// OnProgress implements domain.ProgressSink
func (s *ProgressSink) OnProgress(ctx context.Context, event domain.ProgressEvent) error {
	eventType := cloudevents.RowCompleted
	switch event.Type {
	case domain.ProgressRowFailed:
		eventType = cloudevents.RowFailed
	case domain.ProgressRowNeedsReview:
		eventType = cloudevents.RowNeedsReview
	}

	ce := s.eventFactory.CreateRowEvent(ctx, eventType, cloudevents.RowOutcomeData{
		JobID:          event.JobID,
		RowNumber:      event.RowNumber,
		OrderID:        event.OrderID,
		TrackingNumber: event.TrackingNumber,
		CostCents:      event.CostCents,
		ErrorCode:      event.ErrorCode,
		ErrorMessage:   event.ErrorMessage,
	})
	return s.publish(ctx, ce)
}

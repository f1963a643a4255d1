package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/pkg/cloudevents"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
)

// EventProducer publishes CloudEvents to a topic; *kafka.Producer satisfies it
type EventProducer interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.PipelineCloudEvent) error
}

// publisher is the instrumented publish path shared by the lifecycle
// publisher and the progress sink
type publisher struct {
	producer EventProducer
	topic    string
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

func (p *publisher) publish(ctx context.Context, event *cloudevents.PipelineCloudEvent) error {
	start := time.Now()
	err := p.producer.PublishEvent(ctx, p.topic, event)
	duration := time.Since(start)

	p.logger.KafkaPublish(ctx, p.topic, event.Type, err == nil, duration)
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(p.topic, event.Type, err == nil, duration)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// EventPublisher implements domain.EventPublisher for batch lifecycle events
type EventPublisher struct {
	publisher
	eventFactory *cloudevents.EventFactory
}

// NewEventPublisher creates a Kafka-backed lifecycle publisher. m may be nil.
func NewEventPublisher(producer EventProducer, eventFactory *cloudevents.EventFactory, topic string, logger *logging.Logger, m *metrics.Metrics) *EventPublisher {
	return &EventPublisher{
		publisher: publisher{
			producer: producer,
			topic:    topic,
			logger:   logger.WithComponent("event-publisher"),
			metrics:  m,
		},
		eventFactory: eventFactory,
	}
}

// Publish publishes a single domain event
func (p *EventPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	ce := p.eventFactory.CreateEvent(ctx, event.EventType(), "batch/"+event.AggregateID(), event)
	ce.JobID = event.AggregateID()
	ce.Time = event.OccurredAt().UTC()
	return p.publish(ctx, ce)
}

// PublishAll publishes events in order, stopping at the first failure
func (p *EventPublisher) PublishAll(ctx context.Context, events []domain.DomainEvent) error {
	for _, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

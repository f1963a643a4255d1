package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/shipment-pipeline/pkg/cloudevents"
)

// MessageWriter is the part of *kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes CloudEvents through a single writer; each message names
// its own topic
type Producer struct {
	writer MessageWriter
}

func NewProducer(config *Config) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		Transport:    &kafka.Transport{ClientID: config.ClientID},
	}}
}

// PublishEvent sends event in structured mode with ce-* headers. Keying by
// job keeps one job's events ordered on a single partition.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.PipelineCloudEvent) error {
	msg, err := encode(topic, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s to topic %s: %w", event.Type, topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(topic string, event *cloudevents.PipelineCloudEvent) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	key := event.JobID
	if key == "" {
		key = event.Subject
	}

	headers := []kafka.Header{
		header("ce-specversion", event.SpecVersion),
		header("ce-type", event.Type),
		header("ce-source", event.Source),
		header("ce-id", event.ID),
		header("ce-time", event.Time.Format(time.RFC3339)),
		header("content-type", event.DataContentType),
	}
	for name, value := range map[string]string{
		"ce-correlationid": event.CorrelationID,
		"ce-jobid":         event.JobID,
		"ce-traceparent":   event.TraceParent,
	} {
		if value != "" {
			headers = append(headers, header(name, value))
		}
	}

	return kafka.Message{Topic: topic, Key: []byte(key), Value: body, Headers: headers, Time: event.Time}, nil
}

func header(key, value string) kafka.Header {
	return kafka.Header{Key: key, Value: []byte(value)}
}

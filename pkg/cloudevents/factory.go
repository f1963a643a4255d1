package cloudevents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EventFactory creates CloudEvents for a fixed source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent creates a new event. The W3C traceparent of the active span in
// ctx, if any, is attached.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) *PipelineCloudEvent {
	event := &PipelineCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		event.TraceParent = fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), sc.TraceFlags())
	}

	return event
}

// CreateRowEvent creates a row outcome event scoped to the job
func (f *EventFactory) CreateRowEvent(ctx context.Context, eventType string, data RowOutcomeData) *PipelineCloudEvent {
	event := f.CreateEvent(ctx, eventType, fmt.Sprintf("batch/%s/row/%d", data.JobID, data.RowNumber), data)
	event.JobID = data.JobID
	return event
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/shipment-pipeline/pkg/cloudevents"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w *recordingWriter) *Producer {
	return &Producer{writer: w}
}

func headerMap(msg kafka.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestProducer_PublishEvent(t *testing.T) {
	w := &recordingWriter{}
	p := newTestProducer(w)

	event := cloudevents.NewEventFactory(cloudevents.SourceBatchEngine).CreateRowEvent(
		context.Background(), cloudevents.RowCompleted,
		cloudevents.RowOutcomeData{JobID: "job-1", RowNumber: 2, TrackingNumber: "1Z999", CostCents: 1550},
	)

	require.NoError(t, p.PublishEvent(context.Background(), Topics.BatchProgress, event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, Topics.BatchProgress, msg.Topic)
	assert.Equal(t, "job-1", string(msg.Key))

	headers := headerMap(msg)
	assert.Equal(t, cloudevents.RowCompleted, headers["ce-type"])
	assert.Equal(t, "job-1", headers["ce-jobid"])
	assert.NotContains(t, headers, "ce-traceparent")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	data := decoded["data"].(map[string]any)
	assert.Equal(t, "1Z999", data["trackingNumber"])
	assert.EqualValues(t, 1550, data["costCents"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PublishEventError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newTestProducer(w)

	event := cloudevents.NewEventFactory("test").CreateEvent(context.Background(), cloudevents.BatchStarted, "batch/x", nil)
	err := p.PublishEvent(context.Background(), Topics.BatchLifecycle, event)

	require.Error(t, err)
	assert.Contains(t, err.Error(), Topics.BatchLifecycle)
	assert.Contains(t, err.Error(), cloudevents.BatchStarted)
}

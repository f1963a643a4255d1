// Package metrics exposes the pipeline's Prometheus collectors. Every
// series carries a constant service label.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	ServiceName string
	Namespace   string
}

func DefaultConfig(serviceName string) *Config {
	return &Config{ServiceName: serviceName, Namespace: "shipment_pipeline"}
}

var (
	fastBuckets    = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
	carrierBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	batchBuckets   = []float64{1, 5, 10, 30, 60, 300, 600, 1800}
)

// timed is a call counter by outcome paired with a latency histogram
type timed struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newTimed(f promauto.Factory, ns, name, help string, buckets []float64, labels ...string) timed {
	return timed{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: name + "_total", Help: help,
		}, append(labels, "status")),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: name + "_duration_seconds", Help: help + ", latency in seconds", Buckets: buckets,
		}, labels),
	}
}

func (t timed) observe(success bool, d time.Duration, labels ...string) {
	status := "error"
	if success {
		status = "success"
	}
	t.calls.WithLabelValues(append(labels, status)...).Inc()
	t.latency.WithLabelValues(labels...).Observe(d.Seconds())
}

// Metrics owns a private registry so tests and both binaries never clash
// on the global one
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	kafka   timed
	mongo   timed
	carrier timed

	rowsProcessed    *prometheus.CounterVec
	rowsInFlight     prometheus.Gauge
	shippedCents     prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	autoConfirm      *prometheus.CounterVec

	breakerState *prometheus.GaugeVec
	breakerTrips *prometheus.CounterVec
}

func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": config.ServiceName}, registry))
	ns := config.Namespace

	return &Metrics{
		registry: registry,

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "http_requests_total", Help: "HTTP requests by route and status",
		}, []string{"method", "path", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request latency in seconds", Buckets: fastBuckets,
		}, []string{"method", "path"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "http_requests_in_flight", Help: "HTTP requests being served",
		}),

		kafka:   newTimed(f, ns, "kafka_events_published", "Kafka events published", fastBuckets, "topic", "event_type"),
		mongo:   newTimed(f, ns, "mongodb_operations", "MongoDB operations", fastBuckets, "collection", "operation"),
		carrier: newTimed(f, ns, "carrier_requests", "Carrier API requests", carrierBuckets, "carrier", "operation"),

		rowsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "batch_rows_processed_total", Help: "Batch rows reaching a final status",
		}, []string{"status", "error_code"}),
		rowsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "batch_rows_in_flight", Help: "Rows currently dispatched to the carrier",
		}),
		shippedCents: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "shipped_cost_cents_total", Help: "Carrier charges for created shipments, in cents",
		}),
		batchesCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "batches_completed_total", Help: "Batch jobs reaching a terminal status",
		}, []string{"status"}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "batch_duration_seconds", Help: "Batch execution time in seconds", Buckets: batchBuckets,
		}),
		autoConfirm: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "auto_confirm_decisions_total", Help: "Auto-confirm evaluations by outcome",
		}, []string{"approved"}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "circuit_breaker_state", Help: "0 closed, 1 half-open, 2 open",
		}, []string{"name"}),
		breakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Transitions into the open state",
		}, []string{"name"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementHTTPRequestsInFlight() { m.httpInFlight.Dec() }

func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.kafka.observe(success, duration, topic, eventType)
}

func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	m.mongo.observe(success, duration, collection, operation)
}

func (m *Metrics) RecordCarrierRequest(carrier, operation string, success bool, duration time.Duration) {
	m.carrier.observe(success, duration, carrier, operation)
}

// RecordRowProcessed counts a row leaving the carrier; costCents only adds
// to the shipped total when a charge was read
func (m *Metrics) RecordRowProcessed(status, errorCode string, costCents int64) {
	m.rowsProcessed.WithLabelValues(status, errorCode).Inc()
	if costCents > 0 {
		m.shippedCents.Add(float64(costCents))
	}
}

func (m *Metrics) RecordBatchCompleted(status string, duration time.Duration) {
	m.batchesCompleted.WithLabelValues(status).Inc()
	m.batchDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordAutoConfirm(approved bool) {
	m.autoConfirm.WithLabelValues(strconv.FormatBool(approved)).Inc()
}

// RowDispatched and RowSettled bracket a row's carrier call
func (m *Metrics) RowDispatched() { m.rowsInFlight.Inc() }
func (m *Metrics) RowSettled()    { m.rowsInFlight.Dec() }

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.breakerTrips.WithLabelValues(name).Inc()
}

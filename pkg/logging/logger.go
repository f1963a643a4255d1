package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level       slog.Level
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

// DefaultConfig reads LOG_LEVEL, ENVIRONMENT and VERSION
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Level:       ParseLevel(os.Getenv("LOG_LEVEL")),
		ServiceName: serviceName,
		Environment: envOr("ENVIRONMENT", "development"),
		Version:     envOr("VERSION", "unknown"),
		Output:      os.Stdout,
	}
}

// ParseLevel maps a LOG_LEVEL value onto a slog level. Unknown values log
// at info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Logger is a JSON slog logger carrying service attributes, with helpers
// for the pipeline's recurring log lines
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing JSON with UTC timestamps
func New(config *Config) *Logger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return New(&Config{Level: slog.LevelError, ServiceName: "test", Output: io.Discard})
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext adds the request, correlation, trace and job IDs found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithComponent adds a component name to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithJob scopes the logger to a batch job
func (l *Logger) WithJob(jobID string) *Logger {
	return l.with("jobId", jobID)
}

// Event logs a business event with structured data
func (l *Logger) Event(ctx context.Context, eventType string, data map[string]any) {
	l.WithContext(ctx).Info("Business event", flatten([]any{"eventType", eventType}, data)...)
}

// Performance logs the duration and outcome of a batch operation
func (l *Logger) Performance(ctx context.Context, operation string, duration time.Duration, success bool, details map[string]any) {
	attrs := flatten([]any{
		"operation", operation,
		"durationMs", duration.Milliseconds(),
		"success", success,
	}, details)
	l.WithContext(ctx).Info("Performance metric", attrs...)
}

// CarrierCall logs an outbound carrier API call. Failed calls log at warn.
func (l *Logger) CarrierCall(ctx context.Context, carrier, operation string, status int, duration time.Duration, err error) {
	level := slog.LevelDebug
	attrs := []any{
		"carrier", carrier,
		"operation", operation,
		"status", status,
		"durationMs", duration.Milliseconds(),
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", err.Error())
	}
	l.WithContext(ctx).Log(ctx, level, "Carrier call", attrs...)
}

// RowOutcome logs the outcome of a batch row: completed rows at debug,
// failed rows at info, and rows needing review at warn
func (l *Logger) RowOutcome(ctx context.Context, jobID string, rowNumber int, status, errorCode string) {
	level := slog.LevelDebug
	switch {
	case status == "needs_review":
		level = slog.LevelWarn
	case errorCode != "":
		level = slog.LevelInfo
	}
	l.WithContext(ctx).Log(ctx, level, "Row processed",
		"jobId", jobID,
		"rowNumber", rowNumber,
		"status", status,
		"errorCode", errorCode,
	)
}

// KafkaPublish logs a Kafka publish; failures log at error
func (l *Logger) KafkaPublish(ctx context.Context, topic, eventType string, success bool, duration time.Duration) {
	level := slog.LevelDebug
	if !success {
		level = slog.LevelError
	}
	l.WithContext(ctx).Log(ctx, level, "Kafka publish",
		"topic", topic,
		"eventType", eventType,
		"success", success,
		"durationMs", duration.Milliseconds(),
	)
}

// SetDefault sets this logger as the default slog logger
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func flatten(attrs []any, fields map[string]any) []any {
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return attrs
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

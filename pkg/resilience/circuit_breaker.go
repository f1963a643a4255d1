// Package resilience guards outbound carrier calls with retries and a
// gobreaker circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is wrapped into every call the breaker refuses
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig trips the breaker after ConsecutiveFailures in a row, or
// once MinRequests have been seen in the Window and FailureRatio of them
// failed
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
	Window              time.Duration
	Cooldown            time.Duration
	HalfOpenRequests    uint32

	// IsFailure filters which errors count; nil counts all of them
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

func DefaultBreakerConfig(name string) *BreakerConfig {
	return &BreakerConfig{
		Name:                name,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
		Window:              time.Minute,
		Cooldown:            30 * time.Second,
		HalfOpenRequests:    3,
	}
}

func (c *BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	return counts.Requests >= c.MinRequests &&
		float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// Breaker is a named gobreaker that logs its transitions
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

func NewBreaker(config *BreakerConfig, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Interval:    config.Window,
		Timeout:     config.Cooldown,
		ReadyToTrip: config.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if config.OnStateChange != nil {
				config.OnStateChange(name, from, to)
			}
		},
	}
	if isFailure := config.IsFailure; isFailure != nil {
		settings.IsSuccessful = func(err error) bool { return err == nil || !isFailure(err) }
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// Open reports whether calls are currently refused outright
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Call runs fn through the breaker
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (any, error) { return fn(ctx) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("Circuit breaker refused call", "name", b.cb.Name(), "reason", err.Error())
		return zero, fmt.Errorf("%s: %w", b.cb.Name(), ErrCircuitOpen)
	}
	if err != nil {
		return zero, err
	}
	typed, _ := result.(T)
	return typed, nil
}

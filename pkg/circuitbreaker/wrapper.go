package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	apperrors "triage/pkg/errors"
	"triage/pkg/metrics"
)

// Config defines circuit breaker configuration
type Config struct {
	Name             string
	FailureThreshold uint32
	Cooldown         time.Duration
	OnStateChange    func(name string, from, to gobreaker.State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// Wrapper guards one resource. It opens after FailureThreshold consecutive
// failures, rejects calls for Cooldown, then lets exactly one trial through.
type Wrapper struct {
	cb        *gobreaker.CircuitBreaker
	threshold uint32
	cooldown  time.Duration

	mu            sync.Mutex
	lastFailureAt *time.Time
}

// NewWrapper creates a new circuit breaker wrapper
func NewWrapper(cfg Config) *Wrapper {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	// Always update metrics on state change, even if user provides custom handler
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		updateCircuitBreakerMetrics(name, to)
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from, to)
		}
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	updateCircuitBreakerMetrics(cfg.Name, cb.State())

	return &Wrapper{
		cb:        cb,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
	}
}

// Execute runs fn under the breaker. While the breaker is open, or a half-open
// trial is already in flight, fn is not invoked and a CIRCUIT_OPEN error is
// returned.
func (w *Wrapper) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	switch {
	case err == nil:
		w.RecordRequest(true)
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(w.cb.Name(), "rejected").Inc()
		return apperrors.ErrCircuitOpen.WithDetail("resource", w.cb.Name()).WithCause(err)
	}

	if !errors.Is(err, context.Canceled) {
		now := time.Now()
		w.mu.Lock()
		w.lastFailureAt = &now
		w.mu.Unlock()
	}
	w.RecordRequest(false)
	return err
}

// Call runs fn under w and returns its value.
func Call[T any](ctx context.Context, w *Wrapper, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := w.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// State returns the current state of the circuit breaker
func (w *Wrapper) State() gobreaker.State {
	return w.cb.State()
}

// Counts returns the current counts of the circuit breaker
func (w *Wrapper) Counts() gobreaker.Counts {
	return w.cb.Counts()
}

// Name returns the name of the circuit breaker
func (w *Wrapper) Name() string {
	return w.cb.Name()
}

// IsOpen returns true if the circuit breaker is in open state
func (w *Wrapper) IsOpen() bool {
	return w.cb.State() == gobreaker.StateOpen
}

// IsHalfOpen returns true if the circuit breaker is in half-open state
func (w *Wrapper) IsHalfOpen() bool {
	return w.cb.State() == gobreaker.StateHalfOpen
}

// IsClosed returns true if the circuit breaker is in closed state
func (w *Wrapper) IsClosed() bool {
	return w.cb.State() == gobreaker.StateClosed
}

type State struct {
	Resource            string     `json:"resource"`
	State               string     `json:"state"`
	ConsecutiveFailures uint32     `json:"consecutiveFailures"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	FailureThreshold    uint32     `json:"failureThreshold"`
	CooldownMs          int64      `json:"cooldownMs"`
}

func (w *Wrapper) Snapshot() State {
	w.mu.Lock()
	last := w.lastFailureAt
	w.mu.Unlock()

	return State{
		Resource:            w.cb.Name(),
		State:               StateName(w.cb.State()),
		ConsecutiveFailures: w.cb.Counts().ConsecutiveFailures,
		LastFailureAt:       last,
		FailureThreshold:    w.threshold,
		CooldownMs:          w.cooldown.Milliseconds(),
	}
}

func StateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "OPEN"
	case gobreaker.StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// updateCircuitBreakerMetrics updates Prometheus metrics for circuit breaker
func updateCircuitBreakerMetrics(name string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateHalfOpen:
		stateValue = 1
	case gobreaker.StateOpen:
		stateValue = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordRequest records a request through the circuit breaker
func (w *Wrapper) RecordRequest(success bool) {
	state := w.cb.State().String()
	metrics.CircuitBreakerRequests.WithLabelValues(w.cb.Name(), state).Inc()
	if !success {
		metrics.CircuitBreakerFailures.WithLabelValues(w.cb.Name()).Inc()
	}
}

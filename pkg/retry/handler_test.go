package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "triage/pkg/errors"
)

// instantTimer fires immediately and remembers every requested delay.
type instantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func (t *instantTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

func newTestHandler(cfg Config) (*Handler, *instantTimer) {
	timer := newInstantTimer()
	return NewHandler(cfg, WithTimerFactory(func() backoff.Timer { return timer })), timer
}

func TestHandlerExhaustsRetries(t *testing.T) {
	h, timer := newTestHandler(Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond, Multiplier: 2})

	original := errors.New("upstream timeout")
	attempts := 0
	err := h.Execute(context.Background(), func(context.Context) error {
		attempts++
		return original
	}, func(error) bool { return true })

	assert.Same(t, original, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}, timer.Delays())
}

func TestHandlerStopsOnNonRetryable(t *testing.T) {
	h, timer := newTestHandler(DefaultConfig())

	original := errors.New("invalid api key")
	attempts := 0
	err := h.Execute(context.Background(), func(context.Context) error {
		attempts++
		return original
	}, func(error) bool { return false })

	assert.Same(t, original, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, timer.Delays())
}

func TestHandlerSucceedsAfterTransientFailures(t *testing.T) {
	h, _ := newTestHandler(DefaultConfig())

	attempts := 0
	err := h.Execute(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestHandlerZeroRetries(t *testing.T) {
	h, _ := newTestHandler(Config{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2})

	attempts := 0
	err := h.Execute(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("timeout")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestHandlerCircuitOpenIsNotRetried(t *testing.T) {
	h, _ := newTestHandler(DefaultConfig())

	attempts := 0
	err := h.Execute(context.Background(), func(context.Context) error {
		attempts++
		return apperrors.ErrCircuitOpen.WithDetail("resource", "model")
	}, nil)

	assert.True(t, apperrors.IsCircuitOpen(err))
	assert.Equal(t, 1, attempts)
}

func TestHandlerCancelledWhileWaiting(t *testing.T) {
	h := NewHandler(Config{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- h.Execute(ctx, func(context.Context) error {
			attempts++
			return errors.New("timeout")
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestConfigDelay(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, cfg.Delay(0))
	assert.Equal(t, 2*time.Second, cfg.Delay(1))
	assert.Equal(t, 4*time.Second, cfg.Delay(2))
	assert.Equal(t, 5*time.Second, cfg.Delay(3))
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("http error %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	var _ net.Error = timeoutErr{}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"econnrefused", syscall.ECONNREFUSED, true},
		{"status 429", statusErr(429), true},
		{"status 503", statusErr(503), true},
		{"status 400", statusErr(400), false},
		{"status 401", statusErr(401), false},
		{"message 429", errors.New("model api returned status 429"), true},
		{"message unavailable", errors.New("service temporarily unavailable"), true},
		{"message try again", errors.New("please try again later"), true},
		{"marked retryable", NewRetryableError(errors.New("anything")), true},
		{"fatal", NewFatalError(errors.New("timeout")), false},
		{"circuit open", apperrors.ErrCircuitOpen, false},
		{"validation", apperrors.ErrValidation, false},
		{"plain", errors.New("invalid json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"triage/pkg/metrics"
)

// Config bounds a Handler. Delay before retry n (0-based) is
// min(BaseDelay*Multiplier^n, MaxDelay), with no jitter.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// Predicate reports whether a failed attempt is worth repeating.
type Predicate func(error) bool

type Handler struct {
	cfg      Config
	name     string
	newTimer func() backoff.Timer
}

type HandlerOption func(*Handler)

// WithTimerFactory swaps the timer used between attempts.
func WithTimerFactory(fn func() backoff.Timer) HandlerOption {
	return func(h *Handler) {
		h.newTimer = fn
	}
}

// WithName labels retry metrics for this handler.
func WithName(name string) HandlerOption {
	return func(h *Handler) {
		h.name = name
	}
}

func NewHandler(cfg Config, opts ...HandlerOption) *Handler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	h := &Handler{cfg: cfg, name: "default"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Config() Config {
	return h.cfg
}

// Execute runs op until it succeeds, pred rejects the error, or MaxRetries
// retries are spent. The error of the last attempt is returned as is. A nil
// pred uses IsTransient. Waiting between attempts ends early when ctx is done.
func (h *Handler) Execute(ctx context.Context, op func(ctx context.Context) error, pred Predicate) error {
	if pred == nil {
		pred = IsTransient
	}

	exp := exponential(h.cfg.BaseDelay, h.cfg.MaxDelay, h.cfg.Multiplier, 0, false)
	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(h.cfg.MaxRetries))
	b = backoff.WithContext(b, ctx)

	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !pred(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(error, time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(metrics.ServiceName, h.name).Inc()
	}

	var timer backoff.Timer
	if h.newTimer != nil {
		timer = h.newTimer()
	}
	return backoff.RetryNotifyWithTimer(operation, b, notify, timer)
}

// Delay is the wait before retry attempt n (0-based) under cfg.
func (cfg Config) Delay(attempt int) time.Duration {
	return expDelay(attempt, cfg.BaseDelay, cfg.Multiplier, cfg.MaxDelay)
}

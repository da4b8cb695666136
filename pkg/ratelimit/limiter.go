package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"triage/pkg/metrics"
)

// Policy is a fixed-window quota: at most MaxRequests per Window.
type Policy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

func (p Policy) Validate() error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("rate limit policy %q: max requests must be positive", p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate limit policy %q: window must be positive", p.Name)
	}
	return nil
}

// Window is the live counter for one key. A request belongs to the window
// while now is before ResetAt.
type Window struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	WindowStart time.Time `json:"windowStart"`
	ResetAt     time.Time `json:"resetAt"`
}

func (w Window) Remaining() int {
	if r := w.Limit - w.Count; r > 0 {
		return r
	}
	return 0
}

type Decision struct {
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetAt           time.Time `json:"resetAt"`
	RetryAfterSeconds int       `json:"retryAfterSeconds"`
}

// Store holds windows. Increment must be atomic per key: concurrent callers
// may never push a window past its limit.
type Store interface {
	Increment(ctx context.Context, key string, policy Policy, now time.Time) (Window, bool, error)
	Get(ctx context.Context, key string, now time.Time) (*Window, error)
	Delete(ctx context.Context, key string) error
}

type Limiter struct {
	policy Policy
	store  Store
	now    func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(policy Policy, store Store, opts ...Option) *Limiter {
	l := &Limiter{
		policy: policy,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

func (l *Limiter) storeKey(key string) string {
	return l.policy.Name + ":" + key
}

// Admit counts one request against key.
func (l *Limiter) Admit(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	w, allowed, err := l.store.Increment(ctx, l.storeKey(key), l.policy, now)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit admit %s: %w", l.policy.Name, err)
	}

	d := Decision{
		Allowed:   allowed,
		Limit:     l.policy.MaxRequests,
		Remaining: w.Remaining(),
		ResetAt:   w.ResetAt,
	}
	if !allowed {
		d.RetryAfterSeconds = RetryAfter(w.ResetAt, now)
	}

	metrics.IncRateLimitDecision(l.policy.Name, allowed)
	return d, nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, l.storeKey(key))
}

// Status returns the active window for key without counting a request, or nil
// when there is none.
func (l *Limiter) Status(ctx context.Context, key string) (*Window, error) {
	w, err := l.store.Get(ctx, l.storeKey(key), l.now())
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	// Stores that only keep a counter and a TTL leave the policy fields unset.
	w.Key = key
	if w.Limit == 0 {
		w.Limit = l.policy.MaxRequests
	}
	if w.WindowStart.IsZero() {
		w.WindowStart = w.ResetAt.Add(-l.policy.Window)
	}
	return w, nil
}

// RetryAfter is the whole number of seconds until resetAt, rounded up and never
// negative.
func RetryAfter(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

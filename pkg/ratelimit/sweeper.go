package ratelimit

import (
	"context"
	"sync"
	"time"
)

type sweepable interface {
	Sweep(now time.Time) int
}

type sweepLogger interface {
	Debugw(msg string, keysAndValues ...interface{})
}

// Sweeper periodically evicts expired windows from a store. It is owned by
// whoever calls Start and must be stopped by the same owner.
type Sweeper struct {
	store    sweepable
	interval time.Duration
	logger   sweepLogger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store sweepable, interval time.Duration, log sweepLogger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   log,
		now:      time.Now,
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.store.Sweep(s.now()); removed > 0 && s.logger != nil {
				s.logger.Debugw("Swept expired rate windows", "removed", removed)
			}
		}
	}
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

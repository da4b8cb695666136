package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingStore struct {
	sweeps int64
}

func (s *countingStore) Sweep(time.Time) int {
	atomic.AddInt64(&s.sweeps, 1)
	return 1
}

type nopSweepLogger struct{}

func (nopSweepLogger) Debugw(string, ...interface{}) {}

func TestSweeperLifecycle(t *testing.T) {
	store := &countingStore{}
	s := NewSweeper(store, 5*time.Millisecond, nopSweepLogger{})

	assert.False(t, s.Running())
	s.Start(context.Background())
	s.Start(context.Background())
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&store.sweeps) >= 2
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())

	after := atomic.LoadInt64(&store.sweeps)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&store.sweeps))

	s.Stop()
}

func TestSweeperStopsWithContext(t *testing.T) {
	store := &countingStore{}
	s := NewSweeper(store, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

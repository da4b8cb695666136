package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"triage/pkg/circuitbreaker"
)

type stubChecker struct {
	name     string
	err      error
	optional bool
}

func (c stubChecker) Name() string                { return c.name }
func (c stubChecker) Check(context.Context) error { return c.err }
func (c stubChecker) Optional() bool              { return c.optional }

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Checker{stubChecker{name: "a"}, stubChecker{name: "b", optional: true}}, StatusHealthy},
		{"optional down", []Checker{stubChecker{name: "a"}, stubChecker{name: "cache", err: errors.New("down"), optional: true}}, StatusDegraded},
		{"required down", []Checker{stubChecker{name: "db", err: errors.New("down")}, stubChecker{name: "cache", err: errors.New("down"), optional: true}}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewCheckerRegistry()
			for _, c := range tt.checkers {
				reg.Register(c)
			}
			h := reg.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}

func TestBreakerChecker(t *testing.T) {
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{FailureThreshold: 1, Cooldown: time.Minute}, nil, nil)
	checker := NewBreakerChecker(breakers)

	assert.NoError(t, checker.Check(context.Background()))

	_ = breakers.Get("model").Execute(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})

	err := checker.Check(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "model=OPEN")
}

type slowChecker struct{ name string }

func (c slowChecker) Name() string { return c.name }
func (c slowChecker) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheckerRegistryHonorsCallerDeadline(t *testing.T) {
	reg := NewCheckerRegistry()
	reg.Register(slowChecker{name: "db"})
	reg.Register(stubChecker{name: "cache"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	h := reg.Check(ctx)
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["cache"].Status)
	assert.Contains(t, h.Checks["db"].Message, "deadline exceeded")
}

func TestPingChecker(t *testing.T) {
	c := &pingChecker{name: "redis", optional: true, ping: func(context.Context) error {
		return errors.New("connection refused")
	}}
	err := c.Check(context.Background())
	assert.EqualError(t, err, "redis ping failed: connection refused")
	assert.True(t, c.Optional())
}

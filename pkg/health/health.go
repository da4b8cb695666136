package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"triage/pkg/circuitbreaker"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

// Optional is implemented by checkers whose failure only degrades the
// service. The pipeline keeps working without them, using fallbacks.
type Optional interface {
	Optional() bool
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

// Check runs every checker concurrently, each under its own timeout. Any
// required failure makes the service unhealthy; optional failures only
// degrade it.
func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make([]CheckResult, len(r.checkers))

	var wg sync.WaitGroup
	for i, c := range r.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run(ctx, c)
		}()
	}
	wg.Wait()

	h := Health{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(results)),
	}
	for i, res := range results {
		h.Checks[r.checkers[i].Name()] = res
		switch {
		case res.Status == StatusUnhealthy:
			h.Status = StatusUnhealthy
		case res.Status == StatusDegraded && h.Status == StatusHealthy:
			h.Status = StatusDegraded
		}
	}
	return h
}

func run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	res := CheckResult{Status: StatusHealthy}
	if err := c.Check(ctx); err != nil {
		res.Status = StatusUnhealthy
		if o, ok := c.(Optional); ok && o.Optional() {
			res.Status = StatusDegraded
		}
		res.Message = err.Error()
	}
	res.Timestamp = time.Now()
	return res
}

// pingChecker adapts a ping function to Checker.
type pingChecker struct {
	name     string
	optional bool
	ping     func(ctx context.Context) error
}

func (c *pingChecker) Name() string   { return c.name }
func (c *pingChecker) Optional() bool { return c.optional }

func (c *pingChecker) Check(ctx context.Context) error {
	if err := c.ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.name, err)
	}
	return nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// NewPostgreSQLChecker is required: the message store lives there.
func NewPostgreSQLChecker(db pinger) Checker {
	return &pingChecker{name: "postgresql", ping: db.PingContext}
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	return &pingChecker{name: "redis", optional: true, ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

func NewMongoDBChecker(client *mongo.Client) Checker {
	return &pingChecker{name: "mongodb", optional: true, ping: func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}}
}

// BreakerChecker reports degraded while any circuit breaker is not closed.
type BreakerChecker struct {
	breakers *circuitbreaker.Registry
}

func NewBreakerChecker(breakers *circuitbreaker.Registry) *BreakerChecker {
	return &BreakerChecker{breakers: breakers}
}

func (c *BreakerChecker) Name() string   { return "circuit_breakers" }
func (c *BreakerChecker) Optional() bool { return true }

func (c *BreakerChecker) Check(context.Context) error {
	var tripped []string
	for _, s := range c.breakers.Snapshot() {
		if s.State != "CLOSED" {
			tripped = append(tripped, s.Resource+"="+s.State)
		}
	}
	if len(tripped) > 0 {
		return fmt.Errorf("circuit breakers not closed: %s", strings.Join(tripped, ", "))
	}
	return nil
}

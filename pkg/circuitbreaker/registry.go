package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sony/gobreaker"
)

type stateLogger interface {
	Warnw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
}

// Registry lazily creates one breaker per resource name. Breakers never share
// state.
type Registry struct {
	mu        sync.Mutex
	defaults  Config
	overrides map[string]Config
	breakers  map[string]*Wrapper
	logger    stateLogger
}

func NewRegistry(defaults Config, overrides map[string]Config, log stateLogger) *Registry {
	if overrides == nil {
		overrides = map[string]Config{}
	}
	return &Registry{
		defaults:  defaults,
		overrides: overrides,
		breakers:  make(map[string]*Wrapper),
		logger:    log,
	}
}

func (r *Registry) Get(resource string) *Wrapper {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.breakers[resource]; ok {
		return w
	}

	cfg := r.defaults
	if o, ok := r.overrides[resource]; ok {
		if o.FailureThreshold > 0 {
			cfg.FailureThreshold = o.FailureThreshold
		}
		if o.Cooldown > 0 {
			cfg.Cooldown = o.Cooldown
		}
	}
	cfg.Name = resource
	cfg.OnStateChange = r.logStateChange

	w := NewWrapper(cfg)
	r.breakers[resource] = w
	return w
}

func (r *Registry) logStateChange(name string, from, to gobreaker.State) {
	if r.logger == nil {
		return
	}
	fields := []interface{}{"resource", name, "from", StateName(from), "to", StateName(to)}
	if to == gobreaker.StateOpen {
		r.logger.Warnw("Circuit breaker opened", fields...)
		return
	}
	r.logger.Infow("Circuit breaker state changed", fields...)
}

// Snapshot reports every breaker created so far, sorted by resource.
func (r *Registry) Snapshot() []State {
	r.mu.Lock()
	breakers := make([]*Wrapper, 0, len(r.breakers))
	for _, w := range r.breakers {
		breakers = append(breakers, w)
	}
	r.mu.Unlock()

	out := make([]State, 0, len(breakers))
	for _, w := range breakers {
		out = append(out, w.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}

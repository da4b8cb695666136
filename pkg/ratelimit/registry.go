package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds one limiter per external resource. All limiters share a
// store; keys are namespaced by policy name.
type Registry struct {
	mu       sync.RWMutex
	store    Store
	limiters map[string]*Limiter
	opts     []Option
}

func NewRegistry(store Store, policies map[string]Policy, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:    store,
		limiters: make(map[string]*Limiter, len(policies)),
		opts:     opts,
	}
	for name, p := range policies {
		if p.Name == "" {
			p.Name = name
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.limiters[name] = NewLimiter(p, store, opts...)
	}
	return r, nil
}

func (r *Registry) Get(resource string) (*Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[resource]
	return l, ok
}

func (r *Registry) MustGet(resource string) *Limiter {
	l, ok := r.Get(resource)
	if !ok {
		panic(fmt.Sprintf("rate limit policy %q is not configured", resource))
	}
	return l
}

func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Store() Store {
	return r.store
}

// DefaultPolicies are conservative quotas per resource. The model gets the
// tightest window. Callers key every policy by owner, so each owner has its
// own model quota. The shared upstream ceiling is the provider client's
// requests_per_second limiter, not a policy here.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"model":     {Name: "model", MaxRequests: 50, Window: time.Minute},
		"mail":      {Name: "mail", MaxRequests: 250, Window: time.Minute},
		"chat":      {Name: "chat", MaxRequests: 100, Window: time.Minute},
		"groupchat": {Name: "groupchat", MaxRequests: 60, Window: time.Minute},
		"api":       {Name: "api", MaxRequests: 30, Window: time.Minute},
	}
}

package llm

import (
	"context"
	"sync"
)

// Func adapts a function into a Provider.
type Func func(ctx context.Context, in Input) (Output, error)

// Static answers from a function and counts calls. It stands in for a real
// backend in tests and local runs.
type Static struct {
	name string
	fn   Func

	mu    sync.Mutex
	calls map[string]int
}

func NewStatic(name string, fn Func) *Static {
	if name == "" {
		name = "static"
	}
	return &Static{name: name, fn: fn, calls: make(map[string]int)}
}

func (s *Static) Name() string { return s.name }

func (s *Static) Analyze(ctx context.Context, in Input) (Output, error) {
	s.mu.Lock()
	s.calls[in.Content]++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	return s.fn(ctx, in)
}

// Calls reports how many times content was analyzed.
func (s *Static) Calls(content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[content]
}

func (s *Static) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

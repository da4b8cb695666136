// Package vip marks messages as VIP from operator-supplied CEL rules before
// they are scored.
package vip

import (
	"context"
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"triage/internal/logger"
	"triage/pkg/cel"
	"triage/pkg/models"
)

type rule struct {
	expr    string
	program celgo.Program
}

type Matcher struct {
	eval   *cel.Evaluator
	rules  []rule
	logger logger.Logger
}

// NewMatcher compiles every rule up front; a single invalid rule fails the
// whole set.
func NewMatcher(exprs []string, log logger.Logger) (*Matcher, error) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NopLogger()
	}
	m := &Matcher{eval: eval, logger: log}
	for i, expr := range exprs {
		prg, err := eval.CompileRule(expr)
		if err != nil {
			return nil, fmt.Errorf("vip rule %d: %w", i, err)
		}
		m.rules = append(m.rules, rule{expr: expr, program: prg})
	}
	return m, nil
}

func (m *Matcher) Len() int {
	return len(m.rules)
}

// Match reports whether any rule selects msg. Rules that fail to evaluate are
// logged and treated as no match.
func (m *Matcher) Match(ctx context.Context, msg models.MessageRecord) bool {
	for _, r := range m.rules {
		ok, err := m.eval.EvaluateRule(ctx, r.program, msg)
		if err != nil {
			m.logger.WarnwCtx(ctx, "VIP rule evaluation failed",
				"rule", r.expr,
				"message_id", msg.ID,
				"error", err,
			)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// Apply returns msg with IsVIP set when a rule matches. A message already
// flagged VIP stays VIP.
func (m *Matcher) Apply(ctx context.Context, msg models.MessageRecord) models.MessageRecord {
	if msg.IsVIP || len(m.rules) == 0 {
		return msg
	}
	if m.Match(ctx, msg) {
		msg.IsVIP = true
	}
	return msg
}

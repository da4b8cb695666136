// Package llm talks to the language-model backend that summarizes and scores
// messages.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage/internal/config"
	"triage/internal/constants"
	apperrors "triage/pkg/errors"
	"triage/pkg/metrics"
	"triage/pkg/models"
)

// Input is what the model sees for one message.
type Input struct {
	Content  string
	Sender   models.Sender
	Platform models.SourcePlatform
	IsVIP    bool
}

// Output is the parsed model answer. PriorityScore is nil when the model did
// not return one; Sentiment is passed through unvalidated.
type Output struct {
	Summary       string
	PriorityScore *int
	Sentiment     string
	ActionItems   []models.ActionItem
	TokensUsed    int
	Raw           string
}

type Provider interface {
	Name() string
	Analyze(ctx context.Context, in Input) (Output, error)
}

// StatusError is a non-2xx answer from a model API. The status code stays in
// the message so pattern-based classification sees it.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model api returned status %d", e.Code)
	}
	return fmt.Sprintf("model api returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

var ErrProviderDisabled = apperrors.ErrAIProcessing.WithDetail("message", "model provider disabled").AsFatal()

const systemPrompt = `You triage inbound messages for a busy professional.
Reply with a single JSON object and nothing else:
{"summary": string, "priorityScore": integer 0-100, "sentiment": "positive"|"neutral"|"negative"|"urgent",
 "actionItems": [{"description": string, "dueDate": "YYYY-MM-DD" or null, "priority": "low"|"medium"|"high", "owner": string or null}]}`

// BuildPrompt renders the user turn for in.
func BuildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Platform: %s\n", in.Platform)
	if in.Sender.Name != "" || in.Sender.Address != "" {
		fmt.Fprintf(&b, "From: %s <%s>\n", in.Sender.Name, in.Sender.Address)
	}
	if in.IsVIP {
		b.WriteString("Sender is on the VIP list.\n")
	}
	b.WriteString("\n")
	b.WriteString(in.Content)
	return b.String()
}

// New picks the provider named in cfg and wraps it with request metrics.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case constants.LLMProviderOpenAI:
		p = NewOpenAIClient(cfg)
	case constants.LLMProviderGemini:
		p, err = NewGeminiClient(ctx, cfg)
	case "", constants.LLMProviderDisabled:
		p = Disabled{}
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(p), nil
}

type instrumented struct {
	Provider
}

// Instrument records request counts, latency and token usage for p.
func Instrument(p Provider) Provider {
	if _, ok := p.(instrumented); ok {
		return p
	}
	return instrumented{Provider: p}
}

func (i instrumented) Analyze(ctx context.Context, in Input) (Output, error) {
	start := time.Now()
	out, err := i.Provider.Analyze(ctx, in)
	name := i.Provider.Name()

	metrics.ObserveModelRequestDuration(name, time.Since(start))
	if err != nil {
		metrics.IncModelRequest(name, "error")
		return out, err
	}
	metrics.IncModelRequest(name, "success")
	metrics.AddModelTokens(name, out.TokensUsed)
	return out, nil
}

// Disabled fails every call so the pipeline falls back to heuristic scoring.
type Disabled struct{}

func (Disabled) Name() string { return constants.LLMProviderDisabled }

func (Disabled) Analyze(context.Context, Input) (Output, error) {
	return Output{}, ErrProviderDisabled
}

package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Type is the failure taxonomy every pipeline error is mapped onto.
type Type string

const (
	TypeAuthentication Type = "AUTHENTICATION"
	TypeAuthorization  Type = "AUTHORIZATION"
	TypeValidation     Type = "VALIDATION"
	TypeAIProcessing   Type = "AI_PROCESSING"
	TypeDatabase       Type = "DATABASE"
	TypeExternalAPI    Type = "EXTERNAL_API"
	TypeNetwork        Type = "NETWORK"
	TypeRateLimit      Type = "RATE_LIMIT"
	TypeUnknown        Type = "UNKNOWN"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Component names used as classification hints when an error carries no
// recognizable signal of its own.
const (
	ComponentModel     = "model"
	ComponentDatabase  = "database"
	ComponentMail      = "mail"
	ComponentChat      = "chat"
	ComponentGroupChat = "groupchat"
	ComponentBroker    = "broker"
	ComponentArchive   = "archive"
	ComponentAPI       = "api"
)

type Context struct {
	OwnerID   string `json:"ownerId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Component string `json:"component,omitempty"`
	Action    string `json:"action,omitempty"`
}

type Details struct {
	Type              Type      `json:"type"`
	Severity          Severity  `json:"severity"`
	Message           string    `json:"message"`
	Context           Context   `json:"context"`
	Timestamp         time.Time `json:"timestamp"`
	Retryable         bool      `json:"retryable"`
	FallbackAvailable bool      `json:"fallbackAvailable"`
}

type traits struct {
	retryable bool
	fallback  bool
	severity  Severity
}

var taxonomy = map[Type]traits{
	TypeAuthentication: {retryable: false, fallback: false, severity: SeverityHigh},
	TypeAuthorization:  {retryable: false, fallback: false, severity: SeverityHigh},
	TypeValidation:     {retryable: false, fallback: false, severity: SeverityLow},
	TypeAIProcessing:   {retryable: true, fallback: true, severity: SeverityMedium},
	TypeDatabase:       {retryable: true, fallback: true, severity: SeverityCritical},
	TypeExternalAPI:    {retryable: true, fallback: true, severity: SeverityMedium},
	TypeNetwork:        {retryable: true, fallback: false, severity: SeverityMedium},
	TypeRateLimit:      {retryable: true, fallback: true, severity: SeverityLow},
	TypeUnknown:        {retryable: false, fallback: false, severity: SeverityHigh},
}

func (t Type) Retryable() bool         { return taxonomy[t].retryable }
func (t Type) FallbackAvailable() bool { return taxonomy[t].fallback }
func (t Type) Severity() Severity {
	if tr, ok := taxonomy[t]; ok {
		return tr.severity
	}
	return SeverityHigh
}

var codeTypes = map[string]Type{
	ErrUnauthorized.Code:       TypeAuthentication,
	ErrForbidden.Code:          TypeAuthorization,
	ErrValidation.Code:         TypeValidation,
	ErrRateLimited.Code:        TypeRateLimit,
	ErrDatabase.Code:           TypeDatabase,
	ErrAIProcessing.Code:       TypeAIProcessing,
	ErrExternalAPI.Code:        TypeExternalAPI,
	ErrServiceUnavailable.Code: TypeExternalAPI,
	ErrTimeout.Code:            TypeNetwork,
}

// Patterns are checked in order; the first group with a hit wins.
var messagePatterns = []struct {
	typ     Type
	markers []string
}{
	{TypeAuthentication, []string{"unauthorized", "unauthenticated", "invalid token", "token expired", "invalid api key", "incorrect api key", "status 401", "authentication"}},
	{TypeAuthorization, []string{"forbidden", "permission denied", "access denied", "not allowed", "status 403"}},
	{TypeRateLimit, []string{"rate limit", "too many requests", "quota", "status 429", "resource exhausted", "resource_exhausted"}},
	{TypeValidation, []string{"validation", "invalid input", "malformed", "bad request", "status 400", "status 422"}},
	{TypeDatabase, []string{"database", "sql:", "pq:", "postgres", "deadlock", "connection pool", "mongo", "redis", "duplicate key"}},
	{TypeAIProcessing, []string{"model", "completion", "gemini", "openai", "llm", "empty output", "candidate", "safety"}},
	{TypeNetwork, []string{"econnreset", "econnrefused", "etimedout", "enotfound", "eai_again", "connection reset", "connection refused", "no such host", "network", "timeout", "timed out", "broken pipe", "eof"}},
	{TypeExternalAPI, []string{"status 500", "status 502", "status 503", "status 504", "bad gateway", "service unavailable", "gateway timeout", "upstream", "api "}},
}

// Classify maps any error onto the taxonomy. It never fails: errors that match
// nothing, including nil, come back as UNKNOWN.
func Classify(err error, ctx Context) Details {
	typ := classifyType(err, ctx)
	tr := taxonomy[typ]

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	return Details{
		Type:              typ,
		Severity:          tr.severity,
		Message:           msg,
		Context:           ctx,
		Timestamp:         time.Now(),
		Retryable:         tr.retryable,
		FallbackAvailable: tr.fallback,
	}
}

func classifyType(err error, ctx Context) Type {
	if err == nil {
		return TypeUnknown
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		if t, ok := codeTypes[appErr.Code]; ok {
			return t
		}
		if appErr.Code == ErrCircuitOpen.Code {
			if t, ok := componentType(ctx.Component); ok {
				return t
			}
			return TypeExternalAPI
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TypeNetwork
	}

	var sc statusCoder
	if appErr == nil && errors.As(err, &sc) {
		if t, ok := statusType(sc.StatusCode()); ok {
			return t
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return TypeNetwork
	}

	lower := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, marker := range p.markers {
			if strings.Contains(lower, marker) {
				return p.typ
			}
		}
	}

	if t, ok := componentType(ctx.Component); ok {
		return t
	}
	return TypeUnknown
}

type statusCoder interface {
	StatusCode() int
}

func statusType(code int) (Type, bool) {
	switch {
	case code == 401:
		return TypeAuthentication, true
	case code == 403:
		return TypeAuthorization, true
	case code == 429:
		return TypeRateLimit, true
	case code == 400 || code == 422:
		return TypeValidation, true
	case code == 408:
		return TypeNetwork, true
	case code >= 500 && code <= 599:
		return TypeExternalAPI, true
	}
	return "", false
}

func componentType(component string) (Type, bool) {
	switch component {
	case ComponentModel:
		return TypeAIProcessing, true
	case ComponentDatabase, ComponentArchive:
		return TypeDatabase, true
	case ComponentMail, ComponentChat, ComponentGroupChat, ComponentBroker:
		return TypeExternalAPI, true
	}
	return "", false
}

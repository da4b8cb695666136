package models

import (
	"strings"
	"time"
)

type SourcePlatform string

const (
	PlatformMail      SourcePlatform = "mail"
	PlatformChat      SourcePlatform = "chat"
	PlatformGroupChat SourcePlatform = "groupchat"
)

func (p SourcePlatform) Valid() bool {
	switch p {
	case PlatformMail, PlatformChat, PlatformGroupChat:
		return true
	}
	return false
}

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentUrgent   Sentiment = "urgent"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentUrgent:
		return true
	}
	return false
}

// ParseSentiment normalizes free-form model output; ok is false for anything
// outside the four known values.
func ParseSentiment(raw string) (Sentiment, bool) {
	s := Sentiment(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

type Sender struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type ActionItem struct {
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    string     `json:"priority"`
	Owner       *string    `json:"owner,omitempty"`
}

// MessageRecord is a normalized inbound message together with the fields the
// pipeline writes back once it has been analyzed.
type MessageRecord struct {
	ID                  string           `json:"id"`
	OwnerID             string           `json:"ownerId"`
	Platform            SourcePlatform   `json:"sourcePlatform"`
	Sender              Sender           `json:"sender"`
	Subject             string           `json:"subject"`
	Body                string           `json:"body"`
	ReceivedAt          time.Time        `json:"receivedAt"`
	IsVIP               bool             `json:"isVip"`
	Status              ProcessingStatus `json:"processingStatus"`
	PriorityScore       *int             `json:"priorityScore,omitempty"`
	Summary             *string          `json:"summary,omitempty"`
	Sentiment           *Sentiment       `json:"sentiment,omitempty"`
	ActionItems         []ActionItem     `json:"actionItems"`
	LastProcessedAt     *time.Time       `json:"lastProcessedAt,omitempty"`
	ProcessingStartedAt *time.Time       `json:"processingStartedAt,omitempty"`
	FallbackUsed        bool             `json:"fallbackUsed"`
	Queued              bool             `json:"queued"`
}

// Content is the text handed to the model: subject and body separated by a
// blank line.
func (m MessageRecord) Content() string {
	if m.Subject == "" {
		return m.Body
	}
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n\n" + m.Body
}

// ProcessingResult is the outcome of one analysis attempt for one message.
type ProcessingResult struct {
	MessageID     string       `json:"messageId"`
	Success       bool         `json:"success"`
	FallbackUsed  bool         `json:"fallbackUsed"`
	Summary       string       `json:"summary"`
	PriorityScore int          `json:"priorityScore"`
	Sentiment     Sentiment    `json:"sentiment"`
	ActionItems   []ActionItem `json:"actionItems"`
	TokensUsed    int          `json:"tokensUsed"`
	LatencyMs     int64        `json:"latencyMs"`
	ErrorType     string       `json:"errorType,omitempty"`
	UserMessage   string       `json:"userMessage,omitempty"`
	Degraded      bool         `json:"degraded,omitempty"`
	Queued        bool         `json:"queued,omitempty"`
	ProcessedAt   time.Time    `json:"processedAt"`
}

// FinalStatus is the processing status a message takes once this result is
// persisted. Queued fallbacks go back to pending so a later batch retries them.
func (r ProcessingResult) FinalStatus() ProcessingStatus {
	switch {
	case r.Success:
		return StatusCompleted
	case r.Queued:
		return StatusPending
	default:
		return StatusFailed
	}
}

type QueueStats struct {
	Pending    int        `json:"pending"`
	Processing int        `json:"processing,omitempty"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Total      int        `json:"total"`
	Degraded   bool       `json:"degraded,omitempty"`
	CachedAt   *time.Time `json:"cachedAt,omitempty"`
}

func (s *QueueStats) Add(status ProcessingStatus, n int) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusProcessing:
		s.Processing += n
	case StatusCompleted:
		s.Completed += n
	case StatusFailed:
		s.Failed += n
	default:
		return
	}
	s.Total += n
}

// BatchRun is one admitted batch invocation. Runs started within the last hour
// count toward the per-caller batch ceiling.
type BatchRun struct {
	ID         string     `json:"id" db:"id"`
	OwnerID    string     `json:"ownerId" db:"owner_id"`
	StartedAt  time.Time  `json:"startedAt" db:"started_at"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
	Processed  int        `json:"processed" db:"processed"`
	Successful int        `json:"successful" db:"successful"`
	Failed     int        `json:"failed" db:"failed"`
	Skipped    int        `json:"skipped" db:"skipped"`
}

type BatchSummary struct {
	BatchID    string             `json:"batchId"`
	OwnerID    string             `json:"-"`
	Processed  int                `json:"processed"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	Results    []ProcessingResult `json:"results"`
	Message    string             `json:"message,omitempty"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}

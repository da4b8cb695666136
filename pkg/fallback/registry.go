// Package fallback turns a classified failure into a degraded but usable
// result, so every message in a batch ends up scored.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "triage/pkg/errors"
	"triage/pkg/metrics"
	"triage/pkg/models"
	"triage/pkg/scoring"
)

const summaryLimit = 200

const (
	StrategyHeuristic = "heuristic"
	StrategyDegraded  = "degraded"
	StrategyQueued    = "queued"
	StrategyCache     = "cache"
)

var userMessages = map[apperrors.Type]string{
	apperrors.TypeAuthentication: "Please sign in again to continue",
	apperrors.TypeAuthorization:  "You do not have access to this resource",
	apperrors.TypeValidation:     "The request was invalid",
	apperrors.TypeAIProcessing:   "AI analysis temporarily degraded to heuristic scoring",
	apperrors.TypeDatabase:       "Showing cached data while storage recovers",
	apperrors.TypeExternalAPI:    "An external service is degraded; results may be incomplete",
	apperrors.TypeNetwork:        "Network issue while contacting a service",
	apperrors.TypeRateLimit:      "Rate limit reached; the message was queued for a later run",
	apperrors.TypeUnknown:        "Something went wrong; a basic analysis was used",
}

// UserMessage is the caller-facing text for an error type.
func UserMessage(t apperrors.Type) string {
	if msg, ok := userMessages[t]; ok {
		return msg
	}
	return userMessages[apperrors.TypeUnknown]
}

// StatsCache returns the last good queue stats for an owner, or nil.
type StatsCache interface {
	Get(ctx context.Context, ownerID string) (*models.QueueStats, error)
}

type Registry struct {
	scorer *scoring.Scorer
	cache  StatsCache
}

func NewRegistry(scorer *scoring.Scorer, cache StatsCache) *Registry {
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	return &Registry{scorer: scorer, cache: cache}
}

// ForMessage builds the fallback result for msg. The result depends only on
// details.Type and the message, so repeated calls agree.
func (r *Registry) ForMessage(details apperrors.Details, msg models.MessageRecord) models.ProcessingResult {
	score := r.scorer.Score(msg)

	res := models.ProcessingResult{
		MessageID:     msg.ID,
		Success:       false,
		FallbackUsed:  true,
		Summary:       Summarize(msg),
		PriorityScore: score.PriorityScore,
		Sentiment:     score.Sentiment,
		ActionItems:   []models.ActionItem{},
		ErrorType:     string(details.Type),
		UserMessage:   UserMessage(details.Type),
	}

	strategy := StrategyHeuristic
	switch details.Type {
	case apperrors.TypeExternalAPI:
		res.Degraded = true
		strategy = StrategyDegraded
	case apperrors.TypeRateLimit:
		res.Queued = true
		strategy = StrategyQueued
	}

	metrics.IncFallbackUsage(strategy, string(details.Type))
	return res
}

// ForStats serves queue stats from the cache when the store is unreachable.
// Without a cached value it returns zero counts, still flagged degraded.
func (r *Registry) ForStats(ctx context.Context, ownerID string) (models.QueueStats, error) {
	metrics.IncFallbackUsage(StrategyCache, string(apperrors.TypeDatabase))

	if r.cache == nil {
		return models.QueueStats{Degraded: true}, nil
	}
	cached, err := r.cache.Get(ctx, ownerID)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("stats cache lookup failed: %w", err)
	}
	if cached == nil {
		return models.QueueStats{Degraded: true}, nil
	}
	stats := *cached
	stats.Degraded = true
	return stats, nil
}

// Summarize is the heuristic summary: the subject, or the start of the body
// when there is none.
func Summarize(msg models.MessageRecord) string {
	if s := strings.TrimSpace(msg.Subject); s != "" {
		return truncate(s, summaryLimit)
	}
	body := strings.Join(strings.Fields(msg.Body), " ")
	if body == "" {
		return "(no content)"
	}
	return truncate(body, summaryLimit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-3])) + "..."
}

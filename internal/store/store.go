// Package store persists the message queue and the batch-run ledger.
package store

import (
	"context"
	"time"

	apperrors "triage/pkg/errors"
	"triage/pkg/models"
)

var ErrMessageNotFound = apperrors.ErrNotFound.WithDetail("resource", "message")

// ClaimOptions selects the messages one batch takes. With IDs set, exactly
// those messages are claimed (in receipt order) and Limit is ignored.
type ClaimOptions struct {
	OwnerID      string
	IDs          []string
	Limit        int
	LeaseTimeout time.Duration
	Now          time.Time
}

// leaseExpired reports whether a message stuck in processing may be claimed
// again.
func (o ClaimOptions) leaseExpired(startedAt *time.Time) bool {
	if startedAt == nil {
		return true
	}
	return !startedAt.After(o.Now.Add(-o.LeaseTimeout))
}

type Store interface {
	// Claim marks the selected messages processing and returns them oldest
	// first. Messages already leased by another batch are skipped.
	Claim(ctx context.Context, opts ClaimOptions) ([]models.MessageRecord, error)
	// Release puts claimed messages back to pending without touching results.
	Release(ctx context.Context, ownerID string, ids []string) error
	// SaveResult writes a result and the matching final status in one
	// statement.
	SaveResult(ctx context.Context, ownerID string, result models.ProcessingResult) error
	Get(ctx context.Context, ownerID, id string) (*models.MessageRecord, error)
	Enqueue(ctx context.Context, msg models.MessageRecord) error
	Stats(ctx context.Context, ownerID string) (models.QueueStats, error)

	CountBatchRuns(ctx context.Context, ownerID string, since time.Time) (int, error)
	StartBatchRun(ctx context.Context, run models.BatchRun) error
	FinishBatchRun(ctx context.Context, run models.BatchRun) error
	ListBatchRuns(ctx context.Context, ownerID string, limit int) ([]models.BatchRun, error)
}

// applyResult copies a result onto the stored record.
func applyResult(m *models.MessageRecord, r models.ProcessingResult) {
	processedAt := r.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	score := r.PriorityScore
	summary := r.Summary
	sentiment := r.Sentiment

	m.Status = r.FinalStatus()
	m.PriorityScore = &score
	m.Summary = &summary
	m.Sentiment = &sentiment
	m.ActionItems = r.ActionItems
	if m.ActionItems == nil {
		m.ActionItems = []models.ActionItem{}
	}
	m.LastProcessedAt = &processedAt
	m.ProcessingStartedAt = nil
	m.FallbackUsed = r.FallbackUsed
	m.Queued = r.Queued
}

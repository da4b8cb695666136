package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "triage/pkg/errors"
	"triage/pkg/models"
)

// MemoryStore keeps everything in process. It backs tests and single-node
// runs without Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]*models.MessageRecord
	runs     []models.BatchRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]*models.MessageRecord)}
}

func (s *MemoryStore) Enqueue(_ context.Context, msg models.MessageRecord) error {
	if err := models.ValidateMessageRecord(&msg); err != nil {
		return apperrors.ErrValidation.WithCause(err)
	}
	if msg.Status == "" {
		msg.Status = models.StatusPending
	}
	if msg.ActionItems == nil {
		msg.ActionItems = []models.ActionItem{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return apperrors.ErrConflict.WithDetail("id", msg.ID)
	}
	s.messages[msg.ID] = &msg
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID, id string) (*models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.OwnerID != ownerID {
		return nil, ErrMessageNotFound.WithDetail("id", id)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) Claim(_ context.Context, opts ClaimOptions) ([]models.MessageRecord, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.MessageRecord
	if len(opts.IDs) > 0 {
		for _, id := range opts.IDs {
			m, ok := s.messages[id]
			if !ok || m.OwnerID != opts.OwnerID {
				continue
			}
			if m.Status == models.StatusProcessing && !opts.leaseExpired(m.ProcessingStartedAt) {
				continue
			}
			candidates = append(candidates, m)
		}
	} else {
		for _, m := range s.messages {
			if m.OwnerID != opts.OwnerID {
				continue
			}
			eligible := m.Status == models.StatusPending ||
				(m.Status == models.StatusProcessing && opts.leaseExpired(m.ProcessingStartedAt))
			if eligible {
				candidates = append(candidates, m)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ReceivedAt.Equal(candidates[j].ReceivedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].ReceivedAt.Before(candidates[j].ReceivedAt)
	})
	if len(opts.IDs) == 0 && opts.Limit > 0 && len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	out := make([]models.MessageRecord, 0, len(candidates))
	for _, m := range candidates {
		startedAt := opts.Now
		m.Status = models.StatusProcessing
		m.ProcessingStartedAt = &startedAt
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) Release(_ context.Context, ownerID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.OwnerID != ownerID || m.Status != models.StatusProcessing {
			continue
		}
		m.Status = models.StatusPending
		m.ProcessingStartedAt = nil
	}
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, ownerID string, result models.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[result.MessageID]
	if !ok || m.OwnerID != ownerID {
		return ErrMessageNotFound.WithDetail("id", result.MessageID)
	}
	applyResult(m, result)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, ownerID string) (models.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.QueueStats
	for _, m := range s.messages {
		if m.OwnerID == ownerID {
			stats.Add(m.Status, 1)
		}
	}
	return stats, nil
}

func (s *MemoryStore) CountBatchRuns(_ context.Context, ownerID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.runs {
		if r.OwnerID == ownerID && !r.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) StartBatchRun(_ context.Context, run models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.runs {
		if r.ID == run.ID {
			return apperrors.ErrConflict.WithDetail("batch_id", run.ID)
		}
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *MemoryStore) FinishBatchRun(_ context.Context, run models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i].FinishedAt = run.FinishedAt
			s.runs[i].Processed = run.Processed
			s.runs[i].Successful = run.Successful
			s.runs[i].Failed = run.Failed
			s.runs[i].Skipped = run.Skipped
			return nil
		}
	}
	return apperrors.ErrNotFound.WithDetail("batch_id", run.ID)
}

func (s *MemoryStore) ListBatchRuns(_ context.Context, ownerID string, limit int) ([]models.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.BatchRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].OwnerID != ownerID {
			continue
		}
		out = append(out, s.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

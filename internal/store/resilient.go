package store

import (
	"context"
	"errors"
	"time"

	"triage/pkg/circuitbreaker"
	apperrors "triage/pkg/errors"
	"triage/pkg/models"
	"triage/pkg/retry"
)

// ResilientStore runs every call of the wrapped store through the database
// circuit breaker, retrying transient failures. Each attempt passes the
// breaker on its own, so a flapping database trips it.
type ResilientStore struct {
	inner   Store
	breaker *circuitbreaker.Wrapper
	retrier *retry.Handler
}

func NewResilientStore(inner Store, breaker *circuitbreaker.Wrapper, retrier *retry.Handler) *ResilientStore {
	return &ResilientStore{inner: inner, breaker: breaker, retrier: retrier}
}

// callerError marks outcomes that say nothing about database health.
func callerError(err error) bool {
	return apperrors.IsNotFound(err) || apperrors.IsConflict(err) || apperrors.IsValidation(err)
}

// IsRetryable accepts database failures and the usual transient errors. Open
// breakers, caller errors and cancellation end the loop.
func IsRetryable(err error) bool {
	if err == nil || callerError(err) || apperrors.IsCircuitOpen(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if retry.IsTransient(err) {
		return true
	}
	return apperrors.Classify(err, apperrors.Context{Component: apperrors.ComponentDatabase}).Type == apperrors.TypeDatabase
}

func (s *ResilientStore) do(ctx context.Context, fn func(ctx context.Context) error) error {
	op := func(ctx context.Context) error {
		if s.breaker == nil {
			return fn(ctx)
		}
		var opErr error
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			opErr = fn(ctx)
			if callerError(opErr) {
				return nil
			}
			return opErr
		})
		if err != nil {
			return err
		}
		return opErr
	}

	if s.retrier == nil {
		return op(ctx)
	}
	return s.retrier.Execute(ctx, op, IsRetryable)
}

func (s *ResilientStore) Claim(ctx context.Context, opts ClaimOptions) ([]models.MessageRecord, error) {
	var out []models.MessageRecord
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Claim(ctx, opts)
		return err
	})
	return out, err
}

func (s *ResilientStore) Release(ctx context.Context, ownerID string, ids []string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.inner.Release(ctx, ownerID, ids)
	})
}

func (s *ResilientStore) SaveResult(ctx context.Context, ownerID string, result models.ProcessingResult) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.inner.SaveResult(ctx, ownerID, result)
	})
}

func (s *ResilientStore) Get(ctx context.Context, ownerID, id string) (*models.MessageRecord, error) {
	var out *models.MessageRecord
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Get(ctx, ownerID, id)
		return err
	})
	return out, err
}

func (s *ResilientStore) Enqueue(ctx context.Context, msg models.MessageRecord) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.inner.Enqueue(ctx, msg)
	})
}

func (s *ResilientStore) Stats(ctx context.Context, ownerID string) (models.QueueStats, error) {
	var out models.QueueStats
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.Stats(ctx, ownerID)
		return err
	})
	return out, err
}

func (s *ResilientStore) CountBatchRuns(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var n int
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.inner.CountBatchRuns(ctx, ownerID, since)
		return err
	})
	return n, err
}

func (s *ResilientStore) StartBatchRun(ctx context.Context, run models.BatchRun) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.inner.StartBatchRun(ctx, run)
	})
}

func (s *ResilientStore) FinishBatchRun(ctx context.Context, run models.BatchRun) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.inner.FinishBatchRun(ctx, run)
	})
}

func (s *ResilientStore) ListBatchRuns(ctx context.Context, ownerID string, limit int) ([]models.BatchRun, error) {
	var out []models.BatchRun
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.inner.ListBatchRuns(ctx, ownerID, limit)
		return err
	})
	return out, err
}

package pipeline

import (
	"context"

	"triage/internal/logger"
	"triage/internal/store"
	apperrors "triage/pkg/errors"
	"triage/pkg/fallback"
	"triage/pkg/metrics"
	"triage/pkg/models"
)

// StatusService reports queue counts per owner. Every good read refreshes the
// stats cache; when the store fails the cached counts are served, flagged
// degraded.
type StatusService struct {
	store    store.Store
	cache    store.StatsCache
	fallback *fallback.Registry
	errors   *apperrors.RingLog
	logger   logger.Logger
}

func NewStatusService(s store.Store, cache store.StatsCache, errs *apperrors.RingLog, log logger.Logger) *StatusService {
	if cache == nil {
		cache = store.NewMemoryStatsCache()
	}
	if log == nil {
		log = logger.NopLogger()
	}
	if errs == nil {
		errs = apperrors.NewRingLog(apperrors.DefaultRingLogCapacity, log)
	}
	return &StatusService{
		store:    s,
		cache:    cache,
		fallback: fallback.NewRegistry(nil, cache),
		errors:   errs,
		logger:   log,
	}
}

func (s *StatusService) Stats(ctx context.Context, ownerID string) (models.QueueStats, error) {
	if ownerID == "" {
		return models.QueueStats{}, apperrors.ErrUnauthorized
	}

	stats, err := s.store.Stats(ctx, ownerID)
	if err == nil {
		metrics.SetMessageQueueSize(metrics.ServiceName, stats.Pending)
		if cerr := s.cache.Set(ctx, ownerID, stats); cerr != nil {
			s.logger.WarnwCtx(ctx, "Failed to refresh stats cache", "owner_id", ownerID, "error", cerr)
		}
		return stats, nil
	}

	details := s.errors.Track(err, apperrors.Context{
		OwnerID:   ownerID,
		Component: apperrors.ComponentDatabase,
		Action:    "stats",
	})
	if details.Type != apperrors.TypeDatabase {
		return models.QueueStats{}, err
	}

	cached, ferr := s.fallback.ForStats(ctx, ownerID)
	if ferr != nil {
		s.logger.ErrorwCtx(ctx, "Stats fallback failed", "owner_id", ownerID, "error", ferr)
		return models.QueueStats{}, err
	}
	return cached, nil
}

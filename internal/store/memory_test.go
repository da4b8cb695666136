package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "triage/pkg/errors"
	"triage/pkg/models"
)

var base = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s Store, owner string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-msg-%d", owner, i)
		require.NoError(t, s.Enqueue(context.Background(), models.MessageRecord{
			ID:         id,
			OwnerID:    owner,
			Platform:   models.PlatformMail,
			Subject:    fmt.Sprintf("subject %d", i),
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}))
		ids = append(ids, id)
	}
	return ids
}

func TestMemoryStoreClaimOldestFirst(t *testing.T) {
	s := NewMemoryStore()
	ids := seed(t, s, "alice", 5)
	seed(t, s, "bob", 2)

	claimed, err := s.Claim(context.Background(), ClaimOptions{OwnerID: "alice", Limit: 3, LeaseTimeout: 10 * time.Minute, Now: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	for i, m := range claimed {
		assert.Equal(t, ids[i], m.ID)
		assert.Equal(t, models.StatusProcessing, m.Status)
		require.NotNil(t, m.ProcessingStartedAt)
	}

	// the leased messages are not handed out twice
	next, err := s.Claim(context.Background(), ClaimOptions{OwnerID: "alice", Limit: 10, LeaseTimeout: 10 * time.Minute, Now: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, ids[3], next[0].ID)
}

func TestMemoryStoreLeaseExpiry(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "alice", 1)
	now := base.Add(time.Hour)

	claimed, err := s.Claim(context.Background(), ClaimOptions{OwnerID: "alice", Limit: 1, LeaseTimeout: 10 * time.Minute, Now: now})
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := s.Claim(context.Background(), ClaimOptions{OwnerID: "alice", Limit: 1, LeaseTimeout: 10 * time.Minute, Now: now.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, again)

	stale, err := s.Claim(context.Background(), ClaimOptions{OwnerID: "alice", Limit: 1, LeaseTimeout: 10 * time.Minute, Now: now.Add(11 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestMemoryStoreClaimByIDs(t *testing.T) {
	s := NewMemoryStore()
	ids := seed(t, s, "alice", 4)
	other := seed(t, s, "bob", 1)
	ctx := context.Background()

	require.NoError(t, s.SaveResult(ctx, "alice", models.ProcessingResult{MessageID: ids[2], Success: true, PriorityScore: 50}))

	claimed, err := s.Claim(ctx, ClaimOptions{OwnerID: "alice", IDs: []string{ids[2], ids[0], other[0], "missing"}, LeaseTimeout: time.Minute, Now: base})
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.Equal(t, ids[2], claimed[1].ID, "completed messages can be reprocessed by id")
}

func TestMemoryStoreSaveResultAndStats(t *testing.T) {
	s := NewMemoryStore()
	ids := seed(t, s, "alice", 4)
	ctx := context.Background()

	_, err := s.Claim(ctx, ClaimOptions{OwnerID: "alice", Limit: 4, LeaseTimeout: time.Minute, Now: base})
	require.NoError(t, err)

	require.NoError(t, s.SaveResult(ctx, "alice", models.ProcessingResult{MessageID: ids[0], Success: true, PriorityScore: 80, Sentiment: models.SentimentUrgent}))
	require.NoError(t, s.SaveResult(ctx, "alice", models.ProcessingResult{MessageID: ids[1], FallbackUsed: true, PriorityScore: 30}))
	require.NoError(t, s.SaveResult(ctx, "alice", models.ProcessingResult{MessageID: ids[2], FallbackUsed: true, Queued: true}))
	require.NoError(t, s.Release(ctx, "alice", []string{ids[3]}))

	stats, err := s.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Pending: 2, Completed: 1, Failed: 1, Total: 4}, stats)

	m, err := s.Get(ctx, "alice", ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, m.Status)
	require.NotNil(t, m.PriorityScore)
	assert.Equal(t, 80, *m.PriorityScore)
	assert.Nil(t, m.ProcessingStartedAt)
	assert.NotNil(t, m.LastProcessedAt)

	failed, err := s.Get(ctx, "alice", ids[1])
	require.NoError(t, err)
	assert.True(t, failed.FallbackUsed)
	assert.Equal(t, models.StatusFailed, failed.Status)

	err = s.SaveResult(ctx, "bob", models.ProcessingResult{MessageID: ids[0]})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStoreEnqueueValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Enqueue(ctx, models.MessageRecord{ID: "x", OwnerID: "alice", Platform: "fax", ReceivedAt: base})
	assert.True(t, apperrors.IsValidation(err))

	seed(t, s, "alice", 1)
	err = s.Enqueue(ctx, models.MessageRecord{ID: "alice-msg-0", OwnerID: "alice", Platform: models.PlatformChat, ReceivedAt: base})
	assert.True(t, apperrors.IsConflict(err))
}

func TestMemoryStoreBatchRuns(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := base.Add(2 * time.Hour)

	require.NoError(t, s.StartBatchRun(ctx, models.BatchRun{ID: "old", OwnerID: "alice", StartedAt: now.Add(-90 * time.Minute)}))
	require.NoError(t, s.StartBatchRun(ctx, models.BatchRun{ID: "b1", OwnerID: "alice", StartedAt: now.Add(-30 * time.Minute)}))
	require.NoError(t, s.StartBatchRun(ctx, models.BatchRun{ID: "b2", OwnerID: "alice", StartedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.StartBatchRun(ctx, models.BatchRun{ID: "c1", OwnerID: "bob", StartedAt: now}))

	n, err := s.CountBatchRuns(ctx, "alice", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	finished := now
	require.NoError(t, s.FinishBatchRun(ctx, models.BatchRun{ID: "b2", FinishedAt: &finished, Processed: 3, Successful: 2, Failed: 1}))
	assert.True(t, apperrors.IsNotFound(s.FinishBatchRun(ctx, models.BatchRun{ID: "nope"})))

	runs, err := s.ListBatchRuns(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b2", runs[0].ID)
	assert.Equal(t, 3, runs[0].Processed)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Equal(t, "b1", runs[1].ID)
}

func TestMemoryStatsCache(t *testing.T) {
	c := NewMemoryStatsCache()
	ctx := context.Background()

	got, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "alice", models.QueueStats{Pending: 3, Total: 3, Degraded: true}))
	got, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Pending)
	assert.False(t, got.Degraded)
	assert.NotNil(t, got.CachedAt)
}

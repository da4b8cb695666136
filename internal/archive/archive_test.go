package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/pkg/models"
)

func TestNewRecord(t *testing.T) {
	processed := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	rec := NewRecord("alice", "batch-1", models.ProcessingResult{
		MessageID:     "m1",
		FallbackUsed:  true,
		PriorityScore: 45,
		Sentiment:     models.SentimentNeutral,
		ActionItems:   []models.ActionItem{{Description: "a"}, {Description: "b"}},
		ErrorType:     "AI_PROCESSING",
		Queued:        true,
		ProcessedAt:   processed,
	})

	assert.Equal(t, "batch-1:m1", rec.ID)
	assert.Equal(t, "alice", rec.OwnerID)
	assert.Equal(t, 2, rec.ActionItems)
	assert.Equal(t, "pending", rec.Status)
	assert.Equal(t, processed, rec.ProcessedAt)
}

func TestNopArchive(t *testing.T) {
	var a Archive = Nop{}
	require.NoError(t, a.Save(context.Background(), models.BatchSummary{Results: []models.ProcessingResult{{MessageID: "m"}}}))
	recs, err := a.Recent(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

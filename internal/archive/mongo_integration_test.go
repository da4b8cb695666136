//go:build integration

package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/testinfra"
	"triage/pkg/migrations"
	"triage/pkg/models"
)

func TestMongoArchiveSaveAndRecent(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	require.NoError(t, migrations.EnsureResultsCollection(ctx, db, "processing_results"))
	require.NoError(t, migrations.EnsureResultsCollection(ctx, db, "processing_results"))

	a := NewMongoArchive(db, "processing_results")
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	summary := models.BatchSummary{
		BatchID: "b1",
		OwnerID: "alice",
		Results: []models.ProcessingResult{
			{MessageID: "m1", Success: true, PriorityScore: 90, ProcessedAt: base},
			{MessageID: "m2", FallbackUsed: true, PriorityScore: 30, ProcessedAt: base.Add(time.Minute)},
		},
	}
	require.NoError(t, a.Save(ctx, summary))
	require.NoError(t, a.Save(ctx, summary), "saving a batch twice is idempotent")

	recs, err := a.Recent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "m2", recs[0].MessageID)
	assert.Equal(t, "failed", recs[0].Status)

	other, err := a.Recent(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

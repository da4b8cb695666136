package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, raw string) MessageEnvelope {
	t.Helper()
	var env MessageEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func TestProcessRequestFromEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      ProcessRequest
		wantField string
	}{
		{
			name: "owner from payload with ids",
			raw:  `{"id":"e1","timestamp":"2024-05-01T10:00:00Z","payload":{"owner_id":"u1","message_ids":["m1","m2"]}}`,
			want: ProcessRequest{OwnerID: "u1", MessageIDs: []string{"m1", "m2"}},
		},
		{
			name: "owner from metadata with batch size",
			raw:  `{"id":"e2","timestamp":"2024-05-01T10:00:00Z","payload":{"batch_size":5},"metadata":{"owner_id":"u2"}}`,
			want: ProcessRequest{OwnerID: "u2", BatchSize: 5},
		},
		{
			name:      "missing owner",
			raw:       `{"id":"e3","timestamp":"2024-05-01T10:00:00Z","payload":{}}`,
			wantField: "owner_id",
		},
		{
			name:      "fractional batch size",
			raw:       `{"id":"e4","timestamp":"2024-05-01T10:00:00Z","payload":{"owner_id":"u1","batch_size":2.5}}`,
			wantField: "payload.batch_size",
		},
		{
			name:      "non-string id",
			raw:       `{"id":"e5","timestamp":"2024-05-01T10:00:00Z","payload":{"owner_id":"u1","message_ids":["m1",7]}}`,
			wantField: "payload.message_ids[1]",
		},
		{
			name:      "duplicate ids",
			raw:       `{"id":"e6","timestamp":"2024-05-01T10:00:00Z","payload":{"owner_id":"u1","message_ids":["m1","m1"]}}`,
			wantField: "message_ids[1]",
		},
		{
			name:      "missing timestamp",
			raw:       `{"id":"e7","payload":{"owner_id":"u1"}}`,
			wantField: "timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ProcessRequestFromEnvelope(decodeEnvelope(t, tt.raw))
			if tt.wantField != "" {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tt.wantField, vErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestNewResultEnvelope(t *testing.T) {
	processedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	env := NewResultEnvelope("u1", "b1", ProcessingResult{
		MessageID:     "m1",
		FallbackUsed:  true,
		PriorityScore: 42,
		Sentiment:     SentimentNeutral,
		Queued:        true,
		ProcessedAt:   processedAt,
	})

	assert.Equal(t, "b1:m1", env.ID)
	assert.Equal(t, EventTypeProcessingResult, env.Type)
	assert.Equal(t, "u1", env.Metadata.OwnerID)
	assert.Equal(t, processedAt, env.Timestamp)
	assert.Equal(t, string(StatusPending), env.Payload["status"])
	assert.Equal(t, 42, env.Payload["priority_score"])
}

func TestFinalStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, ProcessingResult{Success: true}.FinalStatus())
	assert.Equal(t, StatusFailed, ProcessingResult{FallbackUsed: true}.FinalStatus())
	assert.Equal(t, StatusPending, ProcessingResult{FallbackUsed: true, Queued: true}.FinalStatus())
}

func TestQueueStatsAdd(t *testing.T) {
	var s QueueStats
	s.Add(StatusPending, 3)
	s.Add(StatusCompleted, 2)
	s.Add(StatusFailed, 1)
	s.Add(ProcessingStatus("bogus"), 9)

	assert.Equal(t, QueueStats{Pending: 3, Completed: 2, Failed: 1, Total: 6}, s)
}

// Package archive keeps an append-only copy of every processing result for
// later inspection.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"triage/pkg/metrics"
	"triage/pkg/models"
)

type Record struct {
	ID            string           `bson:"_id" json:"id"`
	OwnerID       string           `bson:"owner_id" json:"ownerId"`
	BatchID       string           `bson:"batch_id" json:"batchId"`
	MessageID     string           `bson:"message_id" json:"messageId"`
	Success       bool             `bson:"success" json:"success"`
	FallbackUsed  bool             `bson:"fallback_used" json:"fallbackUsed"`
	PriorityScore int              `bson:"priority_score" json:"priorityScore"`
	Sentiment     models.Sentiment `bson:"sentiment" json:"sentiment"`
	Summary       string           `bson:"summary" json:"summary"`
	ActionItems   int              `bson:"action_items" json:"actionItems"`
	TokensUsed    int              `bson:"tokens_used" json:"tokensUsed"`
	LatencyMs     int64            `bson:"latency_ms" json:"latencyMs"`
	ErrorType     string           `bson:"error_type,omitempty" json:"errorType,omitempty"`
	Status        string           `bson:"status" json:"status"`
	ProcessedAt   time.Time        `bson:"processed_at" json:"processedAt"`
}

func NewRecord(ownerID, batchID string, r models.ProcessingResult) Record {
	return Record{
		ID:            batchID + ":" + r.MessageID,
		OwnerID:       ownerID,
		BatchID:       batchID,
		MessageID:     r.MessageID,
		Success:       r.Success,
		FallbackUsed:  r.FallbackUsed,
		PriorityScore: r.PriorityScore,
		Sentiment:     r.Sentiment,
		Summary:       r.Summary,
		ActionItems:   len(r.ActionItems),
		TokensUsed:    r.TokensUsed,
		LatencyMs:     r.LatencyMs,
		ErrorType:     r.ErrorType,
		Status:        string(r.FinalStatus()),
		ProcessedAt:   r.ProcessedAt,
	}
}

type Archive interface {
	Save(ctx context.Context, summary models.BatchSummary) error
	Recent(ctx context.Context, ownerID string, limit int) ([]Record, error)
}

type MongoArchive struct {
	collection *mongo.Collection
}

func NewMongoArchive(db *mongo.Database, collection string) *MongoArchive {
	return &MongoArchive{collection: db.Collection(collection)}
}

// Save upserts one document per result, keyed by batch and message, so a
// retried save does not duplicate entries.
func (a *MongoArchive) Save(ctx context.Context, summary models.BatchSummary) error {
	if len(summary.Results) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(summary.Results))
	for _, r := range summary.Results {
		rec := NewRecord(summary.OwnerID, summary.BatchID, r)
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetReplacement(rec).
			SetUpsert(true))
	}

	start := time.Now()
	_, err := a.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	metrics.ObserveDatabaseQuery("mongodb", "archive_save", start, err)
	if err != nil {
		return fmt.Errorf("failed to archive results for batch %s: %w", summary.BatchID, err)
	}
	return nil
}

func (a *MongoArchive) Recent(ctx context.Context, ownerID string, limit int) ([]Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "processed_at", Value: -1}}).
		SetLimit(int64(limit))

	start := time.Now()
	cursor, err := a.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	metrics.ObserveDatabaseQuery("mongodb", "archive_recent", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer cursor.Close(ctx)

	records := []Record{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode archive records: %w", err)
	}
	return records, nil
}

// Nop drops everything; used when no MongoDB is configured.
type Nop struct{}

func (Nop) Save(context.Context, models.BatchSummary) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]Record, error) { return []Record{}, nil }

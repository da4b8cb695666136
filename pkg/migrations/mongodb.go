package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureResultsCollection creates the indexes the result archive queries by.
// The collection itself is created on first insert.
func EnsureResultsCollection(ctx context.Context, db *mongo.Database, name string) error {
	collection := db.Collection(name)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "processed_at", Value: -1}},
			Options: options.Index().SetName("idx_results_owner_processed_at"),
		},
		{
			Keys:    bson.D{{Key: "batch_id", Value: 1}},
			Options: options.Index().SetName("idx_results_batch_id"),
		},
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "processed_at", Value: -1}},
			Options: options.Index().SetName("idx_results_message_processed_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}

	return nil
}

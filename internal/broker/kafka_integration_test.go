//go:build integration

package broker

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/config"
	"triage/internal/logger"
	"triage/internal/testinfra"
	"triage/pkg/models"
)

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func TestResultPublisherWritesToKafka(t *testing.T) {
	brokers := testinfra.Kafka(t)
	topic := "processing_results"
	createTopic(t, brokers[0], topic)

	producer := NewKafkaProducer(config.KafkaConfig{Brokers: brokers}, logger.NopLogger())
	t.Cleanup(func() { producer.Close() })
	pub := NewResultPublisher(producer, topic, logger.NopLogger())

	summary := models.BatchSummary{
		BatchID: "batch-it",
		OwnerID: "owner-1",
		Results: []models.ProcessingResult{
			{MessageID: "m1", Success: true, PriorityScore: 72, ProcessedAt: time.Now()},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The new topic's leader can take a moment to settle.
	require.Eventually(t, func() bool {
		return pub.PublishBatch(ctx, summary) == nil
	}, 20*time.Second, 500*time.Millisecond)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { reader.Close() })

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "batch-it:m1", string(msg.Key))

	var env models.MessageEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, models.EventTypeProcessingResult, env.Type)
	assert.Equal(t, "owner-1", env.Metadata.OwnerID)
	assert.Equal(t, "m1", env.Payload["message_id"])
	assert.Equal(t, float64(72), env.Payload["priority_score"])
	assert.Equal(t, string(models.StatusCompleted), env.Payload["status"])
}

package broker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/config"
	"triage/internal/logger"
	apperrors "triage/pkg/errors"
	"triage/pkg/models"
	"triage/pkg/retry"
)

type stubRunner struct {
	got models.ProcessRequest
	err error
}

func (r *stubRunner) Run(_ context.Context, req models.ProcessRequest) (models.BatchSummary, error) {
	r.got = req
	if r.err != nil {
		return models.BatchSummary{}, r.err
	}
	return models.BatchSummary{BatchID: "batch-1", Processed: 2}, nil
}

func requestEnvelope(payload map[string]interface{}) models.MessageEnvelope {
	return models.NewEnvelope(models.EventTypeProcessRequest, "req-1").
		From("scheduler").
		Owner("owner-1").
		Payload(payload).
		Build()
}

func TestProcessRequestHandler(t *testing.T) {
	runner := &stubRunner{}
	h := NewProcessRequestHandler(runner, logger.NopLogger())

	err := h(context.Background(), requestEnvelope(map[string]interface{}{
		"message_ids": []interface{}{"m1", "m2"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", runner.got.OwnerID)
	assert.Equal(t, []string{"m1", "m2"}, runner.got.MessageIDs)
}

func TestProcessRequestHandlerErrors(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]interface{}
		runnerErr error
		fatal     bool
	}{
		{"malformed batch size", map[string]interface{}{"batch_size": "ten"}, nil, true},
		{"ceiling reached", map[string]interface{}{}, apperrors.ErrRateLimited, true},
		{"transient store failure", map[string]interface{}{}, errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewProcessRequestHandler(&stubRunner{err: tt.runnerErr}, logger.NopLogger())
			err := h(context.Background(), requestEnvelope(tt.payload))
			require.Error(t, err)
			assert.Equal(t, tt.fatal, retry.IsFatal(err))
		})
	}
}

type recordingProducer struct {
	mu     sync.Mutex
	topics []string
	sent   []models.MessageEnvelope
	failOn string
}

func (p *recordingProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && msg.Payload["message_id"] == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestResultPublisher(t *testing.T) {
	producer := &recordingProducer{failOn: "m2"}
	pub := NewResultPublisher(producer, "processing_results", logger.NopLogger())

	summary := models.BatchSummary{
		BatchID: "batch-9",
		OwnerID: "owner-1",
		Results: []models.ProcessingResult{
			{MessageID: "m1", Success: true, PriorityScore: 80},
			{MessageID: "m2", FallbackUsed: true, PriorityScore: 30},
			{MessageID: "m3", Success: true, PriorityScore: 55},
		},
	}

	err := pub.PublishBatch(context.Background(), summary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m2")

	require.Len(t, producer.sent, 2)
	assert.Equal(t, "batch-9:m1", producer.sent[0].ID)
	assert.Equal(t, "owner-1", producer.sent[0].Metadata.OwnerID)
	assert.Equal(t, "batch-9:m3", producer.sent[1].ID)
	assert.Equal(t, []string{"processing_results", "processing_results"}, producer.topics)
}

func TestFactory(t *testing.T) {
	p, err := NewProducer(configFor("none"), logger.NopLogger())
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), "t", models.MessageEnvelope{}))

	_, err = NewConsumer(configFor("none"), logger.NopLogger())
	assert.ErrorIs(t, err, ErrNoBroker)

	_, err = NewProducer(configFor("rabbitmq"), logger.NopLogger())
	assert.Error(t, err)
}

func configFor(typ string) config.BrokerConfig {
	return config.BrokerConfig{Type: typ}
}

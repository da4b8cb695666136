package broker

import (
	"context"
	"fmt"

	"triage/internal/logger"
	"triage/pkg/models"
)

// ResultPublisher emits one processing_result event per message of a batch.
type ResultPublisher struct {
	producer Producer
	topic    string
	logger   logger.Logger
}

func NewResultPublisher(producer Producer, topic string, log logger.Logger) *ResultPublisher {
	return &ResultPublisher{producer: producer, topic: topic, logger: log}
}

// PublishBatch publishes every result and keeps going past individual
// failures. It returns the first error seen.
func (p *ResultPublisher) PublishBatch(ctx context.Context, summary models.BatchSummary) error {
	var firstErr error
	failed := 0

	for _, res := range summary.Results {
		env := models.NewResultEnvelope(summary.OwnerID, summary.BatchID, res)
		if err := p.producer.Publish(ctx, p.topic, env); err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("publish result %s: %w", res.MessageID, err)
			}
		}
	}

	if failed > 0 {
		p.logger.WarnwCtx(ctx, "Some processing results were not published",
			"topic", p.topic,
			"failed", failed,
			"total", len(summary.Results),
		)
	}
	return firstErr
}

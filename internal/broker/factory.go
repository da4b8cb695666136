package broker

import (
	"context"
	"fmt"

	"triage/internal/config"
	"triage/internal/logger"
	"triage/pkg/models"
)

// ErrNoBroker is returned by NewConsumer when messaging is switched off.
var ErrNoBroker = fmt.Errorf("broker disabled")

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, log), nil
	case "", "none":
		return NopProducer{}, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka, log), nil
	case "", "none":
		return nil, ErrNoBroker
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// NopProducer drops every message.
type NopProducer struct{}

func (NopProducer) Publish(context.Context, string, models.MessageEnvelope) error { return nil }

func (NopProducer) Close() error { return nil }

package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"triage/internal/broker"
	"triage/internal/config"
	"triage/internal/logger"
)

var errShutdown = errors.New("shutdown incomplete")

// Base holds what every entry point of the service shares: configuration,
// the logger and the optional broker clients.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{Config: cfg, Logger: log}
}

// InitBroker sets up the producer and, when a broker is configured, the
// consumer. With the broker disabled Producer is a no-op and Consumer is nil.
func (b *Base) InitBroker(serviceName string) error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	b.Producer = producer

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	switch {
	case errors.Is(err, broker.ErrNoBroker):
		b.Logger.Info("Broker disabled, process requests are accepted over HTTP only")
		return nil
	case err != nil:
		producer.Close()
		b.Producer = nil
		return fmt.Errorf("create consumer: %w", err)
	}

	consumer.SetServiceName(serviceName)
	b.Consumer = consumer
	return nil
}

func (b *Base) shutdownBroker() []error {
	var errs []error
	if b.Producer != nil {
		errs = append(errs, wrapClose("producer", b.Producer.Close()))
	}
	if b.Consumer != nil {
		errs = append(errs, wrapClose("consumer", b.Consumer.Close()))
	}
	return compact(errs)
}

// Shutdown closes the broker clients, then runs extra for everything else the
// caller owns. All failures are reported together.
func (b *Base) Shutdown(ctx context.Context, extra func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down")

	errs := b.shutdownBroker()
	if extra != nil {
		errs = append(errs, extra(ctx)...)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errShutdown, errors.Join(errs...))
	}

	b.Logger.Info("Shutdown complete")
	return nil
}

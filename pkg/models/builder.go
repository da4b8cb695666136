package models

import "time"

// EnvelopeBuilder assembles broker envelopes. Source defaults to EventSource
// and the timestamp to the time Build is called.
type EnvelopeBuilder struct {
	env MessageEnvelope
}

func NewEnvelope(eventType, id string) *EnvelopeBuilder {
	return &EnvelopeBuilder{env: MessageEnvelope{
		ID:      id,
		Type:    eventType,
		Source:  EventSource,
		Payload: map[string]interface{}{},
	}}
}

func (b *EnvelopeBuilder) From(source string) *EnvelopeBuilder {
	b.env.Source = source
	return b
}

func (b *EnvelopeBuilder) At(ts time.Time) *EnvelopeBuilder {
	b.env.Timestamp = ts
	return b
}

func (b *EnvelopeBuilder) Owner(ownerID string) *EnvelopeBuilder {
	b.env.Metadata.OwnerID = ownerID
	return b
}

func (b *EnvelopeBuilder) Batch(batchID string) *EnvelopeBuilder {
	b.env.Metadata.BatchID = batchID
	return b
}

func (b *EnvelopeBuilder) Trace(traceID string) *EnvelopeBuilder {
	b.env.Metadata.TraceID = traceID
	return b
}

// Payload replaces the payload; a nil map is kept empty.
func (b *EnvelopeBuilder) Payload(payload map[string]interface{}) *EnvelopeBuilder {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	b.env.Payload = payload
	return b
}

func (b *EnvelopeBuilder) Build() MessageEnvelope {
	if b.env.Timestamp.IsZero() {
		b.env.Timestamp = time.Now()
	}
	return b.env
}

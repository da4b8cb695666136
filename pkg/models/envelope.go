package models

import "time"

// MessageEnvelope is the broker wire format shared by process requests and
// result events.
type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID    string                 `json:"trace_id,omitempty"`
	OwnerID    string                 `json:"owner_id,omitempty"`
	BatchID    string                 `json:"batch_id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (msg *MessageEnvelope) GetPayloadField(name string) (interface{}, bool) {
	if msg.Payload == nil {
		return nil, false
	}

	value, ok := msg.Payload[name]
	return value, ok
}

func (msg *MessageEnvelope) SetPayloadField(name string, value interface{}) {
	if msg.Payload == nil {
		msg.Payload = make(map[string]interface{})
	}

	msg.Payload[name] = value
}

func (msg *MessageEnvelope) SetAttribute(name string, value interface{}) {
	if msg.Metadata.Attributes == nil {
		msg.Metadata.Attributes = make(map[string]interface{})
	}

	msg.Metadata.Attributes[name] = value
}

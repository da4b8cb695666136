package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateMessageEnvelope(msg *MessageEnvelope) error {
	if msg == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "message envelope cannot be nil",
		}
	}

	if msg.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "message ID is required",
		}
	}

	if msg.Timestamp.IsZero() {
		return &ValidationError{
			Field:   "timestamp",
			Message: "message timestamp is required",
		}
	}

	return nil
}

func ValidateProcessRequest(req ProcessRequest) error {
	if req.OwnerID == "" {
		return &ValidationError{
			Field:   "owner_id",
			Message: "owner ID is required",
		}
	}

	if req.BatchSize < 0 {
		return &ValidationError{
			Field:   "batch_size",
			Message: "batch size must be non-negative",
		}
	}

	seen := make(map[string]struct{}, len(req.MessageIDs))
	for i, id := range req.MessageIDs {
		if id == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("message_ids[%d]", i),
				Message: "message ID cannot be empty",
			}
		}
		if _, dup := seen[id]; dup {
			return &ValidationError{
				Field:   fmt.Sprintf("message_ids[%d]", i),
				Message: fmt.Sprintf("duplicate message ID %q", id),
			}
		}
		seen[id] = struct{}{}
	}

	return nil
}

// ValidateMessageRecord checks the fields a record needs before it can enter
// the queue.
func ValidateMessageRecord(m *MessageRecord) error {
	if m == nil {
		return &ValidationError{Field: "message", Message: "message cannot be nil"}
	}
	if m.ID == "" {
		return &ValidationError{Field: "id", Message: "message ID is required"}
	}
	if m.OwnerID == "" {
		return &ValidationError{Field: "ownerId", Message: "owner ID is required"}
	}
	if !m.Platform.Valid() {
		return &ValidationError{
			Field:   "sourcePlatform",
			Message: fmt.Sprintf("unknown platform %q (valid: mail, chat, groupchat)", m.Platform),
		}
	}
	if m.ReceivedAt.IsZero() {
		return &ValidationError{Field: "receivedAt", Message: "received timestamp is required"}
	}
	return nil
}

package models

import (
	"fmt"
)

const (
	EventTypeProcessRequest   = "process_request"
	EventTypeProcessingResult = "processing_result"
)

const EventSource = "triage"

// ProcessRequest asks the pipeline to run one batch for an owner. It arrives
// over the broker from schedulers or other services.
type ProcessRequest struct {
	OwnerID    string   `json:"owner_id"`
	MessageIDs []string `json:"message_ids,omitempty"`
	BatchSize  int      `json:"batch_size,omitempty"`
}

func ProcessRequestFromEnvelope(msg MessageEnvelope) (ProcessRequest, error) {
	if err := ValidateMessageEnvelope(&msg); err != nil {
		return ProcessRequest{}, err
	}

	req := ProcessRequest{OwnerID: msg.Metadata.OwnerID}
	if v, ok := msg.GetPayloadField("owner_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			req.OwnerID = s
		}
	}

	if v, ok := msg.GetPayloadField("message_ids"); ok {
		ids, ok := v.([]interface{})
		if !ok {
			return ProcessRequest{}, &ValidationError{Field: "payload.message_ids", Message: "must be an array of strings"}
		}
		for i, raw := range ids {
			id, ok := raw.(string)
			if !ok || id == "" {
				return ProcessRequest{}, &ValidationError{
					Field:   fmt.Sprintf("payload.message_ids[%d]", i),
					Message: "must be a non-empty string",
				}
			}
			req.MessageIDs = append(req.MessageIDs, id)
		}
	}

	if v, ok := msg.GetPayloadField("batch_size"); ok {
		// JSON numbers decode as float64
		n, ok := v.(float64)
		if !ok || n < 0 || n != float64(int(n)) {
			return ProcessRequest{}, &ValidationError{Field: "payload.batch_size", Message: "must be a non-negative integer"}
		}
		req.BatchSize = int(n)
	}

	if err := ValidateProcessRequest(req); err != nil {
		return ProcessRequest{}, err
	}
	return req, nil
}

// NewResultEnvelope wraps one processing result for publication. The
// envelope id is stable per batch and message.
func NewResultEnvelope(ownerID, batchID string, result ProcessingResult) MessageEnvelope {
	b := NewEnvelope(EventTypeProcessingResult, fmt.Sprintf("%s:%s", batchID, result.MessageID)).
		Owner(ownerID).
		Batch(batchID)
	if !result.ProcessedAt.IsZero() {
		b = b.At(result.ProcessedAt)
	}

	return b.Payload(map[string]interface{}{
		"message_id":     result.MessageID,
		"success":        result.Success,
		"fallback_used":  result.FallbackUsed,
		"priority_score": result.PriorityScore,
		"sentiment":      string(result.Sentiment),
		"summary":        result.Summary,
		"action_items":   len(result.ActionItems),
		"tokens_used":    result.TokensUsed,
		"latency_ms":     result.LatencyMs,
		"error_type":     result.ErrorType,
		"status":         string(result.FinalStatus()),
	}).Build()
}

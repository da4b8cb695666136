package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithOwnerID(ctx, "owner-1")
	ctx = WithBatchID(ctx, "batch-1")
	ctx = WithMessageID(ctx, "msg-1")

	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"batch_id", "batch-1",
		"owner_id", "owner-1",
		"message_id", "msg-1",
	}, GetLogFields(ctx))

	assert.Equal(t, "owner-1", GetOwnerID(ctx))
	assert.Equal(t, "", GetServiceName(ctx))
}

package vip

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/logger"
	"triage/pkg/models"
)

func TestMatcherApply(t *testing.T) {
	m, err := NewMatcher([]string{
		`sender.address.endsWith("@board.example.com")`,
		`platform == "groupchat" && sender.name == "Chair"`,
	}, logger.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	tests := []struct {
		name string
		msg  models.MessageRecord
		want bool
	}{
		{"domain rule", models.MessageRecord{Sender: models.Sender{Address: "kim@board.example.com"}, Platform: models.PlatformMail}, true},
		{"second rule", models.MessageRecord{Sender: models.Sender{Name: "Chair"}, Platform: models.PlatformGroupChat}, true},
		{"no rule", models.MessageRecord{Sender: models.Sender{Name: "Chair"}, Platform: models.PlatformChat}, false},
		{"already vip", models.MessageRecord{IsVIP: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Apply(context.Background(), tt.msg)
			assert.Equal(t, tt.want, got.IsVIP)
		})
	}
}

func TestMatcherWithoutRules(t *testing.T) {
	m, err := NewMatcher(nil, logger.NopLogger())
	require.NoError(t, err)

	msg := models.MessageRecord{ID: "m1", Subject: "hello"}
	assert.Equal(t, msg, m.Apply(context.Background(), msg))
}

func TestMatcherRejectsInvalidRule(t *testing.T) {
	_, err := NewMatcher([]string{`sender.address.endsWith(`}, logger.NopLogger())
	assert.Error(t, err)

	_, err = NewMatcher([]string{`subject`}, logger.NopLogger())
	assert.Error(t, err)
}

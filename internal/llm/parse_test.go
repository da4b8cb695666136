package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "triage/pkg/errors"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		summary   string
		score     *int
		sentiment string
		items     int
	}{
		{
			name:      "strict json",
			text:      `{"summary":"Board review moved","priorityScore":82,"sentiment":"urgent","actionItems":[{"description":"Confirm slot","dueDate":"2024-03-05","priority":"HIGH"}]}`,
			summary:   "Board review moved",
			score:     intPtr(82),
			sentiment: "urgent",
			items:     1,
		},
		{
			name:      "fenced json with snake case",
			text:      "Here you go:\n```json\n{\"summary\":\"Lunch plans\",\"priority_score\":12.6,\"sentiment\":\"positive\",\"action_items\":[]}\n```",
			summary:   "Lunch plans",
			score:     intPtr(13),
			sentiment: "positive",
		},
		{
			name:    "free text",
			text:    "  The sender asks for   the Q3 numbers.\n",
			summary: "The sender asks for the Q3 numbers.",
		},
		{
			name:    "json without score",
			text:    `{"summary":"FYI only"}`,
			summary: "FYI only",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOutput(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.summary, out.Summary)
			assert.Equal(t, tt.score, out.PriorityScore)
			assert.Equal(t, tt.sentiment, out.Sentiment)
			assert.Len(t, out.ActionItems, tt.items)
			assert.NotNil(t, out.ActionItems)
			assert.Equal(t, tt.text, out.Raw)
		})
	}
}

func TestParseOutputActionItems(t *testing.T) {
	out, err := ParseOutput(`{"summary":"s","actionItems":[
		{"description":"Send deck","dueDate":"2024-03-05","priority":"HIGH","owner":"dana"},
		{"description":"  ","priority":"low"},
		{"description":"Book room","dueDate":"someday","priority":"whenever"}]}`)
	require.NoError(t, err)
	require.Len(t, out.ActionItems, 2)

	first := out.ActionItems[0]
	assert.Equal(t, "high", first.Priority)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, 5, first.DueDate.Day())
	require.NotNil(t, first.Owner)
	assert.Equal(t, "dana", *first.Owner)

	second := out.ActionItems[1]
	assert.Equal(t, "medium", second.Priority)
	assert.Nil(t, second.DueDate)
	assert.Nil(t, second.Owner)
}

func TestParseOutputEmpty(t *testing.T) {
	_, err := ParseOutput("   \n")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeAIProcessing, apperrors.Classify(err, apperrors.Context{}).Type)
}

func intPtr(v int) *int { return &v }

package llm

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "triage/pkg/errors"
	"triage/pkg/models"
)

const freeTextSummaryLimit = 500

var ErrEmptyOutput = apperrors.ErrAIProcessing.WithDetail("message", "model returned empty output")

type rawActionItem struct {
	Description string  `json:"description"`
	DueDate     *string `json:"dueDate"`
	Priority    string  `json:"priority"`
	Owner       *string `json:"owner"`
}

type rawOutput struct {
	Summary          string          `json:"summary"`
	PriorityScore    *float64        `json:"priorityScore"`
	PriorityScoreAlt *float64        `json:"priority_score"`
	Sentiment        string          `json:"sentiment"`
	ActionItems      []rawActionItem `json:"actionItems"`
	ActionItemsAlt   []rawActionItem `json:"action_items"`
}

// ParseOutput reads model text as a JSON object, a fenced JSON block, or plain
// prose. Prose becomes the summary.
func ParseOutput(text string) (Output, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Output{}, ErrEmptyOutput
	}

	if raw, ok := decodeJSON(trimmed); ok {
		return raw.toOutput(text), nil
	}

	return Output{
		Summary:     truncateRunes(strings.Join(strings.Fields(trimmed), " "), freeTextSummaryLimit),
		ActionItems: []models.ActionItem{},
		Raw:         text,
	}, nil
}

func decodeJSON(s string) (rawOutput, bool) {
	candidates := []string{s}
	if fenced, ok := stripFence(s); ok {
		candidates = append(candidates, fenced)
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		candidates = append(candidates, s[i:j+1])
	}

	for _, c := range candidates {
		var raw rawOutput
		if err := json.Unmarshal([]byte(c), &raw); err == nil {
			return raw, true
		}
	}
	return rawOutput{}, false
}

func stripFence(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func (r rawOutput) toOutput(text string) Output {
	out := Output{
		Summary:     strings.TrimSpace(r.Summary),
		Sentiment:   strings.TrimSpace(r.Sentiment),
		ActionItems: []models.ActionItem{},
		Raw:         text,
	}

	score := r.PriorityScore
	if score == nil {
		score = r.PriorityScoreAlt
	}
	if score != nil {
		v := int(*score + 0.5)
		out.PriorityScore = &v
	}

	items := r.ActionItems
	if len(items) == 0 {
		items = r.ActionItemsAlt
	}
	for _, it := range items {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			continue
		}
		item := models.ActionItem{Description: desc, Priority: normalizePriority(it.Priority)}
		if it.DueDate != nil {
			item.DueDate = parseDueDate(*it.DueDate)
		}
		if it.Owner != nil && strings.TrimSpace(*it.Owner) != "" {
			owner := strings.TrimSpace(*it.Owner)
			item.Owner = &owner
		}
		out.ActionItems = append(out.ActionItems, item)
	}
	return out
}

func normalizePriority(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "low", "medium", "high":
		return p
	}
	return "medium"
}

func parseDueDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}

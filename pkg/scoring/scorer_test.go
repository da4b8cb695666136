package scoring

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"triage/pkg/models"
)

func msg(subject, body string, vip bool) models.MessageRecord {
	return models.MessageRecord{ID: "m", Subject: subject, Body: body, IsVIP: vip}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		msg       models.MessageRecord
		wantScore int
		wantRaw   int
		sentiment models.Sentiment
	}{
		{
			name:      "vip urgent board decision clamps to max",
			msg:       msg("URGENT: Board Decision", "", true),
			wantScore: 100,
			wantRaw:   30 + 40 + 15 + 10 + 20,
			sentiment: models.SentimentUrgent,
		},
		{
			name:      "plain newsletter stays at base",
			msg:       msg("Weekly newsletter", "Highlights from our community this month.", false),
			wantScore: 30,
			wantRaw:   30,
			sentiment: models.SentimentNeutral,
		},
		{
			name:      "repeated keyword counts once",
			msg:       msg("urgent", "urgent urgent, really urgent", false),
			wantScore: 45,
			wantRaw:   45,
			sentiment: models.SentimentUrgent,
		},
		{
			name:      "lowercase urgent is not a subject marker",
			msg:       msg("urgent request", "", false),
			wantScore: 45,
			wantRaw:   45,
			sentiment: models.SentimentUrgent,
		},
		{
			name:      "action required marker is case insensitive",
			msg:       msg("action required: sign the form", "", false),
			wantScore: 50,
			wantRaw:   50,
			sentiment: models.SentimentUrgent,
		},
		{
			name:      "time keywords add per distinct match",
			msg:       msg("Sync", "Can we meet today or tomorrow, maybe Friday this week?", false),
			wantScore: 30 + 4*8,
			wantRaw:   30 + 4*8,
			sentiment: models.SentimentNeutral,
		},
		{
			name:      "words inside other words do not match",
			msg:       msg("New keyboard", "The billboard arrived", false),
			wantScore: 30,
			wantRaw:   30,
			sentiment: models.SentimentNeutral,
		},
		{
			name:      "negative sentiment",
			msg:       msg("Order", "I am disappointed, the delivery failed again", false),
			wantScore: 30,
			wantRaw:   30,
			sentiment: models.SentimentNegative,
		},
		{
			name:      "positive sentiment",
			msg:       msg("Re: launch", "Great work, thank you all", false),
			wantScore: 30,
			wantRaw:   30,
			sentiment: models.SentimentPositive,
		},
		{
			name:      "everything at once exceeds the ceiling",
			msg:       msg("URGENT Action Required", "CEO and board: merger deadline today, asap, emergency", true),
			wantScore: 100,
			wantRaw:   30 + 40 + 4*15 + 3*10 + 8 + 20,
			sentiment: models.SentimentUrgent,
		},
	}

	s := NewScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.msg)
			assert.Equal(t, tt.wantScore, got.PriorityScore)
			assert.Equal(t, tt.wantRaw, got.Signals.Raw)
			assert.Equal(t, tt.sentiment, got.Sentiment)
		})
	}
}

func TestScoreSignals(t *testing.T) {
	got := Evaluate(msg("URGENT: Board Decision", "please reply by Monday", true))

	assert.True(t, got.Signals.VIP)
	assert.True(t, got.Signals.SubjectMarker)
	assert.Equal(t, []string{"urgent"}, got.Signals.Urgency)
	assert.Equal(t, []string{"board"}, got.Signals.Executive)
	assert.Equal(t, []string{"monday"}, got.Signals.Time)
}

func randomMessage(r *rand.Rand) models.MessageRecord {
	vocab := append(append(append([]string{}, UrgencyKeywords...), ExecutiveKeywords...), TimeKeywords...)
	vocab = append(vocab, "hello", "URGENT", "Action Required", "report", "lunch")

	pick := func(n int) string {
		words := make([]string, n)
		for i := range words {
			words[i] = vocab[r.Intn(len(vocab))]
		}
		return strings.Join(words, " ")
	}
	return msg(pick(r.Intn(5)), pick(r.Intn(30)), r.Intn(2) == 0)
}

func TestScoreBounds(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	s := NewScorer()
	for i := 0; i < 500; i++ {
		got := s.Score(randomMessage(r))
		assert.GreaterOrEqual(t, got.PriorityScore, MinScore)
		assert.LessOrEqual(t, got.PriorityScore, MaxScore)
		assert.True(t, got.Sentiment.Valid())
	}
}

func TestVIPMonotonicity(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	s := NewScorer()
	for i := 0; i < 500; i++ {
		m := randomMessage(r)
		m.IsVIP = false
		regular := s.Score(m)
		m.IsVIP = true
		vip := s.Score(m)
		assert.GreaterOrEqual(t, vip.PriorityScore, regular.PriorityScore)
	}
}

func TestScoreDeterministic(t *testing.T) {
	m := msg("Quarterly investor update", "Deadline is tomorrow", false)
	assert.Equal(t, Evaluate(m), Evaluate(m))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5))
	assert.Equal(t, 55, Clamp(55))
	assert.Equal(t, 100, Clamp(163))
}

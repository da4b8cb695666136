// Package scoring computes the deterministic priority score and sentiment used
// both to enrich model output and as the fallback when the model is
// unavailable.
package scoring

import (
	"regexp"
	"strings"

	"triage/pkg/models"
)

const (
	BaseScore          = 30
	VIPBonus           = 40
	UrgencyBonus       = 15
	ExecutiveBonus     = 10
	TimeBonus          = 8
	SubjectMarkerBonus = 20

	MinScore = 0
	MaxScore = 100
)

var (
	UrgencyKeywords   = []string{"urgent", "asap", "emergency", "critical", "deadline"}
	ExecutiveKeywords = []string{"board", "ceo", "investor", "acquisition", "merger"}
	TimeKeywords      = []string{
		"today", "tomorrow", "this week",
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	}

	negativeKeywords = []string{
		"problem", "issue", "complaint", "disappointed", "angry", "frustrated",
		"unacceptable", "failed", "failure", "broken", "concern", "delay", "cancel",
	}
	positiveKeywords = []string{
		"thanks", "thank you", "great", "excellent", "appreciate", "congratulations",
		"pleased", "happy", "wonderful", "well done",
	}
)

var (
	capsUrgentMarker     = regexp.MustCompile(`\bURGENT\b`)
	actionRequiredMarker = regexp.MustCompile(`(?i)\baction required\b`)
)

// Signals lists what contributed to a score. Raw is the sum before clamping.
type Signals struct {
	VIP           bool     `json:"vip"`
	Urgency       []string `json:"urgency,omitempty"`
	Executive     []string `json:"executive,omitempty"`
	Time          []string `json:"time,omitempty"`
	SubjectMarker bool     `json:"subjectMarker"`
	Raw           int      `json:"raw"`
}

type Score struct {
	PriorityScore int              `json:"priorityScore"`
	Sentiment     models.Sentiment `json:"sentiment"`
	Signals       Signals          `json:"signals"`
}

type keywordSet struct {
	words    []string
	patterns []*regexp.Regexp
}

func newKeywordSet(words []string) keywordSet {
	ks := keywordSet{words: words, patterns: make([]*regexp.Regexp, len(words))}
	for i, w := range words {
		ks.patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return ks
}

// matches returns each distinct keyword found in lowered text, in list order.
func (ks keywordSet) matches(lowered string) []string {
	var found []string
	for i, p := range ks.patterns {
		if p.MatchString(lowered) {
			found = append(found, ks.words[i])
		}
	}
	return found
}

// Scorer is safe for concurrent use.
type Scorer struct {
	urgency   keywordSet
	executive keywordSet
	timing    keywordSet
	negative  keywordSet
	positive  keywordSet
}

func NewScorer() *Scorer {
	return &Scorer{
		urgency:   newKeywordSet(UrgencyKeywords),
		executive: newKeywordSet(ExecutiveKeywords),
		timing:    newKeywordSet(TimeKeywords),
		negative:  newKeywordSet(negativeKeywords),
		positive:  newKeywordSet(positiveKeywords),
	}
}

var defaultScorer = NewScorer()

// Evaluate scores msg with the package default scorer.
func Evaluate(msg models.MessageRecord) Score {
	return defaultScorer.Score(msg)
}

// Score is pure: the same message always yields the same result. Keyword lists
// are matched independently, so a word present in two lists counts twice.
func (s *Scorer) Score(msg models.MessageRecord) Score {
	text := strings.ToLower(msg.Subject + "\n" + msg.Body)

	sig := Signals{
		VIP:       msg.IsVIP,
		Urgency:   s.urgency.matches(text),
		Executive: s.executive.matches(text),
		Time:      s.timing.matches(text),
	}
	sig.SubjectMarker = capsUrgentMarker.MatchString(msg.Subject) || actionRequiredMarker.MatchString(msg.Subject)

	raw := BaseScore
	if sig.VIP {
		raw += VIPBonus
	}
	raw += UrgencyBonus * len(sig.Urgency)
	raw += ExecutiveBonus * len(sig.Executive)
	raw += TimeBonus * len(sig.Time)
	if sig.SubjectMarker {
		raw += SubjectMarkerBonus
	}
	sig.Raw = raw

	return Score{
		PriorityScore: Clamp(raw),
		Sentiment:     s.sentiment(text, sig),
		Signals:       sig,
	}
}

func (s *Scorer) sentiment(text string, sig Signals) models.Sentiment {
	switch {
	case len(sig.Urgency) > 0 || sig.SubjectMarker:
		return models.SentimentUrgent
	case len(s.negative.matches(text)) > 0:
		return models.SentimentNegative
	case len(s.positive.matches(text)) > 0:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

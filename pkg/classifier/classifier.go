// Package classifier assigns an intent label and confidence to a visitor
// message using ordered regex rules, and extracts keywords and entities.
//
// Classification is a pure function of the input text.
package classifier

import (
	"math"
	"regexp"
	"strings"
)

// Intent is the coarse purpose of a message.
type Intent string

// Intents in tie-break priority order.
const (
	Question  Intent = "question"
	Search    Intent = "search"
	Command   Intent = "command"
	Statement Intent = "statement"
)

// Intents lists every label in tie-break priority order.
var Intents = []Intent{Question, Search, Command, Statement}

// Valid reports whether i is one of the known labels.
func (i Intent) Valid() bool {
	switch i {
	case Question, Search, Command, Statement:
		return true
	default:
		return false
	}
}

// Band is the confidence range a label can produce.
type Band struct {
	Min, Max float64
}

// Bands maps each label to its confidence range.
var Bands = map[Intent]Band{
	Question:  {Min: 0.70, Max: 1.00},
	Search:    {Min: 0.70, Max: 0.90},
	Command:   {Min: 0.50, Max: 0.80},
	Statement: {Min: 0.50, Max: 0.70},
}

// Rule is one weighted pattern. A label's score is the highest Score among
// its matching rules.
type Rule struct {
	Label   Intent
	Pattern *regexp.Regexp
	Score   float64 // In (0,1]; positions the confidence inside the label's band.
}

// Rules are evaluated against the lowercased, trimmed message.
var Rules = []Rule{
	{Question, regexp.MustCompile(`^(what|who|when|where|why|how|which|whose|whom)\b`), 1.0},
	{Question, regexp.MustCompile(`\?$`), 0.9},
	{Question, regexp.MustCompile(`^(is|are|was|were|do|does|did|can|could|should|would|will)\s.*\?$`), 0.9},
	{Question, regexp.MustCompile(`^(tell me|explain|describe|can you|could you)\b`), 0.8},

	{Search, regexp.MustCompile(`^(find|search|look for|show me|list|display|get)\b`), 1.0},
	{Search, regexp.MustCompile(`^(filter|sort)\b.*\b(by|with)\b`), 0.9},
	{Search, regexp.MustCompile(`^(containing|related to|about|with skill)\b`), 0.7},
	{Search, regexp.MustCompile(`\b(projects?|experiences?|certificates?|certifications?|skills?|technolog(y|ies))\b`), 0.4},

	{Command, regexp.MustCompile(`^(update|change|modify|edit|delete|remove|add|create)\b`), 1.0},
	{Command, regexp.MustCompile(`^(set|configure|enable|disable)\b`), 0.9},
	{Command, regexp.MustCompile(`^(start|stop|restart|run|execute)\b`), 0.9},
}

const (
	keywordBoost    = 0.05
	maxKeywordBoost = 0.15
)

// Result is the outcome of Classify.
type Result struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
	Entities   []string `json:"entities"`
	Topic      Topic    `json:"topic"`
}

// Classify labels message. It never fails: text that matches no rule is a
// statement with the lowest confidence of its band.
func Classify(message string) Result {
	text := strings.ToLower(strings.TrimSpace(message))
	tokens := tokenize(text)

	res := Result{
		Intent:     Statement,
		Confidence: Bands[Statement].Min,
		Keywords:   keywords(tokens),
		Entities:   entities(message, tokens),
		Topic:      topicOf(text),
	}

	label, score := bestLabel(text)
	if score == 0 {
		return res
	}

	band := Bands[label]
	conf := band.Min + score*(band.Max-band.Min)
	conf += min(float64(portfolioHits(tokens))*keywordBoost, maxKeywordBoost)

	res.Intent = label
	res.Confidence = clamp(math.Round(conf*100)/100, band.Min, band.Max)

	return res
}

// bestLabel returns the label with the highest single-rule score. Equal
// scores resolve by the order of Intents.
func bestLabel(text string) (Intent, float64) {
	scores := make(map[Intent]float64, len(Intents))
	for _, r := range Rules {
		if r.Score > scores[r.Label] && r.Pattern.MatchString(text) {
			scores[r.Label] = r.Score
		}
	}

	best, bestScore := Statement, 0.0
	for _, label := range Intents {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}

	return best, bestScore
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

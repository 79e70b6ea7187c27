package assist

import "strings"

// Complexity factor weights. The score is the clamped sum of five
// independent signals.
const (
	longInputWords   = 18
	mediumInputWords = 10

	weightLongInput   = 0.30
	weightMediumInput = 0.15
	weightClauseEach  = 0.10
	weightClauseCap   = 0.20
	weightQuestion    = 0.20
	weightMultiIntent = 0.15
	weightComplexWord = 0.20
)

var (
	clauseMarkers = map[string]struct{}{
		"and": {}, "but": {}, "or": {}, "because": {}, "so": {},
	}
	multiIntentMarkers = []string{
		"also", "plus", "as well", "another thing", "one more thing",
		"on top of that",
	}
	complexKeywords = map[string]struct{}{
		"why": {}, "how": {}, "should": {}, "warranty": {},
		"difference": {}, "explain": {}, "recommend": {}, "compare": {},
		"versus": {}, "worth": {},
	}
)

// Complexity is the scored breakdown of one caller input.
type Complexity struct {
	Score float64 `json:"score"`

	// KeywordHit is true when an explicit complex-question keyword was
	// found; it triggers the assist gate regardless of score.
	KeywordHit bool `json:"keyword_hit"`

	Factors map[string]float64 `json:"factors"`
}

// ScoreComplexity computes the [0,1] complexity score from word count,
// clause markers, question marks, multi-intent markers, and complex
// question keywords.
func ScoreComplexity(raw string, tokens []string) Complexity {
	c := Complexity{Factors: make(map[string]float64, 5)}

	switch {
	case len(tokens) >= longInputWords:
		c.Factors["word_count"] = weightLongInput
	case len(tokens) >= mediumInputWords:
		c.Factors["word_count"] = weightMediumInput
	}

	clauses := strings.Count(raw, ",")
	for _, t := range tokens {
		if _, ok := clauseMarkers[t]; ok {
			clauses++
		}
	}
	if clauses > 0 {
		w := float64(clauses) * weightClauseEach
		if w > weightClauseCap {
			w = weightClauseCap
		}
		c.Factors["clauses"] = w
	}

	if strings.Contains(raw, "?") {
		c.Factors["question_mark"] = weightQuestion
	}

	lower := strings.ToLower(raw)
	for _, m := range multiIntentMarkers {
		if strings.Contains(lower, m) {
			c.Factors["multi_intent"] = weightMultiIntent
			break
		}
	}

	for _, t := range tokens {
		if _, ok := complexKeywords[t]; ok {
			c.Factors["complex_keyword"] = weightComplexWord
			c.KeywordHit = true
			break
		}
	}

	for _, w := range c.Factors {
		c.Score += w
	}
	if c.Score > 1 {
		c.Score = 1
	}
	return c
}

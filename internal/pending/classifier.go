// Package pending classifies caller responses to agent-initiated questions.
//
// Two classifiers share one word-list configuration: the generic
// pending-question classifier (four buckets) and the trigger follow-up
// classifier (five buckets). Classification is pure; state transitions are
// applied by the turn runner.
package pending

import (
	"strings"
	"unicode"

	"github.com/relayline/frontdesk/internal/config"
)

// Bucket is a classification outcome.
type Bucket string

const (
	BucketYes      Bucket = "yes"
	BucketNo       Bucket = "no"
	BucketHesitant Bucket = "hesitant"
	BucketReprompt Bucket = "reprompt"
	BucketComplex  Bucket = "complex"
)

const (
	// microUtteranceMax is the character bound below which a non-yes/no
	// answer is treated as a reprompt.
	microUtteranceMax = 8

	// complexMin is the character bound at which a substantive non-yes/no
	// answer becomes complex.
	complexMin = 15
)

// Built-in word lists, extended (not replaced) by configuration.
var (
	defaultYesWords = []string{
		"yes", "yeah", "yep", "yup", "sure", "correct", "right",
		"absolutely", "definitely", "ok", "okay", "please", "certainly",
	}
	defaultYesPhrases = []string{
		"that's right", "sounds good", "go ahead", "of course",
		"that would be great", "that works", "why not",
	}
	defaultNoWords = []string{
		"no", "nope", "nah", "never", "negative",
	}
	defaultNoPhrases = []string{
		"not really", "no thanks", "no thank you", "i'm good",
		"not right now", "don't bother",
	}
	defaultHesitantWords = []string{
		"maybe", "possibly", "perhaps", "hmm", "dunno",
	}
	defaultHesitantPhrases = []string{
		"not sure", "i guess", "i don't know", "i think so",
		"let me think", "hold on",
	}
)

// Classifier holds the resolved word lists. Read-only after construction;
// safe for concurrent use.
type Classifier struct {
	yesWords   map[string]struct{}
	noWords    map[string]struct{}
	hesitant   map[string]struct{}
	yesPhrases []string
	noPhrases  []string
	hesPhrases []string
}

// NewClassifier builds a Classifier from the company's pending
// configuration. Configured lists extend the built-in sets.
func NewClassifier(cfg config.PendingConfig) *Classifier {
	return &Classifier{
		yesWords:   wordSet(defaultYesWords, cfg.YesWords),
		noWords:    wordSet(defaultNoWords, cfg.NoWords),
		hesitant:   wordSet(defaultHesitantWords, cfg.Hesitant),
		yesPhrases: append(append([]string(nil), defaultYesPhrases...), cfg.YesPhrases...),
		noPhrases:  append(append([]string(nil), defaultNoPhrases...), cfg.NoPhrases...),
		hesPhrases: defaultHesitantPhrases,
	}
}

// ClassifyGeneric classifies a response to a generic pending question into
// yes, no, reprompt, or complex.
//
// Yes requires a yes marker with no no marker; micro-utterances and
// name-like answers reprompt; substantive non-yes/no answers are complex.
func (c *Classifier) ClassifyGeneric(raw string, tokens []string) Bucket {
	yes, no := c.markers(raw, tokens)
	switch {
	case yes && !no:
		return BucketYes
	case no:
		return BucketNo
	}

	trimmed := strings.TrimSpace(raw)
	if len(trimmed) <= microUtteranceMax || nameLike(trimmed, tokens) {
		return BucketReprompt
	}
	if len(trimmed) >= complexMin {
		return BucketComplex
	}
	return BucketReprompt
}

// ClassifyFollowUp classifies a response to a trigger-card follow-up
// question into one of five buckets. Overlapping markers resolve by
// priority: yes > no > hesitant > reprompt > complex.
func (c *Classifier) ClassifyFollowUp(raw string, tokens []string) Bucket {
	hes := c.hesitantMarker(raw, tokens)
	yes, no := c.markers(c.stripHesitant(raw, tokens))

	switch {
	case yes && !no:
		return BucketYes
	case no:
		return BucketNo
	case hes:
		return BucketHesitant
	}

	trimmed := strings.TrimSpace(raw)
	if len(trimmed) <= microUtteranceMax {
		return BucketReprompt
	}
	return BucketComplex
}

// markers reports whether the input carries a yes marker and a no marker.
func (c *Classifier) markers(raw string, tokens []string) (yes, no bool) {
	lower := strings.ToLower(raw)
	for _, t := range tokens {
		if _, ok := c.yesWords[t]; ok {
			yes = true
		}
		if _, ok := c.noWords[t]; ok {
			no = true
		}
	}
	if !yes {
		for _, p := range c.yesPhrases {
			if strings.Contains(lower, p) {
				yes = true
				break
			}
		}
	}
	if !no {
		for _, p := range c.noPhrases {
			if strings.Contains(lower, p) {
				no = true
				break
			}
		}
	}
	// "not" flips an otherwise bare yes ("not yet", "yeah no").
	if yes && containsToken(tokens, "not") {
		no = true
	}
	return yes, no
}

// stripHesitant removes hesitation phrases before yes/no marker scanning.
// "not sure" must not read as "sure" flipped by "not".
func (c *Classifier) stripHesitant(raw string, tokens []string) (string, []string) {
	lower := strings.ToLower(raw)
	drop := map[string]struct{}{}
	for _, p := range c.hesPhrases {
		if !strings.Contains(lower, p) {
			continue
		}
		lower = strings.ReplaceAll(lower, p, " ")
		for _, w := range strings.Fields(p) {
			drop[w] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return raw, tokens
	}
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return lower, kept
}

// hesitantMarker reports whether the input carries a hesitation marker.
func (c *Classifier) hesitantMarker(raw string, tokens []string) bool {
	for _, t := range tokens {
		if _, ok := c.hesitant[t]; ok {
			return true
		}
	}
	lower := strings.ToLower(raw)
	for _, p := range c.hesPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// nameLike reports whether a short answer looks like a bare name ("John",
// "John Smith"): at most two tokens, each starting upper-case in the raw
// text, and no digits.
func nameLike(raw string, tokens []string) bool {
	if len(tokens) == 0 || len(tokens) > 2 {
		return false
	}
	words := strings.Fields(raw)
	if len(words) != len(tokens) {
		return false
	}
	for _, w := range words {
		r := []rune(w)[0]
		if !unicode.IsUpper(r) {
			return false
		}
		for _, ch := range w {
			if unicode.IsDigit(ch) {
				return false
			}
		}
	}
	return true
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func wordSet(base, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, w := range base {
		set[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range extra {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

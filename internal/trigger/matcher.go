// Package trigger implements the single-winner trigger-card matcher, the
// intent priority gate, and trigger-variable substitution.
package trigger

import (
	"sort"
	"strings"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/textpipe"
)

// maxEvalRecords bounds the per-card evaluation records returned for
// auditability.
const maxEvalRecords = 10

const (
	// hintBoost is subtracted from a card's effective priority for each
	// matched hint category. Doubled when a lock matches.
	hintBoost = 5
)

// singleWordGreetings are greeting keywords subject to greeting protection:
// as single-word keywords they only count on inputs of at most
// greetingMaxTokens tokens.
var singleWordGreetings = map[string]struct{}{
	"hi":        {},
	"hello":     {},
	"hey":       {},
	"howdy":     {},
	"greetings": {},
	"yo":        {},
}

const greetingMaxTokens = 4

// Input carries the preprocessed utterance and matching context.
type Input struct {
	// NormalizedText is the pipeline's normalized output.
	NormalizedText string

	// Tokens are the authoritative tokens of the normalized text.
	Tokens []string

	// ExpandedTokens is the synonym-expanded bag; matches found only here
	// are recorded as non-authoritative.
	ExpandedTokens []string

	// Hints are the call's accumulated soft hints.
	Hints []string

	// Locks are the call's confirmed component anchors.
	Locks map[string]string
}

// Options tunes one matcher invocation.
type Options struct {
	// GlobalNegatives veto every card when all words of one appear.
	GlobalNegatives []string

	// Gate carries the intent-gate evaluation; nil means no gate.
	Gate *Gate

	// GateResult is the pre-computed gate evaluation for this input.
	GateResult GateResult
}

// MatchType distinguishes how the winning card was hit.
type MatchType string

const (
	MatchKeyword MatchType = "keyword"
	MatchPhrase  MatchType = "phrase"
)

// CardEval is a per-card audit record.
type CardEval struct {
	CardID            string `json:"card_id"`
	Matched           bool   `json:"matched"`
	Skipped           bool   `json:"skipped"`
	Reason            string `json:"reason,omitempty"`
	EffectivePriority int    `json:"effective_priority"`
	NegativeHit       string `json:"negative_hit,omitempty"`
	GreetingBlocked   bool   `json:"greeting_blocked,omitempty"`
}

// Result is the matcher output: at most one winning card plus bounded audit
// records (I1).
type Result struct {
	// Card is the winning card, or nil when nothing matched.
	Card *config.TriggerCard

	MatchType MatchType `json:"match_type,omitempty"`

	// MatchedOn is the keyword or phrase that hit.
	MatchedOn string `json:"matched_on,omitempty"`

	// ViaExpansion is true when the hit was found only through synonym
	// expansion (traceable but non-authoritative).
	ViaExpansion bool `json:"via_expansion,omitempty"`

	Evals []CardEval `json:"evals,omitempty"`
}

// Match evaluates cards against the input and returns the single winner, if
// any. Cards are ordered by effective priority (base priority, hint and lock
// boosts, intent-gate penalty), lower first; evaluation stops at the first
// keyword or phrase hit.
func Match(in Input, cards []config.TriggerCard, opts Options) Result {
	type ranked struct {
		card *config.TriggerCard
		prio int
		idx  int
	}

	pool := make([]ranked, 0, len(cards))
	var res Result

	record := func(ev CardEval) {
		if len(res.Evals) < maxEvalRecords {
			res.Evals = append(res.Evals, ev)
		}
	}

	for i := range cards {
		card := &cards[i]
		if !card.Enabled {
			record(CardEval{CardID: card.ID, Skipped: true, Reason: "disabled"})
			continue
		}

		prio := card.Priority + boost(card, in.Hints, in.Locks)

		if opts.Gate != nil && opts.GateResult.Flagged && opts.Gate.Disqualifies(card) {
			if opts.GateResult.Emergency {
				record(CardEval{CardID: card.ID, Skipped: true, Reason: "intent-disqualified", EffectivePriority: prio})
				continue
			}
			prio += opts.Gate.Penalty()
		}

		pool = append(pool, ranked{card: card, prio: prio, idx: i})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].prio != pool[j].prio {
			return pool[i].prio < pool[j].prio
		}
		return pool[i].idx < pool[j].idx
	})

	tokenSet := toSet(in.Tokens)
	expandedSet := toSet(in.ExpandedTokens)
	expandedJoined := strings.Join(in.ExpandedTokens, " ")
	textLower := strings.ToLower(in.NormalizedText)

	for _, r := range pool {
		card := r.card
		ev := CardEval{CardID: card.ID, EffectivePriority: r.prio}

		if neg := negativeHit(opts.GlobalNegatives, tokenSet); neg != "" {
			ev.Skipped, ev.Reason, ev.NegativeHit = true, "global-negative", neg
			record(ev)
			continue
		}
		if neg := negativeHit(card.Match.Negatives, tokenSet); neg != "" {
			ev.Skipped, ev.Reason, ev.NegativeHit = true, "negative", neg
			record(ev)
			continue
		}

		greetingBlocked := false
		for _, kw := range card.Match.Keywords {
			hit, viaExp := keywordHit(kw, tokenSet, expandedSet)
			if !hit {
				continue
			}
			if blockedGreeting(kw, in.Tokens) {
				greetingBlocked = true
				continue
			}
			ev.Matched = true
			record(ev)
			res.Card = card
			res.MatchType = MatchKeyword
			res.MatchedOn = kw
			res.ViaExpansion = viaExp
			return res
		}

		for _, ph := range card.Match.Phrases {
			phLower := strings.ToLower(ph)
			if phLower == "" {
				continue
			}
			inText := strings.Contains(textLower, phLower)
			inExpanded := strings.Contains(expandedJoined, phLower)
			if !inText && !inExpanded {
				continue
			}
			ev.Matched = true
			record(ev)
			res.Card = card
			res.MatchType = MatchPhrase
			res.MatchedOn = ph
			res.ViaExpansion = !inText && inExpanded
			return res
		}

		ev.Reason = "no-hit"
		ev.GreetingBlocked = greetingBlocked
		if greetingBlocked {
			ev.Reason = "greeting-blocked"
		}
		record(ev)
	}

	return res
}

// boost computes the hint/lock priority adjustment for a card: -5 per
// matched hint category, doubled when a lock matches the card's category.
func boost(card *config.TriggerCard, hints []string, locks map[string]string) int {
	if card.Category == "" {
		return 0
	}
	cat := strings.ToLower(card.Category)

	locked := false
	for _, v := range locks {
		if strings.ToLower(v) == cat {
			locked = true
			break
		}
	}

	b := 0
	for _, h := range hints {
		if hintMatchesCategory(h, cat) {
			step := hintBoost
			if locked {
				step *= 2
			}
			b -= step
		}
	}
	if b == 0 && locked {
		// A lock alone still boosts once, doubled.
		b = -2 * hintBoost
	}
	return b
}

// hintMatchesCategory reports whether a hint label refers to a card
// category. Hints are free-form labels ("maybe_thermostat"), so a substring
// test against the category is used.
func hintMatchesCategory(hint, category string) bool {
	h := strings.ToLower(hint)
	return h == category || strings.Contains(h, category)
}

// keywordHit reports whether every word of kw appears in the token set, and
// whether the hit needed the expanded bag.
func keywordHit(kw string, tokens, expanded map[string]struct{}) (hit bool, viaExpansion bool) {
	words := textpipe.Tokenize(kw)
	if len(words) == 0 {
		return false, false
	}
	for _, w := range words {
		if _, ok := tokens[w]; ok {
			continue
		}
		if _, ok := expanded[w]; ok {
			viaExpansion = true
			continue
		}
		return false, false
	}
	return true, viaExpansion
}

// blockedGreeting reports whether kw is a single-word greeting that must not
// count because the input is longer than the greeting-protection bound.
func blockedGreeting(kw string, tokens []string) bool {
	words := textpipe.Tokenize(kw)
	if len(words) != 1 {
		return false
	}
	if _, ok := singleWordGreetings[words[0]]; !ok {
		return false
	}
	return len(tokens) > greetingMaxTokens
}

// negativeHit returns the first negative keyword whose words all appear in
// the token set, or "".
func negativeHit(negatives []string, tokens map[string]struct{}) string {
	for _, neg := range negatives {
		words := textpipe.Tokenize(neg)
		if len(words) == 0 {
			continue
		}
		all := true
		for _, w := range words {
			if _, ok := tokens[w]; !ok {
				all = false
				break
			}
		}
		if all {
			return neg
		}
	}
	return ""
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Package greeting implements the one-shot short-greeting interceptor.
package greeting

import (
	"sort"
	"strings"

	"github.com/relayline/frontdesk/internal/config"
)

// Block reasons recorded in the proof event when the interceptor does not
// fire.
const (
	BlockAlreadyGreeted = "already-greeted"
	BlockTooLong        = "too-long"
	BlockIntentKeyword  = "intent-keyword"
	BlockNoRule         = "no-rule-matched"
)

// Decision is the interceptor outcome. A proof event is emitted for every
// evaluation, intercepted or not.
type Decision struct {
	Intercepted bool           `json:"intercepted"`
	RuleID      string         `json:"rule_id,omitempty"`
	Response    config.Payload `json:"-"`

	// BlockReason is set when Intercepted is false.
	BlockReason string `json:"block_reason,omitempty"`
}

// Evaluate decides whether the greeting interceptor fires for this input.
// It fires only when the call has not yet been greeted, the input has at
// most MaxWordsToQualify tokens, and no intent keyword is present. The
// first matching enabled rule in ascending priority order wins.
func Evaluate(cfg config.GreetingConfig, tokens []string, greeted bool) Decision {
	if greeted {
		return Decision{BlockReason: BlockAlreadyGreeted}
	}
	if len(tokens) == 0 || len(tokens) > cfg.MaxWordsToQualify {
		return Decision{BlockReason: BlockTooLong}
	}
	if kw := intentKeyword(cfg.IntentKeywords, tokens); kw != "" {
		return Decision{BlockReason: BlockIntentKeyword}
	}

	rules := make([]config.GreetingRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r.Enabled && !r.Response.Empty() {
			rules = append(rules, r)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	for _, r := range rules {
		for _, kw := range r.Keywords {
			if _, ok := set[strings.ToLower(kw)]; ok {
				return Decision{Intercepted: true, RuleID: r.ID, Response: r.Response}
			}
		}
	}
	return Decision{BlockReason: BlockNoRule}
}

// intentKeyword returns the first configured intent keyword found in the
// token set, or "".
func intentKeyword(keywords, tokens []string) string {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	for _, kw := range keywords {
		if _, ok := set[strings.ToLower(kw)]; ok {
			return kw
		}
	}
	return ""
}

// Package clarifier asks disambiguation questions when soft hints exist
// without a trigger match, and classifies the caller's answer next turn.
package clarifier

import (
	"sort"

	"github.com/relayline/frontdesk/internal/config"
)

// Resolution is the outcome of classifying a clarifier answer.
type Resolution string

const (
	ResolutionYes     Resolution = "yes"
	ResolutionNo      Resolution = "no"
	ResolutionUnclear Resolution = "unclear"
)

// Small word sets for the yes/no resolution branch. The clarifier
// deliberately uses a narrower set than the pending-question classifier:
// an ambiguous answer should fall through to the normal pipeline rather
// than set a wrong lock.
var (
	yesWords = map[string]struct{}{
		"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "correct": {},
		"right": {}, "exactly": {},
	}
	noWords = map[string]struct{}{
		"no": {}, "nope": {}, "nah": {}, "not": {}, "wrong": {},
	}
)

// Pick returns the highest-priority clarifier entry whose hint trigger is in
// the hint set, honouring the per-call ask budget. Returns nil when no entry
// applies or the budget is exhausted.
func Pick(cfg config.ClarifierConfig, hints []string, asksSoFar int) *config.ClarifierEntry {
	if len(hints) == 0 || asksSoFar >= cfg.MaxAsksPerCall {
		return nil
	}

	hintSet := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		hintSet[h] = struct{}{}
	}

	entries := make([]config.ClarifierEntry, 0, len(cfg.Entries))
	for _, e := range cfg.Entries {
		if _, ok := hintSet[e.HintTrigger]; ok {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})
	return &entries[0]
}

// Classify resolves a pending clarifier answer using the small yes/no word
// sets. A mixed or markerless answer is unclear and lets the pipeline
// proceed normally.
func Classify(tokens []string) Resolution {
	var yes, no bool
	for _, t := range tokens {
		if _, ok := yesWords[t]; ok {
			yes = true
		}
		if _, ok := noWords[t]; ok {
			no = true
		}
	}
	switch {
	case yes && !no:
		return ResolutionYes
	case no && !yes:
		return ResolutionNo
	}
	return ResolutionUnclear
}

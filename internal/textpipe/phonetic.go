package textpipe

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// phoneticMaxDistance bounds the optimal-string-alignment distance a
	// phonetically equivalent token may still be away from the target.
	// Keeps "acee"→"ac" while rejecting long coincidental homophones.
	phoneticMaxDistance = 2

	// phoneticMinScore is the Jaro-Winkler floor applied when the
	// metaphone codes overlap but the strings diverge.
	phoneticMinScore = 0.70
)

// phoneticEqual reports whether token sounds like target. Both arguments
// must already be lowercased. The test requires a Double Metaphone code
// overlap plus either a small edit distance or a high string similarity, so
// that short STT mishearings match without dragging in unrelated words.
func phoneticEqual(token, target string) bool {
	if token == "" || target == "" {
		return false
	}
	if token == target {
		return true
	}

	tp, ts := matchr.DoubleMetaphone(token)
	gp, gs := matchr.DoubleMetaphone(target)
	if !codesOverlap(tp, ts, gp, gs) {
		return false
	}

	if matchr.OSA(token, target) <= phoneticMaxDistance {
		return true
	}
	return matchr.JaroWinkler(token, target, false) >= phoneticMinScore
}

// codesOverlap reports whether any non-empty metaphone code is shared
// between the two (primary, secondary) pairs.
func codesOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || (bs != "" && a == bs) {
			return true
		}
	}
	return false
}

// phoneticTokenIndex returns the index of the first token in tokens that
// sounds like target, or -1. target is lowercased internally.
func phoneticTokenIndex(tokens []string, target string) int {
	target = strings.ToLower(target)
	for i, t := range tokens {
		if phoneticEqual(t, target) {
			return i
		}
	}
	return -1
}

// Package textpipe implements the turn preprocessing pipeline: filler strip,
// vocabulary normalization (hard and soft), synonym expansion, and the
// quality gate.
//
// The pipeline preserves its input: the raw text is always carried through
// unmodified, soft-hint entries never rewrite text, and synonym expansion
// produces an additional token bag rather than replacing the original
// tokens.
package textpipe

import (
	"sort"
	"strings"
	"unicode"

	"github.com/relayline/frontdesk/internal/config"
)

// Transformation records a single text modification for auditability.
type Transformation struct {
	// Stage is "filler", "hard-normalize", or "soft-hint".
	Stage   string `json:"stage"`
	EntryID string `json:"entry_id,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// Quality is the quality-gate verdict for a preprocessed utterance.
type Quality struct {
	Passed     bool    `json:"passed"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`

	// ShouldReprompt advises the runner to re-ask rather than match. The
	// runner decides whether to act on it.
	ShouldReprompt bool `json:"should_reprompt"`
}

// Result is the full output of a pipeline run.
type Result struct {
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`

	// OriginalTokens are the tokens of the normalized text; authoritative
	// for display and slot capture.
	OriginalTokens []string `json:"original_tokens"`

	// ExpandedTokens is the synonym-expanded bag used non-destructively by
	// the matcher. It is a superset of OriginalTokens.
	ExpandedTokens []string `json:"expanded_tokens"`

	// ExpansionMap records which members each original token expanded to.
	ExpansionMap map[string][]string `json:"expansion_map,omitempty"`

	// Hints are the soft-hint labels matched this turn, in vocabulary order.
	Hints []string `json:"hints,omitempty"`

	Transformations []Transformation `json:"transformations,omitempty"`
	Quality         Quality          `json:"quality"`
}

// Pipeline preprocesses caller utterances for one company configuration.
// It is read-only after construction and safe for concurrent use.
type Pipeline struct {
	ignorePhrases []string
	synonyms      map[string][]string
	minChars      int

	hard []config.VocabEntry
	soft []config.VocabEntry
}

// New builds a Pipeline from the company's text settings and vocabulary.
// Disabled vocabulary entries are dropped; hard-normalize entries are
// pre-sorted by ascending priority with insertion order as the tie-break.
func New(text config.TextConfig, vocab []config.VocabEntry) *Pipeline {
	p := &Pipeline{
		ignorePhrases: text.IgnorePhrases,
		synonyms:      text.Synonyms,
		minChars:      text.MinChars,
	}
	for _, v := range vocab {
		if !v.Enabled {
			continue
		}
		switch v.Type {
		case config.VocabSoftHint:
			p.soft = append(p.soft, v)
		default:
			p.hard = append(p.hard, v)
		}
	}
	sort.SliceStable(p.hard, func(i, j int) bool {
		return p.hard[i].Priority < p.hard[j].Priority
	})
	return p
}

// Run executes all pipeline stages over raw and returns the result.
func (p *Pipeline) Run(raw string) Result {
	res := Result{RawText: raw}

	// Stage 1: filler strip.
	text := p.stripFillers(raw, &res)

	// Stage 2: hard-normalize, ascending priority, left-to-right.
	for _, v := range p.hard {
		text = p.applyHard(text, v, &res)
	}
	res.NormalizedText = collapseSpaces(text)
	res.OriginalTokens = Tokenize(res.NormalizedText)

	// Stage 3: soft hints. Text is not modified.
	for _, v := range p.soft {
		if p.softMatches(res.NormalizedText, res.OriginalTokens, v) {
			res.Hints = append(res.Hints, v.HintLabel())
			res.Transformations = append(res.Transformations, Transformation{
				Stage:   "soft-hint",
				EntryID: v.ID,
				From:    v.From,
				To:      v.HintLabel(),
			})
		}
	}

	// Stage 4: synonym expansion into an additional token bag.
	res.ExpandedTokens, res.ExpansionMap = p.expand(res.OriginalTokens)

	// Stage 5: quality gate.
	res.Quality = p.judge(res.NormalizedText, res.OriginalTokens)

	return res
}

// stripFillers removes built-in filler words and phrases plus configured
// ignore phrases. The original text is untouched; the stripped copy is
// returned.
func (p *Pipeline) stripFillers(raw string, res *Result) string {
	text := raw
	for _, phrase := range builtinFillerPhrases {
		text = removeSubstringFold(text, phrase)
	}
	for _, phrase := range p.ignorePhrases {
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		text = removeSubstringFold(text, phrase)
	}

	var kept []string
	for _, w := range strings.Fields(text) {
		if _, filler := builtinFillers[strings.ToLower(trimWordPunct(w))]; filler {
			res.Transformations = append(res.Transformations, Transformation{
				Stage: "filler",
				From:  w,
			})
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// applyHard applies one hard-normalize entry to text per its match mode.
func (p *Pipeline) applyHard(text string, v config.VocabEntry, res *Result) string {
	var out string
	var hit bool

	switch v.MatchMode {
	case config.MatchContains:
		out, hit = replaceFold(text, v.From, v.To)
	case config.MatchPhonetic:
		out, hit = replaceTokens(text, func(tok string) (string, bool) {
			if phoneticEqual(tok, strings.ToLower(v.From)) {
				return v.To, true
			}
			return "", false
		})
	default: // exact
		out, hit = replaceTokens(text, func(tok string) (string, bool) {
			if tok == strings.ToLower(v.From) {
				return v.To, true
			}
			return "", false
		})
	}

	if hit {
		res.Transformations = append(res.Transformations, Transformation{
			Stage:   "hard-normalize",
			EntryID: v.ID,
			From:    v.From,
			To:      v.To,
		})
	}
	return out
}

// softMatches tests a soft-hint entry against the normalized text.
func (p *Pipeline) softMatches(text string, tokens []string, v config.VocabEntry) bool {
	switch v.MatchMode {
	case config.MatchContains:
		return containsFold(text, v.From)
	case config.MatchPhonetic:
		return phoneticTokenIndex(tokens, v.From) >= 0
	default: // exact
		from := strings.ToLower(v.From)
		for _, t := range tokens {
			if t == from {
				return true
			}
		}
		return false
	}
}

// expand builds the expanded token bag from the synonym dictionary.
func (p *Pipeline) expand(tokens []string) ([]string, map[string][]string) {
	expanded := append([]string(nil), tokens...)
	if len(p.synonyms) == 0 {
		return expanded, nil
	}

	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}

	var expMap map[string][]string
	for _, t := range tokens {
		members, ok := p.synonyms[t]
		if !ok {
			continue
		}
		if expMap == nil {
			expMap = make(map[string][]string)
		}
		for _, m := range members {
			m = strings.ToLower(m)
			expMap[t] = append(expMap[t], m)
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			expanded = append(expanded, m)
		}
	}
	return expanded, expMap
}

// judge applies the quality gate.
func (p *Pipeline) judge(text string, tokens []string) Quality {
	if len(tokens) == 0 {
		return Quality{Reason: "empty-after-fillers", ShouldReprompt: true}
	}
	if len(text) < p.minChars {
		return Quality{Reason: "below-min-chars", Confidence: 0.2, ShouldReprompt: true}
	}
	return Quality{Passed: true, Confidence: 1}
}

// Tokenize lowercases s and splits it into word tokens. A token is a maximal
// run of letters, digits, and apostrophes; everything else separates tokens.
func Tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// replaceTokens rewrites the word runs of text through fn, preserving all
// separator characters. fn receives lowercased tokens and returns the
// replacement plus whether to replace. Returns the new text and whether any
// replacement happened.
func replaceTokens(text string, fn func(string) (string, bool)) (string, bool) {
	var out strings.Builder
	var word strings.Builder
	changed := false

	flush := func() {
		if word.Len() == 0 {
			return
		}
		w := word.String()
		if repl, ok := fn(strings.ToLower(w)); ok {
			out.WriteString(matchCase(w, repl))
			changed = true
		} else {
			out.WriteString(w)
		}
		word.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			word.WriteRune(r)
			continue
		}
		flush()
		out.WriteRune(r)
	}
	flush()
	return out.String(), changed
}

// replaceFold replaces every case-insensitive occurrence of from in text
// with to, preserving the initial capitalization of each occurrence.
// Replacements are applied left to right.
func replaceFold(text, from, to string) (string, bool) {
	if from == "" {
		return text, false
	}
	lower := strings.ToLower(text)
	fromLower := strings.ToLower(from)

	var out strings.Builder
	changed := false
	i := 0
	for {
		j := strings.Index(lower[i:], fromLower)
		if j < 0 {
			out.WriteString(text[i:])
			break
		}
		j += i
		out.WriteString(text[i:j])
		out.WriteString(matchCase(text[j:j+len(from)], to))
		changed = true
		i = j + len(from)
	}
	return out.String(), changed
}

// removeSubstringFold deletes every case-insensitive occurrence of phrase.
func removeSubstringFold(text, phrase string) string {
	out, _ := replaceFold(text, phrase, "")
	return out
}

// containsFold reports whether substr occurs in s, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// matchCase capitalizes repl's first letter when the original text it
// replaces started with an upper-case letter.
func matchCase(original, repl string) string {
	if original == "" || repl == "" {
		return repl
	}
	first := []rune(original)[0]
	if !unicode.IsUpper(first) {
		return repl
	}
	rs := []rune(repl)
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

// collapseSpaces trims and squeezes runs of whitespace to single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// trimWordPunct strips leading and trailing non-word runes, used when
// testing a whitespace-separated word against the filler set.
func trimWordPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

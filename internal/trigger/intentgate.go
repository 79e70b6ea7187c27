package trigger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/relayline/frontdesk/internal/config"
)

// Gate evaluates the input against the configured intent patterns
// (service-down, emergency) and decides which trigger cards are penalised or
// disqualified as a result. Read-only after construction; safe for
// concurrent use.
type Gate struct {
	patterns []gatePattern
	disq     []string
	penalty  int
}

// gatePattern pairs a compiled intent regex with its metadata.
type gatePattern struct {
	name      string
	re        *regexp.Regexp
	emergency bool
}

// GateResult is the outcome of evaluating one input.
type GateResult struct {
	// Flagged is true when any intent pattern matched.
	Flagged bool `json:"flagged"`

	// Emergency is true when an emergency-grade pattern matched;
	// disqualified cards are removed from the pool instead of penalised.
	Emergency bool `json:"emergency"`

	// Matched lists the names of the patterns that fired.
	Matched []string `json:"matched,omitempty"`
}

// NewGate compiles the configured intent patterns. Patterns are compiled
// case-insensitively; a malformed pattern fails construction.
func NewGate(cfg config.IntentGateConfig) (*Gate, error) {
	g := &Gate{
		disq:    cfg.DisqualifiedCategories,
		penalty: cfg.Penalty,
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("trigger: intent pattern %q: %w", p.Name, err)
		}
		g.patterns = append(g.patterns, gatePattern{name: p.Name, re: re, emergency: p.Emergency})
	}
	return g, nil
}

// Evaluate tests text against every intent pattern.
func (g *Gate) Evaluate(text string) GateResult {
	var res GateResult
	for _, p := range g.patterns {
		if !p.re.MatchString(text) {
			continue
		}
		res.Flagged = true
		res.Matched = append(res.Matched, p.name)
		if p.emergency {
			res.Emergency = true
		}
	}
	return res
}

// Penalty returns the effective-priority penalty applied to disqualified
// cards in non-emergency mode.
func (g *Gate) Penalty() int { return g.penalty }

// Disqualifies reports whether card belongs to a disqualified category. The
// match is tested against the card's category, id, and label.
func (g *Gate) Disqualifies(card *config.TriggerCard) bool {
	for _, cat := range g.disq {
		if cat == "" {
			continue
		}
		c := strings.ToLower(cat)
		if strings.ToLower(card.Category) == c ||
			strings.Contains(strings.ToLower(card.ID), c) ||
			strings.Contains(strings.ToLower(card.Label), c) {
			return true
		}
	}
	return false
}

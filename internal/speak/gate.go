// Package speak enforces spoken-text provenance. Nothing reaches the
// caller unless it is mapped to a UI config path or registered as a
// validated dynamic source this turn; unmapped text degrades through the
// emergency fallback down to the bare acknowledgment word.
package speak

import (
	"strings"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
)

// Provenance reasons recorded on speak-provenance events.
const (
	ReasonPrimary   = "primary-path"
	ReasonFallback  = "fallback-path"
	ReasonDynamic   = "dynamic-source"
	ReasonEmergency = "emergency-substituted"
	ReasonAckWord   = "ack-word-last-resort"
)

// Candidate is a proposed spoken string with its claimed origin.
type Candidate struct {
	Text     string
	AudioURL string

	// SourcePath is the claimed UI config path ("fallback.emergencyLine").
	SourcePath string

	// FallbackPath is tried when SourcePath does not resolve.
	FallbackPath string

	// SourceID claims a dynamic source registered this turn (validated
	// LLM output, variable-substituted answers).
	SourceID string
}

// Resolved is what actually gets spoken.
type Resolved struct {
	Text     string `json:"text"`
	AudioURL string `json:"audio_url,omitempty"`

	SourceID   string `json:"source_id"`
	ConfigPath string `json:"config_path,omitempty"`
	Reason     string `json:"reason"`

	// FromUIConfig is false only for registered dynamic sources.
	FromUIConfig bool `json:"is_from_ui_config"`
}

// Gate resolves candidates for one turn. Not safe for concurrent use;
// each turn builds its own.
type Gate struct {
	index   config.PathIndex
	ackWord string
	bus     *event.Bus

	// dynamic maps a source ID to the exact text registered for it.
	dynamic map[string]string

	// derived maps a UI path to a transformed rendition of its payload
	// (variable substitution, name personalisation).
	derived map[string]string
}

// NewGate builds the per-turn gate over the company's path index.
func NewGate(cfg *config.CompanyConfig, bus *event.Bus) *Gate {
	return &Gate{
		index:   config.BuildPathIndex(cfg),
		ackWord: cfg.Behavior.AckWord,
		bus:     bus,
		dynamic: make(map[string]string),
		derived: make(map[string]string),
	}
}

// Register allowlists validated dynamic text under a source ID.
func (g *Gate) Register(sourceID, text string) {
	g.dynamic[sourceID] = text
}

// RegisterDerived allowlists a transformed rendition of a UI path's
// payload, such as an answer after trigger-variable substitution.
func (g *Gate) RegisterDerived(path, text string) {
	g.derived[path] = text
}

// Speak resolves a candidate. Resolution order: claimed primary path,
// candidate fallback path, registered dynamic source, emergency fallback,
// acknowledgment word. A provenance event is emitted for every
// resolution; an unmapped candidate additionally emits a blocked event,
// CRITICAL when even the emergency line is unmapped.
func (g *Gate) Speak(c Candidate) Resolved {
	if r, ok := g.resolve(c); ok {
		g.emitProvenance(r)
		return r
	}

	g.bus.EmitSeverity(event.SpokenTextUnmapped, event.SeverityWarn, map[string]any{
		"claimed_path":   c.SourcePath,
		"claimed_source": c.SourceID,
		"text_preview":   preview(c.Text),
	})

	if p, ok := g.index[config.PathEmergencyLine]; ok && !p.Empty() {
		r := Resolved{
			Text:         p.Text,
			AudioURL:     p.AudioURL,
			SourceID:     config.PathEmergencyLine,
			ConfigPath:   config.PathEmergencyLine,
			Reason:       ReasonEmergency,
			FromUIConfig: true,
		}
		g.emitProvenance(r)
		return r
	}

	g.bus.EmitSeverity(event.SpokenTextUnmapped, event.SeverityCritical, map[string]any{
		"claimed_path": c.SourcePath,
		"detail":       "emergency line unmapped, speaking ack word",
	})
	r := Resolved{
		Text:         g.ackWord,
		SourceID:     config.PathAckWord,
		ConfigPath:   config.PathAckWord,
		Reason:       ReasonAckWord,
		FromUIConfig: true,
	}
	g.emitProvenance(r)
	return r
}

// resolve tries the primary path, the fallback path, and the dynamic
// registry in that order.
func (g *Gate) resolve(c Candidate) (Resolved, bool) {
	if r, ok := g.resolvePath(c, c.SourcePath, ReasonPrimary); ok {
		return r, true
	}
	if r, ok := g.resolvePath(c, c.FallbackPath, ReasonFallback); ok {
		return r, true
	}
	if c.SourceID != "" {
		if text, ok := g.dynamic[c.SourceID]; ok && text == c.Text {
			return Resolved{
				Text:     c.Text,
				AudioURL: c.AudioURL,
				SourceID: c.SourceID,
				Reason:   ReasonDynamic,
			}, true
		}
	}
	return Resolved{}, false
}

// resolvePath accepts a candidate against one UI path: the payload
// itself, an empty candidate text (payload speaks), or a registered
// derived rendition.
func (g *Gate) resolvePath(c Candidate, path, reason string) (Resolved, bool) {
	if path == "" {
		return Resolved{}, false
	}
	p, ok := g.index[path]
	if !ok || p.Empty() {
		return Resolved{}, false
	}

	text := c.Text
	switch {
	case text == "":
		text = p.Text
	case text == p.Text:
	case g.derived[path] == text:
	default:
		return Resolved{}, false
	}

	audio := c.AudioURL
	if audio == "" {
		audio = p.AudioURL
	}
	return Resolved{
		Text:         text,
		AudioURL:     audio,
		SourceID:     path,
		ConfigPath:   path,
		Reason:       reason,
		FromUIConfig: true,
	}, true
}

func (g *Gate) emitProvenance(r Resolved) {
	g.bus.Emit(event.SpeakProvenance, map[string]any{
		"source_id":         r.SourceID,
		"config_path":       r.ConfigPath,
		"tab":               tab(r.ConfigPath),
		"text_preview":      preview(r.Text),
		"audio_url":         r.AudioURL,
		"reason":            r.Reason,
		"is_from_ui_config": r.FromUIConfig,
	})
}

// tab is the UI tab owning a config path, its first dotted segment.
func tab(path string) string {
	if i := strings.IndexByte(path, '.'); i > 0 {
		return path[:i]
	}
	return path
}

// preview truncates text for event payloads.
func preview(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}

package assist

import (
	"strings"

	"github.com/relayline/frontdesk/internal/config"
)

// Fallback prompts used when the config leaves a fragment empty. Kept
// deliberately terse; companies are expected to tune their own.
const (
	defaultGuidedSystem = "You are a phone receptionist for a local service business. " +
		"Respond with one short empathetic sentence followed by one short question."
	defaultGuidedFormat = "Two sentences maximum. Plain spoken English, no lists, no markup."
	defaultGuidedSafety = "Never quote prices, make guarantees, give legal advice, or " +
		"propose appointment times, dates, or scheduling."
	defaultAnswerSystem = "You are a phone receptionist for a local service business. " +
		"Answer the caller's question in at most two short sentences. Do not ask a " +
		"question back. Never quote prices, make guarantees, give legal advice, or " +
		"propose appointment times, dates, or scheduling."
)

// BuildPrompt assembles the mode-aware system and user prompts.
// capturedReason is the stored call-reason slot, empty when unknown.
func BuildPrompt(cfg config.AssistConfig, utterance, capturedReason string) (system, user string) {
	switch cfg.Mode {
	case config.AssistAnswerReturn:
		system = cfg.Prompts.AnswerSystem
		if system == "" {
			system = defaultAnswerSystem
		}
	default:
		parts := []string{
			orDefault(cfg.Prompts.System, defaultGuidedSystem),
			orDefault(cfg.Prompts.Format, defaultGuidedFormat),
			orDefault(cfg.Prompts.Safety, defaultGuidedSafety),
		}
		system = strings.Join(parts, "\n\n")
	}

	var b strings.Builder
	b.WriteString("Caller said: ")
	b.WriteString(strings.TrimSpace(utterance))
	if capturedReason != "" {
		b.WriteString("\nKnown call reason: ")
		b.WriteString(capturedReason)
	}
	return system, b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

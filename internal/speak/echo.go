package speak

import (
	"strings"

	"github.com/relayline/frontdesk/internal/event"
)

// DefaultEchoWindow is the consecutive-word overlap at which a proposed
// response counts as echoing the caller.
const DefaultEchoWindow = 8

// EchoCheck inspects a proposed response for verbatim overlap with the
// caller input. Returns the first overlapping window and whether the
// response must be blocked. Purely textual; UI-owned lines are exempted
// by the caller, not here.
func EchoCheck(callerInput, proposed string, window int) (overlap string, blocked bool) {
	if window <= 0 {
		window = DefaultEchoWindow
	}
	words := strings.Fields(strings.ToLower(callerInput))
	if len(words) < window {
		return "", false
	}
	lowerProposed := strings.ToLower(proposed)
	for i := 0; i+window <= len(words); i++ {
		span := strings.Join(words[i:i+window], " ")
		if strings.Contains(lowerProposed, span) {
			return span, true
		}
	}
	return "", false
}

// GuardEcho applies EchoCheck and emits an echo-blocked event when the
// response parrots the caller. Returns true when blocked; the caller
// substitutes the emergency fallback.
func GuardEcho(bus *event.Bus, callerInput, proposed string, window int) bool {
	overlap, blocked := EchoCheck(callerInput, proposed, window)
	if !blocked {
		return false
	}
	bus.EmitSeverity(event.EchoBlocked, event.SeverityWarn, map[string]any{
		"overlap":       overlap,
		"text_preview":  preview(proposed),
		"window_tokens": window,
	})
	return true
}

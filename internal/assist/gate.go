// Package assist implements the bounded LLM assist path: decision gate,
// complexity scoring, mode-aware prompting, output validation with the
// built-in booking-language ban, and the guided-mode handoff override.
//
// The model never speaks directly. Every output passes validation, and in
// guided mode the second sentence is always replaced by a UI-owned handoff
// question.
package assist

import (
	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/config"
)

// Stable blockedBy identifiers recorded on the llm-decision event.
const (
	BlockDisabled        = "disabled"
	BlockTriggerMatched  = "trigger-matched"
	BlockResponsePicked  = "response-selected"
	BlockBookingLane     = "booking-lane"
	BlockPendingQuestion = "pending-question"
	BlockPendingClarify  = "pending-clarifier"
	BlockHandoffPending  = "handoff-pending"
	BlockCooldown        = "cooldown"
	BlockUsesExhausted   = "uses-exhausted"
	BlockTurnsExhausted  = "turns-exhausted"
	BlockNotComplex      = "not-complex"
	BlockCircuitOpen     = "circuit-open"
)

// GateInput is the turn context the decision gate inspects.
type GateInput struct {
	State callstate.State

	// TriggerMatched is true when a trigger card won this turn.
	TriggerMatched bool

	// ResponseSelected is true when an earlier pipeline stage already
	// chose the spoken response.
	ResponseSelected bool

	// ComplexityScore is the pre-computed score for this input.
	ComplexityScore float64

	// ComplexKeyword is true on an explicit complex-question keyword hit.
	ComplexKeyword bool
}

// Decision is the gate outcome.
type Decision struct {
	Call bool              `json:"call"`
	Mode config.AssistMode `json:"mode"`

	// BlockedBy is set when Call is false.
	BlockedBy string `json:"blocked_by,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// Snapshot of the budget counters at decision time.
	UsesThisCall      int `json:"uses_this_call"`
	CooldownRemaining int `json:"cooldown_remaining"`
	LLMTurnsThisCall  int `json:"llm_turns_this_call"`
}

// Evaluate runs the decision gate. The assist path is taken only when
// every structural condition passes and the input is complex enough to
// warrant a model call.
func Evaluate(cfg config.AssistConfig, in GateInput) Decision {
	d := Decision{
		Mode:              cfg.Mode,
		UsesThisCall:      in.State.Assist.UsesThisCall,
		CooldownRemaining: in.State.Assist.CooldownRemaining,
		LLMTurnsThisCall:  in.State.LLMTurnsThisCall,
	}

	block := func(by, reason string) Decision {
		d.BlockedBy = by
		d.Reason = reason
		return d
	}

	if !cfg.Enabled {
		return block(BlockDisabled, "assist disabled for company")
	}
	if in.TriggerMatched {
		return block(BlockTriggerMatched, "trigger card already answered this turn")
	}
	if in.ResponseSelected {
		return block(BlockResponsePicked, "earlier stage selected a response")
	}
	if in.State.Lane == callstate.LaneBooking || in.State.BookingModeLocked {
		return block(BlockBookingLane, "call is in the booking lane")
	}
	if in.State.PendingQuestion != "" || in.State.PendingFollowUpQuestion != "" {
		return block(BlockPendingQuestion, "a pending question owns the next turn")
	}
	if in.State.PendingClarifier != nil {
		return block(BlockPendingClarify, "a clarifier is pending")
	}
	if in.State.HandoffPending != nil {
		return block(BlockHandoffPending, "a handoff answer is pending")
	}

	switch cfg.Mode {
	case config.AssistAnswerReturn:
		if in.State.Assist.CooldownRemaining > 0 {
			return block(BlockCooldown, "answer-return cooldown active")
		}
		if in.State.Assist.UsesThisCall >= cfg.MaxUsesPerCall {
			return block(BlockUsesExhausted, "answer-return uses exhausted")
		}
	default: // guided
		if in.State.LLMTurnsThisCall >= cfg.MaxLLMFallbackTurnsPerCall {
			return block(BlockTurnsExhausted, "guided LLM turn budget exhausted")
		}
	}

	if in.ComplexityScore < cfg.ComplexityThreshold &&
		in.State.NoMatchCount < 2 && !in.ComplexKeyword {
		return block(BlockNotComplex, "input below complexity threshold")
	}

	d.Call = true
	return d
}

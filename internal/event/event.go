// Package event defines the typed audit events emitted during a turn and the
// in-memory per-turn bus that collects them.
//
// Events are append-only within a turn, ordered as produced, and flushed to
// the external sink once at turn end. Every event carries the turn's config
// hash and turn index.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an audit event. The identifiers are stable and consumed by
// external log pipelines; do not rename.
type Type string

const (
	TurnGate               Type = "turn-gate"
	GreetingEvaluated      Type = "greeting-evaluated"
	TextProcessed          Type = "scrab-processed"
	TriggerCardsEvaluated  Type = "trigger-cards-evaluated"
	IntentGateEvaluated    Type = "intent-gate-evaluated"
	PendingResolved        Type = "pending-question-resolved"
	ClarifierAsked         Type = "clarifier-asked"
	ClarifierResolved      Type = "clarifier-resolved"
	LLMDecision            Type = "llm-decision"
	LLMOutputValidation    Type = "llm-output-validation"
	LLMConstraintViolation Type = "llm-constraint-violation"
	LLMHandoffOverride     Type = "llm-handoff-override"
	SpeakProvenance        Type = "speak-provenance"
	SpokenTextUnmapped     Type = "spoken-text-unmapped-blocked"
	EchoBlocked            Type = "echo-blocked"
	PathSelected           Type = "path-selected"
	ResponseReady          Type = "response-ready"
	Disabled               Type = "disabled"
	TurnTimeout            Type = "turn-timeout"
	TurnError              Type = "turn-error"
)

// Severity grades an event for downstream alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Event is a single audit record produced during a turn.
type Event struct {
	// ID is a unique identifier assigned at emit time.
	ID string `json:"id"`

	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`

	// Payload carries event-specific fields. Values must be
	// JSON-serialisable.
	Payload map[string]any `json:"payload,omitempty"`

	// ConfigHash is the stable hash of the config bundle active for the
	// turn that produced this event.
	ConfigHash string `json:"config_hash"`

	// TurnIndex is the zero-based index of the turn within the call.
	TurnIndex int `json:"turn_index"`

	// CallID identifies the call.
	CallID string `json:"call_id"`

	TimestampMillis int64 `json:"timestamp_millis"`
}

// Bus collects events for a single turn. It is not safe for concurrent use;
// a turn is strictly serialized, so the bus never needs to be.
type Bus struct {
	events     []Event
	configHash string
	turnIndex  int
	callID     string
	now        func() time.Time
}

// NewBus creates a Bus that stamps every emitted event with the given
// config hash, turn index, and call ID.
func NewBus(configHash string, turnIndex int, callID string) *Bus {
	return &Bus{
		configHash: configHash,
		turnIndex:  turnIndex,
		callID:     callID,
		now:        time.Now,
	}
}

// Emit appends an info-severity event of the given type.
func (b *Bus) Emit(t Type, payload map[string]any) {
	b.EmitSeverity(t, SeverityInfo, payload)
}

// EmitSeverity appends an event with an explicit severity.
func (b *Bus) EmitSeverity(t Type, sev Severity, payload map[string]any) {
	b.events = append(b.events, Event{
		ID:              uuid.NewString(),
		Type:            t,
		Severity:        sev,
		Payload:         payload,
		ConfigHash:      b.configHash,
		TurnIndex:       b.turnIndex,
		CallID:          b.callID,
		TimestampMillis: b.now().UnixMilli(),
	})
}

// Events returns the events emitted so far, in emission order. The returned
// slice is the bus's backing store; callers must not mutate it after the
// turn ends.
func (b *Bus) Events() []Event { return b.events }

// Has reports whether at least one event of type t was emitted.
func (b *Bus) Has(t Type) bool {
	for _, e := range b.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

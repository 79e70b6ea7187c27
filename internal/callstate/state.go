// Package callstate holds the mutable per-call state carried across turns
// and the in-process store that serializes turn processing per call.
package callstate

// Lane is the coarse conversation phase of a call.
type Lane string

const (
	LaneDiscovery Lane = "discovery"
	LaneBooking   Lane = "booking"
	LaneEscalate  Lane = "escalate"
)

// PendingSource records which subsystem asked a pending question.
type PendingSource string

const (
	SourceFallback  PendingSource = "fallback"
	SourceAssist    PendingSource = "assist"
	SourceTrigger   PendingSource = "trigger"
	SourceClarifier PendingSource = "clarifier"
)

// Slot is an extracted fact with a confidence score.
type Slot struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// PendingClarifier records an asked-but-unresolved clarifier question.
type PendingClarifier struct {
	ID          string `json:"id"`
	HintTrigger string `json:"hint_trigger"`
	LockKey     string `json:"lock_key"`
	LockValue   string `json:"lock_value"`
}

// HandoffPending records an awaited yes/no after an LLM-assist handoff
// question.
type HandoffPending struct {
	Question string `json:"question"`
}

// AssistUsage tracks per-call LLM assist consumption.
type AssistUsage struct {
	UsesThisCall      int    `json:"uses_this_call"`
	CooldownRemaining int    `json:"cooldown_remaining"`
	LastModeUsed      string `json:"last_mode_used"`
}

// State is the per-call conversation state. It has value semantics: a turn
// copies the state via [State.Clone], mutates the copy, and writes the final
// copy back through the store. Two turns for the same call never run
// concurrently (see [Store]), so no field needs its own locking.
type State struct {
	CallID    string `json:"call_id"`
	CompanyID string `json:"company_id"`

	Lane              Lane   `json:"lane"`
	SessionMode       string `json:"session_mode"`
	BookingModeLocked bool   `json:"booking_mode_locked"`

	// Generic pending question (fallback/assist owned).
	PendingQuestion       string        `json:"pending_question"`
	PendingQuestionTurn   int           `json:"pending_question_turn"`
	PendingQuestionSource PendingSource `json:"pending_question_source"`

	// Trigger-card follow-up question; disjoint namespace from the
	// generic pending question (I3).
	PendingFollowUpQuestion string `json:"pending_follow_up_question"`
	PendingFollowUpCardID   string `json:"pending_follow_up_card_id"`
	PendingFollowUpTurn     int    `json:"pending_follow_up_turn"`

	// One-turn sticky flag: a complex answer to a pending question
	// suppresses the generic re-ask in the fallback branch.
	PendingQuestionWasComplex bool `json:"pending_question_was_complex"`

	PendingClarifier     *PendingClarifier `json:"pending_clarifier"`
	PendingClarifierTurn int               `json:"pending_clarifier_turn"`
	ClarifierAsks        int               `json:"clarifier_asks"`

	// Hints is the ordered set of soft hints accumulated by vocabulary.
	Hints []string `json:"hints"`

	// Locks are caller-confirmed component anchors (component → "thermostat").
	Locks map[string]string `json:"locks"`

	// PlainSlots are extracted facts (name, call_reason_detail, ...).
	PlainSlots map[string]Slot `json:"plain_slots"`

	Assist           AssistUsage `json:"assist"`
	LLMTurnsThisCall int         `json:"llm_turns_this_call"`
	NoMatchCount     int         `json:"no_match_count"`

	// UsedNameThisTurn latches caller-name use to once per turn. Reset at
	// turn start.
	UsedNameThisTurn bool `json:"used_name_this_turn"`

	// Greeted is the one-shot greeting interceptor latch (I5).
	Greeted bool `json:"greeted"`

	// HandoffPending awaits the caller's yes/no after an assist handoff
	// question.
	HandoffPending *HandoffPending `json:"handoff_pending"`

	// BookingIntentConfirmed is set when the caller accepts a handoff.
	BookingIntentConfirmed bool `json:"booking_intent_confirmed"`

	TurnCount int `json:"turn_count"`
}

// New returns the initial state for a fresh call.
func New(callID, companyID string) State {
	return State{
		CallID:    callID,
		CompanyID: companyID,
		Lane:      LaneDiscovery,
	}
}

// Clone returns a deep copy of s. Maps and slices are copied so that the
// caller can mutate the clone without aliasing the stored state.
func (s State) Clone() State {
	out := s
	if s.Hints != nil {
		out.Hints = append([]string(nil), s.Hints...)
	}
	if s.Locks != nil {
		out.Locks = make(map[string]string, len(s.Locks))
		for k, v := range s.Locks {
			out.Locks[k] = v
		}
	}
	if s.PlainSlots != nil {
		out.PlainSlots = make(map[string]Slot, len(s.PlainSlots))
		for k, v := range s.PlainSlots {
			out.PlainSlots[k] = v
		}
	}
	if s.PendingClarifier != nil {
		pc := *s.PendingClarifier
		out.PendingClarifier = &pc
	}
	if s.HandoffPending != nil {
		hp := *s.HandoffPending
		out.HandoffPending = &hp
	}
	return out
}

// AddHint appends label to the hint set if not already present. Insertion
// order is preserved.
func (s *State) AddHint(label string) {
	for _, h := range s.Hints {
		if h == label {
			return
		}
	}
	s.Hints = append(s.Hints, label)
}

// RemoveHint deletes label from the hint set if present.
func (s *State) RemoveHint(label string) {
	for i, h := range s.Hints {
		if h == label {
			s.Hints = append(s.Hints[:i], s.Hints[i+1:]...)
			return
		}
	}
}

// HasHint reports whether label is in the hint set.
func (s *State) HasHint(label string) bool {
	for _, h := range s.Hints {
		if h == label {
			return true
		}
	}
	return false
}

// SetLock records a caller-confirmed lock.
func (s *State) SetLock(key, value string) {
	if s.Locks == nil {
		s.Locks = make(map[string]string, 1)
	}
	s.Locks[key] = value
}

// SetSlot records an extracted fact with its confidence.
func (s *State) SetSlot(name, value string, confidence float64) {
	if s.PlainSlots == nil {
		s.PlainSlots = make(map[string]Slot, 1)
	}
	s.PlainSlots[name] = Slot{Value: value, Confidence: confidence}
}

// Slot returns the named slot and whether it is set.
func (s *State) Slot(name string) (Slot, bool) {
	sl, ok := s.PlainSlots[name]
	return sl, ok
}

// CapturedReason returns the sanitised call reason, if captured.
func (s *State) CapturedReason() string {
	if sl, ok := s.PlainSlots[SlotCallReason]; ok {
		return sl.Value
	}
	return ""
}

// Well-known plain slot names.
const (
	SlotName       = "name"
	SlotCallReason = "call_reason_detail"
)

// ExpirePending clears pending questions older than one turn (I3) and the
// one-turn complex marker. Called at the start of every turn with the
// current turn index.
func (s *State) ExpirePending(turnIndex int) {
	if s.PendingQuestion != "" && turnIndex-s.PendingQuestionTurn > 1 {
		s.PendingQuestion = ""
		s.PendingQuestionSource = ""
	}
	if s.PendingFollowUpQuestion != "" && turnIndex-s.PendingFollowUpTurn > 1 {
		s.PendingFollowUpQuestion = ""
		s.PendingFollowUpCardID = ""
	}
	if s.PendingClarifier != nil && turnIndex-s.PendingClarifierTurn > 1 {
		s.PendingClarifier = nil
	}
}

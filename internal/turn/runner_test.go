package turn

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relayline/frontdesk/internal/assist"
	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
	"github.com/relayline/frontdesk/internal/scenario"
	"github.com/relayline/frontdesk/pkg/provider/llm/mock"
	"github.com/relayline/frontdesk/pkg/store"
	"github.com/relayline/frontdesk/pkg/store/memstore"
)

func testBundle() *config.CompanyConfig {
	return config.Resolve(nil, &config.CompanyConfig{
		CompanyID: "acme-plumbing",
		Version:   1,
		Enabled:   true,
		Behavior: config.BehaviorConfig{
			AckWord:            "Okay.",
			RobotChallengeLine: "I'm a virtual assistant, and I can get you to a real person anytime.",
		},
		Greetings: config.GreetingConfig{
			IntentKeywords: []string{"broken", "leak", "emergency"},
			Rules: []config.GreetingRule{{
				ID: "greeting-hello", Enabled: true, Priority: 10,
				Keywords: []string{"hello", "hi", "hey"},
				Response: config.Payload{Text: "Hi there! What can I help you with today?"},
			}},
		},
		Vocabulary: []config.VocabEntry{{
			ID: "vocab-hot-water", Enabled: true,
			Type: config.VocabSoftHint, MatchMode: config.MatchContains,
			From: "hot water", Hint: "water-heater",
		}},
		Triggers: []config.TriggerCard{
			{
				ID: "card-hours", Label: "business hours", Enabled: true, Priority: 10,
				Category: "faq",
				Match:    config.TriggerMatch{Keywords: []string{"hours"}},
				Answer:   config.TriggerAnswer{Text: "We are open 8 to 6, Monday through Saturday."},
			},
			{
				ID: "card-diagnostic-fee", Label: "diagnostic fee", Enabled: true, Priority: 20,
				Match:  config.TriggerMatch{Phrases: []string{"how much is the visit"}},
				Answer: config.TriggerAnswer{Text: "Our diagnostic visit is {diagnosticfee}."},
				FollowUp: &config.FollowUpConfig{
					Question: "Would you like to get a visit scheduled?",
					Yes:      config.FollowUpBucket{Direction: config.DirectionHandoffBooking, Response: "Great, let me get you over to scheduling."},
					No:       config.FollowUpBucket{Direction: config.DirectionContinue, Response: "No problem. What else can I help with?"},
					Hesitant: config.FollowUpBucket{Direction: config.DirectionContinue, Response: "Take your time. Should I pencil you in?"},
					Reprompt: config.FollowUpBucket{Direction: config.DirectionContinue, Response: "Sorry, was that a yes or a no?"},
				},
			},
		},
		Clarifiers: config.ClarifierConfig{
			Entries: []config.ClarifierEntry{{
				ID: "clarifier-water-heater", Priority: 10, HintTrigger: "water-heater",
				Question: "Is this about your water heater?",
				LockKey:  "component", LockValue: "water-heater",
			}},
		},
		Pending: config.PendingConfig{Responses: config.PendingResponses{
			Yes:      "Great, let's keep going.",
			No:       "Understood.",
			Reprompt: "Sorry, could you say that again?",
		}},
		Assist: config.AssistConfig{
			Enabled: true, Mode: config.AssistGuided, Model: "gpt-4o-mini",
			Handoff: config.HandoffConfig{
				Variant:        config.HandoffConfirmService,
				ConfirmService: "Would you like me to have a technician reach out?",
				YesResponse:    "Perfect, let me get that set up for you.",
				NoResponse:     "No problem at all.",
			},
		},
		Fallback: config.FallbackConfig{
			EmergencyLine:   "Let me get someone on the line who can help with that.",
			NoMatchAnswer:   "I want to make sure I get this right. What can I help you with?",
			HumanTone:       "I'm sorry you're dealing with {reason}.",
			HandoffQuestion: "Want me to have someone call you back?",
		},
		Variables: map[string]string{"diagnosticfee": "89 dollars"},
	})
}

func newTestRunner(t *testing.T, cfg *config.CompanyConfig, opts ...Option) (*Runner, *memstore.EventSink, *callstate.Store) {
	t.Helper()
	configs := memstore.NewConfigStore()
	configs.Put(cfg.CompanyID, cfg)
	sink := &memstore.EventSink{}
	states := callstate.NewStore()
	return NewRunner(configs, states, sink, opts...), sink, states
}

func processTurn(t *testing.T, r *Runner, callID string, turnIndex int, raw string) Outcome {
	t.Helper()
	out, err := r.ProcessTurn(context.Background(), Input{
		CallID:    callID,
		CompanyID: "acme-plumbing",
		TurnIndex: turnIndex,
		RawText:   raw,
	})
	if err != nil {
		t.Fatalf("ProcessTurn(%q): %v", raw, err)
	}
	return out
}

func hasEvent(events []event.Event, typ event.Type) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestProcessTurn_GreetingInterceptsOnce(t *testing.T) {
	r, _, states := newTestRunner(t, testBundle())

	out := processTurn(t, r, "call-1", 1, "hi there")
	if out.MatchSource != SourceGreeting {
		t.Fatalf("MatchSource = %q, want greeting", out.MatchSource)
	}
	if !strings.HasPrefix(out.ResponseText, "Hi there!") {
		t.Errorf("ResponseText = %q", out.ResponseText)
	}

	st, _ := states.Peek("call-1")
	if !st.Greeted {
		t.Error("Greeted latch not set")
	}

	// A second greeting in the same call falls through to the pipeline.
	out = processTurn(t, r, "call-1", 2, "hi")
	if out.MatchSource == SourceGreeting {
		t.Error("greeting intercepted twice")
	}
	if out.ResponseText != "I want to make sure I get this right. What can I help you with?" {
		t.Errorf("ResponseText = %q, want no-match fallback", out.ResponseText)
	}
}

func TestProcessTurn_TriggerWin(t *testing.T) {
	r, _, states := newTestRunner(t, testBundle())

	out := processTurn(t, r, "call-1", 1, "what are your hours today")
	want := "Okay. We are open 8 to 6, Monday through Saturday."
	if out.ResponseText != want {
		t.Errorf("ResponseText = %q, want %q", out.ResponseText, want)
	}
	if out.MatchSource != SourceDiscovery {
		t.Errorf("MatchSource = %q, want discovery", out.MatchSource)
	}
	if !hasEvent(out.Events, event.SpeakProvenance) {
		t.Error("no speak-provenance event")
	}

	st, _ := states.Peek("call-1")
	if st.CapturedReason() != "business hours" {
		t.Errorf("CapturedReason = %q, want card label", st.CapturedReason())
	}
	if st.NoMatchCount != 0 {
		t.Errorf("NoMatchCount = %d, want 0 after a win", st.NoMatchCount)
	}
}

func TestProcessTurn_VariableSubstitution(t *testing.T) {
	r, _, _ := newTestRunner(t, testBundle())

	out := processTurn(t, r, "call-1", 1, "how much is the visit")
	if !strings.Contains(out.ResponseText, "89 dollars") {
		t.Errorf("ResponseText = %q, want substituted fee", out.ResponseText)
	}
	if strings.Contains(out.ResponseText, "{diagnosticfee}") {
		t.Errorf("ResponseText = %q, placeholder leaked", out.ResponseText)
	}
}

func TestProcessTurn_FollowUpYesHandsOffToBooking(t *testing.T) {
	r, _, states := newTestRunner(t, testBundle())

	out := processTurn(t, r, "call-1", 1, "how much is the visit")
	if !strings.HasSuffix(out.ResponseText, "Would you like to get a visit scheduled?") {
		t.Fatalf("ResponseText = %q, want follow-up question appended", out.ResponseText)
	}
	st, _ := states.Peek("call-1")
	if st.PendingFollowUpCardID != "card-diagnostic-fee" {
		t.Fatalf("PendingFollowUpCardID = %q", st.PendingFollowUpCardID)
	}

	out = processTurn(t, r, "call-1", 2, "yes")
	if out.MatchSource != SourceBookingHandoff {
		t.Errorf("MatchSource = %q, want booking-handoff", out.MatchSource)
	}
	if out.ResponseText != "Okay. Great, let me get you over to scheduling." {
		t.Errorf("ResponseText = %q", out.ResponseText)
	}

	st, _ = states.Peek("call-1")
	if st.Lane != callstate.LaneBooking || !st.BookingIntentConfirmed {
		t.Errorf("state = lane %q confirmed %v, want booking lane", st.Lane, st.BookingIntentConfirmed)
	}
}

func TestProcessTurn_FollowUpNoStaysInDiscovery(t *testing.T) {
	r, _, states := newTestRunner(t, testBundle())

	processTurn(t, r, "call-1", 1, "how much is the visit")
	out := processTurn(t, r, "call-1", 2, "no thanks")

	if out.MatchSource != SourceDiscovery {
		t.Errorf("MatchSource = %q, want discovery", out.MatchSource)
	}
	if out.ResponseText != "Okay. No problem. What else can I help with?" {
		t.Errorf("ResponseText = %q", out.ResponseText)
	}
	st, _ := states.Peek("call-1")
	if st.Lane != callstate.LaneDiscovery || st.PendingFollowUpQuestion != "" {
		t.Errorf("state = %+v, want cleared follow-up in discovery", st)
	}
}

func TestProcessTurn_ClarifierAskAndResolve(t *testing.T) {
	r, _, states := newTestRunner(t, testBundle())

	out := processTurn(t, r, "call-1", 1, "my hot water is acting strange")
	if out.ResponseText != "Is this about your water heater?" {
		t.Fatalf("ResponseText = %q, want clarifier question", out.ResponseText)
	}
	st, _ := states.Peek("call-1")
	if st.PendingClarifier == nil || st.ClarifierAsks != 1 {
		t.Fatalf("state = %+v, want pending clarifier", st)
	}

	out = processTurn(t, r, "call-1", 2, "yes exactly")
	if !hasEvent(out.Events, event.ClarifierResolved) {
		t.Error("no clarifier-resolved event")
	}
	st, _ = states.Peek("call-1")
	if st.Locks["component"] != "water-heater" {
		t.Errorf("lock = %q, want water-heater", st.Locks["component"])
	}
	if st.PendingClarifier != nil {
		t.Error("clarifier still pending after resolution")
	}
	if st.HasHint("water-heater") {
		t.Error("hint survived a confirmed lock")
	}
}

func TestProcessTurn_RobotChallenge(t *testing.T) {
	r, _, _ := newTestRunner(t, testBundle())

	out := processTurn(t, r, "call-1", 1, "wait am i talking to a robot")
	if !strings.HasPrefix(out.ResponseText, "I'm a virtual assistant") {
		t.Errorf("ResponseText = %q, want robot challenge line", out.ResponseText)
	}
}

func TestProcessTurn_ReasonHandoffFallback(t *testing.T) {
	r, _, states := newTestRunner(t, testBundle())

	// A trigger win captures the call reason.
	processTurn(t, r, "call-1", 1, "what are your hours")

	out := processTurn(t, r, "call-1", 2, "hmm there was something else entirely different going on")
	if !strings.Contains(out.ResponseText, "business hours") {
		t.Errorf("ResponseText = %q, want {reason} substituted", out.ResponseText)
	}
	if !strings.HasSuffix(out.ResponseText, "Want me to have someone call you back?") {
		t.Errorf("ResponseText = %q, want handoff question", out.ResponseText)
	}

	st, _ := states.Peek("call-1")
	if st.PendingQuestion != "Want me to have someone call you back?" {
		t.Errorf("PendingQuestion = %q", st.PendingQuestion)
	}

	// The pending yes resolves next turn.
	out = processTurn(t, r, "call-1", 3, "yes")
	if out.ResponseText != "Great, let's keep going." {
		t.Errorf("ResponseText = %q, want pending yes response", out.ResponseText)
	}
}

func TestProcessTurn_EchoedAnswerBlocked(t *testing.T) {
	cfg := testBundle()
	cfg.Triggers = append(cfg.Triggers, config.TriggerCard{
		ID: "card-saturday", Enabled: true, Priority: 5,
		Match:  config.TriggerMatch{Keywords: []string{"saturday mornings"}},
		Answer: config.TriggerAnswer{Text: "If you are open on saturday mornings please come on by."},
	})
	r, _, _ := newTestRunner(t, cfg)

	out := processTurn(t, r, "call-1", 1, "i need to know if you are open on saturday mornings please")
	if out.ResponseText != cfg.Fallback.EmergencyLine {
		t.Errorf("ResponseText = %q, want emergency line after echo block", out.ResponseText)
	}
	if !hasEvent(out.Events, event.EchoBlocked) {
		t.Error("no echo-blocked event")
	}
}

func TestProcessTurn_AssistGuidedHandoff(t *testing.T) {
	client := &mock.Client{Responses: []string{
		"That banging is usually sediment in the tank.",
	}}
	r, _, states := newTestRunner(t, testBundle(), WithAssist(assist.NewEngine(client, nil)))

	out := processTurn(t, r, "call-1", 1,
		"why does my water heater keep banging and should i be worried")
	if !strings.HasSuffix(out.ResponseText, "Would you like me to have a technician reach out?") {
		t.Fatalf("ResponseText = %q, want handoff composite", out.ResponseText)
	}
	if !hasEvent(out.Events, event.LLMHandoffOverride) {
		t.Error("no llm-handoff-override event")
	}
	st, _ := states.Peek("call-1")
	if st.HandoffPending == nil {
		t.Fatal("HandoffPending not set")
	}

	out = processTurn(t, r, "call-1", 2, "yes please")
	if out.MatchSource != SourceBookingHandoff {
		t.Errorf("MatchSource = %q, want booking-handoff", out.MatchSource)
	}
	if out.ResponseText != "Perfect, let me get that set up for you." {
		t.Errorf("ResponseText = %q", out.ResponseText)
	}
	st, _ = states.Peek("call-1")
	if st.Lane != callstate.LaneBooking {
		t.Errorf("Lane = %q, want booking", st.Lane)
	}
}

func TestProcessTurn_FactPackAnswerSpeaks(t *testing.T) {
	cfg := testBundle()
	cfg.Triggers = append(cfg.Triggers, config.TriggerCard{
		ID: "card-warranty", Label: "warranty", Enabled: true, Priority: 30,
		Match: config.TriggerMatch{Keywords: []string{"warranty"}},
		Answer: config.TriggerAnswer{
			Mode:     config.ResponseLLM,
			FactPack: "Parts warranty: 1 year. Labor warranty: 30 days.",
		},
	})
	client := &mock.Client{Responses: []string{
		"Parts are covered for one year and labor for thirty days.",
	}}
	r, _, _ := newTestRunner(t, cfg, WithAssist(assist.NewEngine(client, nil)))

	out := processTurn(t, r, "call-1", 1, "is your work under warranty")
	want := "Okay. Parts are covered for one year and labor for thirty days."
	if out.ResponseText != want {
		t.Errorf("ResponseText = %q, want %q", out.ResponseText, want)
	}
	if hasEvent(out.Events, event.SpokenTextUnmapped) {
		t.Error("validated fact answer blocked at the speak gate")
	}
	if client.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", client.CallCount())
	}
}

func TestProcessTurn_HardNormalizeFeedsTrigger(t *testing.T) {
	cfg := testBundle()
	cfg.Vocabulary = append(cfg.Vocabulary, config.VocabEntry{
		ID: "vocab-furnus", Enabled: true,
		Type: config.VocabHardNormalize, MatchMode: config.MatchExact,
		From: "furnus", To: "furnace",
	})
	cfg.Triggers = append(cfg.Triggers, config.TriggerCard{
		ID: "card-furnace", Label: "furnace service", Enabled: true, Priority: 30,
		Match:  config.TriggerMatch{Keywords: []string{"furnace"}},
		Answer: config.TriggerAnswer{Text: "We service furnaces year round."},
	})
	r, _, _ := newTestRunner(t, cfg)

	out := processTurn(t, r, "call-1", 1, "my furnus is making a weird noise")
	if out.ResponseText != "Okay. We service furnaces year round." {
		t.Errorf("ResponseText = %q, want normalized token to win the card", out.ResponseText)
	}
	if out.MatchSource != SourceDiscovery {
		t.Errorf("MatchSource = %q, want discovery", out.MatchSource)
	}
}

func TestProcessTurn_DeadlineDegradesToEmergencyLine(t *testing.T) {
	cfg := testBundle()
	r, _, _ := newTestRunner(t, cfg, WithTurnTimeout(-time.Second))

	out := processTurn(t, r, "call-1", 1, "what are your hours")
	if out.ResponseText != cfg.Fallback.EmergencyLine {
		t.Errorf("ResponseText = %q, want emergency line", out.ResponseText)
	}
	if !hasEvent(out.Events, event.TurnTimeout) {
		t.Error("no turn-timeout event")
	}
}

func TestProcessTurn_DisabledCompany(t *testing.T) {
	cfg := config.Resolve(nil, &config.CompanyConfig{CompanyID: "acme-plumbing"})
	r, _, _ := newTestRunner(t, cfg)

	out := processTurn(t, r, "call-1", 1, "hello")
	if out.ResponseText != "" {
		t.Errorf("ResponseText = %q, want empty", out.ResponseText)
	}
	if !hasEvent(out.Events, event.Disabled) {
		t.Error("no disabled event")
	}
}

func TestProcessTurn_UnknownCompany(t *testing.T) {
	r, _, _ := newTestRunner(t, testBundle())

	_, err := r.ProcessTurn(context.Background(), Input{
		CallID:    "call-1",
		CompanyID: "ghost",
		TurnIndex: 1,
		RawText:   "hello",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound", err)
	}
}

func TestProcessTurn_SinkFailureDoesNotFailTurn(t *testing.T) {
	r, sink, _ := newTestRunner(t, testBundle())
	sink.Err = errors.New("sink unavailable")

	out := processTurn(t, r, "call-1", 1, "what are your hours")
	if out.ResponseText == "" {
		t.Error("turn produced no response when the sink failed")
	}
}

func TestProcessTurn_EventsFlushedToSink(t *testing.T) {
	r, sink, _ := newTestRunner(t, testBundle())

	processTurn(t, r, "call-1", 1, "what are your hours")
	if len(sink.ByType(event.ResponseReady)) != 1 {
		t.Errorf("response-ready events in sink = %d, want 1", len(sink.ByType(event.ResponseReady)))
	}
	for _, e := range sink.Events() {
		if e.CallID != "call-1" || e.TurnIndex != 1 {
			t.Errorf("event stamp = %s/%d", e.CallID, e.TurnIndex)
		}
	}
}

// panickingSelector exercises the turn-level panic recovery.
type panickingSelector struct{}

func (panickingSelector) Select(context.Context, string, string, config.ScenarioConfig) (*scenario.Match, error) {
	panic("selector exploded")
}

func TestProcessTurn_PanicDegradesToEmergencyLine(t *testing.T) {
	cfg := testBundle()
	cfg.Scenario.Enabled = true
	r, _, _ := newTestRunner(t, cfg, WithScenarios(panickingSelector{}))

	out := processTurn(t, r, "call-1", 1, "something with no matching card at all")
	if out.ResponseText != cfg.Fallback.EmergencyLine {
		t.Errorf("ResponseText = %q, want emergency line", out.ResponseText)
	}

	var critical bool
	for _, e := range out.Events {
		if e.Type == event.TurnError && e.Severity == event.SeverityCritical {
			critical = true
		}
	}
	if !critical {
		t.Error("no critical turn-error event")
	}
}

func TestProcessTurn_ScenarioFallback(t *testing.T) {
	cfg := testBundle()
	cfg.Scenario.Enabled = true
	sel := &fixedSelector{match: &scenario.Match{
		ScenarioID: "scn-certified", Type: "faq",
		Response: "Every technician on our team is licensed and insured.", Confidence: 0.91,
	}}
	r, _, _ := newTestRunner(t, cfg, WithScenarios(sel))

	out := processTurn(t, r, "call-1", 1, "is everyone on staff actually certified")
	if out.ResponseText != "Every technician on our team is licensed and insured." {
		t.Errorf("ResponseText = %q, want scenario response", out.ResponseText)
	}
}

type fixedSelector struct {
	match *scenario.Match
}

func (s *fixedSelector) Select(context.Context, string, string, config.ScenarioConfig) (*scenario.Match, error) {
	return s.match, nil
}

func TestEndCall_DiscardsState(t *testing.T) {
	r, _, states := newTestRunner(t, testBundle())

	processTurn(t, r, "call-1", 1, "what are your hours")
	if states.Active() != 1 {
		t.Fatalf("Active = %d, want 1", states.Active())
	}
	r.EndCall("call-1")
	if states.Active() != 0 {
		t.Errorf("Active = %d, want 0 after EndCall", states.Active())
	}
}

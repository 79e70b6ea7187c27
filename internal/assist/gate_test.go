package assist

import (
	"testing"

	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/config"
)

func gateConfig() config.AssistConfig {
	return config.AssistConfig{
		Enabled:                    true,
		Mode:                       config.AssistGuided,
		ComplexityThreshold:        0.65,
		MaxLLMFallbackTurnsPerCall: 1,
		MaxUsesPerCall:             2,
		CooldownTurns:              3,
	}
}

func complexGateInput() GateInput {
	return GateInput{
		State:           callstate.New("call-1", "acme"),
		ComplexityScore: 0.80,
	}
}

func TestEvaluate_CallsOnComplexInput(t *testing.T) {
	d := Evaluate(gateConfig(), complexGateInput())
	if !d.Call {
		t.Fatalf("Call = false, blocked by %q (%s)", d.BlockedBy, d.Reason)
	}
	if d.Mode != config.AssistGuided {
		t.Errorf("Mode = %q, want guided", d.Mode)
	}
}

func TestEvaluate_BlockOrder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.AssistConfig, *GateInput)
		blocked string
	}{
		{
			"disabled",
			func(cfg *config.AssistConfig, _ *GateInput) { cfg.Enabled = false },
			BlockDisabled,
		},
		{
			"trigger matched",
			func(_ *config.AssistConfig, in *GateInput) { in.TriggerMatched = true },
			BlockTriggerMatched,
		},
		{
			"response selected",
			func(_ *config.AssistConfig, in *GateInput) { in.ResponseSelected = true },
			BlockResponsePicked,
		},
		{
			"booking lane",
			func(_ *config.AssistConfig, in *GateInput) { in.State.Lane = callstate.LaneBooking },
			BlockBookingLane,
		},
		{
			"booking locked",
			func(_ *config.AssistConfig, in *GateInput) { in.State.BookingModeLocked = true },
			BlockBookingLane,
		},
		{
			"pending question",
			func(_ *config.AssistConfig, in *GateInput) { in.State.PendingQuestion = "Could you tell me more?" },
			BlockPendingQuestion,
		},
		{
			"pending follow-up",
			func(_ *config.AssistConfig, in *GateInput) { in.State.PendingFollowUpQuestion = "Want that scheduled?" },
			BlockPendingQuestion,
		},
		{
			"pending clarifier",
			func(_ *config.AssistConfig, in *GateInput) {
				in.State.PendingClarifier = &callstate.PendingClarifier{ID: "clarifier-water-heater"}
			},
			BlockPendingClarify,
		},
		{
			"handoff pending",
			func(_ *config.AssistConfig, in *GateInput) {
				in.State.HandoffPending = &callstate.HandoffPending{Question: "Shall I connect you?"}
			},
			BlockHandoffPending,
		},
		{
			"guided turn budget",
			func(_ *config.AssistConfig, in *GateInput) { in.State.LLMTurnsThisCall = 1 },
			BlockTurnsExhausted,
		},
		{
			"below threshold",
			func(_ *config.AssistConfig, in *GateInput) { in.ComplexityScore = 0.10 },
			BlockNotComplex,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := gateConfig()
			in := complexGateInput()
			tc.mutate(&cfg, &in)

			d := Evaluate(cfg, in)
			if d.Call {
				t.Fatal("Call = true, want blocked")
			}
			if d.BlockedBy != tc.blocked {
				t.Errorf("BlockedBy = %q, want %q", d.BlockedBy, tc.blocked)
			}
		})
	}
}

func TestEvaluate_AnswerReturnBudgets(t *testing.T) {
	cfg := gateConfig()
	cfg.Mode = config.AssistAnswerReturn

	in := complexGateInput()
	in.State.Assist.CooldownRemaining = 2
	if d := Evaluate(cfg, in); d.BlockedBy != BlockCooldown {
		t.Errorf("BlockedBy = %q, want %q", d.BlockedBy, BlockCooldown)
	}

	in = complexGateInput()
	in.State.Assist.UsesThisCall = 2
	if d := Evaluate(cfg, in); d.BlockedBy != BlockUsesExhausted {
		t.Errorf("BlockedBy = %q, want %q", d.BlockedBy, BlockUsesExhausted)
	}

	// The guided turn counter does not bind in answer-return mode.
	in = complexGateInput()
	in.State.LLMTurnsThisCall = 5
	if d := Evaluate(cfg, in); !d.Call {
		t.Errorf("Call = false (blocked %q), want true", d.BlockedBy)
	}
}

func TestEvaluate_RepeatedNoMatchOverridesThreshold(t *testing.T) {
	in := complexGateInput()
	in.ComplexityScore = 0.10
	in.State.NoMatchCount = 2

	if d := Evaluate(gateConfig(), in); !d.Call {
		t.Errorf("Call = false (blocked %q), want call after two no-matches", d.BlockedBy)
	}
}

func TestEvaluate_ComplexKeywordOverridesThreshold(t *testing.T) {
	in := complexGateInput()
	in.ComplexityScore = 0.20
	in.ComplexKeyword = true

	if d := Evaluate(gateConfig(), in); !d.Call {
		t.Errorf("Call = false (blocked %q), want call on keyword hit", d.BlockedBy)
	}
}

func TestEvaluate_SnapshotsBudgetCounters(t *testing.T) {
	in := complexGateInput()
	in.State.Assist.UsesThisCall = 1
	in.State.Assist.CooldownRemaining = 2
	in.State.LLMTurnsThisCall = 1

	d := Evaluate(gateConfig(), in)
	if d.UsesThisCall != 1 || d.CooldownRemaining != 2 || d.LLMTurnsThisCall != 1 {
		t.Errorf("snapshot = %d/%d/%d, want 1/2/1",
			d.UsesThisCall, d.CooldownRemaining, d.LLMTurnsThisCall)
	}
}

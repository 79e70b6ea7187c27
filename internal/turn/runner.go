// Package turn executes one dialog turn as a linear pipeline: greeting
// interceptor, text preprocessing, pending-question resolution, trigger
// matching, clarifier, scenario fallback, LLM assist, and deterministic
// fallbacks. Every turn emits a gate event on entry and a response-ready
// (or disabled) event on exit, and every spoken string passes the speak
// gate and echo guard.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayline/frontdesk/internal/assist"
	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/clarifier"
	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
	"github.com/relayline/frontdesk/internal/greeting"
	"github.com/relayline/frontdesk/internal/observe"
	"github.com/relayline/frontdesk/internal/scenario"
	"github.com/relayline/frontdesk/internal/speak"
	"github.com/relayline/frontdesk/internal/textpipe"
	"github.com/relayline/frontdesk/internal/trigger"
	"github.com/relayline/frontdesk/pkg/store"
)

// Match sources reported on the outcome.
const (
	SourceDiscovery      = "discovery"
	SourceGreeting       = "greeting"
	SourceBookingHandoff = "booking-handoff"
)

// Path identifiers recorded on path-selected events.
const (
	PathGreeting              = "GREETING"
	PathFollowUpYesHandoff    = "FOLLOWUP_YES_HANDOFF_BOOKING"
	PathFollowUpYesContinue   = "FOLLOWUP_YES_CONTINUE"
	PathFollowUpNo            = "FOLLOWUP_NO"
	PathFollowUpHesitant      = "FOLLOWUP_HESITANT"
	PathFollowUpReprompt      = "FOLLOWUP_REPROMPT"
	PathPendingYes            = "PENDING_YES"
	PathPendingNo             = "PENDING_NO"
	PathPendingReprompt       = "PENDING_REPROMPT"
	PathRobotChallenge        = "ROBOT_CHALLENGE"
	PathHandoffYes            = "LLM_HANDOFF_YES"
	PathHandoffNo             = "LLM_HANDOFF_NO"
	PathTriggerMatch          = "TRIGGER_MATCH"
	PathClarifierAsk          = "CLARIFIER_ASK"
	PathScenarioFallback      = "SCENARIO_FALLBACK"
	PathLLMAssist             = "LLM_ASSIST"
	PathFallbackReasonHandoff = "FALLBACK_REASON_HANDOFF"
	PathFallbackNoMatch       = "FALLBACK_NO_MATCH"
)

// robotChallengePattern detects "am I talking to a robot" style inputs.
var robotChallengePattern = regexp.MustCompile(
	`(?i)\b(are\s+you|is\s+this|am\s+i\s+(talking|speaking)\s+to)\s+(a\s+|an\s+)?(robot|machine|recording|computer|real\s+person|human)\b`)

// Input is one turn's request.
type Input struct {
	CallID    string `json:"call_id"`
	CompanyID string `json:"company_id"`
	TurnIndex int    `json:"turn_index"`
	RawText   string `json:"raw_text"`
}

// Outcome is the spoken result of a turn plus its full audit trail.
type Outcome struct {
	ResponseText string        `json:"response_text,omitempty"`
	AudioURL     string        `json:"audio_url,omitempty"`
	MatchSource  string        `json:"match_source"`
	Events       []event.Event `json:"events"`
}

// Runner wires the pipeline's dependencies and processes turns. Safe for
// concurrent use; per-call serialization happens in the state store.
type Runner struct {
	configs store.ConfigStore
	states  *callstate.Store
	sink    store.EventSink

	assist    *assist.Engine
	scenarios scenario.Selector
	vars      *trigger.VarCache
	metrics   *observe.Metrics

	turnTimeout time.Duration
	echoWindow  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithAssist enables the LLM assist path.
func WithAssist(e *assist.Engine) Option {
	return func(r *Runner) { r.assist = e }
}

// WithScenarios enables the semantic scenario fallback.
func WithScenarios(s scenario.Selector) Option {
	return func(r *Runner) { r.scenarios = s }
}

// WithVariables sets the trigger-variable source.
func WithVariables(v store.VariableStore) Option {
	return func(r *Runner) { r.vars = trigger.NewVarCache(v) }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTurnTimeout sets the whole-turn deadline. Default 8s.
func WithTurnTimeout(d time.Duration) Option {
	return func(r *Runner) { r.turnTimeout = d }
}

// NewRunner builds a Runner. configs, states, and sink are required; the
// assist, scenario, and variable paths are optional.
func NewRunner(configs store.ConfigStore, states *callstate.Store, sink store.EventSink, opts ...Option) *Runner {
	r := &Runner{
		configs:     configs,
		states:      states,
		sink:        sink,
		vars:        trigger.NewVarCache(nil),
		turnTimeout: 8 * time.Second,
		echoWindow:  speak.DefaultEchoWindow,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// EndCall discards the call's state. Any in-flight turn finishes first.
func (r *Runner) EndCall(callID string) {
	r.states.End(callID)
	if r.metrics != nil {
		r.metrics.SetActiveCalls(int64(r.states.Active()))
	}
}

// ProcessTurn executes one turn under the call's serialization lock and
// persists the resulting state. It returns an error only when the
// company's configuration cannot be loaded; every runtime failure inside
// the turn degrades to the emergency fallback instead.
func (r *Runner) ProcessTurn(ctx context.Context, in Input) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "turn.process",
		trace.WithAttributes(
			attribute.String("company.id", in.CompanyID),
			attribute.Int("turn.index", in.TurnIndex),
		))
	defer span.End()

	cfg, err := r.configs.Load(ctx, in.CompanyID)
	if err != nil {
		return Outcome{}, fmt.Errorf("turn: load config for %q: %w", in.CompanyID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()

	start := time.Now()
	var out Outcome
	r.states.WithCall(in.CallID, in.CompanyID, func(st callstate.State) callstate.State {
		out = r.run(ctx, cfg, &st, in)
		return st
	})

	if err := r.sink.Write(context.WithoutCancel(ctx), out.Events); err != nil {
		slog.Error("event sink write failed", "call_id", in.CallID, "error", err)
	}
	if r.metrics != nil {
		r.metrics.ObserveTurn(ctx, out.MatchSource, time.Since(start))
		r.metrics.SetActiveCalls(int64(r.states.Active()))
	}
	return out, nil
}

// timedOut reports whether the turn deadline has expired. On expiry it
// emits a turn-timeout event and speaks the emergency line; the caller
// must end the turn.
func (r *Runner) timedOut(ctx context.Context, out *Outcome, gate *speak.Gate, bus *event.Bus, in Input) bool {
	if ctx.Err() == nil {
		return false
	}
	bus.EmitSeverity(event.TurnTimeout, event.SeverityWarn, map[string]any{
		"timeout": r.turnTimeout.String(),
		"error":   ctx.Err().Error(),
	})
	r.speakFinal(out, gate, bus, speak.Candidate{SourcePath: config.PathEmergencyLine}, in.RawText)
	return true
}

// run is the fixed pipeline. It mutates st in place and returns the
// outcome; the caller persists st.
func (r *Runner) run(ctx context.Context, cfg *config.CompanyConfig, st *callstate.State, in Input) (out Outcome) {
	bus := event.NewBus(cfg.Hash(), in.TurnIndex, in.CallID)
	gate := speak.NewGate(cfg, bus)
	out.MatchSource = SourceDiscovery

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("turn panicked", "call_id", in.CallID, "panic", rec)
			bus.EmitSeverity(event.TurnError, event.SeverityCritical, map[string]any{
				"panic": fmt.Sprint(rec),
			})
			r.speakFinal(&out, gate, bus, speak.Candidate{SourcePath: config.PathEmergencyLine}, in.RawText)
			out.MatchSource = SourceDiscovery
		}
		bus.Emit(event.ResponseReady, map[string]any{
			"match_source": out.MatchSource,
			"has_response": out.ResponseText != "" || out.AudioURL != "",
		})
		out.Events = bus.Events()
	}()

	if !cfg.Enabled {
		bus.Emit(event.Disabled, map[string]any{"company_id": in.CompanyID})
		out.Events = bus.Events()
		return out
	}

	// Turn-start bookkeeping.
	st.TurnCount = in.TurnIndex
	st.UsedNameThisTurn = false
	if st.Assist.CooldownRemaining > 0 {
		st.Assist.CooldownRemaining--
	}
	st.ExpirePending(in.TurnIndex)

	name, hasName := st.Slot(callstate.SlotName)
	bus.Emit(event.TurnGate, map[string]any{
		"lane":           string(st.Lane),
		"input_length":   len(in.RawText),
		"has_name":       hasName && name.Value != "",
		"has_reason":     st.CapturedReason() != "",
		"pending":        st.PendingQuestion != "",
		"follow_up":      st.PendingFollowUpQuestion != "",
		"clarifier":      st.PendingClarifier != nil,
		"handoff":        st.HandoffPending != nil,
		"assist_uses":    st.Assist.UsesThisCall,
		"llm_turns":      st.LLMTurnsThisCall,
		"no_match_count": st.NoMatchCount,
	})

	if r.timedOut(ctx, &out, gate, bus, in) {
		return out
	}

	rawTokens := textpipe.Tokenize(in.RawText)

	// Step 3: greeting interceptor, one shot per call.
	gd := greeting.Evaluate(cfg.Greetings, rawTokens, st.Greeted)
	bus.Emit(event.GreetingEvaluated, map[string]any{
		"intercepted":  gd.Intercepted,
		"rule_id":      gd.RuleID,
		"block_reason": gd.BlockReason,
	})
	if gd.Intercepted {
		st.Greeted = true
		out.MatchSource = SourceGreeting
		r.selectPath(bus, PathGreeting, map[string]any{"rule_id": gd.RuleID})
		r.speakFinal(&out, gate, bus, speak.Candidate{
			Text:       gd.Response.Text,
			AudioURL:   gd.Response.AudioURL,
			SourcePath: config.GreetingRulePath(gd.RuleID),
		}, in.RawText)
		return out
	}

	// Step 4: text pipeline.
	pipe := textpipe.New(cfg.Text, cfg.Vocabulary)
	pres := pipe.Run(in.RawText)
	for _, h := range pres.Hints {
		st.AddHint(h)
	}
	bus.Emit(event.TextProcessed, map[string]any{
		"normalized":      pres.NormalizedText,
		"hints":           pres.Hints,
		"transformations": len(pres.Transformations),
		"quality_passed":  pres.Quality.Passed,
		"should_reprompt": pres.Quality.ShouldReprompt,
	})

	// Step 5: clarifier resolution.
	if pc := st.PendingClarifier; pc != nil {
		res := clarifier.Classify(pres.OriginalTokens)
		switch res {
		case clarifier.ResolutionYes:
			st.SetLock(pc.LockKey, pc.LockValue)
			// The lock supersedes the hint; keeping it would re-ask the
			// same clarifier on the next no-match turn.
			st.RemoveHint(pc.HintTrigger)
		case clarifier.ResolutionNo:
			st.RemoveHint(pc.HintTrigger)
		}
		bus.Emit(event.ClarifierResolved, map[string]any{
			"clarifier_id": pc.ID,
			"resolution":   string(res),
			"lock_key":     pc.LockKey,
		})
		st.PendingClarifier = nil
	}

	// Step 6: trigger follow-up pending, five buckets.
	if st.PendingFollowUpQuestion != "" {
		if done := r.resolveFollowUp(&out, gate, bus, cfg, st, in, pres); done {
			return out
		}
	}

	// Step 7: generic pending question, four buckets.
	if st.PendingQuestion != "" {
		if done := r.resolvePending(&out, gate, bus, cfg, st, in, pres); done {
			return out
		}
	}

	// Step 8: robot challenge.
	if robotChallengePattern.MatchString(in.RawText) {
		r.selectPath(bus, PathRobotChallenge, nil)
		r.speakFinal(&out, gate, bus, speak.Candidate{
			Text:       cfg.Behavior.RobotChallengeLine,
			SourcePath: config.PathRobotChallenge,
		}, in.RawText)
		return out
	}

	// Step 9: LLM handoff confirmation.
	if st.HandoffPending != nil {
		if done := r.resolveHandoff(&out, gate, bus, cfg, st, pres, in.RawText); done {
			return out
		}
	}

	// Step 10: trigger matcher.
	igate, err := trigger.NewGate(cfg.IntentGate)
	if err != nil {
		// Validated at load time; a bad pattern here is a programmer error.
		bus.EmitSeverity(event.TurnError, event.SeverityCritical, map[string]any{"error": err.Error()})
		igate = nil
	}
	var gateRes trigger.GateResult
	if igate != nil {
		gateRes = igate.Evaluate(pres.NormalizedText)
		bus.Emit(event.IntentGateEvaluated, map[string]any{
			"flagged":   gateRes.Flagged,
			"emergency": gateRes.Emergency,
			"matched":   gateRes.Matched,
		})
	}

	mres := trigger.Match(trigger.Input{
		NormalizedText: pres.NormalizedText,
		Tokens:         pres.OriginalTokens,
		ExpandedTokens: pres.ExpandedTokens,
		Hints:          st.Hints,
		Locks:          st.Locks,
	}, cfg.Triggers, trigger.Options{
		GlobalNegatives: cfg.GlobalNegatives,
		Gate:            igate,
		GateResult:      gateRes,
	})
	bus.Emit(event.TriggerCardsEvaluated, map[string]any{
		"matched":       mres.Card != nil,
		"match_type":    string(mres.MatchType),
		"matched_on":    mres.MatchedOn,
		"via_expansion": mres.ViaExpansion,
		"evals":         mres.Evals,
	})

	if mres.Card != nil {
		r.answerTrigger(ctx, &out, gate, bus, cfg, st, in, mres)
		return out
	}
	st.NoMatchCount++

	// Step 11: clarifier ask.
	if entry := clarifier.Pick(cfg.Clarifiers, st.Hints, st.ClarifierAsks); entry != nil {
		st.PendingClarifier = &callstate.PendingClarifier{
			ID:          entry.ID,
			HintTrigger: entry.HintTrigger,
			LockKey:     entry.LockKey,
			LockValue:   entry.LockValue,
		}
		st.PendingClarifierTurn = in.TurnIndex
		st.ClarifierAsks++
		bus.Emit(event.ClarifierAsked, map[string]any{
			"clarifier_id": entry.ID,
			"hint_trigger": entry.HintTrigger,
			"asks_so_far":  st.ClarifierAsks,
		})
		r.selectPath(bus, PathClarifierAsk, map[string]any{"clarifier_id": entry.ID})
		r.speakFinal(&out, gate, bus, speak.Candidate{
			Text:       entry.Question,
			SourcePath: config.ClarifierQuestionPath(entry.ID),
		}, in.RawText)
		return out
	}

	if r.timedOut(ctx, &out, gate, bus, in) {
		return out
	}

	// Step 12: scenario fallback, explicitly enabled only.
	if m := scenario.Try(ctx, r.scenarios, in.CompanyID, pres.NormalizedText, cfg.Scenario); m != nil {
		sourceID := "scenario." + m.ScenarioID
		gate.Register(sourceID, m.Response)
		r.selectPath(bus, PathScenarioFallback, map[string]any{
			"scenario_id": m.ScenarioID,
			"type":        m.Type,
			"confidence":  m.Confidence,
		})
		r.speakFinal(&out, gate, bus, speak.Candidate{
			Text:     m.Response,
			SourceID: sourceID,
		}, in.RawText)
		return out
	}

	// Step 13: LLM assist.
	if r.assist != nil {
		if r.timedOut(ctx, &out, gate, bus, in) {
			return out
		}
		ares := r.assist.Run(ctx, assist.Input{
			Cfg:              cfg,
			State:            st,
			Bus:              bus,
			RawInput:         in.RawText,
			Tokens:           pres.OriginalTokens,
			TriggerMatched:   false,
			ResponseSelected: false,
		})
		if ares.Handled {
			if r.metrics != nil {
				r.metrics.CountAssist(ctx, string(cfg.Assist.Mode), ares.FallbackPath == "")
			}
			r.selectPath(bus, PathLLMAssist, map[string]any{"mode": string(cfg.Assist.Mode)})
			cand := speak.Candidate{Text: ares.Spoken}
			if ares.SourceID != "" {
				gate.Register(ares.SourceID, ares.Spoken)
				cand.SourceID = ares.SourceID
			} else {
				cand.SourcePath = ares.FallbackPath
			}
			r.speakFinal(&out, gate, bus, cand, in.RawText)
			return out
		}
	}

	// Step 14: deterministic fallback.
	r.fallback(&out, gate, bus, cfg, st, in)
	return out
}

package assist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
	"github.com/relayline/frontdesk/internal/observe"
	"github.com/relayline/frontdesk/internal/resilience"
	"github.com/relayline/frontdesk/pkg/provider/llm"
	"github.com/relayline/frontdesk/pkg/store"
)

// Source identifiers claimed by assist responses at the speak gate.
const (
	SourceValidated = "llm.validated"
	SourceHandoff   = "llm.handoff-composite"
)

// Engine runs the assist path for one turn: gate, prompt, call, validate,
// and (guided mode) handoff override. It never lets raw model output
// through.
type Engine struct {
	client  llm.Client
	usage   store.UsageLogger
	metrics *observe.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineMetrics records model call latency per model ID.
func WithEngineMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an Engine. usage may be nil; usage-log errors are
// swallowed either way.
func NewEngine(client llm.Client, usage store.UsageLogger, opts ...EngineOption) *Engine {
	e := &Engine{client: client, usage: usage}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is the turn context handed to the engine.
type Input struct {
	Cfg   *config.CompanyConfig
	State *callstate.State
	Bus   *event.Bus

	RawInput string
	Tokens   []string

	// TriggerMatched and ResponseSelected feed the decision gate.
	TriggerMatched   bool
	ResponseSelected bool
}

// Output is the assist outcome. When Handled is false the caller falls
// through to the deterministic fallback chain.
type Output struct {
	Handled bool

	// Spoken is the validated response text.
	Spoken string

	// SourceID is the provenance identifier for the speak gate. Empty
	// when the response is a UI fallback path instead.
	SourceID string

	// FallbackPath is set instead of SourceID when the engine degraded
	// to a UI-owned line (emergency fallback).
	FallbackPath string
}

// Run executes the assist path. State mutations (budgets, cooldown,
// handoff pending) are applied to in.State directly; the caller owns the
// write-back.
func (e *Engine) Run(ctx context.Context, in Input) Output {
	cfg := in.Cfg.Assist

	comp := ScoreComplexity(in.RawInput, in.Tokens)
	decision := Evaluate(cfg, GateInput{
		State:            *in.State,
		TriggerMatched:   in.TriggerMatched,
		ResponseSelected: in.ResponseSelected,
		ComplexityScore:  comp.Score,
		ComplexKeyword:   comp.KeywordHit,
	})

	in.Bus.Emit(event.LLMDecision, map[string]any{
		"call":               decision.Call,
		"mode":               string(decision.Mode),
		"blocked_by":         decision.BlockedBy,
		"reason":             decision.Reason,
		"complexity":         comp.Score,
		"complexity_factors": comp.Factors,
		"uses_this_call":     decision.UsesThisCall,
		"cooldown_remaining": decision.CooldownRemaining,
		"llm_turns":          decision.LLMTurnsThisCall,
	})
	if !decision.Call {
		return Output{}
	}

	system, user := BuildPrompt(cfg, in.RawInput, in.State.CapturedReason())

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.client.Complete(callCtx, llm.Request{
		Model:        cfg.Model,
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		blockedBy := "error"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			blockedBy = BlockCircuitOpen
		case errors.Is(err, llm.ErrDeadline):
			blockedBy = "timeout"
		}
		in.Bus.EmitSeverity(event.LLMDecision, event.SeverityWarn, map[string]any{
			"call":       false,
			"mode":       string(cfg.Mode),
			"blocked_by": blockedBy,
			"reason":     err.Error(),
		})
		e.consumeBudget(cfg, in.State)
		if cfg.UseEmergencyOnError {
			return Output{
				Handled:      true,
				Spoken:       in.Cfg.Fallback.EmergencyLine,
				FallbackPath: config.PathEmergencyLine,
			}
		}
		return Output{}
	}

	if e.metrics != nil {
		e.metrics.ObserveLLM(ctx, e.client.ModelID(), resp.Latency)
	}

	res := Validate(cfg, in.RawInput, resp.Text)
	e.logUsage(ctx, in, resp, res.Passed)
	in.Bus.Emit(event.LLMOutputValidation, map[string]any{
		"passed":     res.Passed,
		"truncated":  res.Truncated,
		"model":      e.client.ModelID(),
		"tokens_in":  resp.TokensIn,
		"tokens_out": resp.TokensOut,
		"latency_ms": resp.Latency.Milliseconds(),
	})
	if !res.Passed {
		for _, v := range res.Violations {
			in.Bus.EmitSeverity(event.LLMConstraintViolation, event.SeverityWarn, map[string]any{
				"rule":   v.Rule,
				"detail": v.Detail,
			})
		}
		e.consumeBudget(cfg, in.State)
		return Output{
			Handled:      true,
			Spoken:       in.Cfg.Fallback.EmergencyLine,
			FallbackPath: config.PathEmergencyLine,
		}
	}

	e.consumeBudget(cfg, in.State)

	if cfg.Mode == config.AssistAnswerReturn {
		return Output{Handled: true, Spoken: res.Text, SourceID: SourceValidated}
	}
	return e.handoffOverride(cfg, in, res.Text)
}

// handoffOverride replaces everything after the model's first sentence
// with the UI-owned handoff question and re-validates the composite.
func (e *Engine) handoffOverride(cfg config.AssistConfig, in Input, validated string) Output {
	empathy := validated
	if s := SplitSentences(validated); len(s) > 0 {
		empathy = s[0]
	}
	question := cfg.Handoff.Question()
	composite := strings.TrimSpace(empathy + " " + question)

	res := Validate(cfg, in.RawInput, composite)
	ok := res.Passed && strings.HasSuffix(res.Text, "?")
	in.Bus.Emit(event.LLMHandoffOverride, map[string]any{
		"variant":  string(cfg.Handoff.Variant),
		"empathy":  empathy,
		"question": question,
		"passed":   ok,
	})
	if !ok {
		return Output{
			Handled:      true,
			Spoken:       in.Cfg.Fallback.EmergencyLine,
			FallbackPath: config.PathEmergencyLine,
		}
	}

	in.State.HandoffPending = &callstate.HandoffPending{Question: question}
	return Output{Handled: true, Spoken: res.Text, SourceID: SourceHandoff}
}

// consumeBudget applies the mode-specific budget accounting. Every model
// invocation counts, accepted or not.
func (e *Engine) consumeBudget(cfg config.AssistConfig, st *callstate.State) {
	st.LLMTurnsThisCall++
	st.Assist.LastModeUsed = string(cfg.Mode)
	if cfg.Mode == config.AssistAnswerReturn {
		st.Assist.UsesThisCall++
		st.Assist.CooldownRemaining = cfg.CooldownTurns
	}
}

// logUsage writes one usage record; errors are dropped.
func (e *Engine) logUsage(ctx context.Context, in Input, resp *llm.Response, accepted bool) {
	if e.usage == nil {
		return
	}
	_ = e.usage.Log(ctx, store.UsageRecord{
		CallID:    in.State.CallID,
		CompanyID: in.State.CompanyID,
		TurnIndex: in.State.TurnCount,
		Mode:      string(in.Cfg.Assist.Mode),
		Model:     e.client.ModelID(),
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		Latency:   resp.Latency,
		Accepted:  accepted,
		Timestamp: time.Now(),
	})
}

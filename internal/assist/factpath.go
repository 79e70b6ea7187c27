package assist

import (
	"context"
	"strings"
	"time"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
	"github.com/relayline/frontdesk/pkg/provider/llm"
	"github.com/relayline/frontdesk/pkg/store"
)

// SourceFactAnswer identifies fact-grounded trigger answers at the speak
// gate.
const SourceFactAnswer = "llm.fact-answer"

const defaultFactSystem = "You are a phone receptionist for a local service business. " +
	"Answer the caller's question using only the facts provided. At most two short " +
	"sentences, no question at the end. Never quote prices beyond the facts, make " +
	"guarantees, give legal advice, or propose appointment times or scheduling."

// AnswerWithFacts runs the LLM trigger path for a card whose response mode
// is llm: the caller utterance plus the card's fact pack produce a
// statement-style answer. The decision gate is skipped (the card already
// won), but validation and budget accounting still apply. Returns the
// validated text and whether it may be spoken; on false the caller falls
// back to the card's static answer or the emergency line.
func (e *Engine) AnswerWithFacts(ctx context.Context, in Input, factPack string) (string, bool) {
	cfg := in.Cfg.Assist

	system := cfg.Prompts.AnswerSystem
	if strings.TrimSpace(system) == "" {
		system = defaultFactSystem
	}

	var b strings.Builder
	b.WriteString("Caller said: ")
	b.WriteString(strings.TrimSpace(in.RawInput))
	b.WriteString("\nFacts:\n")
	b.WriteString(factPack)

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.client.Complete(callCtx, llm.Request{
		Model:        cfg.Model,
		SystemPrompt: system,
		UserPrompt:   b.String(),
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		in.Bus.EmitSeverity(event.LLMDecision, event.SeverityWarn, map[string]any{
			"call":       false,
			"mode":       "fact-answer",
			"blocked_by": "error",
			"reason":     err.Error(),
		})
		in.State.LLMTurnsThisCall++
		return "", false
	}

	// Statement-style validation regardless of the configured mode.
	vcfg := cfg
	vcfg.Mode = config.AssistAnswerReturn
	res := Validate(vcfg, in.RawInput, resp.Text)

	in.State.LLMTurnsThisCall++
	if e.usage != nil {
		_ = e.usage.Log(ctx, store.UsageRecord{
			CallID:    in.State.CallID,
			CompanyID: in.State.CompanyID,
			TurnIndex: in.State.TurnCount,
			Mode:      "fact-answer",
			Model:     e.client.ModelID(),
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			Latency:   resp.Latency,
			Accepted:  res.Passed,
			Timestamp: time.Now(),
		})
	}

	in.Bus.Emit(event.LLMOutputValidation, map[string]any{
		"passed":    res.Passed,
		"truncated": res.Truncated,
		"mode":      "fact-answer",
		"model":     e.client.ModelID(),
	})
	if !res.Passed {
		for _, v := range res.Violations {
			in.Bus.EmitSeverity(event.LLMConstraintViolation, event.SeverityWarn, map[string]any{
				"rule":   v.Rule,
				"detail": v.Detail,
			})
		}
		return "", false
	}
	return res.Text, true
}

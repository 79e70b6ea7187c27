package turn

import (
	"context"
	"strings"

	"github.com/relayline/frontdesk/internal/assist"
	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/clarifier"
	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
	"github.com/relayline/frontdesk/internal/pending"
	"github.com/relayline/frontdesk/internal/speak"
	"github.com/relayline/frontdesk/internal/textpipe"
	"github.com/relayline/frontdesk/internal/trigger"
)

// selectPath records the winning pipeline branch.
func (r *Runner) selectPath(bus *event.Bus, path string, extra map[string]any) {
	payload := map[string]any{"path": path}
	for k, v := range extra {
		payload[k] = v
	}
	bus.Emit(event.PathSelected, payload)
}

// speakFinal runs a candidate through the speak gate and echo guard and
// writes the result into the outcome. An echoing response is replaced by
// the emergency line, which is itself gated.
func (r *Runner) speakFinal(out *Outcome, gate *speak.Gate, bus *event.Bus, cand speak.Candidate, rawInput string) {
	resolved := gate.Speak(cand)
	if resolved.ConfigPath != config.PathEmergencyLine &&
		speak.GuardEcho(bus, rawInput, resolved.Text, r.echoWindow) {
		if r.metrics != nil {
			r.metrics.CountSpeakBlock(context.Background(), "echo")
		}
		resolved = gate.Speak(speak.Candidate{SourcePath: config.PathEmergencyLine})
	}
	out.ResponseText = resolved.Text
	out.AudioURL = resolved.AudioURL
}

// ackLine composes the acknowledgment, personalising with the caller's
// name at most once per turn and only above the confidence floor.
func ackLine(cfg *config.CompanyConfig, st *callstate.State) string {
	ack := cfg.Behavior.AckWord
	if !cfg.Behavior.UseCallerName || st.UsedNameThisTurn {
		return ack
	}
	slot, ok := st.Slot(callstate.SlotName)
	if !ok || slot.Value == "" || slot.Confidence < cfg.Behavior.NameConfidenceMin {
		return ack
	}
	st.UsedNameThisTurn = true
	return strings.TrimSuffix(ack, ".") + ", " + slot.Value + "."
}

// resolveFollowUp handles a trigger-card follow-up answer. Returns true
// when the turn is finished.
func (r *Runner) resolveFollowUp(out *Outcome, gate *speak.Gate, bus *event.Bus, cfg *config.CompanyConfig, st *callstate.State, in Input, pres textpipe.Result) bool {
	card := cfg.Card(st.PendingFollowUpCardID)
	if card == nil || card.FollowUp == nil {
		st.PendingFollowUpQuestion = ""
		st.PendingFollowUpCardID = ""
		return false
	}
	fu := card.FollowUp

	cls := pending.NewClassifier(cfg.Pending)
	bucket := cls.ClassifyFollowUp(in.RawText, pres.OriginalTokens)
	bus.Emit(event.PendingResolved, map[string]any{
		"kind":    "follow-up",
		"card_id": card.ID,
		"bucket":  string(bucket),
	})

	speakBucket := func(b config.FollowUpBucket, name, path string) {
		r.selectPath(bus, path, map[string]any{"card_id": card.ID})
		text := b.Response
		full := strings.TrimSpace(ackLine(cfg, st) + " " + text)
		uiPath := config.TriggerFollowUpBucketPath(card.ID, name)
		gate.RegisterDerived(uiPath, full)
		r.speakFinal(out, gate, bus, speak.Candidate{
			Text:       full,
			SourcePath: uiPath,
		}, in.RawText)
	}

	switch bucket {
	case pending.BucketYes:
		st.PendingFollowUpQuestion = ""
		st.PendingFollowUpCardID = ""
		if fu.Yes.Direction == config.DirectionHandoffBooking {
			st.Lane = callstate.LaneBooking
			st.SessionMode = "booking"
			st.BookingIntentConfirmed = true
			out.MatchSource = SourceBookingHandoff
			speakBucket(fu.Yes, "yes", PathFollowUpYesHandoff)
		} else {
			speakBucket(fu.Yes, "yes", PathFollowUpYesContinue)
		}
		return true

	case pending.BucketNo:
		st.PendingFollowUpQuestion = ""
		st.PendingFollowUpCardID = ""
		speakBucket(fu.No, "no", PathFollowUpNo)
		return true

	case pending.BucketHesitant:
		// Re-ask; the pending question survives one more turn.
		st.PendingFollowUpTurn = in.TurnIndex
		speakBucket(fu.Hesitant, "hesitant", PathFollowUpHesitant)
		return true

	case pending.BucketReprompt:
		st.PendingFollowUpTurn = in.TurnIndex
		speakBucket(fu.Reprompt, "reprompt", PathFollowUpReprompt)
		return true

	default: // complex: clear and fall through to the matcher.
		st.PendingFollowUpQuestion = ""
		st.PendingFollowUpCardID = ""
		st.PendingQuestionWasComplex = true
		return false
	}
}

// resolvePending handles a generic pending-question answer. Returns true
// when the turn is finished.
func (r *Runner) resolvePending(out *Outcome, gate *speak.Gate, bus *event.Bus, cfg *config.CompanyConfig, st *callstate.State, in Input, pres textpipe.Result) bool {
	cls := pending.NewClassifier(cfg.Pending)
	bucket := cls.ClassifyGeneric(in.RawText, pres.OriginalTokens)
	bus.Emit(event.PendingResolved, map[string]any{
		"kind":   "generic",
		"source": string(st.PendingQuestionSource),
		"bucket": string(bucket),
	})

	respond := func(text, uiPath, path string) {
		st.PendingQuestion = ""
		r.selectPath(bus, path, nil)
		r.speakFinal(out, gate, bus, speak.Candidate{
			Text:       text,
			SourcePath: uiPath,
		}, in.RawText)
	}

	switch bucket {
	case pending.BucketYes:
		respond(cfg.Pending.Responses.Yes, config.PathPendingYes, PathPendingYes)
		return true
	case pending.BucketNo:
		respond(cfg.Pending.Responses.No, config.PathPendingNo, PathPendingNo)
		return true
	case pending.BucketReprompt:
		respond(cfg.Pending.Responses.Reprompt, config.PathPendingReprompt, PathPendingReprompt)
		return true
	default: // complex: fall through, suppress the generic re-ask.
		st.PendingQuestion = ""
		st.PendingQuestionWasComplex = true
		return false
	}
}

// resolveHandoff handles the yes/no answer to an assist handoff question.
// Returns true when the turn is finished.
func (r *Runner) resolveHandoff(out *Outcome, gate *speak.Gate, bus *event.Bus, cfg *config.CompanyConfig, st *callstate.State, pres textpipe.Result, rawInput string) bool {
	res := clarifier.Classify(pres.OriginalTokens)
	bus.Emit(event.PendingResolved, map[string]any{
		"kind":       "llm-handoff",
		"resolution": string(res),
	})
	st.HandoffPending = nil

	switch res {
	case clarifier.ResolutionYes:
		st.BookingIntentConfirmed = true
		st.Lane = callstate.LaneBooking
		st.SessionMode = "booking"
		out.MatchSource = SourceBookingHandoff
		r.selectPath(bus, PathHandoffYes, nil)
		r.speakFinal(out, gate, bus, speak.Candidate{
			Text:       cfg.Assist.Handoff.YesResponse,
			SourcePath: config.PathHandoffYes,
		}, rawInput)
		return true
	case clarifier.ResolutionNo:
		r.selectPath(bus, PathHandoffNo, nil)
		r.speakFinal(out, gate, bus, speak.Candidate{
			Text:       cfg.Assist.Handoff.NoResponse,
			SourcePath: config.PathHandoffNo,
		}, rawInput)
		return true
	}
	return false
}

// answerTrigger composes and speaks the winning card's response: ack,
// answer text (static or fact-grounded LLM), variable substitution, and
// the optional follow-up question.
func (r *Runner) answerTrigger(ctx context.Context, out *Outcome, gate *speak.Gate, bus *event.Bus, cfg *config.CompanyConfig, st *callstate.State, in Input, mres trigger.Result) {
	card := mres.Card
	st.NoMatchCount = 0
	if st.CapturedReason() == "" && card.Label != "" {
		st.SetSlot(callstate.SlotCallReason, card.Label, 0.9)
	}

	answerText := card.Answer.Text
	audioURL := card.Answer.AudioURL
	factGrounded := false

	if card.Answer.Mode == config.ResponseLLM && r.assist != nil {
		if text, ok := r.assist.AnswerWithFacts(ctx, assist.Input{
			Cfg:      cfg,
			State:    st,
			Bus:      bus,
			RawInput: in.RawText,
		}, card.Answer.FactPack); ok {
			answerText = text
			audioURL = ""
			factGrounded = true
		}
	}

	vars, err := r.vars.Get(ctx, in.CompanyID, cfg.Version, cfg.Variables)
	if err != nil {
		bus.EmitSeverity(event.TurnError, event.SeverityWarn, map[string]any{
			"stage": "variables",
			"error": err.Error(),
		})
		vars = cfg.Variables
	}
	answerText = trigger.Substitute(answerText, vars)

	parts := []string{ackLine(cfg, st)}
	if answerText != "" {
		parts = append(parts, answerText)
	}
	if card.FollowUp != nil && card.FollowUp.Question != "" {
		parts = append(parts, card.FollowUp.Question)
		st.PendingFollowUpQuestion = card.FollowUp.Question
		st.PendingFollowUpCardID = card.ID
		st.PendingFollowUpTurn = in.TurnIndex
	}
	full := strings.TrimSpace(strings.Join(parts, " "))

	r.selectPath(bus, PathTriggerMatch, map[string]any{
		"card_id":       card.ID,
		"match_type":    string(mres.MatchType),
		"matched_on":    mres.MatchedOn,
		"via_expansion": mres.ViaExpansion,
	})
	if r.metrics != nil {
		r.metrics.CountTriggerWin(ctx, card.ID)
	}

	cand := speak.Candidate{
		Text:       full,
		AudioURL:   audioURL,
		SourcePath: config.TriggerAnswerPath(card.ID),
	}
	if factGrounded {
		// A fact-pack-only card has no static answer indexed under its
		// path; the validated LLM answer is allowlisted as a dynamic
		// source instead.
		gate.Register(assist.SourceFactAnswer, full)
		cand.SourceID = assist.SourceFactAnswer
	} else {
		gate.RegisterDerived(cand.SourcePath, full)
	}
	r.speakFinal(out, gate, bus, cand, in.RawText)
}

// fallback is the deterministic last stage: empathy plus handoff question
// when a reason is known, otherwise the no-match line. The one-turn
// complex flag suppresses the generic re-ask.
func (r *Runner) fallback(out *Outcome, gate *speak.Gate, bus *event.Bus, cfg *config.CompanyConfig, st *callstate.State, in Input) {
	if reason := st.CapturedReason(); reason != "" {
		empathy := strings.ReplaceAll(cfg.Fallback.HumanTone, "{reason}", reason)
		full := strings.TrimSpace(empathy + " " + cfg.Fallback.HandoffQuestion)
		st.PendingQuestion = cfg.Fallback.HandoffQuestion
		st.PendingQuestionTurn = in.TurnIndex
		st.PendingQuestionSource = callstate.SourceFallback
		st.PendingQuestionWasComplex = false

		r.selectPath(bus, PathFallbackReasonHandoff, nil)
		gate.RegisterDerived(config.PathHumanTone, full)
		r.speakFinal(out, gate, bus, speak.Candidate{
			Text:       full,
			SourcePath: config.PathHumanTone,
		}, in.RawText)
		return
	}

	r.selectPath(bus, PathFallbackNoMatch, map[string]any{
		"suppressed_reask": st.PendingQuestionWasComplex,
	})
	if st.PendingQuestionWasComplex {
		// The caller just gave a substantive answer; do not re-ask
		// "How can I help?".
		st.PendingQuestionWasComplex = false
		r.speakFinal(out, gate, bus, speak.Candidate{
			SourcePath: config.PathEmergencyLine,
		}, in.RawText)
		return
	}

	st.PendingQuestion = cfg.Fallback.NoMatchAnswer
	st.PendingQuestionTurn = in.TurnIndex
	st.PendingQuestionSource = callstate.SourceFallback
	r.speakFinal(out, gate, bus, speak.Candidate{
		Text:       cfg.Fallback.NoMatchAnswer,
		SourcePath: config.PathNoMatchAnswer,
	}, in.RawText)
}

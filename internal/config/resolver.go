package config

import "fmt"

// Well-known UI paths consumed across the pipeline. The speak gate falls
// back along EmergencyPath and finally AckPath when a claimed path does not
// resolve.
const (
	PathAckWord         = "behavior.ackWord"
	PathRobotChallenge  = "behavior.robotChallengeLine"
	PathEmergencyLine   = "fallback.emergencyLine"
	PathNoMatchAnswer   = "fallback.noMatchAnswer"
	PathHumanTone       = "fallback.humanTone"
	PathHandoffQuestion = "fallback.handoffQuestion"
	PathPendingYes      = "pending.responses.yes"
	PathPendingNo       = "pending.responses.no"
	PathPendingReprompt = "pending.responses.reprompt"
	PathHandoffYes      = "assist.handoff.yesResponse"
	PathHandoffNo       = "assist.handoff.noResponse"
)

// TriggerAnswerPath returns the UI path of a trigger card's answer.
func TriggerAnswerPath(cardID string) string {
	return fmt.Sprintf("triggers.%s.answer", cardID)
}

// TriggerFollowUpPath returns the UI path of a card's follow-up question.
func TriggerFollowUpPath(cardID string) string {
	return fmt.Sprintf("triggers.%s.followUp.question", cardID)
}

// TriggerFollowUpBucketPath returns the UI path of a follow-up bucket response.
func TriggerFollowUpBucketPath(cardID, bucket string) string {
	return fmt.Sprintf("triggers.%s.followUp.%s.response", cardID, bucket)
}

// GreetingRulePath returns the UI path of a greeting rule's response.
func GreetingRulePath(ruleID string) string {
	return fmt.Sprintf("greetings.rules.%s.response", ruleID)
}

// ClarifierQuestionPath returns the UI path of a clarifier question.
func ClarifierQuestionPath(id string) string {
	return fmt.Sprintf("clarifiers.%s.question", id)
}

// PathIndex maps every speakable dotted UI path of a bundle to its payload.
// The speak gate resolves claimed source paths against this index; an absent
// or empty entry means the text is unmapped and must be blocked.
type PathIndex map[string]Payload

// BuildPathIndex walks cfg and collects every addressable spoken line.
func BuildPathIndex(cfg *CompanyConfig) PathIndex {
	idx := PathIndex{}
	put := func(path, text string) {
		if text != "" {
			idx[path] = Payload{Text: text}
		}
	}

	put(PathAckWord, cfg.Behavior.AckWord)
	put(PathRobotChallenge, cfg.Behavior.RobotChallengeLine)
	put(PathEmergencyLine, cfg.Fallback.EmergencyLine)
	put(PathNoMatchAnswer, cfg.Fallback.NoMatchAnswer)
	put(PathHumanTone, cfg.Fallback.HumanTone)
	put(PathHandoffQuestion, cfg.Fallback.HandoffQuestion)
	put(PathPendingYes, cfg.Pending.Responses.Yes)
	put(PathPendingNo, cfg.Pending.Responses.No)
	put(PathPendingReprompt, cfg.Pending.Responses.Reprompt)
	put(PathHandoffYes, cfg.Assist.Handoff.YesResponse)
	put(PathHandoffNo, cfg.Assist.Handoff.NoResponse)
	put("assist.handoff.confirmService", cfg.Assist.Handoff.ConfirmService)
	put("assist.handoff.takeMessage", cfg.Assist.Handoff.TakeMessage)
	put("assist.handoff.offerForward", cfg.Assist.Handoff.OfferForward)

	for _, r := range cfg.Greetings.Rules {
		if !r.Response.Empty() {
			idx[GreetingRulePath(r.ID)] = r.Response
		}
	}
	for _, t := range cfg.Triggers {
		if t.Answer.Text != "" || t.Answer.AudioURL != "" {
			idx[TriggerAnswerPath(t.ID)] = Payload{Text: t.Answer.Text, AudioURL: t.Answer.AudioURL}
		}
		if t.FollowUp == nil {
			continue
		}
		put(TriggerFollowUpPath(t.ID), t.FollowUp.Question)
		put(TriggerFollowUpBucketPath(t.ID, "yes"), t.FollowUp.Yes.Response)
		put(TriggerFollowUpBucketPath(t.ID, "no"), t.FollowUp.No.Response)
		put(TriggerFollowUpBucketPath(t.ID, "hesitant"), t.FollowUp.Hesitant.Response)
		put(TriggerFollowUpBucketPath(t.ID, "reprompt"), t.FollowUp.Reprompt.Response)
	}
	for _, c := range cfg.Clarifiers.Entries {
		put(ClarifierQuestionPath(c.ID), c.Question)
	}

	return idx
}

// Resolve deep-merges a per-company override bundle over a defaults bundle
// and fills remaining zero values with built-in defaults. Neither input is
// modified; the result is a new bundle. Either argument may be nil.
func Resolve(defaults, override *CompanyConfig) *CompanyConfig {
	merged := &CompanyConfig{}
	if defaults != nil {
		*merged = *defaults
	}
	if override != nil {
		mergeCompany(merged, override)
	}
	applyDefaults(merged)
	return merged
}

// mergeCompany overlays non-zero fields of src onto dst. Slices replace
// wholesale when non-empty; maps merge key-wise.
func mergeCompany(dst, src *CompanyConfig) {
	if src.CompanyID != "" {
		dst.CompanyID = src.CompanyID
	}
	if src.Version != 0 {
		dst.Version = src.Version
	}
	dst.Enabled = dst.Enabled || src.Enabled

	mergeBehavior(&dst.Behavior, src.Behavior)
	mergeGreetings(&dst.Greetings, src.Greetings)
	mergeText(&dst.Text, src.Text)
	if len(src.Vocabulary) > 0 {
		dst.Vocabulary = src.Vocabulary
	}
	if len(src.Triggers) > 0 {
		dst.Triggers = src.Triggers
	}
	mergeIntentGate(&dst.IntentGate, src.IntentGate)
	mergeClarifiers(&dst.Clarifiers, src.Clarifiers)
	mergePending(&dst.Pending, src.Pending)
	mergeAssist(&dst.Assist, src.Assist)
	mergeFallback(&dst.Fallback, src.Fallback)
	mergeScenario(&dst.Scenario, src.Scenario)

	if len(src.GlobalNegatives) > 0 {
		dst.GlobalNegatives = src.GlobalNegatives
	}
	if len(src.Variables) > 0 {
		if dst.Variables == nil {
			dst.Variables = make(map[string]string, len(src.Variables))
		} else {
			vars := make(map[string]string, len(dst.Variables)+len(src.Variables))
			for k, v := range dst.Variables {
				vars[k] = v
			}
			dst.Variables = vars
		}
		for k, v := range src.Variables {
			dst.Variables[k] = v
		}
	}
}

func mergeBehavior(dst *BehaviorConfig, src BehaviorConfig) {
	if src.AckWord != "" {
		dst.AckWord = src.AckWord
	}
	if src.RobotChallengeLine != "" {
		dst.RobotChallengeLine = src.RobotChallengeLine
	}
	dst.UseCallerName = dst.UseCallerName || src.UseCallerName
	if src.NameConfidenceMin != 0 {
		dst.NameConfidenceMin = src.NameConfidenceMin
	}
}

func mergeGreetings(dst *GreetingConfig, src GreetingConfig) {
	if src.MaxWordsToQualify != 0 {
		dst.MaxWordsToQualify = src.MaxWordsToQualify
	}
	if len(src.IntentKeywords) > 0 {
		dst.IntentKeywords = src.IntentKeywords
	}
	if len(src.Rules) > 0 {
		dst.Rules = src.Rules
	}
}

func mergeText(dst *TextConfig, src TextConfig) {
	if len(src.IgnorePhrases) > 0 {
		dst.IgnorePhrases = src.IgnorePhrases
	}
	if len(src.Synonyms) > 0 {
		dst.Synonyms = src.Synonyms
	}
	if src.MinChars != 0 {
		dst.MinChars = src.MinChars
	}
}

func mergeIntentGate(dst *IntentGateConfig, src IntentGateConfig) {
	if len(src.Patterns) > 0 {
		dst.Patterns = src.Patterns
	}
	if len(src.DisqualifiedCategories) > 0 {
		dst.DisqualifiedCategories = src.DisqualifiedCategories
	}
	if src.Penalty != 0 {
		dst.Penalty = src.Penalty
	}
}

func mergeClarifiers(dst *ClarifierConfig, src ClarifierConfig) {
	if src.MaxAsksPerCall != 0 {
		dst.MaxAsksPerCall = src.MaxAsksPerCall
	}
	if len(src.Entries) > 0 {
		dst.Entries = src.Entries
	}
}

func mergePending(dst *PendingConfig, src PendingConfig) {
	if len(src.YesWords) > 0 {
		dst.YesWords = src.YesWords
	}
	if len(src.YesPhrases) > 0 {
		dst.YesPhrases = src.YesPhrases
	}
	if len(src.NoWords) > 0 {
		dst.NoWords = src.NoWords
	}
	if len(src.NoPhrases) > 0 {
		dst.NoPhrases = src.NoPhrases
	}
	if len(src.Hesitant) > 0 {
		dst.Hesitant = src.Hesitant
	}
	if src.Responses.Yes != "" {
		dst.Responses.Yes = src.Responses.Yes
	}
	if src.Responses.No != "" {
		dst.Responses.No = src.Responses.No
	}
	if src.Responses.Reprompt != "" {
		dst.Responses.Reprompt = src.Responses.Reprompt
	}
}

func mergeAssist(dst *AssistConfig, src AssistConfig) {
	dst.Enabled = dst.Enabled || src.Enabled
	if src.Mode != "" {
		dst.Mode = src.Mode
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxTokens != 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if src.TimeoutSeconds != 0 {
		dst.TimeoutSeconds = src.TimeoutSeconds
	}
	if src.Prompts.System != "" {
		dst.Prompts.System = src.Prompts.System
	}
	if src.Prompts.Format != "" {
		dst.Prompts.Format = src.Prompts.Format
	}
	if src.Prompts.Safety != "" {
		dst.Prompts.Safety = src.Prompts.Safety
	}
	if src.Prompts.AnswerSystem != "" {
		dst.Prompts.AnswerSystem = src.Prompts.AnswerSystem
	}
	if src.Handoff.Variant != "" {
		dst.Handoff.Variant = src.Handoff.Variant
	}
	if src.Handoff.ConfirmService != "" {
		dst.Handoff.ConfirmService = src.Handoff.ConfirmService
	}
	if src.Handoff.TakeMessage != "" {
		dst.Handoff.TakeMessage = src.Handoff.TakeMessage
	}
	if src.Handoff.OfferForward != "" {
		dst.Handoff.OfferForward = src.Handoff.OfferForward
	}
	if src.Handoff.YesResponse != "" {
		dst.Handoff.YesResponse = src.Handoff.YesResponse
	}
	if src.Handoff.NoResponse != "" {
		dst.Handoff.NoResponse = src.Handoff.NoResponse
	}
	dst.Bans.Pricing = dst.Bans.Pricing || src.Bans.Pricing
	dst.Bans.Guarantees = dst.Bans.Guarantees || src.Bans.Guarantees
	dst.Bans.Legal = dst.Bans.Legal || src.Bans.Legal
	if len(src.Bans.ExtraPatterns) > 0 {
		dst.Bans.ExtraPatterns = append(dst.Bans.ExtraPatterns, src.Bans.ExtraPatterns...)
	}
	if src.MaxSentences != 0 {
		dst.MaxSentences = src.MaxSentences
	}
	if src.ComplexityThreshold != 0 {
		dst.ComplexityThreshold = src.ComplexityThreshold
	}
	if src.MaxLLMFallbackTurnsPerCall != 0 {
		dst.MaxLLMFallbackTurnsPerCall = src.MaxLLMFallbackTurnsPerCall
	}
	if src.MaxUsesPerCall != 0 {
		dst.MaxUsesPerCall = src.MaxUsesPerCall
	}
	if src.CooldownTurns != 0 {
		dst.CooldownTurns = src.CooldownTurns
	}
	dst.UseEmergencyOnError = dst.UseEmergencyOnError || src.UseEmergencyOnError
}

func mergeFallback(dst *FallbackConfig, src FallbackConfig) {
	if src.EmergencyLine != "" {
		dst.EmergencyLine = src.EmergencyLine
	}
	if src.NoMatchAnswer != "" {
		dst.NoMatchAnswer = src.NoMatchAnswer
	}
	if src.HumanTone != "" {
		dst.HumanTone = src.HumanTone
	}
	if src.HandoffQuestion != "" {
		dst.HandoffQuestion = src.HandoffQuestion
	}
}

func mergeScenario(dst *ScenarioConfig, src ScenarioConfig) {
	dst.Enabled = dst.Enabled || src.Enabled
	if src.MinConfidence != 0 {
		dst.MinConfidence = src.MinConfidence
	}
	if len(src.AllowedTypes) > 0 {
		dst.AllowedTypes = src.AllowedTypes
	}
}

// applyDefaults fills remaining zero values with the built-in defaults.
func applyDefaults(cfg *CompanyConfig) {
	if cfg.Behavior.NameConfidenceMin == 0 {
		cfg.Behavior.NameConfidenceMin = 0.85
	}
	if cfg.Greetings.MaxWordsToQualify == 0 {
		cfg.Greetings.MaxWordsToQualify = 4
	}
	if cfg.Text.MinChars == 0 {
		cfg.Text.MinChars = 2
	}
	if cfg.IntentGate.Penalty == 0 {
		cfg.IntentGate.Penalty = 50
	}
	if cfg.Clarifiers.MaxAsksPerCall == 0 {
		cfg.Clarifiers.MaxAsksPerCall = 2
	}
	if cfg.Assist.TimeoutSeconds == 0 {
		cfg.Assist.TimeoutSeconds = 4
	}
	if cfg.Assist.MaxSentences == 0 {
		cfg.Assist.MaxSentences = 2
	}
	if cfg.Assist.ComplexityThreshold == 0 {
		cfg.Assist.ComplexityThreshold = 0.65
	}
	if cfg.Assist.MaxLLMFallbackTurnsPerCall == 0 {
		cfg.Assist.MaxLLMFallbackTurnsPerCall = 1
	}
	if cfg.Assist.MaxUsesPerCall == 0 {
		cfg.Assist.MaxUsesPerCall = 2
	}
	if cfg.Assist.CooldownTurns == 0 {
		cfg.Assist.CooldownTurns = 2
	}
	if cfg.Scenario.MinConfidence == 0 {
		cfg.Scenario.MinConfidence = 0.75
	}
}

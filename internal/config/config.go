// Package config provides the per-company configuration schema, loader,
// defaults resolver, and UI-path index for the Frontdesk turn pipeline.
//
// A company bundle is the single source of truth for everything the
// orchestrator may speak. Every field that can reach a caller's ear is
// addressable by a dotted UI path (see [PathIndex]) so that the speak gate
// can attach provenance to every spoken line.
package config

import (
	"fmt"
	"hash/fnv"
)

// VocabType distinguishes destructive from advisory vocabulary entries.
type VocabType string

const (
	// VocabHardNormalize replaces matched tokens in the normalized text.
	VocabHardNormalize VocabType = "hard-normalize"

	// VocabSoftHint never modifies text; a match only adds a hint label
	// to the call state.
	VocabSoftHint VocabType = "soft-hint"
)

// IsValid reports whether v is a recognised vocabulary type.
func (v VocabType) IsValid() bool {
	return v == VocabHardNormalize || v == VocabSoftHint
}

// MatchMode selects how a vocabulary entry's From pattern is applied.
type MatchMode string

const (
	// MatchExact replaces whole-word matches only.
	MatchExact MatchMode = "exact"

	// MatchContains replaces case-insensitive substring matches.
	MatchContains MatchMode = "contains"

	// MatchPhonetic matches tokens that sound like From (double metaphone
	// plus an edit-distance bound). Used for STT mishearings.
	MatchPhonetic MatchMode = "phonetic"
)

// IsValid reports whether m is a recognised match mode.
func (m MatchMode) IsValid() bool {
	switch m {
	case MatchExact, MatchContains, MatchPhonetic:
		return true
	}
	return false
}

// ResponseMode selects how a trigger card's answer is produced.
type ResponseMode string

const (
	// ResponseStatic speaks the configured answer text or audio verbatim.
	ResponseStatic ResponseMode = "static"

	// ResponseLLM routes the card through the LLM trigger path, grounded
	// on the card's fact pack.
	ResponseLLM ResponseMode = "llm"
)

// IsValid reports whether r is a recognised response mode.
func (r ResponseMode) IsValid() bool {
	return r == ResponseStatic || r == ResponseLLM
}

// AssistMode selects the LLM assist prompting style.
type AssistMode string

const (
	// AssistGuided produces empathy plus a UI-owned handoff question.
	AssistGuided AssistMode = "guided"

	// AssistAnswerReturn produces a direct answer and must not end with
	// a question.
	AssistAnswerReturn AssistMode = "answer-return"
)

// IsValid reports whether a is a recognised assist mode.
func (a AssistMode) IsValid() bool {
	return a == AssistGuided || a == AssistAnswerReturn
}

// FollowUpDirection is the action taken when a trigger follow-up question
// resolves to a given bucket.
type FollowUpDirection string

const (
	// DirectionContinue stays in discovery.
	DirectionContinue FollowUpDirection = "continue"

	// DirectionHandoffBooking switches the call into the booking lane.
	DirectionHandoffBooking FollowUpDirection = "handoff-booking"
)

// IsValid reports whether d is a recognised follow-up direction.
func (d FollowUpDirection) IsValid() bool {
	return d == DirectionContinue || d == DirectionHandoffBooking
}

// CompanyConfig is the full per-company configuration bundle, read-only for
// the duration of a turn. Bundles are typically loaded from YAML via [Load]
// or built by merging a defaults bundle with per-company overrides via
// [Resolve].
type CompanyConfig struct {
	// CompanyID identifies the tenant this bundle belongs to.
	CompanyID string `yaml:"company_id"`

	// Version is a monotonic updated-at marker bumped on every edit.
	// It feeds the config hash and invalidates per-company caches.
	Version int64 `yaml:"version"`

	// Enabled is the master gate. When false every turn returns early
	// with a disabled event.
	Enabled bool `yaml:"enabled"`

	Behavior   BehaviorConfig   `yaml:"behavior"`
	Greetings  GreetingConfig   `yaml:"greetings"`
	Text       TextConfig       `yaml:"text"`
	Vocabulary []VocabEntry     `yaml:"vocabulary"`
	Triggers   []TriggerCard    `yaml:"triggers"`
	IntentGate IntentGateConfig `yaml:"intent_gate"`
	Clarifiers ClarifierConfig  `yaml:"clarifiers"`
	Pending    PendingConfig    `yaml:"pending"`
	Assist     AssistConfig     `yaml:"assist"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Scenario   ScenarioConfig   `yaml:"scenario"`

	// GlobalNegatives lists keywords that veto every trigger card when all
	// of a keyword's words appear in the input.
	GlobalNegatives []string `yaml:"global_negatives"`

	// Variables holds default trigger-variable substitutions
	// ({diagnosticfee} → "80 dollars"). Values loaded from the variable
	// store override these.
	Variables map[string]string `yaml:"variables"`
}

// BehaviorConfig holds the company's conversational style knobs.
type BehaviorConfig struct {
	// AckWord is the acknowledgment prefixed to trigger answers ("Okay.").
	// It is also the last-resort spoken text when every fallback is unmapped.
	AckWord string `yaml:"ack_word"`

	// RobotChallengeLine is spoken when the caller asks whether they are
	// talking to a robot.
	RobotChallengeLine string `yaml:"robot_challenge_line"`

	// UseCallerName allows the ack to personalise with the caller's name.
	UseCallerName bool `yaml:"use_caller_name"`

	// NameConfidenceMin is the minimum name-slot confidence required
	// before the caller's name is spoken. Default 0.85.
	NameConfidenceMin float64 `yaml:"name_confidence_min"`
}

// GreetingConfig controls the one-shot short-greeting interceptor.
type GreetingConfig struct {
	// MaxWordsToQualify is the maximum input token count for the
	// interceptor to fire. Default 4.
	MaxWordsToQualify int `yaml:"max_words_to_qualify"`

	// IntentKeywords disqualify the interceptor when present in the input,
	// even for short utterances ("broken", "leak", "emergency").
	IntentKeywords []string `yaml:"intent_keywords"`

	// Rules are evaluated in ascending priority order; the first match wins.
	Rules []GreetingRule `yaml:"rules"`
}

// GreetingRule pairs greeting trigger words with a response.
type GreetingRule struct {
	ID       string   `yaml:"id"`
	Enabled  bool     `yaml:"enabled"`
	Priority int      `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
	Response Payload  `yaml:"response"`
}

// Payload is a spoken response: exactly one of Text or AudioURL should be set.
type Payload struct {
	Text     string `yaml:"text"`
	AudioURL string `yaml:"audio_url"`
}

// Empty reports whether the payload carries neither text nor audio.
func (p Payload) Empty() bool { return p.Text == "" && p.AudioURL == "" }

// TextConfig tunes the preprocessing pipeline.
type TextConfig struct {
	// IgnorePhrases are stripped alongside the built-in filler set.
	IgnorePhrases []string `yaml:"ignore_phrases"`

	// Synonyms expands tokens into equivalence-class members for the
	// matcher's expanded token bag. Original tokens stay authoritative.
	Synonyms map[string][]string `yaml:"synonyms"`

	// MinChars is the quality-gate minimum for normalized text. Inputs
	// shorter than this set shouldReprompt. Default 2.
	MinChars int `yaml:"min_chars"`
}

// VocabEntry is a single vocabulary rule applied by the text pipeline.
type VocabEntry struct {
	ID      string `yaml:"id"`
	Enabled bool   `yaml:"enabled"`

	// Priority orders hard-normalize application, ascending. Ties break by
	// insertion order.
	Priority  int       `yaml:"priority"`
	Type      VocabType `yaml:"type"`
	MatchMode MatchMode `yaml:"match_mode"`
	From      string    `yaml:"from"`
	To        string    `yaml:"to"`

	// Hint is the label added to the call's hint set for soft-hint
	// entries. Falls back to To when empty.
	Hint string `yaml:"hint"`
}

// HintLabel returns the hint label recorded when a soft-hint entry matches.
func (v VocabEntry) HintLabel() string {
	if v.Hint != "" {
		return v.Hint
	}
	return v.To
}

// TriggerCard is a declarative matching rule with a response payload.
type TriggerCard struct {
	ID      string `yaml:"id"`
	Label   string `yaml:"label"`
	Enabled bool   `yaml:"enabled"`

	// Category groups cards for hint boosts, locks, and intent-gate
	// disqualification (e.g., "thermostat", "faq").
	Category string `yaml:"category"`

	// Priority orders cards, lower is higher.
	Priority int `yaml:"priority"`

	Match    TriggerMatch    `yaml:"match"`
	Answer   TriggerAnswer   `yaml:"answer"`
	FollowUp *FollowUpConfig `yaml:"follow_up"`
}

// TriggerMatch holds the card's matching criteria.
type TriggerMatch struct {
	// Keywords match when every word of a keyword appears in the input
	// token set, in any order.
	Keywords []string `yaml:"keywords"`

	// Phrases match as contiguous substrings of the normalized text.
	Phrases []string `yaml:"phrases"`

	// Negatives veto the card when all words of a negative appear.
	Negatives []string `yaml:"negatives"`
}

// TriggerAnswer is the card's response payload.
type TriggerAnswer struct {
	Text     string       `yaml:"text"`
	AudioURL string       `yaml:"audio_url"`
	Mode     ResponseMode `yaml:"mode"`

	// FactPack grounds the LLM trigger path when Mode is "llm".
	FactPack string `yaml:"fact_pack"`
}

// FollowUpConfig is an optional question appended after a card's answer,
// resolved next turn by the five-bucket classifier.
type FollowUpConfig struct {
	Question string `yaml:"question"`

	Yes      FollowUpBucket `yaml:"yes"`
	No       FollowUpBucket `yaml:"no"`
	Hesitant FollowUpBucket `yaml:"hesitant"`
	Reprompt FollowUpBucket `yaml:"reprompt"`
}

// FollowUpBucket carries the direction and response line for one
// classification bucket.
type FollowUpBucket struct {
	Direction FollowUpDirection `yaml:"direction"`
	Response  string            `yaml:"response"`
}

// IntentGateConfig detects service-down/emergency intent and penalises or
// disqualifies FAQ-style cards.
type IntentGateConfig struct {
	// Patterns are regular expressions evaluated against the input.
	Patterns []IntentPattern `yaml:"patterns"`

	// DisqualifiedCategories lists card categories penalised when intent
	// is flagged.
	DisqualifiedCategories []string `yaml:"disqualified_categories"`

	// Penalty is added to a disqualified card's effective priority in
	// non-emergency mode. Default 50.
	Penalty int `yaml:"penalty"`
}

// IntentPattern is a single named intent regex.
type IntentPattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	// Emergency escalates from penalty to full disqualification.
	Emergency bool `yaml:"emergency"`
}

// ClarifierConfig holds disambiguation questions asked when soft hints exist
// without a trigger match.
type ClarifierConfig struct {
	// MaxAsksPerCall bounds clarifier questions per call. Default 2.
	MaxAsksPerCall int `yaml:"max_asks_per_call"`

	Entries []ClarifierEntry `yaml:"entries"`
}

// ClarifierEntry maps a hint to a question and the lock set on a yes answer.
type ClarifierEntry struct {
	ID       string `yaml:"id"`
	Priority int    `yaml:"priority"`

	// HintTrigger is the hint label that makes this clarifier applicable.
	HintTrigger string `yaml:"hint_trigger"`

	Question string `yaml:"question"`

	// LockKey/LockValue are written into the call's locks on a yes answer
	// (e.g., component → "thermostat").
	LockKey   string `yaml:"lock_key"`
	LockValue string `yaml:"lock_value"`
}

// PendingConfig drives the pending-question classifiers. Empty lists fall
// back to the built-in word sets.
type PendingConfig struct {
	YesWords   []string `yaml:"yes_words"`
	YesPhrases []string `yaml:"yes_phrases"`
	NoWords    []string `yaml:"no_words"`
	NoPhrases  []string `yaml:"no_phrases"`
	Hesitant   []string `yaml:"hesitant_words"`

	// Responses are the UI-owned lines spoken on generic pending
	// resolution.
	Responses PendingResponses `yaml:"responses"`
}

// PendingResponses holds the generic pending-question response lines.
type PendingResponses struct {
	Yes      string `yaml:"yes"`
	No       string `yaml:"no"`
	Reprompt string `yaml:"reprompt"`
}

// AssistConfig governs the bounded LLM assist path.
type AssistConfig struct {
	// Enabled switches the assist path on for the configured mode.
	Enabled bool       `yaml:"enabled"`
	Mode    AssistMode `yaml:"mode"`

	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// TimeoutSeconds is the hard deadline for the completion call. Default 4.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	Prompts AssistPrompts `yaml:"prompts"`
	Handoff HandoffConfig `yaml:"handoff"`
	Bans    ContentBans   `yaml:"bans"`

	// MaxSentences caps the validated output. Default 2.
	MaxSentences int `yaml:"max_sentences"`

	// ComplexityThreshold triggers the gate when the complexity score
	// reaches it. Default 0.65.
	ComplexityThreshold float64 `yaml:"complexity_threshold"`

	// Guided-mode budget: LLM fallback turns per call. Default 1.
	MaxLLMFallbackTurnsPerCall int `yaml:"max_llm_fallback_turns_per_call"`

	// Answer-return budget: uses per call plus a cooldown between uses.
	MaxUsesPerCall int `yaml:"max_uses_per_call"`
	CooldownTurns  int `yaml:"cooldown_turns"`

	// UseEmergencyOnError speaks the emergency line on LLM timeout or
	// error instead of silently skipping the assist path.
	UseEmergencyOnError bool `yaml:"use_emergency_on_error"`
}

// AssistPrompts holds the prompt fragments concatenated per mode.
type AssistPrompts struct {
	System string `yaml:"system"`
	Format string `yaml:"format"`
	Safety string `yaml:"safety"`

	// AnswerSystem is the answer-return mode system prompt.
	AnswerSystem string `yaml:"answer_system"`
}

// HandoffVariant selects which handoff question guided mode appends.
type HandoffVariant string

const (
	HandoffConfirmService HandoffVariant = "confirm-service"
	HandoffTakeMessage    HandoffVariant = "take-message"
	HandoffOfferForward   HandoffVariant = "offer-forward"
)

// IsValid reports whether h is a recognised handoff variant.
func (h HandoffVariant) IsValid() bool {
	switch h {
	case HandoffConfirmService, HandoffTakeMessage, HandoffOfferForward:
		return true
	}
	return false
}

// HandoffConfig holds the UI-owned handoff questions and the yes/no
// responses used when a handoff question is answered next turn.
type HandoffConfig struct {
	Variant HandoffVariant `yaml:"variant"`

	ConfirmService string `yaml:"confirm_service"`
	TakeMessage    string `yaml:"take_message"`
	OfferForward   string `yaml:"offer_forward"`

	YesResponse string `yaml:"yes_response"`
	NoResponse  string `yaml:"no_response"`
}

// Question returns the handoff question for the configured variant,
// defaulting to the confirm-service line.
func (h HandoffConfig) Question() string {
	switch h.Variant {
	case HandoffTakeMessage:
		return h.TakeMessage
	case HandoffOfferForward:
		return h.OfferForward
	default:
		return h.ConfirmService
	}
}

// QuestionPath returns the UI path of the handoff question for the
// configured variant.
func (h HandoffConfig) QuestionPath() string {
	switch h.Variant {
	case HandoffTakeMessage:
		return "assist.handoff.takeMessage"
	case HandoffOfferForward:
		return "assist.handoff.offerForward"
	default:
		return "assist.handoff.confirmService"
	}
}

// ContentBans toggles content categories rejected in LLM output. The
// booking-language ban is built in and never configurable.
type ContentBans struct {
	Pricing    bool `yaml:"pricing"`
	Guarantees bool `yaml:"guarantees"`
	Legal      bool `yaml:"legal"`

	// ExtraPatterns are additional regexes rejected in LLM output. They
	// extend, never replace, the built-in booking-language set.
	ExtraPatterns []string `yaml:"extra_patterns"`
}

// FallbackConfig holds the deterministic fallback lines.
type FallbackConfig struct {
	// EmergencyLine is the last-resort UI-owned spoken text.
	EmergencyLine string `yaml:"emergency_line"`

	// NoMatchAnswer is spoken when nothing matched and no reason is known.
	NoMatchAnswer string `yaml:"no_match_answer"`

	// HumanTone is the empathy template; "{reason}" is substituted with
	// the captured reason.
	HumanTone string `yaml:"human_tone"`

	// HandoffQuestion follows the empathy line in the captured-reason
	// fallback.
	HandoffQuestion string `yaml:"handoff_question"`
}

// ScenarioConfig controls the optional scenario-fallback branch.
type ScenarioConfig struct {
	// Enabled corresponds to useScenarioFallback. Default false.
	Enabled bool `yaml:"enabled"`

	// MinConfidence is the similarity threshold a scenario must reach.
	MinConfidence float64 `yaml:"min_confidence"`

	// AllowedTypes allow-lists scenario types usable as a response.
	AllowedTypes []string `yaml:"allowed_types"`
}

// Hash returns the stable config hash attached to every event emitted for a
// turn. It is derived from the enabled rule count, the ack word, the assist
// mode, and the monotonic version marker.
func (c *CompanyConfig) Hash() string {
	h := fnv.New64a()
	rules := 0
	for _, t := range c.Triggers {
		if t.Enabled {
			rules++
		}
	}
	fmt.Fprintf(h, "%d|%s|%s|%d", rules, c.Behavior.AckWord, c.Assist.Mode, c.Version)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Card returns the trigger card with the given id, or nil.
func (c *CompanyConfig) Card(id string) *TriggerCard {
	for i := range c.Triggers {
		if c.Triggers[i].ID == id {
			return &c.Triggers[i]
		}
	}
	return nil
}

// ClarifierByID returns the clarifier entry with the given id, or nil.
func (c *CompanyConfig) ClarifierByID(id string) *ClarifierEntry {
	for i := range c.Clarifiers.Entries {
		if c.Clarifiers.Entries[i].ID == id {
			return &c.Clarifiers.Entries[i]
		}
	}
	return nil
}

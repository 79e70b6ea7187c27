package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML company bundle at path and returns a validated
// [CompanyConfig]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*CompanyConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML company bundle from r and validates the
// result. Useful in tests where bundles are constructed from string literals.
func LoadFromReader(r io.Reader) (*CompanyConfig, error) {
	cfg := &CompanyConfig{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Hard violations
// are returned as a joined error; soft violations (lines the pipeline can
// recover from) are reported via slog as a startup report and do not fail
// the load.
func Validate(cfg *CompanyConfig) error {
	var errs []error

	if cfg.Assist.Mode != "" && !cfg.Assist.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("assist.mode %q is invalid; valid values: guided, answer-return", cfg.Assist.Mode))
	}
	if cfg.Assist.Handoff.Variant != "" && !cfg.Assist.Handoff.Variant.IsValid() {
		errs = append(errs, fmt.Errorf("assist.handoff.variant %q is invalid; valid values: confirm-service, take-message, offer-forward", cfg.Assist.Handoff.Variant))
	}

	for i, v := range cfg.Vocabulary {
		prefix := fmt.Sprintf("vocabulary[%d]", i)
		if v.From == "" {
			errs = append(errs, fmt.Errorf("%s.from is required", prefix))
		}
		if v.Type != "" && !v.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: hard-normalize, soft-hint", prefix, v.Type))
		}
		if v.MatchMode != "" && !v.MatchMode.IsValid() {
			errs = append(errs, fmt.Errorf("%s.match_mode %q is invalid; valid values: exact, contains, phonetic", prefix, v.MatchMode))
		}
		if v.Type == VocabHardNormalize && v.To == "" {
			errs = append(errs, fmt.Errorf("%s: hard-normalize entries require a non-empty to", prefix))
		}
		if v.Type == VocabSoftHint && v.HintLabel() == "" {
			errs = append(errs, fmt.Errorf("%s: soft-hint entries require a hint label", prefix))
		}
	}

	cardIDs := make(map[string]int, len(cfg.Triggers))
	for i, t := range cfg.Triggers {
		prefix := fmt.Sprintf("triggers[%d]", i)
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := cardIDs[t.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of triggers[%d]", prefix, t.ID, prev))
			}
			cardIDs[t.ID] = i
		}
		if len(t.Match.Keywords) == 0 && len(t.Match.Phrases) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one keyword or phrase is required", prefix))
		}
		if t.Answer.Mode != "" && !t.Answer.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("%s.answer.mode %q is invalid; valid values: static, llm", prefix, t.Answer.Mode))
		}
		switch t.Answer.Mode {
		case ResponseLLM:
			if t.Answer.FactPack == "" {
				errs = append(errs, fmt.Errorf("%s: llm response mode requires a fact pack", prefix))
			}
		default:
			if t.Answer.Text == "" && t.Answer.AudioURL == "" {
				errs = append(errs, fmt.Errorf("%s: answer requires text or audio", prefix))
			}
		}
		if t.FollowUp != nil {
			if t.FollowUp.Question == "" {
				errs = append(errs, fmt.Errorf("%s.follow_up.question is required", prefix))
			}
			for name, b := range map[string]FollowUpBucket{
				"yes": t.FollowUp.Yes, "no": t.FollowUp.No,
				"hesitant": t.FollowUp.Hesitant, "reprompt": t.FollowUp.Reprompt,
			} {
				if b.Direction != "" && !b.Direction.IsValid() {
					errs = append(errs, fmt.Errorf("%s.follow_up.%s.direction %q is invalid", prefix, name, b.Direction))
				}
			}
		}
	}

	for i, p := range cfg.IntentGate.Patterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("intent_gate.patterns[%d] (%s): %w", i, p.Name, err))
		}
	}
	for i, p := range cfg.Assist.Bans.ExtraPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("assist.bans.extra_patterns[%d]: %w", i, err))
		}
	}

	for i, c := range cfg.Clarifiers.Entries {
		prefix := fmt.Sprintf("clarifiers.entries[%d]", i)
		if c.HintTrigger == "" {
			errs = append(errs, fmt.Errorf("%s.hint_trigger is required", prefix))
		}
		if c.Question == "" {
			errs = append(errs, fmt.Errorf("%s.question is required", prefix))
		}
	}

	// Startup report: soft violations the speak gate can recover from.
	if cfg.Fallback.EmergencyLine == "" {
		slog.Warn("config: fallback.emergency_line is empty; blocked speech degrades to the ack word",
			"company_id", cfg.CompanyID)
	}
	if cfg.Behavior.AckWord == "" {
		slog.Warn("config: behavior.ack_word is empty; the last-resort acknowledgment has no text",
			"company_id", cfg.CompanyID)
	}
	if cfg.Assist.Enabled && cfg.Assist.Model == "" {
		slog.Warn("config: assist.enabled is set but assist.model is empty; the assist path will be skipped",
			"company_id", cfg.CompanyID)
	}
	if cfg.Fallback.NoMatchAnswer == "" {
		slog.Warn("config: fallback.no_match_answer is empty; no-match turns fall through to the emergency line",
			"company_id", cfg.CompanyID)
	}

	return errors.Join(errs...)
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validBundle = `
company_id: acme-plumbing
version: 3
enabled: true
behavior:
  ack_word: "Okay."
fallback:
  emergency_line: "Let me get someone who can help."
  no_match_answer: "What can I help you with?"
triggers:
  - id: card-hours
    enabled: true
    priority: 10
    match:
      keywords: [hours]
    answer:
      text: "We are open 8 to 6."
`

func TestLoadFromReader_ValidBundle(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validBundle))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.CompanyID != "acme-plumbing" {
		t.Errorf("CompanyID = %q", cfg.CompanyID)
	}
	if cfg.Version != 3 {
		t.Errorf("Version = %d, want 3", cfg.Version)
	}
	if len(cfg.Triggers) != 1 || cfg.Triggers[0].Answer.Text != "We are open 8 to 6." {
		t.Errorf("Triggers = %+v", cfg.Triggers)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("company_id: acme\nshout_mode: true\n"))
	if err == nil {
		t.Fatal("LoadFromReader accepted an unknown field")
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"bad assist mode",
			"company_id: acme\nassist:\n  mode: freestyle\n",
			"assist.mode",
		},
		{
			"duplicate trigger id",
			"company_id: acme\ntriggers:\n" +
				"  - {id: card-a, match: {keywords: [a]}, answer: {text: A}}\n" +
				"  - {id: card-a, match: {keywords: [b]}, answer: {text: B}}\n",
			"duplicate",
		},
		{
			"trigger without match terms",
			"company_id: acme\ntriggers:\n  - {id: card-a, answer: {text: A}}\n",
			"keyword or phrase",
		},
		{
			"trigger without answer",
			"company_id: acme\ntriggers:\n  - {id: card-a, match: {keywords: [a]}}\n",
			"text or audio",
		},
		{
			"llm answer without fact pack",
			"company_id: acme\ntriggers:\n  - {id: card-a, match: {keywords: [a]}, answer: {mode: llm}}\n",
			"fact pack",
		},
		{
			"hard-normalize without to",
			"company_id: acme\nvocabulary:\n  - {type: hard-normalize, from: watter}\n",
			"hard-normalize",
		},
		{
			"invalid intent gate regexp",
			"company_id: acme\nintent_gate:\n  patterns:\n    - {name: broken, pattern: \"[\"}\n",
			"intent_gate.patterns[0]",
		},
		{
			"clarifier without question",
			"company_id: acme\nclarifiers:\n  entries:\n    - {id: clarifier-a, hint_trigger: water-heater}\n",
			"question is required",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("LoadFromReader accepted an invalid bundle")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.yaml")
	if err := os.WriteFile(path, []byte(validBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CompanyID != "acme-plumbing" {
		t.Errorf("CompanyID = %q", cfg.CompanyID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load succeeded on a missing file")
	}
}

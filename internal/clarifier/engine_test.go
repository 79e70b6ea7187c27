package clarifier

import (
	"testing"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/textpipe"
)

func testConfig() config.ClarifierConfig {
	return config.ClarifierConfig{
		MaxAsksPerCall: 2,
		Entries: []config.ClarifierEntry{
			{
				ID: "thermostat", Priority: 20, HintTrigger: "maybe_thermostat",
				Question: "Is this about your thermostat?",
				LockKey:  "component", LockValue: "thermostat",
			},
			{
				ID: "water-heater", Priority: 10, HintTrigger: "water-heater",
				Question: "Is this about your water heater?",
				LockKey:  "component", LockValue: "water-heater",
			},
		},
	}
}

func TestPick_HighestPriorityApplicableEntry(t *testing.T) {
	e := Pick(testConfig(), []string{"maybe_thermostat", "water-heater"}, 0)
	if e == nil {
		t.Fatal("Pick returned nil")
	}
	if e.ID != "water-heater" {
		t.Errorf("ID = %q, want water-heater (priority 10 < 20)", e.ID)
	}
}

func TestPick_OnlyMatchingHints(t *testing.T) {
	e := Pick(testConfig(), []string{"maybe_thermostat"}, 0)
	if e == nil || e.ID != "thermostat" {
		t.Fatalf("entry = %+v, want thermostat", e)
	}
}

func TestPick_NoApplicableEntry(t *testing.T) {
	if e := Pick(testConfig(), []string{"garbage-disposal"}, 0); e != nil {
		t.Errorf("Pick = %+v, want nil", e)
	}
}

func TestPick_BudgetExhausted(t *testing.T) {
	if e := Pick(testConfig(), []string{"water-heater"}, 2); e != nil {
		t.Errorf("Pick = %+v, want nil when asks >= max", e)
	}
}

func TestPick_NoHints(t *testing.T) {
	if e := Pick(testConfig(), nil, 0); e != nil {
		t.Errorf("Pick = %+v, want nil", e)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want Resolution
	}{
		{"yes", ResolutionYes},
		{"yeah exactly", ResolutionYes},
		{"no", ResolutionNo},
		{"not really", ResolutionNo},
		{"yes no maybe", ResolutionUnclear},
		{"it's the one upstairs", ResolutionUnclear},
		{"", ResolutionUnclear},
	}
	for _, tc := range tests {
		got := Classify(textpipe.Tokenize(tc.raw))
		if got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

package trigger

import (
	"testing"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/textpipe"
)

func input(text string) Input {
	tokens := textpipe.Tokenize(text)
	return Input{
		NormalizedText: text,
		Tokens:         tokens,
		ExpandedTokens: tokens,
	}
}

func card(id string, priority int, keywords, phrases []string) config.TriggerCard {
	return config.TriggerCard{
		ID:       id,
		Enabled:  true,
		Priority: priority,
		Match:    config.TriggerMatch{Keywords: keywords, Phrases: phrases},
		Answer:   config.TriggerAnswer{Text: "answer for " + id},
	}
}

func TestMatch_KeywordAllWordsAnyOrder(t *testing.T) {
	cards := []config.TriggerCard{
		card("hours", 10, []string{"hours open"}, nil),
	}

	res := Match(input("are you open during normal hours"), cards, Options{})
	if res.Card == nil || res.Card.ID != "hours" {
		t.Fatalf("Card = %+v, want hours", res.Card)
	}
	if res.MatchType != MatchKeyword {
		t.Errorf("MatchType = %q, want keyword", res.MatchType)
	}
	if res.MatchedOn != "hours open" {
		t.Errorf("MatchedOn = %q, want %q", res.MatchedOn, "hours open")
	}
}

func TestMatch_PhraseIsContiguous(t *testing.T) {
	cards := []config.TriggerCard{
		card("fee", 10, nil, []string{"service call cost"}),
	}

	if res := Match(input("what does a service call cost"), cards, Options{}); res.Card == nil {
		t.Error("contiguous phrase did not match")
	}
	if res := Match(input("the service was a call about cost"), cards, Options{}); res.Card != nil {
		t.Errorf("non-contiguous words matched as phrase: %+v", res)
	}
}

func TestMatch_SingleWinnerByPriority(t *testing.T) {
	cards := []config.TriggerCard{
		card("low-prio", 30, []string{"heater"}, nil),
		card("high-prio", 10, []string{"heater"}, nil),
	}

	res := Match(input("my heater is broken"), cards, Options{})
	if res.Card == nil || res.Card.ID != "high-prio" {
		t.Fatalf("winner = %+v, want high-prio", res.Card)
	}
}

func TestMatch_PriorityTieBreaksByOrder(t *testing.T) {
	cards := []config.TriggerCard{
		card("first", 10, []string{"heater"}, nil),
		card("second", 10, []string{"heater"}, nil),
	}

	res := Match(input("heater question"), cards, Options{})
	if res.Card == nil || res.Card.ID != "first" {
		t.Fatalf("winner = %+v, want first", res.Card)
	}
}

func TestMatch_NegativeVetoes(t *testing.T) {
	c := card("fee", 10, []string{"price"}, nil)
	c.Match.Negatives = []string{"price match"}

	res := Match(input("do you price match competitors"), []config.TriggerCard{c}, Options{})
	if res.Card != nil {
		t.Fatalf("negative did not veto: %+v", res.Card)
	}
	if len(res.Evals) == 0 || res.Evals[0].Reason != "negative" {
		t.Errorf("Evals = %+v, want negative skip record", res.Evals)
	}
}

func TestMatch_GlobalNegativeVetoesAll(t *testing.T) {
	cards := []config.TriggerCard{
		card("hours", 10, []string{"hours"}, nil),
	}
	opts := Options{GlobalNegatives: []string{"wrong number"}}

	res := Match(input("sorry wrong number but what are your hours"), cards, opts)
	if res.Card != nil {
		t.Fatalf("global negative did not veto: %+v", res.Card)
	}
}

func TestMatch_ViaExpansionIsFlagged(t *testing.T) {
	in := Input{
		NormalizedText: "what is the cost",
		Tokens:         []string{"what", "is", "the", "cost"},
		ExpandedTokens: []string{"what", "is", "the", "cost", "price"},
	}
	cards := []config.TriggerCard{
		card("fee", 10, []string{"price"}, nil),
	}

	res := Match(in, cards, Options{})
	if res.Card == nil {
		t.Fatal("expanded token did not match")
	}
	if !res.ViaExpansion {
		t.Error("ViaExpansion = false, want true")
	}
}

func TestMatch_AuthoritativeHitNotFlagged(t *testing.T) {
	cards := []config.TriggerCard{
		card("fee", 10, []string{"price"}, nil),
	}
	res := Match(input("what is the price"), cards, Options{})
	if res.Card == nil {
		t.Fatal("no match")
	}
	if res.ViaExpansion {
		t.Error("ViaExpansion = true for an original-token hit")
	}
}

func TestMatch_HintBoostPromotesCard(t *testing.T) {
	generic := card("generic", 10, []string{"blank"}, nil)
	thermo := card("thermostat-blank", 12, []string{"blank"}, nil)
	thermo.Category = "thermostat"

	in := input("the screen is blank")

	// Without a hint the generic card's base priority wins.
	res := Match(in, []config.TriggerCard{generic, thermo}, Options{})
	if res.Card == nil || res.Card.ID != "generic" {
		t.Fatalf("without hint winner = %+v, want generic", res.Card)
	}

	// A thermostat hint moves the thermostat card ahead (12 - 5 < 10).
	in.Hints = []string{"maybe_thermostat"}
	res = Match(in, []config.TriggerCard{generic, thermo}, Options{})
	if res.Card == nil || res.Card.ID != "thermostat-blank" {
		t.Fatalf("with hint winner = %+v, want thermostat-blank", res.Card)
	}
}

func TestMatch_LockDoublesBoost(t *testing.T) {
	generic := card("generic", 10, []string{"blank"}, nil)
	thermo := card("thermostat-blank", 19, []string{"blank"}, nil)
	thermo.Category = "thermostat"

	in := input("the screen is blank")
	in.Hints = []string{"thermostat"}
	in.Locks = map[string]string{"component": "thermostat"}

	// 19 - 2*5 = 9 < 10.
	res := Match(in, []config.TriggerCard{generic, thermo}, Options{})
	if res.Card == nil || res.Card.ID != "thermostat-blank" {
		t.Fatalf("winner = %+v, want thermostat-blank", res.Card)
	}
}

func TestMatch_GreetingProtection(t *testing.T) {
	greetCard := card("greet", 10, []string{"hi"}, nil)

	// Short input: single-word greeting keyword counts.
	if res := Match(input("hi there"), []config.TriggerCard{greetCard}, Options{}); res.Card == nil {
		t.Error("short input: greeting keyword did not match")
	}

	// Long input: "hi" must not hijack the turn.
	long := input("hi yes my water heater is leaking everywhere right now")
	if res := Match(long, []config.TriggerCard{greetCard}, Options{}); res.Card != nil {
		t.Errorf("long input: greeting keyword matched: %+v", res.Card)
	}
}

func TestMatch_IntentGatePenalty(t *testing.T) {
	gate, err := NewGate(config.IntentGateConfig{
		Patterns: []config.IntentPattern{
			{Name: "service-down", Pattern: `\bnot working\b`},
		},
		DisqualifiedCategories: []string{"faq"},
		Penalty:                50,
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	faq := card("hours-faq", 10, []string{"hours"}, nil)
	faq.Category = "faq"
	repair := card("repair", 30, []string{"working"}, nil)
	repair.Category = "repair"

	in := input("my heater is not working what are your hours")
	res := Match(in, []config.TriggerCard{faq, repair}, Options{
		Gate:       gate,
		GateResult: gate.Evaluate(in.NormalizedText),
	})
	// FAQ card is penalised to 60; the repair card wins at 30.
	if res.Card == nil || res.Card.ID != "repair" {
		t.Fatalf("winner = %+v, want repair", res.Card)
	}
}

func TestMatch_EmergencyDisqualifies(t *testing.T) {
	gate, err := NewGate(config.IntentGateConfig{
		Patterns: []config.IntentPattern{
			{Name: "flood", Pattern: `\bflooding\b`, Emergency: true},
		},
		DisqualifiedCategories: []string{"faq"},
		Penalty:                50,
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	faq := card("hours-faq", 10, []string{"hours"}, nil)
	faq.Category = "faq"

	in := input("my basement is flooding what are your hours")
	res := Match(in, []config.TriggerCard{faq}, Options{
		Gate:       gate,
		GateResult: gate.Evaluate(in.NormalizedText),
	})
	if res.Card != nil {
		t.Fatalf("disqualified card still matched: %+v", res.Card)
	}
	if len(res.Evals) == 0 || res.Evals[0].Reason != "intent-disqualified" {
		t.Errorf("Evals = %+v, want intent-disqualified record", res.Evals)
	}
}

func TestMatch_EvalRecordsBounded(t *testing.T) {
	var cards []config.TriggerCard
	for i := 0; i < 20; i++ {
		cards = append(cards, card("card-"+string(rune('a'+i)), i, []string{"nomatchword"}, nil))
	}

	res := Match(input("something else entirely"), cards, Options{})
	if len(res.Evals) > maxEvalRecords {
		t.Errorf("len(Evals) = %d, want <= %d", len(res.Evals), maxEvalRecords)
	}
}

func TestGate_Evaluate(t *testing.T) {
	gate, err := NewGate(config.IntentGateConfig{
		Patterns: []config.IntentPattern{
			{Name: "service-down", Pattern: `\b(not working|stopped working)\b`},
			{Name: "flood", Pattern: `\bflooding\b`, Emergency: true},
		},
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	tests := []struct {
		text      string
		flagged   bool
		emergency bool
	}{
		{"my furnace is NOT WORKING", true, false},
		{"the basement is flooding", true, true},
		{"what are your hours", false, false},
	}
	for _, tc := range tests {
		res := gate.Evaluate(tc.text)
		if res.Flagged != tc.flagged || res.Emergency != tc.emergency {
			t.Errorf("Evaluate(%q) = %+v, want flagged=%v emergency=%v",
				tc.text, res, tc.flagged, tc.emergency)
		}
	}
}

func TestNewGate_BadPattern(t *testing.T) {
	_, err := NewGate(config.IntentGateConfig{
		Patterns: []config.IntentPattern{{Name: "bad", Pattern: `(\b`}},
	})
	if err == nil {
		t.Fatal("NewGate accepted a malformed pattern")
	}
}

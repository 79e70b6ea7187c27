package assist

import (
	"regexp"
	"strings"

	"github.com/relayline/frontdesk/internal/config"
)

// parrotWindow is the consecutive-word overlap at which model output is
// considered a parrot of the caller input.
const parrotWindow = 8

// bookingBans is the built-in booking-language regex set. Configuration
// may add patterns but can never remove these: the orchestrator owns
// discovery only, and any scheduling language from the model would commit
// the business to something the booking flow never confirmed.
var bookingBans = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?)\b`),
	regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`(?i)\bschedule\s+you\s+for\b`),
	regexp.MustCompile(`(?i)\bnext\s+available\b`),
	regexp.MustCompile(`(?i)\b(this|tomorrow|later\s+this)\s+(morning|afternoon|evening)\b`),
	regexp.MustCompile(`(?i)\bo'?clock\b`),
}

// Content-ban regex sets, applied per config flag.
var (
	pricingBan    = regexp.MustCompile(`(?i)(\$\s?\d|\b(price|prices|pricing|cost|costs|charge|charges|fee|fees|dollars)\b)`)
	guaranteesBan = regexp.MustCompile(`(?i)\b(guarantee|guaranteed|promise|promised|certainly will)\b`)
	legalBan      = regexp.MustCompile(`(?i)\b(legal|legally|liability|liable|lawsuit|sue)\b`)
)

// Violation identifiers recorded on llm-constraint-violation events.
const (
	ViolationEmpty       = "empty-output"
	ViolationParrot      = "anti-parrot"
	ViolationBookingLang = "booking-language"
	ViolationPricing     = "pricing"
	ViolationGuarantees  = "guarantees"
	ViolationLegal       = "legal"
	ViolationExtraBan    = "extra-pattern"
)

// Violation is one failed validation rule.
type Violation struct {
	Rule string `json:"rule"`

	// Detail names the offending pattern or overlapping text.
	Detail string `json:"detail"`
}

// ValidationResult is the outcome of validating one model output.
type ValidationResult struct {
	// Text is the adjusted output. Only meaningful when Passed.
	Text string `json:"text"`

	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`

	// Truncated is true when the sentence cap cut the output.
	Truncated bool `json:"truncated"`
}

// Validate runs the mode-aware validation chain on a raw model output.
// Sentence capping and terminal-punctuation rules adjust the text;
// parroting, booking language, and content bans reject it outright.
func Validate(cfg config.AssistConfig, callerInput, output string) ValidationResult {
	var res ValidationResult

	text := strings.TrimSpace(output)
	if text == "" {
		res.Violations = append(res.Violations, Violation{Rule: ViolationEmpty})
		return res
	}

	sentences := SplitSentences(text)
	if len(sentences) > cfg.MaxSentences {
		sentences = sentences[:cfg.MaxSentences]
		res.Truncated = true
	}

	if cfg.Mode == config.AssistAnswerReturn {
		// An answer must not hand the turn back with a question.
		for len(sentences) > 0 && strings.HasSuffix(sentences[len(sentences)-1], "?") {
			sentences = sentences[:len(sentences)-1]
		}
		if len(sentences) == 0 {
			res.Violations = append(res.Violations, Violation{Rule: ViolationEmpty, Detail: "only question sentences"})
			return res
		}
	}

	text = strings.Join(sentences, " ")
	if !strings.ContainsAny(text[len(text)-1:], ".?!") {
		text += "."
	}

	if overlap := parrotOverlap(callerInput, text, parrotWindow); overlap != "" {
		res.Violations = append(res.Violations, Violation{Rule: ViolationParrot, Detail: overlap})
	}
	for _, re := range bookingBans {
		if m := re.FindString(text); m != "" {
			res.Violations = append(res.Violations, Violation{Rule: ViolationBookingLang, Detail: re.String()})
		}
	}
	for _, raw := range cfg.Bans.ExtraPatterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			res.Violations = append(res.Violations, Violation{Rule: ViolationExtraBan, Detail: raw})
		}
	}
	if cfg.Bans.Pricing && pricingBan.MatchString(text) {
		res.Violations = append(res.Violations, Violation{Rule: ViolationPricing, Detail: pricingBan.FindString(text)})
	}
	if cfg.Bans.Guarantees && guaranteesBan.MatchString(text) {
		res.Violations = append(res.Violations, Violation{Rule: ViolationGuarantees, Detail: guaranteesBan.FindString(text)})
	}
	if cfg.Bans.Legal && legalBan.MatchString(text) {
		res.Violations = append(res.Violations, Violation{Rule: ViolationLegal, Detail: legalBan.FindString(text)})
	}

	if len(res.Violations) > 0 {
		return res
	}

	res.Passed = true
	res.Text = text
	return res
}

// SplitSentences splits text on terminal punctuation, keeping the
// terminator attached to each sentence.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// parrotOverlap returns the first window of `window` consecutive caller
// words found verbatim in output (case-insensitive), or "".
func parrotOverlap(callerInput, output string, window int) string {
	words := strings.Fields(strings.ToLower(callerInput))
	if len(words) < window {
		return ""
	}
	lowerOut := strings.ToLower(output)
	for i := 0; i+window <= len(words); i++ {
		span := strings.Join(words[i:i+window], " ")
		if strings.Contains(lowerOut, span) {
			return span
		}
	}
	return ""
}

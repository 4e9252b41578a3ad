// Package guard implements the input and output guardrails.
//
// Input guardrails run before any prompt transformation: a prompt that
// trips them is rejected without touching PII masking, memory or a model.
// Output guardrails run on the model response before it is returned to the
// client. Both are pure pattern checks with no network access, so a blocked
// request costs nothing.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// Block messages are part of the wire contract: clients match on them.
const (
	BlockInjectionMessage = "Prompt appears to contain manipulation or jailbreak attempts. Please rephrase your request."
	BlockToxicityMessage  = "Your request contains content that violates our safety policy."
)

// injectionPatterns are common prompt injection / jailbreak markers,
// matched case-insensitively against the raw prompt.
var injectionPatterns = []string{
	`ignore\s+(all\s+)?(previous|above|prior)\s+instructions`,
	`disregard\s+(all\s+)?(previous|above|prior)\s+instructions`,
	`forget\s+(all\s+)?(previous|above|prior)\s+instructions`,
	`you\s+are\s+now\s+(in\s+)?(a\s+)?(different\s+)?(mode|model|persona)`,
	`pretend\s+(you\s+are|to\s+be)\s+`,
	`act\s+as\s+if\s+you\s+(are|were)\s+`,
	`system\s*:\s*`,
	`\[\[INST\]\]`,
	`<\|im_start\|>`,
	`<\|im_end\|>`,
	`human\s*:\s*.*\s*assistant\s*:\s*`,
	`override\s+(your|the)\s+(instructions|safety|rules)`,
	`bypass\s+(your|the)\s+(restrictions|safety|content\s+policy)`,
	`jailbreak`,
	`\.env\s*[=:]`,
	`sudo\s+`,
	`rm\s+-rf`,
	`eval\s*\(`,
}

// toxicityBlocklist holds harmful phrases matched as case-insensitive
// substrings. Not exhaustive; the rules file can extend it.
var toxicityBlocklist = []string{
	// Violence
	"kill yourself", "kys", "commit suicide", "self-harm",
	"bomb instructions", "make explosives", "build a bomb",
	"how to hurt", "how to harm", "how to murder",
	// Hate
	"race war", "ethnic cleansing", "genocide of",
	// CSAM / illegal
	"child porn", "child sexual", "underage",
	"detailed sex with minors", "sexual abuse of children",
}

// InputResult reports the outcome of an input guardrail check.
type InputResult struct {
	Passed            bool
	Reason            string
	InjectionDetected bool
	InjectionMatch    string
	ToxicityDetected  bool
	ToxicityMatch     string
}

// Detail renders the result as an audit detail map.
func (r InputResult) Detail() map[string]any {
	return map[string]any{
		"passed":             r.Passed,
		"injection_detected": r.InjectionDetected,
		"injection_match":    r.InjectionMatch,
		"toxicity_detected":  r.ToxicityDetected,
		"toxicity_match":     r.ToxicityMatch,
	}
}

// InputChecker detects prompt injection attempts and toxic input.
type InputChecker struct {
	injection []*regexp.Regexp
	toxic     []string
}

// NewInputChecker builds an InputChecker from the built-in pattern banks
// plus any extra patterns and blocklist phrases (typically from the rules
// file). Extra regular expressions that fail to compile are reported as an
// error rather than silently skipped.
func NewInputChecker(extraPatterns, extraPhrases []string) (*InputChecker, error) {
	c := &InputChecker{}
	for _, p := range injectionPatterns {
		c.injection = append(c.injection, regexp.MustCompile("(?i)"+p))
	}
	for _, p := range extraPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile injection pattern %q: %w", p, err)
		}
		c.injection = append(c.injection, re)
	}
	for _, w := range toxicityBlocklist {
		c.toxic = append(c.toxic, strings.ToLower(w))
	}
	for _, w := range extraPhrases {
		c.toxic = append(c.toxic, strings.ToLower(w))
	}
	return c, nil
}

// Check runs the injection then toxicity banks against the prompt. The first
// matching pattern wins; match text in the result is truncated to 50 runes
// to keep audit entries small.
func (c *InputChecker) Check(prompt string) InputResult {
	for _, re := range c.injection {
		if re.MatchString(prompt) {
			return InputResult{
				Passed:            false,
				Reason:            BlockInjectionMessage,
				InjectionDetected: true,
				InjectionMatch:    truncate(re.String(), 50),
			}
		}
	}

	lower := strings.ToLower(prompt)
	for _, phrase := range c.toxic {
		if strings.Contains(lower, phrase) {
			return InputResult{
				Passed:           false,
				Reason:           BlockToxicityMessage,
				ToxicityDetected: true,
				ToxicityMatch:    phrase,
			}
		}
	}

	return InputResult{Passed: true}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

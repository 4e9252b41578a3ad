package guard

import (
	"regexp"
	"strings"
)

// FilteredResponseMessage replaces a model response that tripped the harmful
// content bank. Part of the wire contract.
const FilteredResponseMessage = "The model's response was filtered for safety. Please try a different prompt."

// leakPatterns indicate a leaked system prompt or internal instructions.
// A leak is flagged but never blocked: many models benignly say "as an AI
// assistant" in ordinary answers.
var leakPatterns = []string{
	`as an AI (assistant|language model)`,
	`I (am|cannot|can't) (provide|assist|help) with`,
	`OpenAI|Anthropic|Claude|GPT[- ]?\d`,
	`my (instructions|guidelines|programming) (say|state|require)`,
	`according to my (system|training) (prompt|instructions)`,
	`I'm (sorry|unable).*(policy|guidelines|safety)`,
}

// outputHarmfulPatterns block the response outright when matched.
var outputHarmfulPatterns = []string{
	`how\s+to\s+(build|make|create)\s+(a\s+)?(bomb|explosive|weapon)`,
	`step\s+by\s+step.*(kill|murder|harm)`,
	`child\s+(porn|sexual|abuse)`,
	`detailed\s+instructions\s+for\s+(violence|self-harm)`,
}

// OutputResult reports the outcome of an output guardrail check. Response
// carries the text to return to the client: the original response when it
// passed, or FilteredResponseMessage when it was blocked.
type OutputResult struct {
	Passed          bool
	Response        string
	LeakDetected    bool
	HarmfulDetected bool
}

// Detail renders the result as an audit detail map.
func (r OutputResult) Detail() map[string]any {
	return map[string]any{
		"passed":           r.Passed,
		"leak_detected":    r.LeakDetected,
		"harmful_detected": r.HarmfulDetected,
	}
}

// OutputChecker validates model output before it is returned.
type OutputChecker struct {
	leak    []*regexp.Regexp
	harmful []*regexp.Regexp
}

// NewOutputChecker builds an OutputChecker from the built-in pattern banks.
func NewOutputChecker() *OutputChecker {
	c := &OutputChecker{}
	for _, p := range leakPatterns {
		c.leak = append(c.leak, regexp.MustCompile("(?i)"+p))
	}
	for _, p := range outputHarmfulPatterns {
		c.harmful = append(c.harmful, regexp.MustCompile("(?i)"+p))
	}
	return c
}

// Check runs the leak then harmful banks against the response.
//
// Provider error strings (the "[Error]" prefix) never come from a model, so
// they bypass the check entirely and pass through unchanged.
func (c *OutputChecker) Check(response string) OutputResult {
	if strings.HasPrefix(strings.TrimSpace(response), "[Error]") {
		return OutputResult{Passed: true, Response: response}
	}

	res := OutputResult{Passed: true, Response: response}
	for _, re := range c.leak {
		if re.MatchString(response) {
			res.LeakDetected = true
			break
		}
	}

	for _, re := range c.harmful {
		if re.MatchString(response) {
			res.Passed = false
			res.HarmfulDetected = true
			res.Response = FilteredResponseMessage
			return res
		}
	}

	return res
}

package pipeline

import (
	"fmt"
	"strings"
)

// Client-selectable cloud providers. Gemini is deliberately absent: it can
// only be reached when a policy whitelists it explicitly.
var clientCloudProviders = map[string]struct{}{
	"GROQ":       {},
	"OPENAI":     {},
	"MISTRAL":    {},
	"OPENROUTER": {},
}

const maxPromptLen = 10000

// Request is the body of POST /gateway and POST /mcp/gateway.
type Request struct {
	Prompt        string `json:"prompt"`
	Mode          string `json:"mode"`
	CloudProvider string `json:"cloud_provider"`
}

// Validate checks the request and normalizes its enum fields in place:
// mode defaults to BALANCED, cloud_provider to GROQ, both uppercased.
func (r *Request) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if len(r.Prompt) > maxPromptLen {
		return fmt.Errorf("prompt exceeds %d characters", maxPromptLen)
	}

	r.Mode = strings.ToUpper(strings.TrimSpace(r.Mode))
	switch r.Mode {
	case "":
		r.Mode = "BALANCED"
	case "STRICT", "BALANCED", "PERFORMANCE":
	default:
		return fmt.Errorf("mode must be one of STRICT, BALANCED, PERFORMANCE")
	}

	r.CloudProvider = strings.ToUpper(strings.TrimSpace(r.CloudProvider))
	if r.CloudProvider == "" {
		r.CloudProvider = "GROQ"
	}
	if _, ok := clientCloudProviders[r.CloudProvider]; !ok {
		return fmt.Errorf("cloud_provider must be one of GROQ, OPENAI, MISTRAL, OPENROUTER")
	}
	return nil
}

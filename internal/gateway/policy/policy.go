// Package policy implements the enterprise policy model and the routing
// decision engine.
//
// Policies are fetched from DataHaven per user and enforced at the gateway's
// decision points: routing (mode + allow_cloud), compression
// (compression_enabled), provider selection (whitelist) and prompt size
// (max_tokens). Evaluation is purely deterministic -- no model involvement.
package policy

import (
	"fmt"
	"strings"
)

// Mode selects the routing posture of a policy.
type Mode string

const (
	// ModeStrict always routes locally, regardless of prompt size.
	ModeStrict Mode = "STRICT"
	// ModeBalanced routes locally below the token threshold, cloud above.
	ModeBalanced Mode = "BALANCED"
	// ModePerformance prefers cloud whenever the policy allows it.
	ModePerformance Mode = "PERFORMANCE"
)

// ParseMode maps a wire string onto a Mode, defaulting to BALANCED for
// unknown values.
func ParseMode(s string) Mode {
	switch strings.ToUpper(s) {
	case string(ModeStrict):
		return ModeStrict
	case string(ModePerformance):
		return ModePerformance
	default:
		return ModeBalanced
	}
}

// Policy is the enterprise policy object fetched via DataHaven.
type Policy struct {
	Mode                 Mode     `json:"mode"`
	AllowCloud           bool     `json:"allow_cloud"`
	MaxTokens            int      `json:"max_tokens"`
	RequirePIIMasking    bool     `json:"require_pii_masking"`
	CompressionEnabled   bool     `json:"compression_enabled"`
	WhitelistedProviders []string `json:"whitelisted_providers"`
}

// Default returns the permissive policy used when DataHaven is unreachable
// or returns no document for the user.
func Default() Policy {
	return Policy{
		Mode:                 ModeBalanced,
		AllowCloud:           true,
		MaxTokens:            4096,
		RequirePIIMasking:    true,
		CompressionEnabled:   true,
		WhitelistedProviders: []string{"local", "groq", "openai", "mistral", "openrouter"},
	}
}

// AllowsProvider reports whether the provider appears in the whitelist.
// Comparison is case-insensitive.
func (p Policy) AllowsProvider(provider string) bool {
	want := strings.ToLower(provider)
	for _, w := range p.WhitelistedProviders {
		if strings.ToLower(w) == want {
			return true
		}
	}
	return false
}

// cloudProviders is the order in which whitelisted cloud backends are
// considered when the preferred one is not allowed.
var cloudProviders = []string{"groq", "openai", "mistral", "openrouter"}

// Route decisions.
const (
	RouteLocal = "LOCAL"
	RouteCloud = "CLOUD"
)

// Decision is the outcome of a routing evaluation.
type Decision struct {
	Route    string
	Provider string
	Model    string
}

// Engine makes routing decisions from a policy and a token count.
type Engine struct {
	localModel     string
	cloudModels    map[string]string // lowercase provider → model
	tokenThreshold int
}

// NewEngine returns an Engine. cloudModels maps lowercase provider names
// (groq, openai, mistral, openrouter) to their configured model IDs.
func NewEngine(localModel string, cloudModels map[string]string, tokenThreshold int) *Engine {
	models := make(map[string]string, len(cloudModels))
	for k, v := range cloudModels {
		models[strings.ToLower(k)] = v
	}
	if tokenThreshold <= 0 {
		tokenThreshold = 500
	}
	return &Engine{
		localModel:     localModel,
		cloudModels:    models,
		tokenThreshold: tokenThreshold,
	}
}

// ShouldCompress reports whether the compression stage runs for this policy.
func (e *Engine) ShouldCompress(p Policy) bool {
	return p.CompressionEnabled
}

// EnforceTokenLimit checks the built prompt size against the policy cap.
func (e *Engine) EnforceTokenLimit(p Policy, tokenCount int) (bool, string) {
	if tokenCount > p.MaxTokens {
		return false, fmt.Sprintf(
			"Token count (%d) exceeds policy limit (%d). Please reduce prompt size.",
			tokenCount, p.MaxTokens)
	}
	return true, ""
}

// ValidateProvider checks a provider against the policy whitelist.
func (e *Engine) ValidateProvider(p Policy, provider string) (bool, string) {
	if !p.AllowsProvider(provider) {
		return false, fmt.Sprintf("Provider %q is not in policy whitelist", provider)
	}
	return true, ""
}

// CanFallbackToCloud reports whether a local inference failure may fail over
// to a cloud backend under this policy.
func (e *Engine) CanFallbackToCloud(p Policy) bool {
	if !p.AllowCloud || p.Mode == ModeStrict {
		return false
	}
	for _, cp := range cloudProviders {
		if p.AllowsProvider(cp) {
			return true
		}
	}
	return false
}

// DecideRoute evaluates the decision table:
//
//	STRICT       → always LOCAL
//	BALANCED     → LOCAL below the token threshold or when cloud is not
//	               allowed, otherwise CLOUD
//	PERFORMANCE  → CLOUD whenever allowed, otherwise LOCAL
//
// preferredCloud is the client's cloud_provider choice (lowercase or
// uppercase); when it is not whitelisted the first whitelisted cloud
// provider wins instead.
func (e *Engine) DecideRoute(p Policy, tokenCount int, preferredCloud string) Decision {
	if p.Mode == ModeStrict {
		return Decision{Route: RouteLocal, Provider: "local", Model: e.localModel}
	}

	cloudAllowed := false
	if p.AllowCloud {
		for _, cp := range cloudProviders {
			if p.AllowsProvider(cp) {
				cloudAllowed = true
				break
			}
		}
	}

	if p.Mode == ModeBalanced {
		if tokenCount < e.tokenThreshold || !cloudAllowed {
			return Decision{Route: RouteLocal, Provider: "local", Model: e.localModel}
		}
		return e.cloudDecision(p, preferredCloud)
	}

	// PERFORMANCE
	if cloudAllowed {
		return e.cloudDecision(p, preferredCloud)
	}
	return Decision{Route: RouteLocal, Provider: "local", Model: e.localModel}
}

// SelectCloudProvider picks the cloud backend: the preferred one when
// whitelisted, otherwise the first whitelisted provider in fixed order.
// When nothing is whitelisted the preferred provider is returned anyway and
// fails gracefully downstream.
func (e *Engine) SelectCloudProvider(p Policy, preferred string) string {
	preferred = strings.ToLower(preferred)
	if preferred == "" {
		preferred = "groq"
	}
	if p.AllowsProvider(preferred) {
		return preferred
	}
	for _, cp := range cloudProviders {
		if p.AllowsProvider(cp) {
			return cp
		}
	}
	return preferred
}

func (e *Engine) cloudDecision(p Policy, preferred string) Decision {
	provider := e.SelectCloudProvider(p, preferred)
	model := e.cloudModels[provider]
	if model == "" {
		model = e.cloudModels["groq"]
	}
	return Decision{Route: RouteCloud, Provider: provider, Model: model}
}

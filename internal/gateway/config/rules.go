package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the optional operator rules file (GATEWAY_RULES_FILE). It extends
// the built-in guardrail pattern banks and can replace the offline default
// policy used when DataHaven is unreachable.
type Rules struct {
	Guardrails    GuardrailRules `yaml:"guardrails"`
	DefaultPolicy *PolicyRule    `yaml:"default_policy"`
}

// GuardrailRules holds extra guardrail patterns. Injection patterns are
// regular expressions (compiled case-insensitively); toxicity phrases are
// matched as substrings.
type GuardrailRules struct {
	InjectionPatterns []string `yaml:"injection_patterns"`
	ToxicityPhrases   []string `yaml:"toxicity_phrases"`
}

// PolicyRule overrides fields of the offline default policy. Pointer fields
// distinguish "not set" from an explicit false.
type PolicyRule struct {
	Mode                 string   `yaml:"mode"`
	AllowCloud           *bool    `yaml:"allow_cloud"`
	MaxTokens            int      `yaml:"max_tokens"`
	RequirePIIMasking    *bool    `yaml:"require_pii_masking"`
	CompressionEnabled   *bool    `yaml:"compression_enabled"`
	WhitelistedProviders []string `yaml:"whitelisted_providers"`
}

// LoadRules reads and parses the rules file at path.
func LoadRules(path string) (Rules, error) {
	var rules Rules
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rules, nil
}

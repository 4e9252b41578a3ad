package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/config"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := config.FromEnv()

	if cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %s, want :8000", cfg.ListenAddr)
	}
	if cfg.Providers.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("OllamaBaseURL = %s", cfg.Providers.OllamaBaseURL)
	}
	if cfg.Providers.LocalModel != "llama3.2" {
		t.Errorf("LocalModel = %s", cfg.Providers.LocalModel)
	}
	if cfg.Routing.TokenThreshold != 500 {
		t.Errorf("TokenThreshold = %d, want 500", cfg.Routing.TokenThreshold)
	}
	if cfg.RateLimit.MaxRequests != 60 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %d/%v, want 60/1m", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}
	if cfg.Memory.Path != ":memory:" || cfg.Memory.TopK != 3 {
		t.Errorf("memory = %s/%d", cfg.Memory.Path, cfg.Memory.TopK)
	}
	if cfg.Cost.Per1KInput != 0.0005 || cfg.Cost.Per1KOutput != 0.0015 {
		t.Errorf("cost = %v/%v", cfg.Cost.Per1KInput, cfg.Cost.Per1KOutput)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_ADDR", ":9999")
	t.Setenv("TOKEN_THRESHOLD", "800")
	t.Setenv("RATE_LIMIT_WINDOW_SEC", "30")
	t.Setenv("COST_PER_1K_INPUT", "0.002")

	cfg := config.FromEnv()
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %s", cfg.ListenAddr)
	}
	if cfg.Routing.TokenThreshold != 800 {
		t.Errorf("TokenThreshold = %d", cfg.Routing.TokenThreshold)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("Window = %v", cfg.RateLimit.Window)
	}
	if cfg.Cost.Per1KInput != 0.002 {
		t.Errorf("Per1KInput = %v", cfg.Cost.Per1KInput)
	}
}

func TestFromEnvBadNumbersFallBack(t *testing.T) {
	t.Setenv("TOKEN_THRESHOLD", "not-a-number")
	t.Setenv("RATE_LIMIT_REQUESTS", "-5")

	cfg := config.FromEnv()
	if cfg.Routing.TokenThreshold != 500 {
		t.Errorf("TokenThreshold = %d, want default 500", cfg.Routing.TokenThreshold)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `
guardrails:
  injection_patterns:
    - 'leak\s+the\s+vault'
  toxicity_phrases:
    - forbidden phrase
default_policy:
  mode: STRICT
  allow_cloud: false
  max_tokens: 2048
  whitelisted_providers: [local]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	rules, err := config.LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules.Guardrails.InjectionPatterns) != 1 {
		t.Errorf("injection patterns = %v", rules.Guardrails.InjectionPatterns)
	}
	if len(rules.Guardrails.ToxicityPhrases) != 1 || rules.Guardrails.ToxicityPhrases[0] != "forbidden phrase" {
		t.Errorf("toxicity phrases = %v", rules.Guardrails.ToxicityPhrases)
	}

	if rules.DefaultPolicy == nil {
		t.Fatal("default_policy missing")
	}
	if rules.DefaultPolicy.Mode != "STRICT" || rules.DefaultPolicy.MaxTokens != 2048 {
		t.Errorf("policy rule = %+v", rules.DefaultPolicy)
	}
	if rules.DefaultPolicy.AllowCloud == nil || *rules.DefaultPolicy.AllowCloud {
		t.Error("allow_cloud should be an explicit false")
	}
	if rules.DefaultPolicy.RequirePIIMasking != nil {
		t.Error("unset require_pii_masking should stay nil")
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := config.LoadRules(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing rules file")
	}
}

func TestLoadRulesMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("guardrails: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.LoadRules(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

// Package config loads gateway configuration from environment variables.
//
// Every knob has a working default so the gateway starts with zero
// configuration: local inference via Ollama on localhost, cloud providers
// disabled until their API keys appear, permissive rate limits.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration of the gateway process.
type Config struct {
	// ListenAddr is the HTTP listen address (e.g. ":8000").
	ListenAddr string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
	// LogFormat is "text" or "json".
	LogFormat string

	// RulesFile optionally points to a YAML file with extra guardrail
	// patterns and an offline default policy. Empty disables it.
	RulesFile string

	Providers ProviderConfig
	Routing   RoutingConfig
	RateLimit RateLimitConfig
	Memory    MemoryConfig
	DataHaven DataHavenConfig
	Cost      CostConfig
}

// ProviderConfig holds per-backend credentials, endpoints and model names.
type ProviderConfig struct {
	OllamaBaseURL string
	LocalModel    string

	OpenAIAPIKey string
	OpenAIModel  string

	GroqAPIKey string
	GroqModel  string

	GeminiAPIKey string
	GeminiModel  string

	MistralAPIKey  string
	MistralBaseURL string
	MistralModel   string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string
}

// RoutingConfig controls the policy engine's routing decision.
type RoutingConfig struct {
	// TokenThreshold is the prompt size below which BALANCED mode stays local.
	TokenThreshold int
}

// RateLimitConfig parameterizes the sliding-window admission limiter.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// MemoryConfig controls the context memory layer.
type MemoryConfig struct {
	// Path is the SQLite database path. ":memory:" keeps it in-process.
	Path string
	// TopK is how many context snippets a retrieval returns.
	TopK int
}

// DataHavenConfig points at the external policy/audit service.
type DataHavenConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// CostConfig holds the per-1k-token pricing used for cloud cost estimates.
type CostConfig struct {
	Per1KInput  float64
	Per1KOutput float64
}

// FromEnv builds a Config from the process environment.
func FromEnv() Config {
	return Config{
		ListenAddr: envOr("GATEWAY_ADDR", ":8000"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		LogFormat:  envOr("LOG_FORMAT", "text"),
		RulesFile:  os.Getenv("GATEWAY_RULES_FILE"),
		Providers: ProviderConfig{
			OllamaBaseURL: envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
			LocalModel:    envOr("LOCAL_MODEL", "llama3.2"),

			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:  envOr("OPENAI_MODEL", "gpt-3.5-turbo"),

			GroqAPIKey: os.Getenv("GROQ_API_KEY"),
			GroqModel:  envOr("GROQ_MODEL", "llama-3.3-70b-versatile"),

			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			GeminiModel:  envOr("GEMINI_MODEL", "gemini-2.0-flash"),

			MistralAPIKey:  os.Getenv("MISTRAL_API_KEY"),
			MistralBaseURL: envOr("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),
			MistralModel:   envOr("MISTRAL_MODEL", "mistral-small-latest"),

			OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
			OpenRouterBaseURL: envOr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			OpenRouterModel:   envOr("OPENROUTER_MODEL", "mistralai/mistral-small"),
			OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
			OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),
		},
		Routing: RoutingConfig{
			TokenThreshold: envInt("TOKEN_THRESHOLD", 500),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: envInt("RATE_LIMIT_REQUESTS", 60),
			Window:      envSeconds("RATE_LIMIT_WINDOW_SEC", 60*time.Second),
		},
		Memory: MemoryConfig{
			Path: envOr("MEMORY_DB_PATH", ":memory:"),
			TopK: envInt("MEMORY_TOP_K", 3),
		},
		DataHaven: DataHavenConfig{
			ServiceURL: envOr("DATAHAVEN_SERVICE_URL", "http://localhost:3001"),
			Timeout:    envSeconds("DATAHAVEN_TIMEOUT", 5*time.Second),
		},
		Cost: CostConfig{
			Per1KInput:  envFloat("COST_PER_1K_INPUT", 0.0005),
			Per1KOutput: envFloat("COST_PER_1K_OUTPUT", 0.0015),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// envSeconds parses a plain number of seconds (the unit used by the wire
// contract, e.g. RATE_LIMIT_WINDOW_SEC=60) into a time.Duration.
func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return time.Duration(f * float64(time.Second))
}

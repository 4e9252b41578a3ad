package provider

import "log/slog"

// Default cloud endpoints.
const (
	defaultOpenAIBase     = "https://api.openai.com/v1"
	groqBase              = "https://api.groq.com/openai/v1"
	defaultMistralBase    = "https://api.mistral.ai/v1"
	defaultOpenRouterBase = "https://openrouter.ai/api/v1"
)

// NewOpenAI returns the OpenAI backend.
func NewOpenAI(apiKey, model string, logger *slog.Logger) Provider {
	return newChatProvider(chatConfig{
		name:  "openai",
		label: "OpenAI",
		missingKey: ErrorPrefix + " No OPENAI_API_KEY configured. " +
			"Set it in your .env file to use OpenAI cloud routing.",
		apiKey:  apiKey,
		baseURL: defaultOpenAIBase,
		model:   model,
	}, logger)
}

// NewGroq returns the Groq backend (fast inference, free tier available).
func NewGroq(apiKey, model string, logger *slog.Logger) Provider {
	return newChatProvider(chatConfig{
		name:  "groq",
		label: "Groq",
		missingKey: ErrorPrefix + " No GROQ_API_KEY configured. " +
			"Get a free key at console.groq.com/keys and add it to .env",
		apiKey:  apiKey,
		baseURL: groqBase,
		model:   model,
	}, logger)
}

// NewMistral returns the Mistral backend. baseURL falls back to the public
// Mistral API when empty.
func NewMistral(apiKey, model, baseURL string, logger *slog.Logger) Provider {
	if baseURL == "" {
		baseURL = defaultMistralBase
	}
	return newChatProvider(chatConfig{
		name:  "mistral",
		label: "Mistral",
		missingKey: ErrorPrefix + " No MISTRAL_API_KEY configured. " +
			"Set it in your .env file to use Mistral cloud routing.",
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
	}, logger)
}

// NewOpenRouter returns the OpenRouter backend. siteURL and appName become
// the optional attribution headers; empty values are omitted.
func NewOpenRouter(apiKey, model, baseURL, siteURL, appName string, logger *slog.Logger) Provider {
	if baseURL == "" {
		baseURL = defaultOpenRouterBase
	}
	headers := map[string]string{}
	if siteURL != "" {
		headers["HTTP-Referer"] = siteURL
	}
	if appName != "" {
		headers["X-Title"] = appName
	}
	return newChatProvider(chatConfig{
		name:  "openrouter",
		label: "OpenRouter",
		missingKey: ErrorPrefix + " No OPENROUTER_API_KEY configured. " +
			"Set it in your .env file to use OpenRouter cloud routing.",
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		headers: headers,
	}, logger)
}

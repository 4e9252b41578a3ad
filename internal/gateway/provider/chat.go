package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/prompt"
)

const chatInferTimeout = 120 * time.Second

// chatConfig parameterizes one OpenAI-compatible backend.
type chatConfig struct {
	// name is the registry key (openai, groq, mistral, openrouter).
	name string
	// label appears in "[Error] <label> inference failed: ..." strings.
	label string
	// missingKey is the full error text returned when no API key is set.
	missingKey string
	apiKey     string
	baseURL    string
	model      string
	// headers are extra request headers (OpenRouter attribution).
	headers map[string]string
}

// chatProvider implements Provider for any backend speaking the OpenAI
// chat completions wire format.
type chatProvider struct {
	cfg    chatConfig
	client *http.Client
	logger *slog.Logger
}

func newChatProvider(cfg chatConfig, logger *slog.Logger) *chatProvider {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	return &chatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: chatInferTimeout},
		logger: logger,
	}
}

func (p *chatProvider) Name() string  { return p.cfg.name }
func (p *chatProvider) Model() string { return p.cfg.model }

// Available is a credentials check: cloud backends are usable exactly when
// an API key is configured.
func (p *chatProvider) Available(context.Context) bool {
	return p.cfg.apiKey != ""
}

// --- wire types (subset of the chat completions API) ---

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content   json.RawMessage `json:"content"`
		ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
	} `json:"message"`
}

// Infer sends a chat completion request and folds every failure into an
// "[Error] ..." response per the provider contract.
func (p *chatProvider) Infer(ctx context.Context, model string, messages []prompt.Message) (string, int) {
	if p.cfg.apiKey == "" {
		return p.cfg.missingKey, 0
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = p.cfg.model
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return p.fail(err), 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return p.fail(err), 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.apiKey)
	for k, v := range p.cfg.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("inference failed", "provider", p.cfg.name, "err", err)
		return p.fail(err), 0
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.fail(err), 0
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		if resp.StatusCode >= 400 {
			return p.failMsg(fmt.Sprintf("HTTP %d", resp.StatusCode)), 0
		}
		return p.fail(err), 0
	}

	if chat.Error != nil {
		p.logger.Error("inference failed", "provider", p.cfg.name, "api_error", chat.Error.Message)
		return p.failMsg(chat.Error.Message), 0
	}
	if resp.StatusCode >= 400 {
		return p.failMsg(fmt.Sprintf("HTTP %d", resp.StatusCode)), 0
	}
	if len(chat.Choices) == 0 {
		return p.failMsg("no choices in response"), 0
	}

	msg := chat.Choices[0].Message
	content := normalizeContent(msg.Content)
	// A tool-call-only reply has no user-facing text; surface the raw call
	// payload instead of an empty response.
	if content == "" && len(msg.ToolCalls) > 0 {
		content = string(msg.ToolCalls)
	}

	tokens := chat.Usage.TotalTokens
	if tokens == 0 {
		tokens = chat.Usage.PromptTokens + chat.Usage.CompletionTokens
	}
	return content, tokens
}

func (p *chatProvider) fail(err error) string {
	return fmt.Sprintf("%s %s inference failed: %v", ErrorPrefix, p.cfg.label, err)
}

func (p *chatProvider) failMsg(msg string) string {
	return fmt.Sprintf("%s %s inference failed: %s", ErrorPrefix, p.cfg.label, msg)
}

// normalizeContent flattens a chat message content field to plain text.
// Some backends (notably Mistral) return either a string or a structured
// list of content blocks.
func normalizeContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			sb.WriteString(contentBlockText(b))
		}
		return strings.TrimSpace(sb.String())
	}

	return contentBlockText(raw)
}

// contentBlockText extracts the text of one content block: a bare string,
// an object with text/content fields, or anything else re-encoded as JSON.
func contentBlockText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if t, ok := obj["text"].(string); ok {
			return t
		}
		if c, ok := obj["content"].(string); ok {
			return c
		}
	}
	return string(raw)
}

var _ Provider = (*chatProvider)(nil)

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

const defaultGeminiBase = "https://generativelanguage.googleapis.com"

// Gemini is the Google Gemini backend. Its wire format differs from the
// chat completions family: system messages become a single
// system_instruction, the assistant role is called "model", and message
// content travels as parts arrays.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGemini returns a Gemini provider for the given API key and default
// model.
func NewGemini(apiKey, model string, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultGeminiBase,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
	}
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

// Available is a credentials check.
func (g *Gemini) Available(context.Context) bool { return g.apiKey != "" }

// --- Gemini wire types ---

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// convertMessages translates chat messages into the Gemini shape: system
// messages are collected into one system instruction, assistant maps to the
// "model" role, everything else stays "user".
func convertMessages(messages []prompt.Message) (*geminiContent, []geminiContent) {
	var systemParts []string
	var contents []geminiContent

	for _, m := range messages {
		if m.Role == prompt.RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		role := "user"
		if m.Role == prompt.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	var system *geminiContent
	if len(systemParts) > 0 {
		system = &geminiContent{
			Parts: []geminiPart{{Text: strings.Join(systemParts, "\n")}},
		}
	}
	return system, contents
}

// Infer runs a generateContent call. Requested models that are not Gemini
// identifiers (e.g. a chat-completions model name leaking through routing)
// are coerced to the configured Gemini model.
func (g *Gemini) Infer(ctx context.Context, model string, messages []prompt.Message) (string, int) {
	if g.apiKey == "" {
		return ErrorPrefix + " No GEMINI_API_KEY configured. " +
			"Set it in your .env file to use Gemini cloud routing.", 0
	}

	model = strings.TrimSpace(model)
	lower := strings.ToLower(model)
	if model == "" || !(strings.HasPrefix(lower, "gemini") || strings.HasPrefix(lower, "models/")) {
		model = g.model
	}
	model = strings.TrimPrefix(model, "models/")

	system, contents := convertMessages(messages)
	body, err := json.Marshal(geminiRequest{
		SystemInstruction: system,
		Contents:          contents,
	})
	if err != nil {
		return g.fail(err), 0
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return g.fail(err), 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("gemini inference failed", "err", err)
		return g.fail(err), 0
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return g.fail(err), 0
	}

	var out geminiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Sprintf("%s Gemini inference failed: HTTP %d", ErrorPrefix, resp.StatusCode), 0
		}
		return g.fail(err), 0
	}
	if out.Error != nil {
		return fmt.Sprintf("%s Gemini inference failed: %s", ErrorPrefix, out.Error.Message), 0
	}
	if len(out.Candidates) == 0 {
		return fmt.Sprintf("%s Gemini inference failed: no candidates in response", ErrorPrefix), 0
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	tokens := out.UsageMetadata.TotalTokenCount
	if tokens == 0 {
		tokens = out.UsageMetadata.PromptTokenCount + out.UsageMetadata.CandidatesTokenCount
	}
	return sb.String(), tokens
}

func (g *Gemini) fail(err error) string {
	return fmt.Sprintf("%s Gemini inference failed: %v", ErrorPrefix, err)
}

var _ Provider = (*Gemini)(nil)

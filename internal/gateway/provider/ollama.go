package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/prompt"
)

const (
	defaultOllamaBase = "http://localhost:11434"

	ollamaProbeTimeout = 5 * time.Second
	ollamaInferTimeout = 120 * time.Second
)

// errLocalUnavailable is returned when Ollama is not running at all, as
// opposed to a failed generation.
const errLocalUnavailable = ErrorPrefix + " Local model unavailable — Ollama is not running. " +
	"Start it with `ollama serve` and pull a model."

// Ollama is the local inference backend. It provides maximum privacy by
// keeping prompts on-premises.
type Ollama struct {
	baseURL string
	model   string
	probe   *http.Client
	client  *http.Client
	logger  *slog.Logger
}

// NewOllama returns an Ollama provider for the given base URL and default
// model. If baseURL is empty it defaults to http://localhost:11434.
func NewOllama(baseURL, model string, logger *slog.Logger) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		baseURL: baseURL,
		model:   model,
		probe:   &http.Client{Timeout: ollamaProbeTimeout},
		client:  &http.Client{Timeout: ollamaInferTimeout},
		logger:  logger,
	}
}

func (o *Ollama) Name() string  { return "local" }
func (o *Ollama) Model() string { return o.model }

// Available probes the Ollama tags endpoint.
func (o *Ollama) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// --- Ollama chat wire types ---

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	EvalCount int    `json:"eval_count"`
	Error     string `json:"error,omitempty"`
}

// Infer runs a non-streaming chat against Ollama.
func (o *Ollama) Infer(ctx context.Context, model string, messages []prompt.Message) (string, int) {
	if model == "" {
		model = o.model
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return fmt.Sprintf("%s Local inference failed: %v", ErrorPrefix, err), 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("%s Local inference failed: %v", ErrorPrefix, err), 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if isConnectionError(err) {
			o.logger.Error("ollama is not reachable", "base_url", o.baseURL)
			return errLocalUnavailable, 0
		}
		o.logger.Error("ollama inference failed", "err", err)
		return fmt.Sprintf("%s Local inference failed: %v", ErrorPrefix, err), 0
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("%s Local inference failed: %v", ErrorPrefix, err), 0
	}
	if resp.StatusCode >= 400 {
		o.logger.Error("ollama inference failed", "status", resp.StatusCode)
		return fmt.Sprintf("%s Local inference failed: HTTP %d", ErrorPrefix, resp.StatusCode), 0
	}

	var chat ollamaChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return fmt.Sprintf("%s Local inference failed: %v", ErrorPrefix, err), 0
	}
	if chat.Error != "" {
		return fmt.Sprintf("%s Local inference failed: %s", ErrorPrefix, chat.Error), 0
	}

	return chat.Message.Content, chat.EvalCount
}

// isConnectionError distinguishes "nothing is listening" from other
// transport failures so the user gets the actionable message.
func isConnectionError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

var _ Provider = (*Ollama)(nil)

// Package datahaven implements the HTTP client for the DataHaven
// policy/compliance service.
//
// DataHaven holds per-user policies and receives inference metadata for
// compliance logging. The client NEVER sends raw prompts or PII: only
// metadata flows through these endpoints. Every call degrades gracefully --
// an unreachable DataHaven means default policies and dropped log entries,
// never a failed request.
package datahaven

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/policy"
)

const defaultTimeout = 5 * time.Second

// Client talks to the DataHaven microservice. It is safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	available *bool          // cached first health probe
	fallback  *policy.Policy // overrides policy.Default when set
}

// NewClient returns a Client for the service at baseURL. If timeout is zero
// the default of 5 s applies; if logger is nil the default slog logger is
// used.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetFallbackPolicy replaces the built-in default policy used when a fetch
// fails. Call it during wiring, before the client serves requests.
func (c *Client) SetFallbackPolicy(p policy.Policy) {
	c.fallback = &p
}

func (c *Client) fallbackPolicy() policy.Policy {
	if c.fallback != nil {
		return *c.fallback
	}
	return policy.Default()
}

// IsAvailable reports whether the service answers its health endpoint. The
// result of the first probe is cached for the lifetime of the client.
func (c *Client) IsAvailable(ctx context.Context) bool {
	c.mu.Lock()
	if c.available != nil {
		v := *c.available
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	ok := c.probe(ctx)
	c.mu.Lock()
	c.available = &ok
	c.mu.Unlock()
	return ok
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// --- policy fetch ---

type policyEnvelope struct {
	Success bool            `json:"success"`
	Policy  json.RawMessage `json:"policy"`
}

// FetchPolicy fetches the policy for userID ("default" when empty). The
// boolean reports whether a stored policy document was actually served; on
// any failure -- transport, non-200, invalid document -- it is false and the
// fallback policy is returned instead.
func (c *Client) FetchPolicy(ctx context.Context, userID string) (policy.Policy, bool) {
	if userID == "" {
		userID = "default"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/policy/"+userID, nil)
	if err != nil {
		return c.fallbackPolicy(), false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("datahaven not reachable, using default policy", "err", err)
		return c.fallbackPolicy(), false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("datahaven policy fetch returned non-200", "status", resp.StatusCode)
		return c.fallbackPolicy(), false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("datahaven policy fetch: read body", "err", err)
		return c.fallbackPolicy(), false
	}

	var env policyEnvelope
	if err := json.Unmarshal(body, &env); err != nil || !env.Success || len(env.Policy) == 0 {
		c.logger.Warn("datahaven policy fetch: unusable response")
		return c.fallbackPolicy(), false
	}

	p, err := policy.ParseDocument(env.Policy)
	if err != nil {
		c.logger.Warn("datahaven policy document rejected", "err", err)
		return c.fallbackPolicy(), false
	}
	return p, true
}

// --- user data fetch ---

type userDataEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

// FetchUserData fetches authorized user metadata. Returns an empty map on
// any failure.
func (c *Client) FetchUserData(ctx context.Context, userID string) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userdata/"+userID, nil)
	if err != nil {
		return map[string]any{}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("datahaven user data fetch failed", "err", err)
		return map[string]any{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return map[string]any{}
	}

	var env userDataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || !env.Success {
		return map[string]any{}
	}
	if env.Data == nil {
		return map[string]any{}
	}
	return env.Data
}

// --- inference logging ---

// InferenceLog is the metadata record shipped to DataHaven after each
// served request. No prompt text and no PII.
type InferenceLog struct {
	RequestID    string  `json:"request_id"`
	UserID       string  `json:"user_id"`
	Route        string  `json:"route"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	TokenCount   int     `json:"token_count"`
	LatencyMS    float64 `json:"latency_ms"`
	PrivacyLevel string  `json:"privacy_level"`
	CostEstimate float64 `json:"cost_estimate"`
	PolicyMode   string  `json:"policy_mode"`
}

// LogInference ships the metadata record. Returns false on any failure;
// callers treat logging as best-effort.
func (c *Client) LogInference(ctx context.Context, entry InferenceLog) bool {
	if entry.UserID == "" {
		entry.UserID = "anonymous"
	}
	entry.LatencyMS = math.Round(entry.LatencyMS*100) / 100
	entry.CostEstimate = math.Round(entry.CostEstimate*1e6) / 1e6

	data, err := json.Marshal(entry)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/log", bytes.NewReader(data))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("datahaven not reachable for logging", "err", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("datahaven log returned non-200", "status", resp.StatusCode)
		return false
	}
	return true
}

// String implements fmt.Stringer for debug logs without leaking internals.
func (c *Client) String() string {
	return fmt.Sprintf("datahaven.Client(%s)", c.baseURL)
}

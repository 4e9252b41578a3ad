package pipeline

import (
	"math"

	"github.com/Aryannovice/metamorphosis/internal/gateway/audit"
	"github.com/Aryannovice/metamorphosis/internal/gateway/pii"
	"github.com/Aryannovice/metamorphosis/internal/gateway/policy"
)

// TokenStats is the condensed token accounting on the /gateway response.
type TokenStats struct {
	Original         int     `json:"original"`
	Compressed       int     `json:"compressed"`
	Saved            int     `json:"saved"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// LatencyStats is the condensed per-stage timing on the /gateway response,
// all values in milliseconds rounded to two decimals.
type LatencyStats struct {
	InputGuardrailsMS float64 `json:"input_guardrails_ms"`
	PIIMS             float64 `json:"pii_ms"`
	MemoryMS          float64 `json:"memory_ms"`
	CompressionMS     float64 `json:"compression_ms"`
	InferenceMS       float64 `json:"inference_ms"`
	OutputGuardrailMS float64 `json:"output_guardrails_ms"`
	TotalMS           float64 `json:"total_ms"`
}

// RedactionInfo summarizes the PII masking pass for the client: how many
// values were masked, by entity type. The reversible map never leaves the
// gateway.
type RedactionInfo struct {
	Count int            `json:"count"`
	Types map[string]int `json:"types"`
}

// GuardrailInfo reports guardrail outcomes on the response.
type GuardrailInfo struct {
	InputBlocked   bool   `json:"input_blocked"`
	OutputFiltered bool   `json:"output_filtered"`
	InputReason    string `json:"input_reason"`
	OutputReason   string `json:"output_reason"`
}

// GatewayResponse is the body of POST /gateway.
type GatewayResponse struct {
	RequestID     string        `json:"request_id"`
	Response      string        `json:"response"`
	Route         string        `json:"route"`
	ModelUsed     string        `json:"model_used"`
	TokenStats    TokenStats    `json:"token_stats"`
	Latency       LatencyStats  `json:"latency"`
	EstimatedCost float64       `json:"estimated_cost"`
	Redaction     RedactionInfo `json:"redaction"`
	PrivacyLevel  string        `json:"privacy_level"`
	Guardrails    GuardrailInfo `json:"guardrails"`
}

// MCPTokenStats is the full token accounting on the /mcp/gateway response.
type MCPTokenStats struct {
	Original         int     `json:"original"`
	AfterCompression int     `json:"after_compression"`
	InferenceUsed    int     `json:"inference_used"`
	Saved            int     `json:"saved"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// MCPLatencyStats is the full eleven-field timing breakdown on the
// /mcp/gateway response.
type MCPLatencyStats struct {
	PolicyFetchMS     float64 `json:"policy_fetch_ms"`
	InputGuardrailsMS float64 `json:"input_guardrails_ms"`
	PIIMS             float64 `json:"pii_ms"`
	MemoryMS          float64 `json:"memory_ms"`
	PromptBuildMS     float64 `json:"prompt_build_ms"`
	CompressionMS     float64 `json:"compression_ms"`
	RoutingMS         float64 `json:"routing_ms"`
	InferenceMS       float64 `json:"inference_ms"`
	OutputGuardrailMS float64 `json:"output_guardrails_ms"`
	PostProcessMS     float64 `json:"post_process_ms"`
	TotalMS           float64 `json:"total_ms"`
}

// MCPResponse is the body of POST /mcp/gateway: the gateway response plus
// the audit trail and the policy that governed the request.
type MCPResponse struct {
	RequestID     string          `json:"request_id"`
	Response      string          `json:"response"`
	Route         string          `json:"route"`
	Provider      string          `json:"provider"`
	ModelUsed     string          `json:"model_used"`
	TokenStats    MCPTokenStats   `json:"token_stats"`
	LatencyStats  MCPLatencyStats `json:"latency_stats"`
	PrivacyLevel  string          `json:"privacy_level"`
	CostEstimate  float64         `json:"cost_estimate"`
	Redaction     RedactionInfo   `json:"redaction"`
	Guardrails    GuardrailInfo   `json:"guardrails"`
	AuditTrail    []audit.Entry   `json:"audit_trail"`
	PolicyApplied policy.Policy   `json:"policy_applied"`
}

// timings collects raw per-stage durations in milliseconds.
type timings struct {
	policyFetch     float64
	inputGuardrails float64
	piiGuard        float64
	memory          float64
	promptBuild     float64
	compression     float64
	routing         float64
	inference       float64
	outputGuard     float64
	postProcess     float64
	total           float64
}

// Outcome is everything one pipeline run produced. Both response shapes are
// projections of it.
type Outcome struct {
	RequestID string
	Response  string
	Route     string
	Provider  string
	Model     string

	Policy        policy.Policy
	TokensBefore  int
	TokensAfter   int
	TokensSaved   int
	InferenceUsed int

	Redaction  pii.Result
	Cost       float64
	Privacy    string
	Guardrails GuardrailInfo

	Trail   *audit.Trail
	timings timings
}

func round2(ms float64) float64 {
	return math.Round(ms*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func (o *Outcome) compressionRatio() float64 {
	if o.TokensBefore == 0 {
		return 0
	}
	return round3(float64(o.TokensSaved) / float64(o.TokensBefore))
}

func (o *Outcome) redactionInfo() RedactionInfo {
	types := o.Redaction.RedactionTypes
	if types == nil {
		types = map[string]int{}
	}
	return RedactionInfo{Count: o.Redaction.RedactionCount, Types: types}
}

// GatewayResponse projects the outcome onto the /gateway wire shape.
func (o *Outcome) GatewayResponse() GatewayResponse {
	return GatewayResponse{
		RequestID: o.RequestID,
		Response:  o.Response,
		Route:     o.Route,
		ModelUsed: o.Model,
		TokenStats: TokenStats{
			Original:         o.TokensBefore,
			Compressed:       o.TokensAfter,
			Saved:            o.TokensSaved,
			CompressionRatio: o.compressionRatio(),
		},
		Latency: LatencyStats{
			InputGuardrailsMS: round2(o.timings.inputGuardrails),
			PIIMS:             round2(o.timings.piiGuard),
			MemoryMS:          round2(o.timings.memory),
			CompressionMS:     round2(o.timings.compression),
			InferenceMS:       round2(o.timings.inference),
			OutputGuardrailMS: round2(o.timings.outputGuard),
			TotalMS:           round2(o.timings.total),
		},
		EstimatedCost: o.Cost,
		Redaction:     o.redactionInfo(),
		PrivacyLevel:  o.Privacy,
		Guardrails:    o.Guardrails,
	}
}

// MCPResponse projects the outcome onto the /mcp/gateway wire shape,
// including the full audit trail.
func (o *Outcome) MCPResponse() MCPResponse {
	return MCPResponse{
		RequestID: o.RequestID,
		Response:  o.Response,
		Route:     o.Route,
		Provider:  o.Provider,
		ModelUsed: o.Model,
		TokenStats: MCPTokenStats{
			Original:         o.TokensBefore,
			AfterCompression: o.TokensAfter,
			InferenceUsed:    o.InferenceUsed,
			Saved:            o.TokensSaved,
			CompressionRatio: o.compressionRatio(),
		},
		LatencyStats: MCPLatencyStats{
			PolicyFetchMS:     round2(o.timings.policyFetch),
			InputGuardrailsMS: round2(o.timings.inputGuardrails),
			PIIMS:             round2(o.timings.piiGuard),
			MemoryMS:          round2(o.timings.memory),
			PromptBuildMS:     round2(o.timings.promptBuild),
			CompressionMS:     round2(o.timings.compression),
			RoutingMS:         round2(o.timings.routing),
			InferenceMS:       round2(o.timings.inference),
			OutputGuardrailMS: round2(o.timings.outputGuard),
			PostProcessMS:     round2(o.timings.postProcess),
			TotalMS:           round2(o.timings.total),
		},
		PrivacyLevel:  o.Privacy,
		CostEstimate:  o.Cost,
		Redaction:     o.redactionInfo(),
		Guardrails:    o.Guardrails,
		AuditTrail:    o.Trail.Entries(),
		PolicyApplied: o.Policy,
	}
}

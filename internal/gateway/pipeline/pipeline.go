// Package pipeline runs the gateway's request pipeline: policy fetch, input
// guardrails, PII masking, memory retrieval, prompt build, compression,
// routing, inference with failover, output guardrails and post-processing,
// followed by background memory and compliance writes.
//
// Every stage is timed and recorded on the request's audit trail. Stage
// failures degrade instead of aborting: a dead memory store means no
// context, a dead provider means failover, a dead DataHaven means the
// default policy.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/audit"
	"github.com/Aryannovice/metamorphosis/internal/gateway/background"
	"github.com/Aryannovice/metamorphosis/internal/gateway/datahaven"
	"github.com/Aryannovice/metamorphosis/internal/gateway/guard"
	"github.com/Aryannovice/metamorphosis/internal/gateway/memory"
	"github.com/Aryannovice/metamorphosis/internal/gateway/metrics"
	"github.com/Aryannovice/metamorphosis/internal/gateway/pii"
	"github.com/Aryannovice/metamorphosis/internal/gateway/policy"
	"github.com/Aryannovice/metamorphosis/internal/gateway/postproc"
	"github.com/Aryannovice/metamorphosis/internal/gateway/prompt"
	"github.com/Aryannovice/metamorphosis/internal/gateway/provider"
)

// RouteBlocked is the route reported when a request never reached a model.
const RouteBlocked = "BLOCKED"

// PrivacyBlocked is the privacy level on blocked responses.
const PrivacyBlocked = "BLOCKED"

const (
	memorySnippetLen   = 300
	defaultMemoryTopK  = 3
	fallbackReasonSize = 100
)

// PolicySource is the slice of the DataHaven client the pipeline needs.
// FetchPolicy's boolean reports whether a stored policy document was served,
// as opposed to the fallback default.
type PolicySource interface {
	FetchPolicy(ctx context.Context, userID string) (policy.Policy, bool)
	FetchUserData(ctx context.Context, userID string) map[string]any
	LogInference(ctx context.Context, entry datahaven.InferenceLog) bool
}

var _ PolicySource = (*datahaven.Client)(nil)

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Logger     *slog.Logger
	Engine     *policy.Engine
	DataHaven  PolicySource
	Input      *guard.InputChecker
	Output     *guard.OutputChecker
	PII        *pii.Guard
	Memory     memory.Store
	Registry   *provider.Registry
	Background *background.Runner
	Metrics    *metrics.Metrics
	Pricing    postproc.Pricing

	// MemoryTopK is how many context snippets a retrieval returns.
	MemoryTopK int
}

// Pipeline orchestrates one request end to end. Safe for concurrent use.
type Pipeline struct {
	deps Deps
}

// New returns a Pipeline. Logger defaults to slog.Default, MemoryTopK to 3.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MemoryTopK <= 0 {
		deps.MemoryTopK = defaultMemoryTopK
	}
	return &Pipeline{deps: deps}
}

func (p *Pipeline) observe(stage string, ms float64) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.StageDuration.WithLabelValues(stage).Observe(ms / 1000)
	}
}

func sinceMS(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}

// routeFor maps a provider name onto the route it serves.
func routeFor(providerName string) string {
	if strings.EqualFold(providerName, "local") {
		return policy.RouteLocal
	}
	return policy.RouteCloud
}

// Run executes the full pipeline for one validated request. It never returns
// an error: admission failures come back as a BLOCKED outcome and provider
// failures as an "[Error] ..." response body.
func (p *Pipeline) Run(ctx context.Context, req Request, requestID, userID string) *Outcome {
	start := time.Now()
	trail := audit.NewTrail(requestID)
	logger := p.deps.Logger.With("request_id", requestID)

	o := &Outcome{
		RequestID: requestID,
		Trail:     trail,
		Redaction: pii.Result{
			RedactionTypes: map[string]int{},
			RedactionMap:   map[string]string{},
		},
	}

	// [0] Policy fetch. Without a stored policy document the client's
	// requested mode steers routing; an explicit policy always wins over the
	// client preference.
	t0 := time.Now()
	pol, explicit := p.deps.DataHaven.FetchPolicy(ctx, userID)
	if !explicit {
		pol.Mode = policy.ParseMode(req.Mode)
	}
	policyDetail := map[string]any{
		"policy_mode": string(pol.Mode),
		"client_mode": req.Mode,
	}
	if userID != "" {
		policyDetail["user_data_keys"] = len(p.deps.DataHaven.FetchUserData(ctx, userID))
	}
	o.timings.policyFetch = sinceMS(t0)
	policyDetail["duration_ms"] = round2(o.timings.policyFetch)
	trail.Record(audit.StagePolicyFetch, policyDetail)
	p.observe(audit.StagePolicyFetch, o.timings.policyFetch)
	o.Policy = pol

	// [1] Input guardrails.
	t0 = time.Now()
	in := p.deps.Input.Check(req.Prompt)
	o.timings.inputGuardrails = sinceMS(t0)
	inDetail := in.Detail()
	inDetail["duration_ms"] = round2(o.timings.inputGuardrails)
	trail.Record(audit.StageInputGuardrails, inDetail)
	p.observe(audit.StageInputGuardrails, o.timings.inputGuardrails)

	if !in.Passed {
		logger.Info("request blocked by input guardrails",
			"injection", in.InjectionDetected, "toxicity", in.ToxicityDetected)
		return p.blocked(o, in.Reason, start)
	}

	// [2] PII guard. Masking can be waived by policy; the default policy
	// requires it.
	t0 = time.Now()
	if pol.RequirePIIMasking {
		o.Redaction = p.deps.PII.Mask(req.Prompt, requestID)
	} else {
		o.Redaction.Masked = req.Prompt
	}
	masked := o.Redaction.Masked
	// The redaction map never outlives the request, whichever path returns.
	defer p.deps.PII.Clear(requestID)
	o.timings.piiGuard = sinceMS(t0)
	piiDetail := o.Redaction.Detail()
	piiDetail["duration_ms"] = round2(o.timings.piiGuard)
	trail.Record(audit.StagePIIGuard, piiDetail)
	p.observe(audit.StagePIIGuard, o.timings.piiGuard)
	if p.deps.Metrics != nil {
		for typ, n := range o.Redaction.RedactionTypes {
			p.deps.Metrics.Redactions.WithLabelValues(typ).Add(float64(n))
		}
	}

	// [3] Memory retrieval. Failure means no context, never a failed request.
	t0 = time.Now()
	snippets, err := p.deps.Memory.Retrieve(ctx, masked, p.deps.MemoryTopK)
	if err != nil {
		logger.Warn("memory retrieval failed, continuing without context", "err", err)
		snippets = nil
	}
	o.timings.memory = sinceMS(t0)
	trail.Record(audit.StageMemoryRetrieval, map[string]any{
		"duration_ms":   round2(o.timings.memory),
		"context_count": len(snippets),
	})
	p.observe(audit.StageMemoryRetrieval, o.timings.memory)

	// [4] Prompt build.
	t0 = time.Now()
	messages, tokensBefore := prompt.Build(masked, snippets)
	o.timings.promptBuild = sinceMS(t0)
	o.TokensBefore = tokensBefore
	trail.Record(audit.StagePromptBuild, map[string]any{
		"duration_ms": round2(o.timings.promptBuild),
		"token_count": tokensBefore,
	})
	p.observe(audit.StagePromptBuild, o.timings.promptBuild)

	if ok, reason := p.deps.Engine.EnforceTokenLimit(pol, tokensBefore); !ok {
		logger.Info("request blocked by policy token limit",
			"tokens", tokensBefore, "max_tokens", pol.MaxTokens)
		return p.blocked(o, reason, start)
	}

	// [5] Prompt compression.
	t0 = time.Now()
	compressed, tokensAfter, tokensSaved := messages, tokensBefore, 0
	if p.deps.Engine.ShouldCompress(pol) {
		compressed, tokensAfter, tokensSaved = prompt.Compress(messages, tokensBefore)
	}
	o.timings.compression = sinceMS(t0)
	o.TokensAfter = tokensAfter
	o.TokensSaved = tokensSaved
	trail.Record(audit.StagePromptCompress, map[string]any{
		"duration_ms":  round2(o.timings.compression),
		"token_count":  tokensAfter,
		"tokens_saved": tokensSaved,
	})
	p.observe(audit.StagePromptCompress, o.timings.compression)
	if p.deps.Metrics != nil && tokensSaved > 0 {
		p.deps.Metrics.TokensSaved.Add(float64(tokensSaved))
	}

	// [6] Routing.
	t0 = time.Now()
	decision := p.deps.Engine.DecideRoute(pol, tokensAfter, strings.ToLower(req.CloudProvider))
	o.timings.routing = sinceMS(t0)
	trail.Record(audit.StageRouting, map[string]any{
		"duration_ms":    round2(o.timings.routing),
		"route_decision": decision.Route,
		"provider":       decision.Provider,
	})
	p.observe(audit.StageRouting, o.timings.routing)

	// [7] Inference with failover.
	t0 = time.Now()
	raw, usage, actualRoute, providerUsed, modelUsed := p.infer(ctx, trail, logger, pol, decision, compressed)
	o.timings.inference = sinceMS(t0)
	o.InferenceUsed = usage
	o.Route = actualRoute
	o.Provider = providerUsed
	o.Model = modelUsed
	trail.Record(audit.StageInference, map[string]any{
		"duration_ms":    round2(o.timings.inference),
		"route_decision": actualRoute,
		"provider":       providerUsed,
		"token_count":    usage,
	})
	p.observe(audit.StageInference, o.timings.inference)

	// [8] Output guardrails.
	t0 = time.Now()
	out := p.deps.Output.Check(raw)
	o.timings.outputGuard = sinceMS(t0)
	outDetail := out.Detail()
	outDetail["duration_ms"] = round2(o.timings.outputGuard)
	trail.Record(audit.StageOutputGuardrails, outDetail)
	p.observe(audit.StageOutputGuardrails, o.timings.outputGuard)

	if !out.Passed {
		o.Guardrails.OutputFiltered = true
		o.Guardrails.OutputReason = out.Response
	}

	// [9] Post-processing: restore PII, price the request, classify privacy.
	t0 = time.Now()
	o.Response = p.deps.PII.Unmask(out.Response, requestID)
	if provider.IsErrorResponse(raw) {
		// Nothing was inferred, so nothing is billed.
		o.Cost = 0
	} else {
		o.Cost = postproc.EstimateCost(p.deps.Pricing, tokensAfter, usage, actualRoute)
	}
	o.Privacy = postproc.PrivacyLevel(actualRoute, o.Redaction.RedactionCount)
	o.timings.postProcess = sinceMS(t0)
	trail.Record(audit.StagePostProcess, map[string]any{
		"duration_ms":   round2(o.timings.postProcess),
		"cost_estimate": o.Cost,
		"privacy_level": o.Privacy,
	})
	p.observe(audit.StagePostProcess, o.timings.postProcess)

	o.timings.total = sinceMS(start)

	// A disconnected client gets no background work scheduled on its behalf.
	if ctx.Err() == nil {
		p.submitBackground(o, req, masked, raw, userID)
	}

	logger.Info("request served",
		"route", o.Route,
		"provider", o.Provider,
		"tokens_saved", o.TokensSaved,
		"cost", o.Cost,
		"privacy", o.Privacy,
	)
	return o
}

// infer runs the decided provider and walks the fallback chain while the
// response carries the error prefix. The reported route and provider always
// reflect the backend that actually produced the final text.
func (p *Pipeline) infer(
	ctx context.Context,
	trail *audit.Trail,
	logger *slog.Logger,
	pol policy.Policy,
	decision policy.Decision,
	messages []prompt.Message,
) (raw string, usage int, route, providerUsed, modelUsed string) {
	route = decision.Route
	providerUsed = decision.Provider
	modelUsed = decision.Model

	prov := p.deps.Registry.GetForRoute(decision.Route, decision.Provider)
	if prov == nil {
		return provider.ErrorPrefix + " No provider registered for " + decision.Provider,
			0, route, providerUsed, modelUsed
	}
	providerUsed = prov.Name()
	raw, usage = prov.Infer(ctx, modelUsed, messages)

	for provider.IsErrorResponse(raw) {
		if strings.EqualFold(providerUsed, "local") && !p.deps.Engine.CanFallbackToCloud(pol) {
			break
		}
		next := p.deps.Registry.GetFallback(ctx, providerUsed, pol.WhitelistedProviders)
		if next == nil {
			break
		}

		reason := raw
		if len(reason) > fallbackReasonSize {
			reason = reason[:fallbackReasonSize]
		}
		trail.Record(audit.StageInference, map[string]any{
			"status":          "fallback",
			"from_provider":   providerUsed,
			"to_provider":     next.Name(),
			"fallback_reason": reason,
		})
		logger.Warn("provider failed, falling back",
			"from_provider", providerUsed, "to_provider", next.Name())
		if p.deps.Metrics != nil {
			p.deps.Metrics.Fallbacks.WithLabelValues(providerUsed).Inc()
		}

		providerUsed = next.Name()
		modelUsed = next.Model()
		route = routeFor(providerUsed)
		raw, usage = next.Infer(ctx, modelUsed, messages)
	}
	return raw, usage, route, providerUsed, modelUsed
}

// blocked finalizes an outcome that never reached a model.
func (p *Pipeline) blocked(o *Outcome, reason string, start time.Time) *Outcome {
	o.Response = reason
	o.Route = RouteBlocked
	o.Privacy = PrivacyBlocked
	o.Guardrails.InputBlocked = true
	o.Guardrails.InputReason = reason
	o.timings.total = sinceMS(start)
	return o
}

// submitBackground queues the post-response work: the memory write and the
// DataHaven compliance record. Neither ever delays or fails the response.
func (p *Pipeline) submitBackground(o *Outcome, req Request, masked, raw string, userID string) {
	if p.deps.Background == nil {
		return
	}

	content := raw
	if o.Guardrails.OutputFiltered {
		content = o.Response
	}
	snippet := truncateRunes(content, memorySnippetLen)

	doc := memory.Document{
		ID:   o.RequestID,
		Text: "Q: " + masked + "\nA: " + snippet,
		Metadata: map[string]string{
			"route": o.Route,
			"mode":  req.Mode,
		},
	}
	trail := o.Trail
	p.deps.Background.Submit(background.Task{
		Name: audit.StageMemoryStore,
		Run: func(ctx context.Context) {
			err := p.deps.Memory.Store(ctx, doc)
			detail := map[string]any{"stored": err == nil}
			if err != nil {
				detail["error"] = err.Error()
				p.deps.Logger.Warn("background memory store failed",
					"request_id", o.RequestID, "err", err)
			}
			trail.Record(audit.StageMemoryStore, detail)
		},
	})

	entry := datahaven.InferenceLog{
		RequestID:    o.RequestID,
		UserID:       userID,
		Route:        o.Route,
		Provider:     o.Provider,
		Model:        o.Model,
		TokenCount:   o.InferenceUsed,
		LatencyMS:    o.timings.total,
		PrivacyLevel: o.Privacy,
		CostEstimate: o.Cost,
		PolicyMode:   string(o.Policy.Mode),
	}
	p.deps.Background.Submit(background.Task{
		Name: audit.StageDataHavenLog,
		Run: func(ctx context.Context) {
			shipped := p.deps.DataHaven.LogInference(ctx, entry)
			trail.Record(audit.StageDataHavenLog, map[string]any{"shipped": shipped})
		},
	})
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

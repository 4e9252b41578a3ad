// Command gateway runs the Metamorphosis AI optimization gateway: a stateful
// proxy between clients and LLM backends that enforces guardrails, masks PII,
// compresses prompts and routes between local and cloud inference under
// per-user policies.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aryannovice/metamorphosis/internal/gateway/background"
	"github.com/Aryannovice/metamorphosis/internal/gateway/config"
	"github.com/Aryannovice/metamorphosis/internal/gateway/datahaven"
	"github.com/Aryannovice/metamorphosis/internal/gateway/guard"
	"github.com/Aryannovice/metamorphosis/internal/gateway/memory"
	"github.com/Aryannovice/metamorphosis/internal/gateway/metrics"
	"github.com/Aryannovice/metamorphosis/internal/gateway/observability"
	"github.com/Aryannovice/metamorphosis/internal/gateway/pii"
	"github.com/Aryannovice/metamorphosis/internal/gateway/pipeline"
	"github.com/Aryannovice/metamorphosis/internal/gateway/policy"
	"github.com/Aryannovice/metamorphosis/internal/gateway/postproc"
	"github.com/Aryannovice/metamorphosis/internal/gateway/provider"
	"github.com/Aryannovice/metamorphosis/internal/gateway/ratelimit"
	"github.com/Aryannovice/metamorphosis/internal/gateway/server"
)

const (
	backgroundQueueSize = 128
	backgroundWorkers   = 2
	piiReapInterval     = time.Minute
	shutdownGrace       = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine: the environment may carry everything already.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	observability.Setup(cfg.LogLevel, cfg.LogFormat,
		cfg.Providers.OpenAIAPIKey,
		cfg.Providers.GroqAPIKey,
		cfg.Providers.GeminiAPIKey,
		cfg.Providers.MistralAPIKey,
		cfg.Providers.OpenRouterAPIKey,
	)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operator rules file: extra guardrail patterns and the offline policy.
	var rules config.Rules
	if cfg.RulesFile != "" {
		var err error
		rules, err = config.LoadRules(cfg.RulesFile)
		if err != nil {
			return err
		}
		logger.Info("rules file loaded", "path", cfg.RulesFile,
			"injection_patterns", len(rules.Guardrails.InjectionPatterns),
			"toxicity_phrases", len(rules.Guardrails.ToxicityPhrases))
	}

	input, err := guard.NewInputChecker(rules.Guardrails.InjectionPatterns, rules.Guardrails.ToxicityPhrases)
	if err != nil {
		return err
	}

	piiStore := pii.NewStore()
	piiStore.StartReaper(ctx, piiReapInterval, pii.DefaultEntryTTL)

	var embedder memory.Embedder
	if cfg.Providers.OpenAIAPIKey != "" {
		embedder = memory.NewOpenAIEmbedder(memory.OpenAIEmbedderConfig{
			APIKey: cfg.Providers.OpenAIAPIKey,
		})
	}
	store, err := memory.OpenSQLiteStore(cfg.Memory.Path, embedder, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	dh := datahaven.NewClient(cfg.DataHaven.ServiceURL, cfg.DataHaven.Timeout, logger)
	if rules.DefaultPolicy != nil {
		dh.SetFallbackPolicy(offlinePolicy(*rules.DefaultPolicy))
	}

	registry := provider.NewRegistry()
	registry.Register(provider.NewOllama(cfg.Providers.OllamaBaseURL, cfg.Providers.LocalModel, logger))
	registry.Register(provider.NewGroq(cfg.Providers.GroqAPIKey, cfg.Providers.GroqModel, logger))
	registry.Register(provider.NewOpenAI(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIModel, logger))
	registry.Register(provider.NewMistral(cfg.Providers.MistralAPIKey, cfg.Providers.MistralModel,
		cfg.Providers.MistralBaseURL, logger))
	registry.Register(provider.NewOpenRouter(cfg.Providers.OpenRouterAPIKey, cfg.Providers.OpenRouterModel,
		cfg.Providers.OpenRouterBaseURL, cfg.Providers.OpenRouterSiteURL, cfg.Providers.OpenRouterAppName, logger))
	registry.Register(provider.NewGemini(cfg.Providers.GeminiAPIKey, cfg.Providers.GeminiModel, logger))

	engine := policy.NewEngine(cfg.Providers.LocalModel, map[string]string{
		"groq":       cfg.Providers.GroqModel,
		"openai":     cfg.Providers.OpenAIModel,
		"mistral":    cfg.Providers.MistralModel,
		"openrouter": cfg.Providers.OpenRouterModel,
	}, cfg.Routing.TokenThreshold)

	m := metrics.New(prometheus.DefaultRegisterer)

	runner := background.NewRunner(backgroundQueueSize, logger)
	runner.OnDrop(func(string) { m.BackgroundDropped.Inc() })
	runner.Start(ctx, backgroundWorkers)
	defer runner.Close()

	pipe := pipeline.New(pipeline.Deps{
		Logger:     logger,
		Engine:     engine,
		DataHaven:  dh,
		Input:      input,
		Output:     guard.NewOutputChecker(),
		PII:        pii.NewGuard(nil, piiStore),
		Memory:     store,
		Registry:   registry,
		Background: runner,
		Metrics:    m,
		Pricing: postproc.Pricing{
			Per1KInput:  cfg.Cost.Per1KInput,
			Per1KOutput: cfg.Cost.Per1KOutput,
		},
		MemoryTopK: cfg.Memory.TopK,
	})

	srv := server.New(server.Deps{
		Logger:    logger,
		Pipeline:  pipe,
		Limiter:   ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
		Memory:    store,
		DataHaven: dh,
		Registry:  registry,
		Metrics:   m,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// offlinePolicy maps the rules-file policy override onto the policy used
// when DataHaven is unreachable, starting from the built-in default.
func offlinePolicy(rule config.PolicyRule) policy.Policy {
	p := policy.Default()
	if rule.Mode != "" {
		p.Mode = policy.ParseMode(rule.Mode)
	}
	if rule.AllowCloud != nil {
		p.AllowCloud = *rule.AllowCloud
	}
	if rule.MaxTokens > 0 {
		p.MaxTokens = rule.MaxTokens
	}
	if rule.RequirePIIMasking != nil {
		p.RequirePIIMasking = *rule.RequirePIIMasking
	}
	if rule.CompressionEnabled != nil {
		p.CompressionEnabled = *rule.CompressionEnabled
	}
	if len(rule.WhitelistedProviders) > 0 {
		p.WhitelistedProviders = rule.WhitelistedProviders
	}
	return p
}

package main

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/huraaa/Agent-one/internal/agent"
	"github.com/huraaa/Agent-one/internal/cache"
	"github.com/huraaa/Agent-one/internal/config"
	"github.com/huraaa/Agent-one/internal/database"
	"github.com/huraaa/Agent-one/internal/docindex"
	"github.com/huraaa/Agent-one/internal/embeddings"
	"github.com/huraaa/Agent-one/internal/fetch"
	"github.com/huraaa/Agent-one/internal/guard"
	"github.com/huraaa/Agent-one/internal/llm"
	"github.com/huraaa/Agent-one/internal/memory"
	"github.com/huraaa/Agent-one/internal/mqtt"
	"github.com/huraaa/Agent-one/internal/retry"
	"github.com/huraaa/Agent-one/internal/search"
	"github.com/huraaa/Agent-one/internal/sentiment"
	"github.com/huraaa/Agent-one/internal/tools"
	"github.com/huraaa/Agent-one/internal/tracing"
	"github.com/huraaa/Agent-one/internal/usage"
)

// app holds the configuration and whatever collaborators a subcommand
// has opened so far. Components are opened lazily so that, for example,
// "profile" never needs model credentials.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	openai *llm.OpenAIClient
	chat   llm.Client
	mem    *memory.Store
	index  *docindex.Index
	usage  *usage.Store

	closers []func(context.Context) error
}

func newApp(stderr io.Writer, opts options) (*app, error) {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(stderr)
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	} else {
		logger.Debug("no config file found, using defaults")
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// Close releases everything the app opened, newest first.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) openDB(path string) (*sql.DB, error) {
	db, err := database.Open(a.cfg.Database.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

func (a *app) memoryStore() (*memory.Store, error) {
	if a.mem != nil {
		return a.mem, nil
	}
	db, err := a.openDB(a.cfg.Database.MemoryPath)
	if err != nil {
		return nil, err
	}
	mem, err := memory.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	a.onClose(func(context.Context) error { return mem.Close() })
	a.mem = mem
	return mem, nil
}

func (a *app) cacheStore() (*cache.Store, error) {
	db, err := a.openDB(a.cfg.Database.CachePath)
	if err != nil {
		return nil, err
	}
	c, err := cache.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.onClose(func(context.Context) error { return c.Close() })
	return c, nil
}

func (a *app) usageStore() (*usage.Store, error) {
	if a.usage != nil {
		return a.usage, nil
	}
	db, err := a.openDB(a.cfg.Database.UsagePath)
	if err != nil {
		return nil, err
	}
	u, err := usage.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	a.onClose(func(context.Context) error { return u.Close() })
	a.usage = u
	return u, nil
}

func (a *app) openAIClient() *llm.OpenAIClient {
	if a.openai == nil {
		a.openai = llm.NewOpenAIClient(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.BaseURL, a.cfg.OpenAI.Timeout, a.logger)
	}
	return a.openai
}

// chatClient routes each model to its provider: cfg.Routes first,
// cfg.Provider otherwise. OpenAI is only registered when it is the
// default, is routed to, or has a key.
func (a *app) chatClient() llm.Client {
	if a.chat != nil {
		return a.chat
	}
	router := llm.NewRouter(a.cfg.Provider)
	router.Register("ollama", llm.NewOllama(a.cfg.Ollama.URL, a.logger))
	wantOpenAI := a.cfg.Provider == "openai" || a.cfg.OpenAI.APIKey != ""
	for model, provider := range a.cfg.Routes {
		router.Route(model, provider)
		wantOpenAI = wantOpenAI || provider == "openai"
	}
	if wantOpenAI {
		router.Register("openai", a.openAIClient())
	}

	a.logger.Debug("chat client initialized", "model", a.cfg.Model, "provider", router.ProviderFor(a.cfg.Model))
	a.chat = router
	return router
}

func (a *app) embedder() embeddings.Embedder {
	if a.cfg.Retrieval.EmbeddingProvider == "ollama" {
		return embeddings.New(embeddings.Config{
			BaseURL: a.cfg.Ollama.URL,
			Model:   a.cfg.Retrieval.EmbeddingModel,
		})
	}
	return embeddings.NewOpenAI(a.openAIClient().SDK(), a.cfg.Retrieval.EmbeddingModel)
}

func (a *app) docIndex() (*docindex.Index, error) {
	if a.index != nil {
		return a.index, nil
	}
	db, err := a.openDB(a.cfg.Database.IndexPath)
	if err != nil {
		return nil, err
	}
	idx, err := docindex.New(db, a.embedder(), a.logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open document index: %w", err)
	}
	a.onClose(func(context.Context) error { return idx.Close() })
	a.index = idx
	return idx, nil
}

// searchManager registers every provider with credentials. The
// configured provider is primary; otherwise the first of tavily, brave,
// searxng, duckduckgo that is available.
func (a *app) searchManager() *search.Manager {
	sc := a.cfg.Search
	var providers []search.Provider
	if sc.Tavily.APIKey != "" {
		providers = append(providers, search.NewTavily(sc.Tavily.APIKey))
	}
	if sc.Brave.APIKey != "" {
		providers = append(providers, search.NewBrave(sc.Brave.APIKey))
	}
	if sc.SearXNG.URL != "" {
		providers = append(providers, search.NewSearXNG(sc.SearXNG.URL))
	}
	if sc.DuckDuckGo {
		providers = append(providers, search.NewDuckDuckGo())
	}

	primary := sc.Provider
	if primary == "" && len(providers) > 0 {
		primary = providers[0].Name()
	}
	mgr := search.NewManager(primary)
	for _, p := range providers {
		mgr.Register(p)
	}
	if mgr.Configured() {
		a.logger.Debug("web search configured", "primary", primary, "providers", mgr.Providers())
	}
	return mgr
}

func (a *app) sentimentClassifier() sentiment.Classifier {
	switch a.cfg.Sentiment.Provider {
	case "http":
		return sentiment.NewHTTP(a.cfg.Sentiment.URL, a.cfg.Sentiment.Token)
	case "llm":
		return sentiment.NewLLM(a.chatClient(), cmp.Or(a.cfg.Sentiment.Model, a.cfg.Model))
	default:
		return nil
	}
}

func (a *app) safetyGate() agent.Gate {
	if !a.cfg.Safety.Enabled {
		return nil
	}
	var moderator guard.Moderator
	if a.cfg.Safety.Moderation && a.cfg.OpenAI.APIKey != "" {
		moderator = guard.NewOpenAIModerator(a.openAIClient().SDK(), a.cfg.Safety.ModerationModel)
	}
	return guard.New(moderator, a.logger.With("component", "guard"))
}

// tracer mirrors spans to OpenTelemetry and MQTT when configured.
func (a *app) tracer(ctx context.Context) (*tracing.Tracer, error) {
	var opts []tracing.Option

	tp, shutdown, err := tracing.InitOTel(ctx, a.cfg.Telemetry, a.logger)
	if err != nil {
		return nil, err
	}
	a.onClose(shutdown)
	if tp != nil {
		opts = append(opts, tracing.WithTracerProvider(tp))
	}

	if a.cfg.MQTT.Configured() {
		pub := mqtt.New(a.cfg.MQTT, a.logger)
		if err := pub.Start(ctx, 3*time.Second); err != nil {
			return nil, err
		}
		a.onClose(pub.Stop)
		opts = append(opts, tracing.WithSink(pub))
	}

	return tracing.New(a.logger, opts...), nil
}

// agentLoop wires the full agent. role tags usage records.
func (a *app) agentLoop(ctx context.Context, role string) (*agent.Loop, error) {
	mem, err := a.memoryStore()
	if err != nil {
		return nil, err
	}
	idx, err := a.docIndex()
	if err != nil {
		return nil, err
	}
	usageStore, err := a.usageStore()
	if err != nil {
		return nil, err
	}
	tracer, err := a.tracer(ctx)
	if err != nil {
		return nil, err
	}

	var answers agent.AnswerCache
	if a.cfg.Agent.Cache {
		c, err := a.cacheStore()
		if err != nil {
			return nil, err
		}
		answers = c
	}

	var fetcher *fetch.Fetcher
	if a.cfg.Fetch.Enabled {
		fetcher = fetch.New()
	}

	registry := tools.New(tools.Deps{
		Memory:      mem,
		UserID:      a.cfg.UserID,
		Docs:        idx,
		MaxDistance: a.cfg.Retrieval.MaxDistance,
		DefaultK:    a.cfg.Retrieval.DefaultK,
		Search:      a.searchManager(),
		Sentiment:   a.sentimentClassifier(),
		Fetcher:     fetcher,
		Logger:      a.logger.With("component", "tools"),
	})

	return agent.NewLoop(agent.Config{
		Model:       a.cfg.Model,
		Provider:    cmp.Or(a.cfg.Routes[a.cfg.Model], a.cfg.Provider),
		Version:     a.cfg.AppVersion,
		UserID:      a.cfg.UserID,
		RecentFacts: a.cfg.Agent.RecentFacts,
		Retry: retry.Policy{
			MaxAttempts: a.cfg.Retry.MaxAttempts,
			BaseDelay:   a.cfg.Retry.BaseDelay,
			MaxDelay:    a.cfg.Retry.MaxDelay,
			Jitter:      a.cfg.Retry.Jitter,
		},
		Pricing:   a.cfg.Pricing,
		UsageRole: role,
	}, agent.Deps{
		LLM:    a.chatClient(),
		Tools:  registry,
		Cache:  answers,
		Memory: mem,
		Guard:  a.safetyGate(),
		Usage:  usageStore,
		Tracer: tracer,
		Logger: a.logger,
	}), nil
}

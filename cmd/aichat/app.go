package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/ai/providers"
	"aichat/pkg/chat"
	"aichat/pkg/config"
	"aichat/pkg/generation"
	"aichat/pkg/keys"
	"aichat/pkg/logging"
	"aichat/pkg/store"
	"aichat/pkg/websearch"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        config.Config
	catalog    *ai.Catalog
	db         *store.Store
	controller *generation.Controller
	keyFile    *keys.FileStore
	keys       *keys.Chain

	closers []func() error
}

// loadConfig reads the config and initializes logging.
func loadConfig(path, logLevel string) (config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if _, err := logging.Init(cfg); err != nil {
		return config.Config{}, fmt.Errorf("init logging: %w", err)
	}
	slog.Debug("config_loaded", "path", path, "backend", cfg.Storage.GenerationBackend)
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		catalog: ai.DefaultCatalog(),
		keyFile: keys.NewFileStore(cfg.KeysFile),
	}

	db, err := store.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	gens, err := a.generationStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.controller = generation.NewController(gens)
	a.keys = keys.NewChain(db, a.keyFile, keys.NewEnvStore())
	return a, nil
}

func (a *app) generationStore(ctx context.Context) (generation.Store, error) {
	s := a.cfg.Storage
	switch s.GenerationBackend {
	case config.GenerationBackendMemory:
		return generation.NewMemoryStore(), nil
	case config.GenerationBackendSQLite:
		return a.db.Generations(), nil
	case config.GenerationBackendRedis:
		rs, err := generation.NewRedisStore(ctx, generation.RedisConfig{
			Addr:      s.RedisAddr,
			Password:  s.RedisPassword,
			DB:        s.RedisDB,
			KeyPrefix: s.RedisKeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	default:
		return nil, fmt.Errorf("unsupported generation backend %q", s.GenerationBackend)
	}
}

// generator builds a Generator writing through messages.
func (a *app) generator(messages chat.MessageUpdater) *chat.Generator {
	opts := []ai.AdapterOption{}
	for _, p := range a.catalog.Providers() {
		pc, ok := a.cfg.Providers.Provider(string(p.ID))
		if !ok {
			continue
		}
		opts = append(opts, ai.WithProviderSettings(p.ID, ai.ProviderSettings{
			BaseURL:     pc.APIURL,
			Timeout:     time.Duration(pc.APITimeoutSeconds) * time.Second,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		}))
	}

	if search := a.webSearch(); search != nil {
		opts = append(opts, ai.WithWebSearch(search.Executor()))
	}

	adapter := ai.NewAdapter(providers.NewRegistry(), a.catalog, opts...)
	return chat.NewGenerator(a.catalog, adapter, a.controller, messages, a.keys, chat.WithMaxSteps(a.cfg.MaxSteps))
}

func (a *app) webSearch() *websearch.Client {
	ws := a.cfg.WebSearch
	key := a.cfg.WebSearchKey()
	if key == "" {
		slog.Info("web_search_disabled", "reason", "no api key")
		return nil
	}
	client, err := websearch.NewClient(websearch.Config{
		APIURL:     ws.APIURL,
		APIKey:     key,
		MaxResults: ws.MaxResults,
		Timeout:    time.Duration(ws.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		slog.Warn("web_search_disabled", "error", err)
		return nil
	}
	return client
}

// sharedBackend reports whether another process can see this process's
// generation records.
func (a *app) sharedBackend() bool {
	return a.cfg.Storage.GenerationBackend != config.GenerationBackendMemory
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

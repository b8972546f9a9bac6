package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"msgmcp/internal/config"
	"msgmcp/internal/genai"
	"msgmcp/internal/index"
	"msgmcp/internal/mcp"
	"msgmcp/internal/orchestrator"
	"msgmcp/internal/retrieval"
	"msgmcp/internal/store"
	"msgmcp/internal/transport"
)

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	store  *store.SQLiteStore
	client *genai.Client

	dispatcher *mcp.Dispatcher
	worker     *index.Worker
	orch       *orchestrator.Orchestrator

	logger *log.Logger
}

func loadConfig() (*config.Config, error) {
	overrides := &config.Overrides{}
	if globalFlags.StorePath != "" {
		overrides.StorePath = &globalFlags.StorePath
	}
	if globalFlags.RuntimeURL != "" {
		overrides.RuntimeBaseURL = &globalFlags.RuntimeURL
	}
	return config.Load(config.Options{ConfigPath: globalFlags.ConfigPath, Overrides: overrides})
}

// buildApp wires store, runtime client, tools, index worker, and
// orchestrator from config. The caller owns Close.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}

	logger := log.New(os.Stderr, "msgmcp: ", log.LstdFlags)
	if globalFlags.Quiet {
		logger = log.New(nopWriter{}, "", 0)
	}

	st := store.NewSQLiteStore(cfg.Store.Path)
	if err := st.Init(ctx); err != nil {
		exitWith(ExitStoreFailure, "ERROR: cannot open message store: "+err.Error())
	}
	// config is the source of truth for the vector space; aligning the
	// store's version here makes rows embedded under an older config stale.
	if err := st.SetEmbeddingVersion(ctx, cfg.Runtime.EmbedVersion); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("set embedding version: %w", err)
	}

	client := genai.NewClient(cfg.Runtime.BaseURL, cfg.Runtime.ChatModel, cfg.Runtime.EmbedModel, cfg.Runtime.EmbedVersion)

	searcher := &index.Searcher{Source: st, PageSize: cfg.Index.SearchPageSize}
	svc, err := retrieval.NewService(client, searcher, cfg.Index.QueryCacheSize)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("retrieval service: %w", err)
	}

	outbox := &transport.Outbox{Store: st, Logger: logger}

	registry := mcp.NewRegistry()
	registry.Logger = logger
	mcp.RegisterBuiltinTools(registry, st, outbox, svc)
	dispatcher := mcp.NewDispatcher(registry)
	dispatcher.Logger = logger

	worker := &index.Worker{
		Source:    st,
		Embedder:  client,
		BatchSize: cfg.Index.BatchSize,
		Logger:    logger,
	}

	orch := &orchestrator.Orchestrator{
		Backend:            client,
		Tools:              dispatcher,
		MaxContextMessages: cfg.Chat.MaxContextMessages,
		Logger:             logger,
	}

	return &app{
		cfg:        cfg,
		store:      st,
		client:     client,
		dispatcher: dispatcher,
		worker:     worker,
		orch:       orch,
		logger:     logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

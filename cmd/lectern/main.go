// Command lectern is the composition root: it loads configuration,
// assembles the adapter and service graph and hands control to the CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ramble-labs/lectern/internal/adapters/driven/embedding/cached"
	embedollama "github.com/ramble-labs/lectern/internal/adapters/driven/embedding/ollama"
	"github.com/ramble-labs/lectern/internal/adapters/driven/index/vector"
	llmollama "github.com/ramble-labs/lectern/internal/adapters/driven/llm/ollama"
	"github.com/ramble-labs/lectern/internal/adapters/driven/loader"
	filestorage "github.com/ramble-labs/lectern/internal/adapters/driven/storage/file"
	"github.com/ramble-labs/lectern/internal/adapters/driven/storage/sqlite"
	"github.com/ramble-labs/lectern/internal/adapters/driving/cli"
	"github.com/ramble-labs/lectern/internal/cache"
	"github.com/ramble-labs/lectern/internal/chunker"
	"github.com/ramble-labs/lectern/internal/config"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
	"github.com/ramble-labs/lectern/internal/core/services"
	"github.com/ramble-labs/lectern/internal/logger"
	"github.com/ramble-labs/lectern/internal/session"
)

// app holds everything that needs shutting down.
type app struct {
	registry driven.MetadataRegistry
	embedder driven.EmbeddingService
	llm      driven.LLMService
	sweeper  *services.Sweeper
	watcher  *config.Watcher
	sessions *session.Store
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var running *app

	cli.SetHooks(
		func(configPath string, verbose bool) error {
			a, err := bootstrap(ctx, configPath, verbose)
			if err != nil {
				return err
			}
			running = a
			return nil
		},
		func() {
			if running != nil {
				running.shutdown()
			}
		},
	)

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap builds the full service graph from configuration and
// installs it into the CLI. It also starts the idle-session sweeper and
// the configuration watcher.
func bootstrap(ctx context.Context, configPath string, verbose bool) (*app, error) {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		configPath = filepath.Join(home, ".lectern", "config.toml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}

	logger.SetVerbose(cfg.Verbose)
	if cfg.LogJSON {
		logger.UseJSON()
	}

	sessions, err := session.New(
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
		session.WithMaxMessages(cfg.Sessions.MaxMessages),
	)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	a := &app{sessions: sessions}
	if err := a.rebuild(cfg, sessions); err != nil {
		return nil, err
	}

	a.sweeper = services.NewSweeper(sessions, cfg.Sessions.SweepInterval.Std(), cfg.Sessions.IdleTimeout.Std())
	a.sweeper.Start(ctx)

	// Config changes rebuild the whole service graph and swap it in
	// atomically; the session store survives so conversations continue.
	watcher, err := config.NewWatcher(configPath, func(next config.Config) {
		if err := a.rebuild(next, sessions); err != nil {
			logger.Error("Config reload failed, keeping previous services: %v", err)
		}
	})
	if err != nil {
		logger.Debug("Config watching disabled: %v", err)
	} else {
		a.watcher = watcher
		go watcher.Start(ctx)
	}

	return a, nil
}

// rebuild assembles adapters and the orchestrator for cfg and installs
// them into the CLI, closing the providers they replace.
func (a *app) rebuild(cfg config.Config, sessions *session.Store) error {
	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	embedder := cached.NewWithTTL(embedollama.NewEmbeddingService(embedollama.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout.Std(),
	}), cfg.Embedding.CacheTTL.Std())

	engine, err := vector.New(embedder, cfg.IndexDir())
	if err != nil {
		return fmt.Errorf("vector engine: %w", err)
	}

	indexes, err := cache.New(engine, cfg.Cache.MaxIndices)
	if err != nil {
		return fmt.Errorf("index cache: %w", err)
	}

	chk, err := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.ChunkSize),
		chunker.WithOverlap(cfg.Chunking.ChunkOverlap),
	)
	if err != nil {
		return fmt.Errorf("chunker: %w", err)
	}

	var llm driven.LLMService
	if !cfg.LLM.Disabled {
		llm = llmollama.NewLLMService(llmollama.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout.Std(),
		})
	}

	orchestrator := services.NewOrchestrator(
		chk, registry, engine, indexes, sessions, loader.NewDefault(), llm,
		services.OrchestratorOptions{
			TopK:              cfg.Retrieval.TopK,
			RequestTimeout:    cfg.Limits.RequestTimeout.Std(),
			RequestsPerSecond: cfg.Limits.RequestsPerSecond,
			Burst:             cfg.Limits.Burst,
			MaxTokens:         cfg.LLM.MaxTokens,
			Temperature:       cfg.LLM.Temperature,
		},
	)

	cli.SetServices(&cli.Services{Assistant: orchestrator, Sessions: sessions})

	a.closeProviders()
	a.registry = registry
	a.embedder = embedder
	a.llm = llm
	return nil
}

func newRegistry(cfg config.Config) (driven.MetadataRegistry, error) {
	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		registry, err := sqlite.NewRegistry(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("sqlite registry: %w", err)
		}
		return registry, nil
	default:
		registry, err := filestorage.NewRegistry(cfg.MetadataDir())
		if err != nil {
			return nil, fmt.Errorf("file registry: %w", err)
		}
		return registry, nil
	}
}

func (a *app) closeProviders() {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			logger.Warn("Closing metadata registry: %v", err)
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			logger.Warn("Closing embedding service: %v", err)
		}
	}
	if a.llm != nil {
		if err := a.llm.Close(); err != nil {
			logger.Warn("Closing language model service: %v", err)
		}
	}
}

func (a *app) shutdown() {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	a.closeProviders()
}

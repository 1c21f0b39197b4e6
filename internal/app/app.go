// Package app assembles the process-wide services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/agenthands/docgraph/internal/cache"
	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core"
	"github.com/agenthands/docgraph/internal/driver"
	"github.com/agenthands/docgraph/internal/events"
	"github.com/agenthands/docgraph/internal/ingest"
	"github.com/agenthands/docgraph/internal/llm"
	"github.com/agenthands/docgraph/internal/logger"
	"github.com/agenthands/docgraph/internal/logger/console"
	"github.com/agenthands/docgraph/internal/logger/file"
	"github.com/agenthands/docgraph/internal/ratelimit"
	"github.com/agenthands/docgraph/internal/usage"
)

// SetupLogging registers the console backend and, when configured, the
// rotating file backend. The returned func flushes the file backend.
func SetupLogging(cfg config.LogConfig, prefix string) (func(), error) {
	backends := []logger.Backend{console.New(console.Params{Debug: cfg.Debug, Prefix: prefix})}
	flush := func() {}
	if cfg.File != "" {
		level := "info"
		if cfg.Debug {
			level = "debug"
		}
		fl, err := file.New(file.Params{
			Path:       cfg.File,
			Level:      level,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   true,
		})
		if err != nil {
			return nil, err
		}
		backends = append(backends, fl)
		flush = func() { _ = fl.Sync() }
	}
	logger.Init(backends...)
	return flush, nil
}

type App struct {
	Config   *config.Config
	Pipeline *core.Pipeline
	Service  *ingest.Service
	Store    *driver.Store
	Cache    *cache.FileCache
	Ledger   *usage.Ledger
	Limiter  *ratelimit.Limiter

	async   *events.Async
	closers []func() error
}

// New connects to the graph store, the model provider, the usage ledger and
// the optional broker, and builds the pipeline and ingest service on top.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to memgraph: %w", err)
	}
	a.closers = append(a.closers, func() error { return d.Close(context.Background()) })
	if err := d.BuildIndices(ctx); err != nil {
		logger.Warn("Failed to build indices", "error", err)
	}
	a.Store = driver.NewStore(d, cfg.Memgraph.BatchSize)

	llmClient, embedder, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if c, ok := llmClient.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	if a.Cache, err = cache.NewFileCache(cfg.Pipeline.CacheDir); err != nil {
		return nil, err
	}

	meter, err := a.openUsage(cfg.Usage)
	if err != nil {
		return nil, err
	}

	a.Limiter = core.NewLimiter(cfg.RateLimit)
	a.closers = append(a.closers, func() error { a.Limiter.Close(); return nil })

	deps := core.Deps{
		LLM:      llmClient,
		Embedder: embedder,
		Store:    a.Store,
		Cache:    a.Cache,
		Limiter:  a.Limiter,
		Meter:    meter,
	}
	if a.Pipeline, err = core.NewPipeline(cfg, deps); err != nil {
		return nil, err
	}
	if a.Service, err = ingest.NewService(a.Pipeline, cfg.Pipeline.ParallelDocuments); err != nil {
		return nil, err
	}

	observers := events.Multi{a.Service}
	if cfg.Events.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return nil, err
		}
		a.async = events.NewAsync(pub, cfg.Events.BufferSize)
		a.closers = append(a.closers, pub.Close)
		observers = append(observers, a.async)
	}
	a.Pipeline.Observer = observers
	return a, nil
}

func (a *App) openUsage(cfg config.UsageConfig) (*usage.Meter, error) {
	if cfg.DBPath == "" {
		return nil, nil
	}
	ledger, err := usage.OpenLedger(filepath.Clean(cfg.DBPath))
	if err != nil {
		return nil, err
	}
	a.Ledger = ledger
	a.closers = append(a.closers, ledger.Close)

	var counter usage.Counter = usage.WordCounter{}
	if cfg.Encoding != "" {
		tc, err := usage.NewTiktokenCounter(cfg.Encoding)
		if err != nil {
			logger.Warn("Falling back to word counts for usage", "encoding", cfg.Encoding, "error", err)
		} else {
			counter = tc
		}
	}
	return &usage.Meter{Recorder: ledger, Counter: counter, Pricing: usage.Pricing(cfg.Pricing)}, nil
}

// Close drains running documents until ctx ends, then releases every
// connection in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Service != nil {
		if err := a.Service.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.async != nil {
		a.async.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

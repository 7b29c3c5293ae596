// Package app wires configuration, catalog, engine, generator and scheduler
// into one application used by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/autohub/internal/builtin"
	"github.com/zjrosen/autohub/internal/cachemanager"
	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/config"
	"github.com/zjrosen/autohub/internal/engine"
	"github.com/zjrosen/autohub/internal/flags"
	"github.com/zjrosen/autohub/internal/generate"
	"github.com/zjrosen/autohub/internal/infrastructure/sqlite"
	"github.com/zjrosen/autohub/internal/loader"
	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/pubsub"
	"github.com/zjrosen/autohub/internal/scheduler"
	"github.com/zjrosen/autohub/internal/tracing"
	"github.com/zjrosen/autohub/internal/watcher"
	"github.com/zjrosen/autohub/internal/workflow"
)

// App owns the long-lived services of one autohub process.
type App struct {
	cfg       config.Config
	flags     *flags.Registry
	tracing   *tracing.Provider
	loader    *loader.ProcessLoader
	snapshots *pubsub.Broker[*catalog.Snapshot]
	catalog   *catalog.Service
	engine    *engine.Engine
	generator *generate.Generator

	// The scheduler database is opened on first use so commands that never
	// touch schedules do not create it.
	mu        sync.Mutex
	db        *sqlite.DB
	scheduler *scheduler.Scheduler
}

// New builds an App from cfg. No scan is performed.
func New(cfg config.Config) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tp, err := tracing.NewProvider(cfg.Tracing.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	a := &App{
		cfg:       cfg,
		flags:     flags.New(cfg.Flags),
		tracing:   tp,
		snapshots: pubsub.NewBroker[*catalog.Snapshot](),
	}

	a.loader = loader.NewProcessLoader(loader.Config{
		Interpreters:     cfg.InterpreterMap(),
		VerifyOnLoad:     cfg.Loader.VerifyOnLoad,
		HandshakeTimeout: cfg.Loader.HandshakeTimeout,
		CloseTimeout:     cfg.Loader.CloseTimeout,
		StderrLines:      cfg.Loader.StderrLines,
		Env:              cfg.Loader.Env,
	})

	opts := []catalog.Option{
		catalog.WithTracer(tp.Tracer()),
		catalog.WithBroker(a.snapshots),
	}
	if len(cfg.Catalog.Extensions) > 0 {
		opts = append(opts, catalog.WithExtensions(cfg.Catalog.Extensions...))
	}
	if !a.flags.Enabled(flags.FlagDisableBuiltins) {
		opts = append(opts, catalog.WithBuiltins(builtin.Workflows))
	}
	if ttl := cfg.Catalog.ParseCacheTTL; ttl > 0 && !a.flags.Enabled(flags.FlagDisableParseCache) {
		cache := cachemanager.NewInMemoryCacheManager[*workflow.Metadata]("metadata", ttl, 2*ttl)
		opts = append(opts, catalog.WithParseCache(cache, ttl))
	}
	a.catalog = catalog.NewService(a.loader, opts...)

	a.engine = engine.New(engine.WithTracer(tp.Tracer()))
	a.generator = generate.NewGenerator(a.strategies(), generate.WithTracer(tp.Tracer()))

	log.Debug(log.CatConfig, "Application wired",
		"roots", len(cfg.ResolvedRoots()),
		"extensions", a.catalog.Extensions(),
		"strategies", a.generator.Strategies())
	return a, nil
}

// strategies returns the generation chain: remote model when a key is
// available, then the keyword template.
func (a *App) strategies() []generate.Strategy {
	var out []generate.Strategy
	g := a.cfg.Generation
	if !g.DisableAI {
		ai, err := generate.NewAIStrategy(generate.AIConfig{
			APIKey:     generate.APIKeyFromEnv(g.APIKey),
			BaseURL:    g.BaseURL,
			Model:      g.Model,
			MaxTokens:  g.MaxTokens,
			Timeout:    g.Timeout,
			MaxRetries: g.MaxRetries,
		})
		switch {
		case err == nil:
			out = append(out, ai)
		case errors.Is(err, generate.ErrNoAPIKey):
			log.Debug(log.CatGenerate, "No API key configured, remote generation disabled")
		default:
			log.ErrorErr(log.CatGenerate, "Remote generation disabled", err)
		}
	}
	return append(out, generate.TemplateStrategy{})
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config { return a.cfg }

// Flags returns the feature flag registry.
func (a *App) Flags() *flags.Registry { return a.flags }

// Catalog returns the script catalog.
func (a *App) Catalog() *catalog.Service { return a.catalog }

// Engine returns the execution engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Generator returns the script generator.
func (a *App) Generator() *generate.Generator { return a.generator }

// Snapshots returns the broker every new catalog snapshot is published on.
func (a *App) Snapshots() *pubsub.Broker[*catalog.Snapshot] { return a.snapshots }

// Scan scans the configured roots.
func (a *App) Scan(ctx context.Context) (*catalog.Snapshot, error) {
	return a.catalog.Scan(ctx, a.cfg.ResolvedRoots())
}

// Run looks id up in the current snapshot and executes it. Only a failed
// lookup is returned as an error; execution failures are in the Result.
func (a *App) Run(ctx context.Context, id string, args map[string]any) (*workflow.Result, error) {
	d, err := a.catalog.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", id, err)
	}
	return a.engine.Execute(ctx, d, args), nil
}

// Scheduler returns the scheduler, opening its database on first use.
// The scheduler is not started.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler != nil {
		return a.scheduler, nil
	}

	loc, err := a.cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	db, err := sqlite.NewDB(a.cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening scheduler database: %w", err)
	}
	a.db = db
	a.scheduler = scheduler.New(db.TaskStore(), a.catalog, a.engine,
		scheduler.WithDefaultTimeout(a.cfg.Scheduler.DefaultTimeout),
		scheduler.WithTracer(a.tracing.Tracer()),
		scheduler.WithLocation(loc),
	)
	return a.scheduler, nil
}

// ChangeFunc receives the snapshots before and after a hot reload.
type ChangeFunc func(older, newer *catalog.Snapshot)

// Watch rescans whenever candidate files under the scanned roots change,
// calling onChange after each rescan. It blocks until ctx is done.
func (a *App) Watch(ctx context.Context, onChange ChangeFunc) error {
	roots := a.catalog.Roots()
	if len(roots) == 0 {
		roots = a.cfg.ResolvedRoots()
	}
	w, err := watcher.New(watcher.Config{
		Roots:       roots,
		Extensions:  a.catalog.Extensions(),
		DebounceDur: a.cfg.Catalog.WatchDebounce,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	if err != nil {
		return err
	}
	log.Info(log.CatWatcher, "Watching roots", "roots", len(roots))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			older := a.catalog.Snapshot()
			newer, err := a.catalog.Scan(ctx, roots)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.ErrorErr(log.CatWatcher, "Rescan failed", err)
				continue
			}
			if onChange != nil {
				onChange(older, newer)
			}
		}
	}
}

// Close stops the scheduler, closes the database and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.mu.Lock()
	if a.scheduler != nil {
		errs = append(errs, a.scheduler.Stop(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
		a.scheduler = nil
	}
	a.mu.Unlock()
	a.snapshots.Close()
	errs = append(errs, a.tracing.Shutdown(ctx))
	return errors.Join(errs...)
}

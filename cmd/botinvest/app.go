package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"BotInvest/internal/calculator"
	"BotInvest/internal/collector"
	"BotInvest/internal/config"
	"BotInvest/internal/ledger"
	"BotInvest/internal/logger"
	"BotInvest/internal/observability"
	"BotInvest/internal/recorder"
	"BotInvest/internal/screener"
	"BotInvest/internal/store"
)

// App holds the wired components shared by all commands.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Collector *collector.Collector
	Screener  *screener.Screener
	Ledger    *ledger.Ledger
	Recorder  recorder.Recorder

	closers []func()
}

// init loads configuration and builds every component. Resources acquired
// along the way are released by Close even when init fails part way.
func (a *App) init(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	a.Config = cfg

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.Logger = log
	a.closers = append(a.closers, func() { _ = log.Sync() })

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = observability.NewMetrics(a.Registry, cfg.Metrics.Namespace)

	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.Pretty, os.Stderr)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() { _ = shutdown(context.Background()) })
	}

	fetcher, err := a.buildFetcher()
	if err != nil {
		return err
	}
	log.Info("data source", zap.String("fetcher", fetcher.Name()))
	a.Collector = collector.NewCollector(fetcher, cfg.Data.LookbackDays, log)

	engine, err := calculator.NewEngine(cfg.Indicators)
	if err != nil {
		return fmt.Errorf("init indicator engine: %w", err)
	}
	a.Screener, err = screener.New(a.Collector, engine, cfg.Screener.Config,
		screener.WithLogger(log), screener.WithMetrics(a.Metrics))
	if err != nil {
		return fmt.Errorf("init screener: %w", err)
	}

	st, err := a.buildStore(ctx)
	if err != nil {
		return err
	}
	cash, err := cfg.StartingCash()
	if err != nil {
		return err
	}
	a.Ledger, err = ledger.Open(ctx, st,
		ledger.WithLogger(log),
		ledger.WithMetrics(a.Metrics),
		ledger.WithStartingCash(cash))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	a.Recorder = a.buildRecorder()
	return nil
}

func (a *App) buildFetcher() (collector.Fetcher, error) {
	cfg := a.Config
	mock := &collector.MockFetcher{Price: 100}

	var f collector.Fetcher = mock
	if cfg.Data.Source == "csv" {
		sources := []collector.Fetcher{collector.NewCSVFetcher(cfg.Data.Dir)}
		if cfg.Data.FallbackMock {
			sources = append(sources, mock)
		}
		f = collector.NewChainFetcher(a.Logger, sources...)
	}

	if cfg.Data.CacheTTL <= 0 {
		return f, nil
	}
	cached, err := collector.NewCachedFetcher(f, cfg.Data.CacheMaxCost, cfg.Data.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("init price cache: %w", err)
	}
	a.closers = append(a.closers, cached.Close)
	return cached, nil
}

func (a *App) buildStore(ctx context.Context) (ledger.Store, error) {
	cfg := a.Config
	switch cfg.Store.Driver {
	case "json":
		return store.NewJSONStore(cfg.Store.Path), nil
	case "sqlite":
		if err := ensureDir(cfg.Store.Path); err != nil {
			return nil, err
		}
		s, err := store.NewSQLiteStore(cfg.Store.Path, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil
	case "postgres":
		pool, err := store.NewPool(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		s, err := store.NewPostgresStore(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	default:
		a.Logger.Warn("using in-memory ledger store; state is lost on exit")
		return store.NewMemoryStore(), nil
	}
}

func (a *App) buildRecorder() recorder.Recorder {
	path := a.Config.Recorder.SQLitePath
	if path == "" {
		return recorder.NewNoopRecorder()
	}
	if err := ensureDir(path); err != nil {
		a.Logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	th := a.Config.Screener.Thresholds
	r, err := recorder.NewSQLiteRecorder(path, th.ShortWindow, th.LongWindow, a.Logger)
	if err != nil {
		a.Logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	a.closers = append(a.closers, func() { _ = r.Close() })
	return r
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"CrateDigger/internal/cache"
	"CrateDigger/internal/config"
	"CrateDigger/internal/credentials"
	"CrateDigger/internal/domain"
	"CrateDigger/internal/httpapi"
	"CrateDigger/internal/infrastructure/discovery"
	"CrateDigger/internal/infrastructure/scheduler"
	"CrateDigger/internal/infrastructure/storage"
	"CrateDigger/internal/infrastructure/telegram"
	"CrateDigger/internal/infrastructure/youtube"
	"CrateDigger/internal/logging"
	"CrateDigger/internal/metrics"
	"CrateDigger/internal/usecase"
	"CrateDigger/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	redis     *cache.RedisTier
	cache     *cache.Cache
	registry  *prometheus.Registry
	pipeline  *usecase.Pipeline
	retrieval *usecase.Retrieval
	scheduler *usecase.Scheduler
}

// New opens storage and builds every component. It does not migrate the schema.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a := &Application{cfg: cfg, logger: baseLogger, store: store, registry: prometheus.NewRegistry()}

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(a.registry)

	cacheOpts := []cache.Option{
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithEvictBlock(cfg.Cache.EvictBlock),
		cache.WithObserver(collector),
		cache.WithLogger(baseLogger.With("component", "cache")),
	}
	if cfg.Cache.RedisURL != "" {
		tier, err := cache.NewRedisTier(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("redis cache tier: %w", err), store.Close())
		}
		a.redis = tier
		cacheOpts = append(cacheOpts, cache.WithTier(tier, cfg.Cache.SearchTTL))
	}
	a.cache = cache.New(cacheOpts...)

	if len(cfg.YouTube.APIKeys) == 0 {
		baseLogger.Warn("no platform api keys configured; platform calls will fail", "env", "YOUTUBE_API_KEYS")
	}
	rotator := credentials.NewRotator(cfg.YouTube.APIKeys,
		credentials.WithObserver(collector),
		credentials.WithLogger(baseLogger.With("component", "credentials")),
	)
	client := youtube.NewClient(youtube.Config{
		BaseURL:           cfg.YouTube.BaseURL,
		Timeout:           cfg.YouTube.Timeout,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Burst:             cfg.YouTube.Burst,
		SearchTTL:         cfg.Cache.SearchTTL,
		DetailsTTL:        cfg.Cache.DetailsTTL,
		ListTTL:           cfg.Cache.ListTTL,
	}, rotator,
		youtube.WithCache(a.cache),
		youtube.WithLogger(baseLogger.With("component", "youtube")),
	)

	pages := discovery.NewPageScanner(&http.Client{Timeout: cfg.YouTube.Timeout})
	source := discovery.NewStrategySource(
		discovery.NewDefaultRegistry(client, pages),
		baseLogger.With("component", "source"),
	)

	relaxed := make([]domain.SourceKind, 0, len(cfg.Pipeline.RelaxedSources))
	for _, k := range cfg.Pipeline.RelaxedSources {
		relaxed = append(relaxed, domain.SourceKind(k))
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:            source,
		Platform:          client,
		Candidates:        store.Candidates(),
		Catalog:           store.Catalog(),
		Cursors:           store.Candidates(),
		Observer:          collector,
		Logger:            baseLogger.With("component", "pipeline"),
		RelaxedSources:    relaxed,
		MaxEnrichAttempts: cfg.Pipeline.MaxEnrichAttempts,
	})

	a.retrieval = usecase.NewRetrieval(usecase.RetrievalDeps{
		Catalog:         store.Catalog(),
		Observer:        collector,
		Logger:          baseLogger.With("component", "retrieval"),
		MaxExclusions:   cfg.Retrieval.MaxExclusions,
		RecycleAttempts: cfg.Retrieval.RecycleAttempts,
	})

	schedDeps := usecase.SchedulerDeps{
		Driver:   scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location()),
		Pipeline: a.pipeline,
		Sources:  seedSources(cfg.Sources),
		Limits:   a.BatchLimits(),
		Cycles:   collector,
		Logger:   baseLogger.With("component", "scheduler"),
	}
	if cfg.Pipeline.LockFile != "" {
		lock, err := scheduler.NewFileLock(cfg.Pipeline.LockFile)
		if err != nil {
			return nil, multierr.Append(err, a.Close())
		}
		schedDeps.Locker = lock
	}
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Enabled() {
		schedDeps.Notifier = tg
	}
	a.scheduler = usecase.NewScheduler(schedDeps)

	return a, nil
}

func seedSources(in []config.SourceConfig) []usecase.SeedSource {
	out := make([]usecase.SeedSource, 0, len(in))
	for _, s := range in {
		out = append(out, usecase.SeedSource{Kind: domain.SourceKind(s.Kind), Ref: s.Ref, MaxItems: s.MaxItems})
	}
	return out
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config { return a.cfg }

// Logger returns the base logger.
func (a *Application) Logger() *slog.Logger { return a.logger }

// Pipeline exposes the orchestrator.
func (a *Application) Pipeline() *usecase.Pipeline { return a.pipeline }

// Retrieval exposes the read path.
func (a *Application) Retrieval() *usecase.Retrieval { return a.retrieval }

// BatchLimits derives one batch from the pipeline settings.
func (a *Application) BatchLimits() usecase.BatchLimits {
	return usecase.BatchLimits{
		Enrich:   a.cfg.Pipeline.EnrichLimit,
		Score:    a.cfg.Pipeline.ScoreLimit,
		Promote:  a.cfg.Pipeline.PromoteLimit,
		MinScore: a.cfg.Pipeline.MinScore,
	}
}

// Migrate runs a goose command (up, down, status, version, redo, reset) against the store.
func (a *Application) Migrate(ctx context.Context, command string, args ...string) error {
	return a.store.RunMigration(ctx, logger.NewMigrationLogger(a.logger, "migrate"), command, args...)
}

// RunOnce performs a single scheduled cycle now.
func (a *Application) RunOnce(ctx context.Context) (usecase.CycleReport, error) {
	return a.scheduler.RunCycle(ctx, time.Now().In(a.cfg.Scheduler.Location()))
}

// Handler builds the HTTP read API.
func (a *Application) Handler() http.Handler {
	return httpapi.NewRouter(a.retrieval, a.store,
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		a.logger.With("component", "http"))
}

// Serve runs the HTTP API, the cache sweeper and, when withScheduler is set, the interval scheduler
// until ctx is canceled or one of them fails.
func (a *Application) Serve(ctx context.Context, withScheduler bool) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.cache.Run(gctx, a.cfg.Cache.SweepInterval)
		return nil
	})

	if withScheduler {
		if err := a.scheduler.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.scheduler.Stop(stopCtx)
		})
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.New(a.logger, "http", slog.LevelWarn),
	}
	g.Go(func() error {
		a.logger.Info("http server listening", "addr", srv.Addr, "scheduler", withScheduler)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases storage and cache connections.
func (a *Application) Close() error {
	var err error
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	return err
}

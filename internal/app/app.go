package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/stepflow/internal/catalog"
	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/integrations"
	"github.com/shaiso/stepflow/internal/mq"
	"github.com/shaiso/stepflow/internal/orchestrator"
	"github.com/shaiso/stepflow/internal/repo"
	"github.com/shaiso/stepflow/internal/retry"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// App — собранный движок: интеграции, история, каталог и observer'ы.
type App struct {
	Config  *config.Config
	Engines *orchestrator.Engines
	History *repo.RunStore
	Catalog *catalog.Catalog

	logger  *slog.Logger
	closers []func()
}

// Options — необязательные части сборки.
type Options struct {
	// Registerer — куда регистрировать метрики. nil — без метрик.
	Registerer prometheus.Registerer
}

// New собирает App по конфигурации.
//
// Postgres архив и публикация событий подключаются только если включены
// в cfg. Ошибка подключения к ним — ошибка сборки.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	cat, err := catalog.Builtin()
	if err != nil {
		return nil, err
	}
	if cfg.CatalogDir != "" {
		if err := cat.LoadDir(cfg.CatalogDir); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}
	a.Catalog = cat

	storeCfg := repo.StoreConfig{
		MaxRuns: cfg.HistoryMaxRuns,
		MaxAge:  cfg.HistoryMaxAge,
		Logger:  logger,
	}
	if cfg.ArchiveEnabled {
		archive, err := a.openArchive(ctx, cfg.DBURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		storeCfg.Archiver = archive
	}
	a.History = repo.NewRunStore(storeCfg)

	var observers []orchestrator.Observer
	if opts.Registerer != nil {
		observers = append(observers, telemetry.NewMetrics(opts.Registerer))
	}
	if cfg.EventsEnabled {
		events, err := a.openEvents(ctx, cfg.RabbitMQURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		observers = append(observers, events)
	}

	engines, err := a.buildEngines(cfg, observers)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engines = engines

	logger.Info("engine ready",
		"integrations", engines.Integrations(),
		"workflows", cat.Len(),
		"archive", cfg.ArchiveEnabled,
		"events", cfg.EventsEnabled,
	)
	return a, nil
}

// openArchive подключает Postgres архив истории.
func (a *App) openArchive(ctx context.Context, dsn string) (*repo.PgArchive, error) {
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	archive := repo.NewPgArchive(pool)
	if err := archive.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	a.logger.Info("run archive enabled")
	return archive, nil
}

// openEvents подключает публикацию событий в RabbitMQ.
func (a *App) openEvents(ctx context.Context, url string) (*mq.EventObserver, error) {
	conn, err := mq.NewConnection(url, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := conn.Close(); err != nil {
			a.logger.Warn("close rabbitmq connection", "error", err)
		}
	})

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	a.logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())

	return mq.NewEventObserver(mq.NewPublisher(conn, a.logger), 0, a.logger), nil
}

// buildEngines создаёт Runner на каждую интеграцию.
func (a *App) buildEngines(cfg *config.Config, observers []orchestrator.Observer) (*orchestrator.Engines, error) {
	baseURLs := map[string]string{
		integrations.IntegrationDocuments:     cfg.DocumentsBaseURL,
		integrations.IntegrationOrchestration: cfg.OrchestrationBaseURL,
	}

	runners := make([]*orchestrator.Runner, 0, len(baseURLs))
	for _, name := range integrations.Names() {
		client := integrations.NewVendorClient(integrations.ClientConfig{
			Name:    name,
			BaseURL: baseURLs[name],
			Logger:  a.logger,
		})
		reg, err := integrations.NewRegistry(name, client, a.logger)
		if err != nil {
			return nil, err
		}

		runners = append(runners, orchestrator.NewRunner(orchestrator.Config{
			Integration: name,
			Registry:    reg,
			Store:       a.History,
			StepTimeout: cfg.StepTimeout,
			Retry: retry.Policy{
				MaxAttempts:  cfg.RetryMaxAttempts,
				InitialDelay: cfg.RetryInitialDelay,
			},
			Observers: observers,
			Logger:    a.logger,
		}))
	}

	return orchestrator.NewEngines(integrations.IntegrationOrchestration, runners...)
}

// Close освобождает соединения в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

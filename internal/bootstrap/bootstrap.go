package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/insurance-doc-classifier/internal/config"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/classification"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/usecase"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/inspect/pdfinfo"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/queue/nats"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/repository/objectstore"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/resilience"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/storage/miniostore"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/storage/s3store"
	"github.com/kirillkom/insurance-doc-classifier/internal/infrastructure/tabular/excel"
	"github.com/kirillkom/insurance-doc-classifier/internal/observability/metrics"
)

type Options struct {
	Service string
	Logger  *slog.Logger
	// Registry receives pipeline collectors; one is created when nil.
	Registry *prometheus.Registry
	// RequireQueue fails startup when NATS is not configured.
	RequireQueue bool
}

type App struct {
	Config config.Config

	Classifier *usecase.ClassifyUseCase
	Queue      *nats.Queue
	Results    ports.ResultStore
	Metrics    *metrics.PipelineMetrics
	Registry   *prometheus.Registry
	Logger     *slog.Logger

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	app := &App{Config: cfg, Registry: registry, Logger: logger}

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	results, err := app.newResultStore(ctx, cfg, store)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init result store: %w", err)
	}
	app.Results = results

	apiKey, err := cfg.ResolveCredential()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("resolve model credentials: %w", err)
	}
	modelGuard := resilience.NewGuard(resilience.Policy{
		RateLimitRPS:            cfg.ModelRateLimitRPS,
		RateLimitBurst:          cfg.ModelRateLimitBurst,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSecs) * time.Second,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	})
	model := gemini.New(cfg.ModelEndpoint, cfg.ModelName, apiKey, gemini.Options{
		Timeout: time.Duration(cfg.ModelTimeoutSeconds) * time.Second,
		Guard:   modelGuard,
	})

	var queue ports.BatchQueue
	if cfg.NATSURL != "" {
		q, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Guard:  resilience.NewGuard(resilience.DefaultPolicy()),
			Logger: logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = q
		app.closers = append(app.closers, q.Close)
		queue = q
	} else if opts.RequireQueue {
		app.Close()
		return nil, fmt.Errorf("NATS_URL is required")
	}

	app.Metrics = metrics.NewPipelineMetrics(opts.Service, registry)

	app.Classifier = usecase.NewClassifyUseCase(usecase.Dependencies{
		Store:       store,
		Model:       model,
		Adapter:     classification.NewAdapter(excel.NewDecoder(cfg.SpreadsheetRows), logger),
		Interpreter: classification.NewInterpreter(logger),
		Results:     results,
		Inspector:   pdfinfo.NewInspector(),
		Queue:       queue,
		Metrics:     app.Metrics,
		Logger:      logger,
	}, usecase.Options{
		UploadsBucket: cfg.UploadsBucket,
		KeyPrefix:     cfg.KeyPrefix,
		Concurrency:   cfg.BatchConcurrency,
	})

	logger.Info("bootstrap_completed",
		"storage_backend", cfg.StorageBackend,
		"result_store", cfg.ResultStore,
		"model", cfg.ModelName,
		"queue_enabled", queue != nil,
	)
	return app, nil
}

func newObjectStore(ctx context.Context, cfg config.Config) (ports.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageLocalFS:
		return localfs.New(cfg.StoragePath)
	case config.StorageMinIO:
		return miniostore.New(ctx, miniostore.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.S3Region,
			Buckets:   []string{cfg.UploadsBucket, cfg.ResultsBucket},
		})
	default:
		return s3store.New(s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
	}
}

func (a *App) newResultStore(ctx context.Context, cfg config.Config, store ports.ObjectStore) (ports.ResultStore, error) {
	switch cfg.ResultStore {
	case config.ResultStorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, closeDB(db))
		repo := postgres.NewResultRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case config.ResultStoreObject:
		return objectstore.NewResultRepository(store, cfg.ResultsBucket), nil
	default:
		return nil, nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		_ = db.Close()
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

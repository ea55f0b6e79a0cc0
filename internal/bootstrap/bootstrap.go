package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/plan-takeoff/internal/config"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
	"github.com/kirillkom/plan-takeoff/internal/core/usecase"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/extractor/planmeta"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/filetype"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/queue/nats"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/resilience"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/rules"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/storage/gcs"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue        ports.MessageQueue
	Uploader     ports.MapUploader
	Maps         ports.MapReader
	MapDeleter   ports.MapDeleter
	Processor    ports.MapProcessor
	Calibrator   ports.Calibrator
	Measurements ports.MeasurementService
	Estimates    ports.EstimateService

	closers []func()
}

type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer resilience.Observer
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithResilienceObserver reports retries and breaker transitions of the
// broker and blob store calls.
func WithResilienceObserver(observer resilience.Observer) Option {
	return func(o *options) { o.observer = observer }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg, Logger: o.logger}

	executorOpts := []resilience.Option{resilience.WithLogger(o.logger)}
	if o.observer != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(o.observer))
	}
	executor := resilience.NewExecutor(cfg.Resilience, executorOpts...)
	o.logger.Info("resilience_policy", "policy", cfg.Resilience)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	mapRepo := postgres.NewMapRepository(db)
	measurementRepo := postgres.NewMeasurementRepository(db)
	estimateRepo := postgres.NewEstimateRepository(db)

	storage, err := app.openStorage(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             o.logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closers = append(app.closers, queue.Close)

	costRules, err := rules.Load(cfg.CostRulesPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load cost rules: %w", err)
	}

	app.Queue = queue
	app.Uploader = usecase.NewUploadMapUseCase(mapRepo, storage, queue, filetype.NewClassifier())
	app.Maps = usecase.NewMapQueryUseCase(mapRepo, storage)
	app.MapDeleter = usecase.NewDeleteMapUseCase(mapRepo, storage, o.logger)
	app.Processor = usecase.NewProcessMapUseCase(mapRepo, storage, planmeta.NewExtractor(cfg.MaxPDFBytes))
	app.Calibrator = usecase.NewCalibrateMapUseCase(mapRepo)
	app.Measurements = usecase.NewMeasurementUseCase(mapRepo, measurementRepo)
	app.Estimates = usecase.NewEstimateUseCase(estimateRepo, mapRepo, measurementRepo, costRules, xlsx.NewExporter(), cfg.DefaultCurrency)
	return app, nil
}

func (a *App) openStorage(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendGCS:
		s, err := gcs.New(ctx, cfg.GCSBucket, gcs.Options{Prefix: cfg.GCSPrefix, ResilienceExecutor: executor})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil
	case config.StorageBackendLocal, "":
		s, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/plan-takeoff/internal/bootstrap"
	"github.com/kirillkom/plan-takeoff/internal/config"
	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/queue/nats"
	"github.com/kirillkom/plan-takeoff/internal/observability/logging"
	"github.com/kirillkom/plan-takeoff/internal/observability/metrics"
)

const serviceName = "plan-takeoff-worker"

func main() {
	cfg := config.Load()
	logger := logging.Setup(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithLogger(logger),
		bootstrap.WithResilienceObserver(metrics.NewResilienceMetrics(workerMetrics.Registerer(), serviceName)),
	)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeMapUploaded(ctx, func(handlerCtx context.Context, mapID string) error {
		if at, ok := nats.PublishedAt(handlerCtx); ok {
			workerMetrics.ObserveQueueLag(time.Since(at))
		}
		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.ProcessTimeout())
		defer cancel()

		done := workerMetrics.Track()
		started := time.Now()
		res, err := app.Processor.ProcessByID(processCtx, mapID)
		done(res, err)

		attrs := []any{
			"map_id", mapID,
			"outcome", res.Outcome,
			"file_type", res.FileType,
			"duration_ms", time.Since(started).Milliseconds(),
		}
		switch {
		case err != nil:
			logger.Error("map_processing_failed", append(attrs, "error", err)...)
			return err
		case res.Outcome == domain.ProcessReady:
			logger.Info("map_processed", append(attrs,
				"page_count", res.Metadata.PageCount,
				"width_px", res.Metadata.WidthPx,
				"height_px", res.Metadata.HeightPx,
			)...)
		default:
			logger.Info("map_processing_skipped", attrs...)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

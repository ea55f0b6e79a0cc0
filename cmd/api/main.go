package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/plan-takeoff/internal/adapters/http"
	"github.com/kirillkom/plan-takeoff/internal/bootstrap"
	"github.com/kirillkom/plan-takeoff/internal/config"
	"github.com/kirillkom/plan-takeoff/internal/observability/logging"
	"github.com/kirillkom/plan-takeoff/internal/observability/metrics"
)

const serviceName = "plan-takeoff-api"

func main() {
	cfg := config.Load()
	logger := logging.Setup(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithLogger(logger),
		bootstrap.WithResilienceObserver(metrics.NewResilienceMetrics(httpMetrics.Registerer(), serviceName)),
	)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Uploader:     app.Uploader,
		Maps:         app.Maps,
		MapDeleter:   app.MapDeleter,
		Calibrator:   app.Calibrator,
		Measurements: app.Measurements,
		Estimates:    app.Estimates,
	}, httpadapter.WithMetrics(httpMetrics, httpMetrics.Handler(), func(next http.Handler) http.Handler {
		return httpMetrics.Middleware(serviceName, next)
	}))

	server := &http.Server{
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		log.Fatalf("api listen error: %v", err)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}

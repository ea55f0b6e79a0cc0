package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/plan-takeoff/internal/adapters/mcp"
	"github.com/kirillkom/plan-takeoff/internal/bootstrap"
	"github.com/kirillkom/plan-takeoff/internal/config"
	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/observability/logging"
)

const serviceName = "plan-takeoff-mcp"

// stdout carries the protocol, so logs go to stderr.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.WithLogger(logger))
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	actor := domain.SystemActor
	if cfg.MCPActorID != "" {
		actor = domain.Actor{UserID: cfg.MCPActorID}
	}
	tools := mcpadapter.NewTools(mcpadapter.Services{
		Calibrator:   app.Calibrator,
		Measurements: app.Measurements,
		Estimates:    app.Estimates,
	}, actor, logger)

	if err := server.ServeStdio(mcpadapter.NewServer(tools)); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}

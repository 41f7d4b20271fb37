package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/insurance-doc-classifier/internal/bootstrap"
	"github.com/kirillkom/insurance-doc-classifier/internal/config"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
	"github.com/kirillkom/insurance-doc-classifier/internal/observability/logging"
)

const service = "docclass"

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(bootstrapExecutor, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrapExecutor wires the full pipeline. Logs go to logOut so stdout
// stays free for results and the MCP stdio transport.
func bootstrapExecutor(ctx context.Context, logOut io.Writer) (ports.BatchExecutor, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.NewJSONLoggerTo(logOut, service, cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: service, Logger: logger})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app.Classifier, logger, app.Close, nil
}

// Command reconcile closes uploads left in the processing state.
//
// Run it from cron or by hand after a crash:
//
//	reconcile --reconcile.older_than=2h
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rpattn/impactdash/internal/config"
	"github.com/rpattn/impactdash/internal/db"
	"github.com/rpattn/impactdash/internal/ingestion"
	"github.com/rpattn/impactdash/internal/logging"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	fs := pflag.NewFlagSet("reconcile", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("impactdash-reconcile", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	reconciler := ingestion.NewReconciler(repository.NewUploadRepository(conn.Pool), logger, nil)
	closed, err := reconciler.Sweep(ctx, cfg.Reconcile.OlderThan)
	if err != nil {
		logger.Error("Reconcile sweep finished with errors", zap.Int("closed", closed), zap.Error(err))
		conn.Close()
		os.Exit(1)
	}
	logger.Info("Reconcile sweep finished",
		zap.Int("closed", closed),
		zap.Duration("older_than", cfg.Reconcile.OlderThan))
}

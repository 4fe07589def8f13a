package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/impactdash/internal/auth"
	"github.com/rpattn/impactdash/internal/catalog"
	"github.com/rpattn/impactdash/internal/config"
	"github.com/rpattn/impactdash/internal/db"
	"github.com/rpattn/impactdash/internal/export"
	"github.com/rpattn/impactdash/internal/ingestion"
	"github.com/rpattn/impactdash/internal/logging"
	"github.com/rpattn/impactdash/internal/middleware"
	"github.com/rpattn/impactdash/internal/observability/metrics"
	"github.com/rpattn/impactdash/internal/observations"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/rs/cors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "impactdash: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("impactdash", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	logger, err := logging.New("impactdash", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(conn.Pool, cfg.Database.MigrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create repositories
	orgRepo := repository.NewOrganizationRepository(conn.Pool)
	uploadRepo := repository.NewUploadRepository(conn.Pool)
	observationRepo := repository.NewObservationRepository(conn.Pool)
	metricRepo := repository.NewMetricRepository(conn.Pool)

	m := metrics.New()

	ingestionService := ingestion.NewService(uploadRepo, observationRepo, metricRepo,
		ingestion.WithLogger(logger.Named("ingestion")),
		ingestion.WithRecorder(m),
		ingestion.WithCSVMode(cfg.Ingestion.CSVMode),
		ingestion.WithDelimiter([]rune(cfg.Ingestion.Delimiter)[0]),
		ingestion.WithMaxReturnedErrors(cfg.Ingestion.MaxReturnedErrors),
		ingestion.WithPreviewRows(cfg.Ingestion.PreviewRows),
		ingestion.WithHeartbeatInterval(cfg.Ingestion.HeartbeatInterval),
	)
	observationService := observations.NewService(observationRepo, metricRepo, logger.Named("observations"))
	exportService := export.NewService(
		observationRepo,
		metricRepo,
		export.WithPageSize(cfg.Export.PageSize),
		export.WithLogger(logger.Named("export")),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	scoped := auth.OwnerScope(orgRepo, cfg.Auth.DefaultOwnerID, logger)
	route := func(name string, h http.Handler) http.Handler {
		return corsHandler.Handler(middleware.LoggingMiddleware(logger, m, name)(h))
	}

	uploads := scoped(middleware.OwnerRateLimit(cfg.Ingestion.UploadsPerMinute, cfg.Ingestion.UploadBurst, logger, "/api/uploads/preview")(
		ingestion.NewHTTPHandler(ingestionService, cfg.Ingestion.MaxUploadBytes, logger),
	))
	observationHandler := scoped(middleware.DataLoaderMiddleware(metricRepo)(
		observations.NewHTTPHandler(observationService, logger),
	))

	mux := http.NewServeMux()
	mux.Handle("/api/uploads", route("/api/uploads", uploads))
	mux.Handle("/api/uploads/preview", route("/api/uploads/preview", uploads))
	mux.Handle("/api/observations", route("/api/observations", observationHandler))
	mux.Handle("/api/observations/", route("/api/observations/{id}", observationHandler))
	mux.Handle("/api/exports/observations", route("/api/exports/observations", scoped(export.NewHTTPHandler(exportService, logger))))
	mux.Handle("/api/metrics", route("/api/metrics", catalog.NewHTTPHandler(metricRepo, logger)))
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer pingCancel()
		if err := conn.Ping(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting impact dashboard API", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

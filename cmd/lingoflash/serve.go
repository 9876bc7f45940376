package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vytor/lingoflash/internal/analysis"
	"github.com/vytor/lingoflash/internal/api"
	"github.com/vytor/lingoflash/internal/cache"
	"github.com/vytor/lingoflash/internal/completion"
	"github.com/vytor/lingoflash/internal/config"
	"github.com/vytor/lingoflash/internal/db"
	"github.com/vytor/lingoflash/internal/dialog"
	"github.com/vytor/lingoflash/internal/flashcard"
	"github.com/vytor/lingoflash/internal/jobs"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/ratelimit"
	"github.com/vytor/lingoflash/internal/repository/sqlite"
	"github.com/vytor/lingoflash/internal/services"
	"github.com/vytor/lingoflash/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	Long: `Run the HTTP API and background workers.

Configuration is read from flag defaults, then the YAML file named by
LINGO_CONFIG_FILE, then LINGO_* environment variables, then flags.

Examples:
  lingoflash serve --addr :8080 --db-path lingo.db
  LINGO_OPENAI_API_KEY=sk-... lingoflash serve --rate-limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	config.RegisterFlags(serveCmd.Flags())
}

func serve(cfg config.Config) error {
	log := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithColors(true),
	)
	logger.SetDefault(log)

	log.Info("===========================================")
	log.Info("LingoFlash Server Starting (%s)", version)
	log.Info("===========================================")
	log.Debug("addr=%s", cfg.Addr)
	log.Debug("db_path=%s", cfg.DBPath)
	log.Debug("openai_model=%s", cfg.OpenAIModel)
	log.Debug("completion_timeout=%s attempts=%d backoff=%s", cfg.CompletionTimeout, cfg.CompletionMaxAttempts, cfg.CompletionBaseBackoff)
	log.Debug("max_turns=%d max_context_turns=%d language_threshold=%.2f", cfg.MaxTurns, cfg.MaxContextTurns, cfg.LanguageThreshold)
	log.Debug("rate_limit=%d per %s", cfg.RateLimit, cfg.RateWindow)
	log.Debug("cache_ttl=%s sweep_interval=%s", cfg.CacheTTL, cfg.CacheSweepInterval)
	log.Debug("worker_count=%d queue_size=%d", cfg.WorkerCount, cfg.QueueSize)

	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("openai_api_key is required to serve (set LINGO_OPENAI_API_KEY)")
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		log.Debug("closing database connection")
		database.Close()
	}()

	gateway := completion.NewGateway(
		completion.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL),
		completion.Config{
			Timeout:     cfg.CompletionTimeout,
			MaxAttempts: cfg.CompletionMaxAttempts,
			BaseBackoff: cfg.CompletionBaseBackoff,
		},
	)
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)
	responseCache := cache.New(cfg.CacheTTL)

	sessionRepo := sqlite.NewSessionRepository(database.DB)
	contentService := services.NewContentService(
		sqlite.NewContentRepository(database.DB), gateway, responseCache, cfg.CacheTTL, limiter)

	engine := dialog.NewEngine(gateway, contentService, dialog.Config{
		MaxTurns:          cfg.MaxTurns,
		LanguageThreshold: cfg.LanguageThreshold,
		MaxContextTurns:   cfg.MaxContextTurns,
	})
	analysisService := services.NewAnalysisService(engine, analysis.NewAnalyzer(gateway), sessionRepo)

	pool := worker.NewPool(cfg.WorkerCount, cfg.QueueSize)
	queue := jobs.NewWorkerQueue(pool, analysisService)

	srv := &api.Server{
		SessionService: services.NewSessionService(engine, sessionRepo, analysisService, queue, limiter),
		SchedulingService: services.NewSchedulingService(
			sqlite.NewCardRepository(database.DB),
			sqlite.NewReviewItemRepository(database.DB),
			flashcard.NewScheduler(flashcard.Config{MaxIntervalDays: cfg.MaxIntervalDays}),
		),
		ContentService: contentService,
		DB:             database,
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	go pool.Every(ctx, cfg.CacheSweepInterval, func() worker.Job {
		return &worker.SweepJob{Sweepers: map[string]worker.Sweeper{
			"response_cache": responseCache,
			"rate_limiter":   limiter,
		}}
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CompletionTimeout*time.Duration(cfg.CompletionMaxAttempts) + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-stop:
		log.Info("received signal %v, initiating graceful shutdown", sig)
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server error: %v", err)
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Debug("shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error: %v", err)
	}

	// Analyses still queued are dropped; POST /api/sessions/{id}/analysis recomputes them.
	log.Debug("stopping worker pool")
	cancel()
	pool.Stop()

	log.Info("===========================================")
	log.Info("LingoFlash Server Stopped")
	log.Info("===========================================")
	return serveErr
}

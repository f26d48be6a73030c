// Package main is the entrypoint for the VoiceSync API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbreslin/voicesync/internal/api"
	"github.com/mbreslin/voicesync/internal/api/handler"
	mw "github.com/mbreslin/voicesync/internal/api/middleware"
	"github.com/mbreslin/voicesync/internal/blob"
	"github.com/mbreslin/voicesync/internal/cache"
	"github.com/mbreslin/voicesync/internal/config"
	"github.com/mbreslin/voicesync/internal/crm"
	"github.com/mbreslin/voicesync/internal/extract"
	"github.com/mbreslin/voicesync/internal/pipeline"
	"github.com/mbreslin/voicesync/internal/store"
	"github.com/mbreslin/voicesync/internal/transcribe"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config, fail fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"transcribe_provider", cfg.Transcribe.Provider,
		"extract_provider", cfg.Extract.Provider,
		"storage_driver", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create capability providers
	blobs, err := blob.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	transcriber, err := transcribe.NewTranscriber(cfg.Transcribe)
	if err != nil {
		return fmt.Errorf("create transcriber: %w", err)
	}
	slog.Info("transcriber initialized", "provider", transcriber.Name())

	extractor, err := extract.NewExtractor(cfg.Extract)
	if err != nil {
		return fmt.Errorf("create extractor: %w", err)
	}
	slog.Info("extractor initialized", "provider", extractor.Name())

	creator := crm.NewDynamicsClient(cfg.CRM.Timeout)

	// 6. Create store and pipeline
	pgStore := store.NewPostgresStore(pool)

	processor := pipeline.NewProcessor(pgStore, redisCache, blobs, transcriber, extractor, creator, *cfg, logger)
	workers := pipeline.NewPool(processor, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)
	workers.Start(ctx)

	// Requeue recordings stranded mid-pipeline by a previous process
	if err := workers.SweepStuck(ctx, cfg.Pipeline.StuckThreshold); err != nil {
		slog.Warn("stuck recording sweep failed", "error", err)
	}

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		UploadRecording:    handler.NewUploadRecordingHandler(pgStore, blobs, workers),
		ListRecordings:     handler.NewListRecordingsHandler(pgStore),
		GetRecording:       handler.NewGetRecordingHandler(pgStore),
		ReprocessRecording: handler.NewReprocessRecordingHandler(pgStore, redisCache, workers),

		CreateMapping:     handler.NewCreateMappingHandler(pgStore),
		ListMappings:      handler.NewListMappingsHandler(pgStore),
		GetMapping:        handler.NewGetMappingHandler(pgStore),
		UpdateMapping:     handler.NewUpdateMappingHandler(pgStore),
		DeactivateMapping: handler.NewDeactivateMappingHandler(pgStore),

		CreateTenant: handler.NewCreateTenantHandler(pgStore),
		ListTenants:  handler.NewListTenantsHandler(pgStore),
		GetTenant:    handler.NewGetTenantHandler(pgStore),
		UpdateTenant: handler.NewUpdateTenantHandler(pgStore),
		CreateKey:    handler.NewCreateKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let in-flight pipeline runs finish before returning
	workers.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

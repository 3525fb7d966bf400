package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codequest/quest-engine/internal/api"
	"github.com/codequest/quest-engine/internal/catalog"
	"github.com/codequest/quest-engine/internal/cleanup"
	"github.com/codequest/quest-engine/internal/config"
	"github.com/codequest/quest-engine/internal/evaluator"
	"github.com/codequest/quest-engine/internal/notify"
	"github.com/codequest/quest-engine/internal/progression"
	"github.com/codequest/quest-engine/internal/sandbox"
	"github.com/codequest/quest-engine/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting quest-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_mode", cfg.Storage.Mode,
		"sandbox_mode", cfg.Sandbox.Mode,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Initialize progression storage
	var repo storage.Repository
	switch cfg.Storage.Mode {
	case "postgres":
		slog.Info("running database migrations", "dir", cfg.Storage.MigrationsDir)
		if err := storage.MigrateFromDSN(initCtx, cfg.Storage.DSN, cfg.Storage.MigrationsDir); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		pg, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
			DSN: cfg.Storage.DSN,
		})
		if err != nil {
			slog.Error("failed to create database repository", "error", err)
			os.Exit(1)
		}
		repo = pg
		slog.Info("database connected successfully")
	case "memory":
		repo = storage.NewMemoryRepository()
		slog.Warn("using in-memory storage, progression is not durable")
	}

	// Optional redis snapshot cache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(initCtx).Err(); err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		repo = storage.NewCachedRepository(repo, rdb, cfg.Redis.CacheTTL)
		slog.Info("redis progression cache enabled", "address", cfg.Redis.Address)
	}

	// Load the quest catalog; a broken catalog refuses startup.
	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		slog.Error("failed to load catalog", "dir", cfg.Catalog.Dir, "error", err)
		os.Exit(1)
	}

	// Initialize the sandbox runner
	var runner sandbox.Runner
	switch cfg.Sandbox.Mode {
	case "docker":
		runner, err = sandbox.NewDockerRunner(initCtx, cfg.Sandbox.DockerHost, cfg.Sandbox.Image, cfg.Sandbox.WorkRoot)
	case "process":
		runner, err = sandbox.NewProcessRunner(cfg.Sandbox.Compiler, cfg.Sandbox.WorkRoot)
	}
	if err != nil {
		slog.Error("failed to create sandbox runner", "mode", cfg.Sandbox.Mode, "error", err)
		os.Exit(1)
	}

	// Wire progression, events and evaluation together
	machine := progression.New(cat, repo)
	hub := notify.NewHub()
	machine.SetOnChange(hub.Publish)

	eval := evaluator.New(cat, runner, machine, evaluator.Options{
		Timeout:          cfg.Sandbox.Timeout,
		MemoryLimitBytes: cfg.Sandbox.MemoryLimitBytes,
		OutputLimitBytes: cfg.Sandbox.OutputLimitBytes,
	})

	// Create context with cancellation for background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start stale workdir janitor
	janitor := cleanup.NewJanitor(cfg.Sandbox.WorkRoot, cfg.Cleanup.Interval, cfg.Cleanup.MaxAge)
	janitor.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cat, eval, machine, runner, repo, hub)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	hub.Close()

	if err := repo.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("quest-engine stopped")
}

// Package main is the entry point for the enrichd content server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	enrich "github.com/vitalyst/enrich"
	"github.com/vitalyst/enrich/internal/api"
	"github.com/vitalyst/enrich/internal/audit"
	"github.com/vitalyst/enrich/internal/config"
	"github.com/vitalyst/enrich/internal/metrics"
	"github.com/vitalyst/enrich/internal/secret"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// A first parse without secret resolution, to bootstrap the logger
	// and the secret backends the full load will need.
	boot, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := newLogger(boot.Logging)
	slog.SetDefault(logger)
	logger.Info("starting enrichd", "version", version)

	secrets := secret.NewManager()
	defer secrets.Close()
	if boot.Vault != nil {
		vr, err := secret.NewVaultResolver(*boot.Vault)
		if err != nil {
			return fmt.Errorf("vault resolver: %w", err)
		}
		secrets.Register("vault", secret.NewCachedResolver(vr, 5*time.Minute))
		logger.Info("vault secret backend enabled", "address", boot.Vault.Address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgManager, err := config.NewManager(ctx, configPath, secrets, logger)
	if err != nil {
		return fmt.Errorf("configuration manager: %w", err)
	}
	defer cfgManager.Close()

	cfg := cfgManager.Get()

	store, err := newAuditStore(ctx, cfg.Audit)
	if err != nil {
		return fmt.Errorf("audit store: %w", err)
	}

	opts := []enrich.Option{
		enrich.WithLogger(logger),
		enrich.WithBudgets(cfg.Budgets),
		enrich.WithAuditStore(store),
		enrich.WithDefaultLanguage(cfg.Defaults.Language),
	}
	for _, provCfg := range cfg.Providers {
		opts = append(opts, enrich.WithProvider(provCfg))
		logger.Info("provider configured", "name", provCfg.Name, "type", provCfg.Type)
	}

	svc, err := enrich.New(opts...)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	defer svc.Close()

	// Hot-reload carries pricing and model metadata into the running
	// service; provider instances and credentials stay fixed.
	cfgManager.OnChange(func(c *config.Config) {
		svc.Reload(c.Providers)
	})
	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	handler := api.NewHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Health)
	mux.HandleFunc("POST /v1/generate", handler.Generate)
	mux.HandleFunc("POST /v1/validate", handler.Validate)
	mux.HandleFunc("POST /v1/simulate", handler.Simulate)
	mux.HandleFunc("GET /v1/metrics", handler.Metrics)
	mux.HandleFunc("GET /v1/audit", handler.Audit)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      metrics.Middleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newAuditStore(ctx context.Context, cfg config.AuditConfig) (audit.Store, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return audit.NewRedisStore(ctx, client,
			audit.WithRetention(int64(cfg.Retention)))
	default:
		return audit.NewMemoryStore(cfg.Retention), nil
	}
}

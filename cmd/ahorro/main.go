package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ahorro/internal/backend"
	"ahorro/internal/cache"
	"ahorro/internal/cli"
	apphttp "ahorro/internal/http"
	applog "ahorro/internal/log"
	"ahorro/internal/ports"
	"ahorro/internal/services"
	"ahorro/internal/webhook"
)

func main() {
	cfg, logger := cli.LoadAndValidateServerConfig()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var users ports.UserDirectory = res.Store
	caches := cache.NewManager()
	if cfg.ProfileCacheTTL > 0 {
		dir := cache.NewDirectory(res.Store, 1000, cfg.ProfileCacheTTL)
		for _, c := range dir.Caches() {
			caches.Register(c)
		}
		caches.StartCleanup(cfg.ProfileCacheTTL)
		users = dir
	}

	ledger := services.NewLedger(res.Store, res.Publisher)
	reports := services.NewReporting(res.Store)
	router := webhook.NewRouter(cfg.WebhookAPIKey, users, ledger, reports)

	srv, err := apphttp.NewServer(":"+cfg.Port, router, res.Store, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             applog.Default(applog.ComponentHTTP),
	})
	if err != nil {
		logger.Error("Failed to configure server", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting ahorro server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.Publisher != nil,
		"actions", router.Actions())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

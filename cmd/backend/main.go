package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/telesession/external/config"
	directoryimpl "github.com/foxseedlab/telesession/external/directory"
	"github.com/foxseedlab/telesession/external/httpapi"
	"github.com/foxseedlab/telesession/external/livekit"
	notificationimpl "github.com/foxseedlab/telesession/external/notification"
	repositoryimpl "github.com/foxseedlab/telesession/external/repository"
	"github.com/foxseedlab/telesession/internal/config"
	"github.com/foxseedlab/telesession/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching http server")
	runServer(injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	directoryimpl.RegisterDI(injector)
	livekit.RegisterDI(injector)
	notificationimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	httpapi.RegisterDI(injector)

	return injector
}

func runServer(injector do.Injector) {
	server, err := do.Invoke[*httpapi.Server](injector)
	if err != nil {
		slog.Error("failed to resolve http server", "error", err)
		os.Exit(1)
	}
	manager := do.MustInvoke[*session.Manager](injector)
	pool := do.MustInvoke[*pgxpool.Pool](injector)
	defer pool.Close()

	done := make(chan struct{})
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	if err := manager.Shutdown(ctx); err != nil {
		slog.Error("session manager shutdown failed", "error", err)
	}
}

// Pilot orchestrator server. Serves the HTTP API, tracks hosts and device
// sessions, builds navigation and AI plans, and proxies executions to the
// owning host daemons.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/virtualpytest/pilot/pkg/api"
	"github.com/virtualpytest/pilot/pkg/cleanup"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/control"
	"github.com/virtualpytest/pilot/pkg/database"
	"github.com/virtualpytest/pilot/pkg/events"
	"github.com/virtualpytest/pilot/pkg/llm"
	"github.com/virtualpytest/pilot/pkg/metrics"
	"github.com/virtualpytest/pilot/pkg/navigation"
	"github.com/virtualpytest/pilot/pkg/planner"
	"github.com/virtualpytest/pilot/pkg/proxy"
	"github.com/virtualpytest/pilot/pkg/registry"
	"github.com/virtualpytest/pilot/pkg/store"
	"github.com/virtualpytest/pilot/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	slog.Info("Starting pilot server", "version", version.GitCommit, "config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// The database is optional: without DB_PASSWORD the server runs on the
	// in-memory store. Plans, mappings and history then live only as long
	// as the process, which is fine for development rigs.
	var (
		dbClient  *database.Client
		st        store.Store
		publisher *events.Publisher
		listener  *events.Listener
	)
	if os.Getenv("DB_PASSWORD") != "" {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		st = store.NewPostgresStore(dbClient.DB())
		publisher = events.NewPublisher(dbClient.DB())
		slog.Info("Connected to PostgreSQL database")
	} else {
		st = store.NewMemoryStore()
		slog.Warn("DB_PASSWORD not set, running on the in-memory store")
	}

	m := metrics.New()
	reg := registry.New(cfg.Server.HostOfflineAfter)
	nav := navigation.NewService(st.NavigationTrees(), cfg.Server.NavCacheTTL)
	prox := proxy.New(reg, st.ExecutionHistory(), cfg.Server.HostRequestTimeout)
	ctrl := control.NewManager(reg, nav, st.NavigationTrees(), prox, cfg.Server.HostRequestTimeout)

	llmClient, err := llm.NewOpenAI(cfg.AI.Provider)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	pl := planner.NewBuilder(cfg.AI, llmClient, nav, cfg.DeviceModelRegistry, st, m)

	// Sibling replicas invalidate their caches through pg_notify.
	if dbClient != nil {
		listener = events.NewListener(dbClient.DSN(), events.Handlers{
			OnTreeChanged: func(p events.TreeChangedPayload) {
				nav.Invalidate(p.TeamID, p.Interface)
				pl.InvalidateContext(p.TeamID, p.Interface)
			},
		})
		if err := listener.Start(ctx); err != nil {
			slog.Error("Failed to start event listener", "error", err)
			os.Exit(1)
		}
		defer listener.Stop(ctx)
	}

	watchdog := control.NewWatchdog(reg, ctrl, cfg.Server.SweepInterval)
	watchdog.Start(ctx)
	defer watchdog.Stop()

	cleaner := cleanup.NewService(cfg.Retention, st, ctrl)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	server := api.NewServer(api.Deps{
		Config:     cfg,
		DBClient:   dbClient,
		Store:      st,
		Registry:   reg,
		Control:    ctrl,
		Navigation: nav,
		Planner:    pl,
		Proxy:      prox,
		Events:     publisher,
		Metrics:    m,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	stats := cfg.Stats()
	slog.Info("Pilot server started",
		"addr", cfg.Server.ListenAddr,
		"device_models", stats.DeviceModels,
		"interfaces", stats.Interfaces)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("Pilot server stopped")
}

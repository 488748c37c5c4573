// Pilot host daemon. It runs one worker per device attached to this machine
// and serves the host API the orchestrator forwards to. A registrar keeps
// the host registered with the orchestrator.
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

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/blocks"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/executor"
	"github.com/virtualpytest/pilot/pkg/hostapi"
	"github.com/virtualpytest/pilot/pkg/metrics"
	"github.com/virtualpytest/pilot/pkg/runner"
	"github.com/virtualpytest/pilot/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildBundle wires the transports a device model enables. Real transports
// plug in per deployment; the loopback covers dry-run models end to end.
func buildBundle(model *config.DeviceModelConfig) adapters.Bundle {
	lb := adapters.NewLoopback()
	dispatcher := adapters.NewDispatcher(model, lb, lb, lb, lb)
	return adapters.Bundle{Actions: dispatcher, Verifications: lb, Capture: lb}
}

func capabilitiesOf(model *config.DeviceModelConfig) core.DeviceCapabilities {
	return core.DeviceCapabilities{
		RemoteKeys:    model.RemoteKeys,
		ADB:           model.ADB,
		Web:           model.Web,
		Desktop:       model.Desktop,
		Verifications: model.Verifications,
		Captures:      model.Captures,
	}
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

	slog.Info("Starting pilot host", "version", version.GitCommit, "config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Host.Devices) == 0 {
		slog.Error("No devices configured, nothing to drive")
		os.Exit(1)
	}

	m := metrics.New()
	engine := executor.New(blocks.MustNew(), m)
	run := runner.New(cfg.Queue, engine, m)
	run.Start()

	for _, dev := range cfg.Host.Devices {
		model, err := cfg.GetDeviceModel(dev.DeviceModel)
		if err != nil {
			slog.Error("Unknown device model", "device", dev.DeviceID, "model", dev.DeviceModel, "error", err)
			os.Exit(1)
		}
		device := core.Device{
			DeviceID:     dev.DeviceID,
			DeviceModel:  dev.DeviceModel,
			Capabilities: capabilitiesOf(model),
		}
		if err := run.AddDevice(device, buildBundle(model)); err != nil {
			slog.Error("Failed to add device", "device", dev.DeviceID, "error", err)
			os.Exit(1)
		}
	}

	server := hostapi.NewServer(cfg.Host, run)
	registrar := hostapi.NewRegistrar(cfg.Host, run)
	registrar.Start()
	defer registrar.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Pilot host started",
		"host", cfg.Host.HostName,
		"addr", cfg.Host.ListenAddr,
		"devices", len(cfg.Host.Devices))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	// Workers drain their in-flight execution before exiting.
	if err := run.Stop(shutdownCtx); err != nil {
		slog.Error("Runner shutdown failed", "error", err)
	}
	slog.Info("Pilot host stopped")
}

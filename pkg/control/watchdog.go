package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/virtualpytest/pilot/pkg/registry"
)

// Watchdog periodically sweeps the host registry and revokes the sessions
// of hosts that stopped heartbeating.
type Watchdog struct {
	registry *registry.Registry
	manager  *Manager
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatchdog creates a watchdog sweeping at the given interval.
func NewWatchdog(reg *registry.Registry, manager *Manager, interval time.Duration) *Watchdog {
	return &Watchdog{registry: reg, manager: manager, interval: interval}
}

// Start launches the background sweep loop.
func (w *Watchdog) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run(ctx)

	slog.Info("Registry watchdog started", "interval", w.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (w *Watchdog) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	slog.Info("Registry watchdog stopped")
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Watchdog) sweep() {
	orphaned := w.registry.Sweep()
	if len(orphaned) == 0 {
		return
	}
	reaped := w.manager.ReapDevices(orphaned)
	slog.Warn("Watchdog reaped orphaned sessions", "devices", len(orphaned), "sessions", reaped)
}

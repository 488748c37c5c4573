package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/registry"
	"github.com/virtualpytest/pilot/pkg/runner"
)

// Server API paths the registrar talks to.
const (
	pathRegister  = "/api/v1/hosts/register"
	pathHeartbeat = "/api/v1/hosts/heartbeat"
)

const registerRetryInterval = 5 * time.Second

// Registrar keeps the host visible to the orchestrator: it registers the
// device inventory at startup and heartbeats on the configured interval. A
// server that lost state answers heartbeats with not_found, which triggers
// re-registration on the next tick.
type Registrar struct {
	cfg    *config.HostConfig
	runner *runner.Runner
	client *http.Client

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistrar builds a registrar for the runner's devices.
func NewRegistrar(cfg *config.HostConfig, r *runner.Runner) *Registrar {
	return &Registrar{
		cfg:    cfg,
		runner: r,
		client: &http.Client{Timeout: 10 * time.Second},
		stopCh: make(chan struct{}),
	}
}

// Start launches the registration loop. It returns immediately; an
// unreachable server is retried in the background so the host API can
// serve local requests while the orchestrator is down.
func (r *Registrar) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop ends the loop and waits for it to exit.
func (r *Registrar) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Registrar) run() {
	defer r.wg.Done()

	for !r.registerOnce() {
		select {
		case <-r.stopCh:
			return
		case <-time.After(registerRetryInterval):
		}
	}

	interval := r.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.heartbeat(); err != nil {
				slog.Warn("Heartbeat failed, re-registering", "server", r.cfg.ServerURL, "error", err)
				r.registerOnce()
			}
		}
	}
}

func (r *Registrar) registerOnce() bool {
	reg := registry.Registration{
		HostName: r.cfg.HostName,
		BaseURL:  r.advertiseURL(),
		Devices:  r.runner.Devices(),
	}
	if err := r.post(pathRegister, reg); err != nil {
		slog.Warn("Host registration failed", "server", r.cfg.ServerURL, "error", err)
		return false
	}
	slog.Info("Host registered", "server", r.cfg.ServerURL, "devices", len(reg.Devices))
	return true
}

func (r *Registrar) heartbeat() error {
	return r.post(pathHeartbeat, map[string]string{"host_name": r.cfg.HostName})
}

// advertiseURL is the base URL the orchestrator reaches this host on.
func (r *Registrar) advertiseURL() string {
	if r.cfg.AdvertiseURL != "" {
		return r.cfg.AdvertiseURL
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return "http://" + hostname + r.cfg.ListenAddr
}

func (r *Registrar) post(path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout)
	defer cancel()
	url := strings.TrimRight(r.cfg.ServerURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Package proxy is the server-side request router. The server never
// duplicates execution state: it resolves which host owns a device,
// forwards the submission, remembers execution_id -> (host, device, kind),
// and answers polls by asking the host. Terminal snapshots are upserted
// into execution history exactly once.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/registry"
	"github.com/virtualpytest/pilot/pkg/store"
)

// Host API paths the proxy talks to. pkg/hostapi serves the same routes.
const (
	pathPing         = "/host/ping"
	pathExecuteGraph = "/host/execute/graph"
	pathExecuteBatch = "/host/execute/batch"
	pathExecutions   = "/host/executions/"
)

// GraphSubmission is the wire payload for a plan graph run on a host.
type GraphSubmission struct {
	DeviceID string             `json:"device_id"`
	Kind     core.ExecutionKind `json:"kind"`
	Graph    *core.Graph        `json:"graph"`
	Vars     map[string]string  `json:"vars,omitempty"`
}

// BatchSubmission is the wire payload for a direct action batch.
type BatchSubmission struct {
	DeviceID       string        `json:"device_id"`
	Actions        []core.Action `json:"actions"`
	RetryActions   []core.Action `json:"retry_actions,omitempty"`
	FailureActions []core.Action `json:"failure_actions,omitempty"`
}

type submitResponse struct {
	ExecutionID string `json:"execution_id"`
}

// route remembers where an execution lives so polls can be forwarded.
type route struct {
	teamID   string
	hostName string
	deviceID string
	kind     core.ExecutionKind
	recorded bool
}

// Proxy routes device-bound requests to the owning host.
type Proxy struct {
	registry *registry.Registry
	history  store.ExecutionHistoryRepo
	client   *http.Client

	mu     sync.Mutex
	routes map[string]*route
}

// New builds a proxy. The timeout bounds every forwarded request
// individually; callers can tighten it further per call via context.
func New(reg *registry.Registry, history store.ExecutionHistoryRepo, timeout time.Duration) *Proxy {
	return &Proxy{
		registry: reg,
		history:  history,
		client:   &http.Client{Timeout: timeout},
		routes:   make(map[string]*route),
	}
}

// Ping checks that the host answers a control ping for the device. It
// implements the control layer's HostPinger.
func (p *Proxy) Ping(ctx context.Context, host core.Host, deviceID string) error {
	url := strings.TrimRight(host.BaseURL, "/") + pathPing + "?device_id=" + deviceID
	return p.doJSON(ctx, http.MethodGet, url, nil, nil)
}

// SubmitGraph forwards a plan graph run and registers the returned
// execution id for polling.
func (p *Proxy) SubmitGraph(ctx context.Context, teamID, hostName, deviceID string, kind core.ExecutionKind, g *core.Graph, vars map[string]string) (string, error) {
	host, err := p.registry.Host(hostName)
	if err != nil {
		return "", err
	}
	payload := GraphSubmission{DeviceID: deviceID, Kind: kind, Graph: g, Vars: vars}
	var resp submitResponse
	url := strings.TrimRight(host.BaseURL, "/") + pathExecuteGraph
	if err := p.doJSON(ctx, http.MethodPost, url, payload, &resp); err != nil {
		return "", err
	}
	p.remember(resp.ExecutionID, teamID, hostName, deviceID, kind)
	return resp.ExecutionID, nil
}

// SubmitBatch forwards a direct action batch.
func (p *Proxy) SubmitBatch(ctx context.Context, teamID, hostName string, sub BatchSubmission) (string, error) {
	host, err := p.registry.Host(hostName)
	if err != nil {
		return "", err
	}
	var resp submitResponse
	url := strings.TrimRight(host.BaseURL, "/") + pathExecuteBatch
	if err := p.doJSON(ctx, http.MethodPost, url, sub, &resp); err != nil {
		return "", err
	}
	p.remember(resp.ExecutionID, teamID, hostName, sub.DeviceID, core.KindActionBatch)
	return resp.ExecutionID, nil
}

func (p *Proxy) remember(executionID, teamID, hostName, deviceID string, kind core.ExecutionKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[executionID] = &route{
		teamID:   teamID,
		hostName: hostName,
		deviceID: deviceID,
		kind:     kind,
	}
}

// Status polls the owning host for the execution. An unreachable host
// degrades to a failed snapshot with host_unreachable instead of an error,
// so pollers see a uniform shape. Terminal snapshots are persisted to
// execution history on first sight.
func (p *Proxy) Status(ctx context.Context, executionID string) (core.StatusSnapshot, error) {
	p.mu.Lock()
	rt, ok := p.routes[executionID]
	p.mu.Unlock()
	if !ok {
		return core.StatusSnapshot{}, core.Errf(core.KindNotFound, "unknown execution %s", executionID)
	}

	host, err := p.registry.Host(rt.hostName)
	if err != nil {
		return p.degraded(rt, executionID), nil
	}
	var snap core.StatusSnapshot
	url := strings.TrimRight(host.BaseURL, "/") + pathExecutions + executionID
	if err := p.doJSON(ctx, http.MethodGet, url, nil, &snap); err != nil {
		if core.IsKind(err, core.KindHostUnreachable) {
			return p.degraded(rt, executionID), nil
		}
		return core.StatusSnapshot{}, err
	}

	if snap.Status.IsTerminal() {
		p.recordTerminal(ctx, rt, &snap)
	}
	return snap, nil
}

// Cancel forwards a best-effort cancel to the owning host.
func (p *Proxy) Cancel(ctx context.Context, executionID string) error {
	p.mu.Lock()
	rt, ok := p.routes[executionID]
	p.mu.Unlock()
	if !ok {
		return core.Errf(core.KindNotFound, "unknown execution %s", executionID)
	}
	host, err := p.registry.Host(rt.hostName)
	if err != nil {
		return err
	}
	url := strings.TrimRight(host.BaseURL, "/") + pathExecutions + executionID + "/cancel"
	return p.doJSON(ctx, http.MethodPost, url, nil, nil)
}

// degraded is the snapshot returned when the owning host stopped answering.
func (p *Proxy) degraded(rt *route, executionID string) core.StatusSnapshot {
	return core.StatusSnapshot{
		ExecutionID: executionID,
		Kind:        rt.kind,
		Status:      core.StatusFailed,
		ErrorKind:   core.KindHostUnreachable,
		ErrorMsg:    fmt.Sprintf("host %s is unreachable", rt.hostName),
		OwnerDevice: rt.deviceID,
	}
}

func (p *Proxy) recordTerminal(ctx context.Context, rt *route, snap *core.StatusSnapshot) {
	p.mu.Lock()
	already := rt.recorded
	rt.recorded = true
	p.mu.Unlock()
	if already || p.history == nil {
		return
	}
	entry := &store.HistoryEntry{
		ExecutionID: snap.ExecutionID,
		TeamID:      rt.teamID,
		Kind:        snap.Kind,
		HostName:    rt.hostName,
		DeviceID:    rt.deviceID,
		Status:      snap.Status,
		Progress:    snap.Progress,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
		Result:      snap.Result,
		Logs:        snap.Logs,
		ErrorKind:   snap.ErrorKind,
		ErrorMsg:    snap.ErrorMsg,
		CreatedAt:   time.Now(),
	}
	if err := p.history.Upsert(ctx, entry); err != nil {
		// History is best-effort; the live snapshot is still served.
		p.mu.Lock()
		rt.recorded = false
		p.mu.Unlock()
	}
}

// doJSON performs one request. Transport failures map to host_unreachable;
// HTTP error statuses map back to the error kinds hosts emit.
func (p *Proxy) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return core.WrapErr(core.KindInternal, err, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return core.WrapErr(core.KindInternal, err, "failed to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return core.WrapErr(core.KindHostUnreachable, err, "host request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.WrapErr(core.KindInternal, err, "failed to decode host response")
	}
	return nil
}

// errorBody is the JSON error shape both APIs emit.
type errorBody struct {
	ErrorKind core.ErrorKind `json:"error_kind"`
	ErrorMsg  string         `json:"error_msg"`
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.ErrorKind.IsValid() {
		return core.Errf(eb.ErrorKind, "%s", eb.ErrorMsg)
	}
	kind := core.KindInternal
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = core.KindNotFound
	case http.StatusBadRequest:
		kind = core.KindInvalidInput
	case http.StatusConflict, http.StatusTooManyRequests:
		kind = core.KindDeviceBusy
	case http.StatusForbidden:
		kind = core.KindNotOwner
	}
	return core.Errf(kind, "host returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// Package e2e exercises the full stack over HTTP: the orchestrator API in
// front of one host daemon, with in-memory persistence, loopback device
// transports, and a scripted LLM. Scenarios submit through the public
// endpoints and observe results exclusively by status polling, the way
// real clients do.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/api"
	"github.com/virtualpytest/pilot/pkg/blocks"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/control"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/executor"
	"github.com/virtualpytest/pilot/pkg/hostapi"
	"github.com/virtualpytest/pilot/pkg/llm"
	"github.com/virtualpytest/pilot/pkg/navigation"
	"github.com/virtualpytest/pilot/pkg/planner"
	"github.com/virtualpytest/pilot/pkg/proxy"
	"github.com/virtualpytest/pilot/pkg/registry"
	"github.com/virtualpytest/pilot/pkg/runner"
	"github.com/virtualpytest/pilot/pkg/store"
)

const (
	teamID   = "team-a"
	iface    = "horizon_android_tv"
	treeID   = "tree-1"
	hostName = "host-1"
	deviceID = "dev-1"
	devModel = "android_tv"
)

// Harness is one orchestrator plus one host, wired like production but
// in-process.
type Harness struct {
	t *testing.T

	API      *httptest.Server
	HostAPI  *httptest.Server
	Store    *store.MemoryStore
	LLM      *llm.Scripted
	Loopback *adapters.Loopback
	Runner   *runner.Runner

	client *http.Client
}

func seedTree() *core.NavigationTree {
	press := func(key string) []core.Action {
		return []core.Action{{Command: "press_key", Params: map[string]any{"key": key}}}
	}
	return &core.NavigationTree{
		TeamID:    teamID,
		Interface: iface,
		TreeID:    treeID,
		Nodes: []core.TreeNode{
			{ID: "n1", Label: "home"},
			{ID: "n2", Label: "live_tv"},
			{ID: "n3", Label: "live_radio"},
			{ID: "n4", Label: "settings"},
		},
		Edges: []core.TreeEdge{
			{ID: "e1", Source: "n1", Target: "n2", Actions: press("LIVE")},
			{ID: "e2", Source: "n1", Target: "n3", Actions: press("RADIO")},
			{ID: "e3", Source: "n1", Target: "n4", Actions: press("SETTINGS")},
		},
	}
}

func deviceCapabilities() core.DeviceCapabilities {
	return core.DeviceCapabilities{
		RemoteKeys:    []string{"UP", "DOWN", "OK", "LIVE", "RADIO", "SETTINGS"},
		ADB:           true,
		Verifications: []string{"check_audio", "check_video"},
	}
}

// NewHarness boots both processes and registers the host with the
// orchestrator through the public registration endpoint.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	st := store.NewMemoryStore()
	require.NoError(t, st.NavigationTrees().Upsert(context.Background(), seedTree()))

	reg := registry.New(time.Minute)
	nav := navigation.NewService(st.NavigationTrees(), time.Minute)
	prox := proxy.New(reg, st.ExecutionHistory(), 5*time.Second)
	ctrl := control.NewManager(reg, nav, st.NavigationTrees(), prox, 2*time.Second)

	scripted := llm.NewScripted()
	models := config.NewDeviceModelRegistry(map[string]*config.DeviceModelConfig{
		devModel: {
			RemoteKeys:    []string{"UP", "DOWN", "OK", "LIVE", "RADIO", "SETTINGS"},
			ADB:           true,
			Verifications: []string{"check_audio", "check_video"},
		},
	})
	pl := planner.NewBuilder(config.DefaultAIConfig(), scripted, nav, models, st, nil)

	apiServer := api.NewServer(api.Deps{
		Config:     &config.Config{Server: config.DefaultServerConfig()},
		Store:      st,
		Registry:   reg,
		Control:    ctrl,
		Navigation: nav,
		Planner:    pl,
		Proxy:      prox,
	})
	ts := httptest.NewServer(apiServer.Handler())
	t.Cleanup(ts.Close)

	queueCfg := &config.QueueConfig{
		MailboxSize:            8,
		ExecutionTimeout:       time.Minute,
		ScriptExecutionTimeout: 2 * time.Minute,
		RecordRetention:        time.Minute,
	}
	run := runner.New(queueCfg, executor.New(blocks.MustNew(), nil), nil)
	run.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = run.Stop(ctx)
	})

	lb := adapters.NewLoopback()
	device := core.Device{DeviceID: deviceID, DeviceModel: devModel, Capabilities: deviceCapabilities()}
	require.NoError(t, run.AddDevice(device, adapters.LoopbackBundle(lb)))

	hostCfg := config.DefaultHostConfig()
	hostCfg.HostName = hostName
	hostServer := hostapi.NewServer(hostCfg, run)
	hts := httptest.NewServer(hostServer.Handler())
	t.Cleanup(hts.Close)

	h := &Harness{
		t:        t,
		API:      ts,
		HostAPI:  hts,
		Store:    st,
		LLM:      scripted,
		Loopback: lb,
		Runner:   run,
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	h.postOK("/api/v1/hosts/register", registry.Registration{
		HostName: hostName,
		BaseURL:  hts.URL,
		Devices:  []core.Device{device},
	}, nil)
	return h
}

// post sends a JSON body and decodes the JSON answer into out (when out is
// non-nil), returning the HTTP status.
func (h *Harness) post(path string, body, out any) int {
	h.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(h.t, err)
	resp, err := h.client.Post(h.API.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *Harness) postOK(path string, body, out any) {
	h.t.Helper()
	status := h.post(path, body, out)
	require.Equal(h.t, http.StatusOK, status, "POST %s", path)
}

func (h *Harness) get(path string, out any) int {
	h.t.Helper()
	resp, err := h.client.Get(h.API.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// TakeControl grants a session over the harness device, bound to the
// seeded navigation tree.
func (h *Harness) TakeControl() *core.Session {
	h.t.Helper()
	var session core.Session
	h.postOK("/api/v1/control/take", control.TakeRequest{
		HostName: hostName,
		DeviceID: deviceID,
		TeamID:   teamID,
		TreeID:   treeID,
	}, &session)
	require.NotEmpty(h.t, session.SessionID)
	return &session
}

// Generate runs one plans/generate call.
func (h *Harness) Generate(prompt string, resolutions map[string]string) *planner.Outcome {
	h.t.Helper()
	var outcome planner.Outcome
	h.postOK("/api/v1/plans/generate", planner.Request{
		TeamID:      teamID,
		Interface:   iface,
		DeviceModel: devModel,
		Prompt:      prompt,
		Resolutions: resolutions,
	}, &outcome)
	return &outcome
}

// WaitForStatus polls execution/status until the wanted state or a
// terminal mismatch.
func (h *Harness) WaitForStatus(executionID string, want core.ExecutionStatus, within time.Duration) core.StatusSnapshot {
	h.t.Helper()
	deadline := time.Now().Add(within)
	for {
		snap := h.Status(executionID)
		if snap.Status == want {
			return snap
		}
		if snap.Status.IsTerminal() || time.Now().After(deadline) {
			h.t.Fatalf("execution %s is %s (%s: %s), wanted %s",
				executionID, snap.Status, snap.ErrorKind, snap.ErrorMsg, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Status reads one snapshot through the orchestrator.
func (h *Harness) Status(executionID string) core.StatusSnapshot {
	h.t.Helper()
	var snap core.StatusSnapshot
	status := h.get("/api/v1/execution/status?execution_id="+executionID, &snap)
	require.Equal(h.t, http.StatusOK, status)
	return snap
}

// nodeLabels lists graph node labels in declaration order.
func nodeLabels(g *core.Graph) []string {
	out := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n.Data.Label)
	}
	return out
}

// sleepPlan is a minimal plan graph that blocks for the given duration
// before an action block runs.
func sleepPlan(durationMs int) *core.Graph {
	return &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
			{ID: "sleep1", Type: core.NodeSleep, Data: core.NodeData{Label: "sleep_1:wait", DurationMs: durationMs}},
			{ID: "act1", Type: core.NodeAction, Data: core.NodeData{Label: "action_1:after_sleep", Command: "after_sleep"}},
			{ID: "success", Type: core.NodeSuccess, Data: core.NodeData{Label: "SUCCESS"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "sleep1", SourceHandle: core.HandleSuccess},
			{ID: "e2", Source: "sleep1", Target: "act1", SourceHandle: core.HandleSuccess},
			{ID: "e3", Source: "act1", Target: "success", SourceHandle: core.HandleSuccess},
		},
	}
}

func executedCommands(lb *adapters.Loopback) []string {
	actions := lb.Executed()
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Command)
	}
	return out
}

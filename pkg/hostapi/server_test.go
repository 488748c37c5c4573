package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/blocks"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/executor"
	"github.com/virtualpytest/pilot/pkg/proxy"
	"github.com/virtualpytest/pilot/pkg/runner"
)

type hostFixture struct {
	server   *Server
	runner   *runner.Runner
	loopback *adapters.Loopback
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		MailboxSize:            4,
		ExecutionTimeout:       time.Minute,
		ScriptExecutionTimeout: 2 * time.Minute,
		RecordRetention:        time.Minute,
	}
}

func newHostFixture(t *testing.T, queueCfg *config.QueueConfig) *hostFixture {
	t.Helper()
	if queueCfg == nil {
		queueCfg = testQueueConfig()
	}
	r := runner.New(queueCfg, executor.New(blocks.MustNew(), nil), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})

	lb := adapters.NewLoopback()
	device := core.Device{
		DeviceID:    "dev-1",
		DeviceModel: "android_tv",
		Capabilities: core.DeviceCapabilities{
			RemoteKeys: []string{"UP", "DOWN", "OK"},
			ADB:        true,
		},
	}
	require.NoError(t, r.AddDevice(device, adapters.LoopbackBundle(lb)))

	cfg := config.DefaultHostConfig()
	cfg.HostName = "host-1"
	return &hostFixture{server: NewServer(cfg, r), runner: r, loopback: lb}
}

func (f *hostFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (f *hostFixture) submitGraph(t *testing.T, g *core.Graph) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/host/execute/graph", proxy.GraphSubmission{
		DeviceID: "dev-1",
		Kind:     core.KindTestCase,
		Graph:    g,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[SubmitResponse](t, rec)
	require.NotEmpty(t, resp.ExecutionID)
	return resp.ExecutionID
}

func (f *hostFixture) waitForStatus(t *testing.T, executionID string, want core.ExecutionStatus, within time.Duration) core.StatusSnapshot {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		rec := f.do(t, http.MethodGet, "/host/executions/"+executionID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		snap := decodeAs[core.StatusSnapshot](t, rec)
		if snap.Status == want {
			return snap
		}
		if snap.Status.IsTerminal() || time.Now().After(deadline) {
			t.Fatalf("execution %s is %s, wanted %s", executionID, snap.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func pressGraph(command string) *core.Graph {
	return &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
			{ID: "act1", Type: core.NodeAction, Data: core.NodeData{Label: "action_1:" + command, Command: command}},
			{ID: "success", Type: core.NodeSuccess, Data: core.NodeData{Label: "SUCCESS"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "act1", SourceHandle: core.HandleSuccess},
			{ID: "e2", Source: "act1", Target: "success", SourceHandle: core.HandleSuccess},
		},
	}
}

func slowGraph(durationMs int) *core.Graph {
	return &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
			{ID: "sleep1", Type: core.NodeSleep, Data: core.NodeData{Label: "sleep_1:wait", DurationMs: durationMs}},
			{ID: "success", Type: core.NodeSuccess, Data: core.NodeData{Label: "SUCCESS"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "sleep1", SourceHandle: core.HandleSuccess},
			{ID: "e2", Source: "sleep1", Target: "success", SourceHandle: core.HandleSuccess},
		},
	}
}

func TestPingKnownDevice(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/host/ping?device_id=dev-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPingUnknownDevice(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/host/ping?device_id=ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, core.KindNotFound, body.ErrorKind)
}

func TestCapabilitiesListsDevices(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/host/capabilities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	devices := decodeAs[[]core.Device](t, rec)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-1", devices[0].DeviceID)
	assert.True(t, devices[0].Capabilities.ADB)
}

func TestExecuteGraphCompletes(t *testing.T) {
	f := newHostFixture(t, nil)
	id := f.submitGraph(t, pressGraph("press_key"))

	snap := f.waitForStatus(t, id, core.StatusCompleted, 2*time.Second)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, core.KindTestCase, snap.Kind)
	require.Len(t, f.loopback.Executed(), 1)
}

func TestExecuteGraphRejectsInvalidGraph(t *testing.T) {
	f := newHostFixture(t, nil)
	invalid := &core.Graph{
		Nodes: []core.Node{{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}}},
	}
	rec := f.do(t, http.MethodPost, "/host/execute/graph", proxy.GraphSubmission{
		DeviceID: "dev-1",
		Kind:     core.KindTestCase,
		Graph:    invalid,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, core.KindInvalidInput, body.ErrorKind)
	assert.Empty(t, f.runner.Health().Records, "invalid graphs must not create records")
}

func TestExecuteGraphUnknownDevice(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/host/execute/graph", proxy.GraphSubmission{
		DeviceID: "ghost",
		Kind:     core.KindTestCase,
		Graph:    pressGraph("zap"),
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, core.KindNotFound, body.ErrorKind)
}

func TestExecuteGraphRejectsUnknownKind(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/host/execute/graph", proxy.GraphSubmission{
		DeviceID: "dev-1",
		Kind:     core.ExecutionKind("mystery"),
		Graph:    pressGraph("zap"),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteBatchCompletes(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/host/execute/batch", proxy.BatchSubmission{
		DeviceID: "dev-1",
		Actions:  []core.Action{{Command: "press_key"}, {Command: "press_key"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[SubmitResponse](t, rec)

	f.waitForStatus(t, resp.ExecutionID, core.StatusCompleted, 2*time.Second)
	assert.Len(t, f.loopback.Executed(), 2)
}

func TestExecuteBatchRequiresActions(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/host/execute/batch", proxy.BatchSubmission{DeviceID: "dev-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMailboxOverflowAnswersRetryAfter(t *testing.T) {
	cfg := testQueueConfig()
	cfg.MailboxSize = 1
	f := newHostFixture(t, cfg)

	running := f.submitGraph(t, slowGraph(1000))
	f.waitForStatus(t, running, core.StatusRunning, time.Second)
	f.submitGraph(t, pressGraph("a"))

	rec := f.do(t, http.MethodPost, "/host/execute/graph", proxy.GraphSubmission{
		DeviceID: "dev-1",
		Kind:     core.KindTestCase,
		Graph:    pressGraph("b"),
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	body := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, core.KindDeviceBusy, body.ErrorKind)
}

func TestCancelRunningExecution(t *testing.T) {
	f := newHostFixture(t, nil)
	id := f.submitGraph(t, slowGraph(10_000))
	f.waitForStatus(t, id, core.StatusRunning, time.Second)

	rec := f.do(t, http.MethodPost, "/host/executions/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	snap := f.waitForStatus(t, id, core.StatusCancelled, 2*time.Second)
	assert.Equal(t, core.KindCancelled, snap.ErrorKind)
}

func TestStatusUnknownExecution(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/host/executions/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, core.KindNotFound, body.ErrorKind)
}

func TestHealth(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAs[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "host-1", resp.HostName)
	assert.Equal(t, 1, resp.Runner.Devices)
}

func TestExecutionStreamDeliversTerminalSnapshot(t *testing.T) {
	f := newHostFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	id := f.submitGraph(t, slowGraph(100))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):]+"/host/executions/"+id+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var last core.StatusSnapshot
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		require.NoError(t, json.Unmarshal(data, &last))
		if last.Status.IsTerminal() {
			break
		}
	}
	assert.Equal(t, core.StatusCompleted, last.Status)
	assert.Equal(t, id, last.ExecutionID)
}

func TestExecutionStreamUnknownExecution(t *testing.T) {
	f := newHostFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/host/executions/no-such-id/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/executor"
	"github.com/virtualpytest/pilot/pkg/metrics"
)

// job is one queued execution. run carries the bound work so the worker
// loop stays agnostic of graph runs versus action batches.
type job struct {
	executionID string
	kind        core.ExecutionKind
	run         func(ctx context.Context, opts executor.Options) executor.Result
}

// deviceWorker owns one device: its capability bundle and its FIFO mailbox.
// The worker goroutine is the only consumer, which is what serializes
// executions per device.
type deviceWorker struct {
	device  core.Device
	bundle  adapters.Bundle
	mailbox chan job
}

// Runner is the host-side execution scheduler: one mailbox and one worker
// goroutine per device, a shared record registry, and a cancel registry
// addressed by execution id.
type Runner struct {
	cfg     *config.QueueConfig
	engine  *executor.Engine
	records *Records
	metrics *metrics.Metrics

	mu      sync.RWMutex
	devices map[string]*deviceWorker
	cancels map[string]context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a runner. Call Start to launch the record janitor, AddDevice
// per device, and Stop for graceful shutdown.
func New(cfg *config.QueueConfig, engine *executor.Engine, m *metrics.Metrics) *Runner {
	return &Runner{
		cfg:     cfg,
		engine:  engine,
		records: NewRecords(cfg.RecordRetention),
		metrics: m,
		devices: make(map[string]*deviceWorker),
		cancels: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
	}
}

// Records exposes the registry for status reads.
func (r *Runner) Records() *Records {
	return r.records
}

// Start launches the janitor that evicts terminal records past retention.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		interval := r.cfg.RecordRetention / 2
		if interval < time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.records.Sweep(time.Now())
			}
		}
	}()
}

// AddDevice registers a device and starts its worker goroutine. Adding an
// already known device id is rejected.
func (r *Runner) AddDevice(device core.Device, bundle adapters.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[device.DeviceID]; exists {
		return core.Errf(core.KindInvalidInput, "device %s is already registered", device.DeviceID)
	}
	w := &deviceWorker{
		device:  device,
		bundle:  bundle,
		mailbox: make(chan job, r.cfg.MailboxSize),
	}
	r.devices[device.DeviceID] = w

	r.wg.Add(1)
	go r.runWorker(w)
	slog.Info("Device worker started", "device", device.DeviceID, "model", device.DeviceModel)
	return nil
}

// Devices returns the registered devices.
func (r *Runner) Devices() []core.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Device, 0, len(r.devices))
	for _, w := range r.devices {
		out = append(out, w.device)
	}
	return out
}

// SubmitGraph queues a plan graph for execution on the device and returns
// the execution id. A full mailbox fails with device_busy.
func (r *Runner) SubmitGraph(deviceID string, kind core.ExecutionKind, g *core.Graph, vars map[string]string) (string, error) {
	return r.submit(deviceID, kind, func(w *deviceWorker) func(context.Context, executor.Options) executor.Result {
		return func(ctx context.Context, opts executor.Options) executor.Result {
			opts.Vars = vars
			return r.engine.Run(ctx, g, w.bundle, opts)
		}
	})
}

// SubmitBatch queues a direct action batch.
func (r *Runner) SubmitBatch(deviceID string, batch executor.ActionBatch) (string, error) {
	return r.submit(deviceID, core.KindActionBatch, func(w *deviceWorker) func(context.Context, executor.Options) executor.Result {
		return func(ctx context.Context, opts executor.Options) executor.Result {
			return r.engine.RunActionBatch(ctx, w.bundle, batch, opts)
		}
	})
}

func (r *Runner) submit(deviceID string, kind core.ExecutionKind, bind func(*deviceWorker) func(context.Context, executor.Options) executor.Result) (string, error) {
	r.mu.RLock()
	w, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return "", core.Errf(core.KindNotFound, "unknown device %s", deviceID)
	}

	executionID := r.records.Create(kind, deviceID)
	j := job{executionID: executionID, kind: kind, run: bind(w)}
	select {
	case w.mailbox <- j:
		r.metrics.RecordQueueDepth(deviceID, len(w.mailbox))
		return executionID, nil
	default:
		r.records.drop(executionID)
		return "", core.Errf(core.KindDeviceBusy, "device %s mailbox is full, retry later", deviceID)
	}
}

// Status returns the current snapshot of an execution.
func (r *Runner) Status(executionID string) (core.StatusSnapshot, error) {
	return r.records.Snapshot(executionID)
}

// Cancel requests best-effort cancellation. Pending executions cancel
// immediately; running ones get their context cancelled and stop at the
// next block boundary. Idempotent, including on terminal records.
func (r *Runner) Cancel(executionID string) error {
	wasPending, err := r.records.RequestCancel(executionID)
	if err != nil {
		return err
	}
	if wasPending {
		return nil
	}
	r.mu.RLock()
	cancel, ok := r.cancels[executionID]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
	return nil
}

// runWorker is the device loop: dequeue one job, run it to terminal,
// repeat. Stop lets the in-flight job finish, then exits.
func (r *Runner) runWorker(w *deviceWorker) {
	defer r.wg.Done()
	log := slog.With("device", w.device.DeviceID)
	for {
		select {
		case <-r.stopCh:
			log.Info("Device worker shutting down")
			return
		case j := <-w.mailbox:
			r.metrics.RecordQueueDepth(w.device.DeviceID, len(w.mailbox))
			r.process(w, j)
		}
	}
}

func (r *Runner) process(w *deviceWorker, j job) {
	// Cancelled while queued: the record is already terminal.
	if !r.records.MarkRunning(j.executionID) {
		return
	}
	r.metrics.RecordExecutionStarted(string(j.kind))

	timeout := r.cfg.ExecutionTimeout
	if j.kind == core.KindScript {
		timeout = r.cfg.ScriptExecutionTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	r.registerCancel(j.executionID, cancel)
	defer func() {
		cancel()
		r.unregisterCancel(j.executionID)
	}()

	res := j.run(ctx, executor.Options{
		OnProgress: func(p int) { r.records.SetProgress(j.executionID, p) },
		OnLog:      func(line string) { r.records.AppendLog(j.executionID, line) },
	})

	result := map[string]any{"blocks_run": res.BlocksRun}
	if len(res.Vars) > 0 {
		result["variables"] = res.Vars
	}
	r.records.MarkTerminal(j.executionID, res.Status, result, res.Logs, res.ErrorKind, res.ErrorMsg)
	r.metrics.RecordExecutionCompleted(string(j.kind), string(res.Status))

	if res.Status != core.StatusCompleted {
		slog.Info("Execution finished",
			"execution", j.executionID, "device", w.device.DeviceID,
			"status", res.Status, "error_kind", res.ErrorKind, "error", res.ErrorMsg)
		return
	}
	slog.Info("Execution finished", "execution", j.executionID, "device", w.device.DeviceID, "status", res.Status)
}

func (r *Runner) registerCancel(executionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[executionID] = cancel
}

func (r *Runner) unregisterCancel(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, executionID)
}

// Health reports queue and record state for the host health endpoint.
type Health struct {
	Devices     int                         `json:"devices"`
	QueueDepths map[string]int              `json:"queue_depths"`
	Records     map[core.ExecutionStatus]int `json:"records"`
}

// Health snapshots the runner state.
func (r *Runner) Health() Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	depths := make(map[string]int, len(r.devices))
	for id, w := range r.devices {
		depths[id] = len(w.mailbox)
	}
	return Health{
		Devices:     len(r.devices),
		QueueDepths: depths,
		Records:     r.records.Counts(),
	}
}

// Stop drains the workers gracefully: each finishes its in-flight
// execution, then exits. The context bounds the wait.
func (r *Runner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Runner stopped gracefully")
		return nil
	case <-ctx.Done():
		return core.WrapErr(core.KindTimeout, ctx.Err(), "runner shutdown timed out")
	}
}

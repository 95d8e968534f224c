// Package worker implements the bottom process of the supervision tree:
// it hosts the execution engine and speaks the command/event protocol
// described in spec.md §4.3 over the pipe Watchdog hands it. Grounded on
// the teacher's worker.go lifecycle shape (Config + constructor + Start/
// Stop) and health_monitor.go's ticker-driven self-check loop, repurposed
// from container health polling to plan status and self-liveness.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cuemby/qserver/pkg/engine"
	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/permission"
	"github.com/cuemby/qserver/pkg/queue"
	"github.com/cuemby/qserver/pkg/rpc"
)

// ExecState is the Worker's view of what it's currently doing, reported
// verbatim in status() replies and reconnection handshakes.
type ExecState string

const (
	ExecIdle    ExecState = "idle"
	ExecRunning ExecState = "running"
	ExecPaused  ExecState = "paused"
)

// Config configures a Worker.
type Config struct {
	// ManagerConn is this Worker's end of the Manager<->Worker pipe
	// Watchdog created before spawning the process.
	ManagerConn io.ReadWriteCloser
	// Engine executes plans. Defaults to engine.NewSimEngine() if nil.
	Engine engine.Engine
	// Permissions answers plans_allowed_query/devices_allowed_query.
	// Defaults to permission.AllowAll{} if nil.
	Permissions permission.Checker
	// StartupDelay simulates the time a real startup profile takes to
	// load. Defaults to 10ms — long enough to exercise the
	// creating_environment window without slowing tests down.
	StartupDelay time.Duration
	// HeartbeatInterval sets how often heartbeat_worker is emitted.
	// Defaults to 500ms, matching the Manager's own heartbeat cadence.
	HeartbeatInterval time.Duration
}

// Worker drives the execution engine and answers the Manager's command
// requests over a single rpc.Link.
type Worker struct {
	cfg  Config
	link *rpc.Link

	mu          sync.Mutex
	execState   ExecState
	currentItem *queue.Item
	ctrl        *engine.Control

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Worker bound to cfg.ManagerConn. Call Start to begin
// loading the startup profile and serving commands.
func New(cfg Config) *Worker {
	if cfg.Engine == nil {
		cfg.Engine = engine.NewSimEngine()
	}
	if cfg.Permissions == nil {
		cfg.Permissions = permission.AllowAll{}
	}
	if cfg.StartupDelay == 0 {
		cfg.StartupDelay = 10 * time.Millisecond
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 500 * time.Millisecond
	}

	w := &Worker{
		cfg:       cfg,
		execState: ExecIdle,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	w.link = rpc.NewLink(cfg.ManagerConn, w.handleCommand, nil)
	return w
}

// Start begins serving Manager commands and simulates loading the
// startup profile, then emits environment_ready. The simulated load
// cannot fail, so environment_failed is never emitted.
func (w *Worker) Start() {
	w.link.Start()
	go w.heartbeatLoop()
	go w.loadStartupProfile()
}

// Stop tears the Worker down. Safe to call after a shutdown command has
// already been served.
func (w *Worker) Stop() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	return w.link.Close()
}

// Done is closed once the Worker has served a shutdown command.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Worker) loadStartupProfile() {
	select {
	case <-time.After(w.cfg.StartupDelay):
	case <-w.stopCh:
		return
	}

	if err := w.link.Notify("environment_ready", nil); err != nil {
		log.Errorf("worker: notify environment_ready", err)
	}
}

func (w *Worker) heartbeatLoop() {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.link.Notify("heartbeat_worker", map[string]bool{"alive": true})
		case <-w.stopCh:
			return
		}
	}
}

// handleCommand serves one request arriving over the Manager<->Worker link.
func (w *Worker) handleCommand(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "run_plan":
		return w.handleRunPlan(params)
	case "pause":
		return w.handlePause(params)
	case "resume":
		return w.ackControl(func(c *engine.Control) { c.Resume() })
	case "stop":
		return w.ackControl(func(c *engine.Control) { c.Stop() })
	case "abort":
		return w.ackControl(func(c *engine.Control) { c.Abort() })
	case "halt":
		return w.ackControl(func(c *engine.Control) { c.Halt() })
	case "status":
		return w.handleStatus()
	case "shutdown":
		return w.handleShutdown()
	case "plans_allowed_query":
		return w.handlePlansAllowed(params)
	case "devices_allowed_query":
		return w.handleDevicesAllowed(params)
	default:
		return nil, fmt.Errorf("%w: %s", rpc.ErrMethodNotFound, method)
	}
}

type runPlanParams struct {
	Item *queue.Item `json:"item"`
}

func (w *Worker) handleRunPlan(params json.RawMessage) (json.RawMessage, error) {
	var p runPlanParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("worker: unmarshal run_plan params: %w", err)
	}
	if p.Item == nil {
		return nil, fmt.Errorf("worker: run_plan requires an item")
	}

	w.mu.Lock()
	if w.execState != ExecIdle {
		w.mu.Unlock()
		return nil, fmt.Errorf("worker: already running plan %s", itemUID(w.currentItem))
	}
	ctrl := engine.NewControl()
	w.ctrl = ctrl
	w.currentItem = p.Item
	w.execState = ExecRunning
	w.mu.Unlock()

	_ = w.link.Notify("plan_status", planStatusPayload(p.Item.UID, queue.StatusRunning, nil))

	go w.runPlan(p.Item, ctrl)

	return json.Marshal(map[string]bool{"success": true})
}

func (w *Worker) runPlan(item *queue.Item, ctrl *engine.Control) {
	onPaused := func() {
		w.mu.Lock()
		w.execState = ExecPaused
		w.mu.Unlock()
		_ = w.link.Notify("plan_status", planStatusPayload(item.UID, queue.StatusPaused, nil))
	}

	status, result, err := w.cfg.Engine.Execute(context.Background(), item, ctrl, onPaused)
	if err != nil {
		log.Errorf(fmt.Sprintf("worker: plan %s engine error", item.UID), err)
		if status == "" {
			status = queue.StatusFailed
		}
	}

	w.mu.Lock()
	w.execState = ExecIdle
	w.currentItem = nil
	w.ctrl = nil
	w.mu.Unlock()

	_ = w.link.Notify("plan_status", planStatusPayload(item.UID, status, result))
}

func planStatusPayload(uid string, status queue.Status, result map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{"uid": uid, "status": string(status)}
	if result != nil {
		payload["result"] = result
	}
	return payload
}

type pauseParams struct {
	Mode engine.PauseMode `json:"mode"`
}

func (w *Worker) handlePause(params json.RawMessage) (json.RawMessage, error) {
	var p pauseParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("worker: unmarshal pause params: %w", err)
		}
	}
	if p.Mode == "" {
		p.Mode = engine.PauseDeferred
	}

	w.mu.Lock()
	ctrl := w.ctrl
	w.mu.Unlock()
	if ctrl == nil {
		return nil, fmt.Errorf("worker: no plan running")
	}
	ctrl.Pause(p.Mode)
	return json.Marshal(map[string]bool{"success": true})
}

func (w *Worker) ackControl(apply func(*engine.Control)) (json.RawMessage, error) {
	w.mu.Lock()
	ctrl := w.ctrl
	w.mu.Unlock()
	if ctrl == nil {
		return nil, fmt.Errorf("worker: no plan running")
	}
	apply(ctrl)
	return json.Marshal(map[string]bool{"success": true})
}

type statusReply struct {
	EnvState       string `json:"env_state"`
	CurrentPlanUID string `json:"current_plan_uid,omitempty"`
	ExecState      string `json:"exec_state"`
}

func (w *Worker) handleStatus() (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	reply := statusReply{
		EnvState:       "open",
		CurrentPlanUID: itemUID(w.currentItem),
		ExecState:      string(w.execState),
	}
	return json.Marshal(reply)
}

func (w *Worker) handleShutdown() (json.RawMessage, error) {
	reply, _ := json.Marshal(map[string]bool{"success": true})
	go func() {
		close(w.doneCh)
	}()
	return reply, nil
}

func (w *Worker) handlePlansAllowed(params json.RawMessage) (json.RawMessage, error) {
	group := groupOf(params)
	return json.Marshal(w.cfg.Permissions.PlansAllowed(group))
}

func (w *Worker) handleDevicesAllowed(params json.RawMessage) (json.RawMessage, error) {
	group := groupOf(params)
	return json.Marshal(w.cfg.Permissions.DevicesAllowed(group))
}

func groupOf(params json.RawMessage) string {
	var p struct {
		UserGroup string `json:"user_group"`
	}
	_ = json.Unmarshal(params, &p)
	return p.UserGroup
}

func itemUID(item *queue.Item) string {
	if item == nil {
		return ""
	}
	return item.UID
}

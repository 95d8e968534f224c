package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/qserver/pkg/events"
	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/metrics"
	"github.com/cuemby/qserver/pkg/permission"
	"github.com/cuemby/qserver/pkg/queue"
	"github.com/cuemby/qserver/pkg/rpc"
	"github.com/cuemby/qserver/pkg/storage"
)

// Config configures a Manager.
type Config struct {
	// WatchdogConn is the Manager's end of the Watchdog<->Manager link.
	WatchdogConn io.ReadWriteCloser
	// WorkerConn is the Manager's end of the Manager<->Worker link.
	WorkerConn io.ReadWriteCloser

	Store       storage.Store
	Permissions permission.Checker
	EventBroker *events.Broker

	// HeartbeatInterval sets how often the Manager notifies the Watchdog
	// it's alive. Defaults to 500ms.
	HeartbeatInterval time.Duration
	// EnvironmentStartupTimeout bounds how long environment_open waits
	// for the Worker's environment_ready/environment_failed event before
	// giving up. Defaults to 30s.
	EnvironmentStartupTimeout time.Duration
	// JoinTimeout bounds how long environment_close waits for the Worker
	// process to exit via join_re_worker. Defaults to 5s.
	JoinTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Permissions == nil {
		c.Permissions = permission.AllowAll{}
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 500 * time.Millisecond
	}
	if c.EnvironmentStartupTimeout == 0 {
		c.EnvironmentStartupTimeout = 30 * time.Second
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = 5 * time.Second
	}
}

// Manager is the control-loop process: it owns queue/history/environment
// state and mutates it only while holding mu — in Handle and in the
// queue-execution and environment goroutines it starts — the same
// single-writer discipline as the teacher's FSM, minus Raft (spec.md §9:
// single host, no consensus).
type Manager struct {
	cfg Config

	watchdogLink *rpc.Link
	workerLink   *rpc.Link

	mu       sync.Mutex
	state    RunState
	envState storage.EnvState
	queue    *queue.Queue
	history  *queue.History
	running  *queue.Item
	stopping bool
	killed   bool

	planStatusCh chan planStatusEvent
	envEventCh   chan envEvent

	// execCancel is closed by environment_destroy to wake a runQueueLoop or
	// awaitInFlightPlanTerminal goroutine that's blocked waiting for a
	// plan_status event from a Worker that was just force-killed and will
	// never send one. Replaced with a fresh channel afterward so the next
	// queue_start/reconnection starts a new, uncancelled generation.
	execCancel chan struct{}

	// eventSub is the Manager's own standing subscription to cfg.EventBroker,
	// feeding eventLog so events_get has something to serve — otherwise
	// nothing ever calls Subscribe and every Publish is a no-op.
	eventSub events.Subscriber
	eventsMu sync.Mutex
	eventLog []loggedEvent
	eventSeq int64

	heartbeatStop     chan struct{}
	heartbeatStopOnce sync.Once
	doneCh            chan struct{}
	stopOnce          sync.Once
}

// stopHeartbeat is safe to call from both the manager_stop and manager_kill
// paths, which would otherwise race to close the same channel.
func (m *Manager) stopHeartbeat() {
	m.heartbeatStopOnce.Do(func() { close(m.heartbeatStop) })
}

type planStatusEvent struct {
	UID    string
	Status queue.Status
	Result map[string]interface{}
}

type envEvent struct {
	ready bool
	err   string
}

// New creates a Manager bound to cfg. Call Start to rehydrate persisted
// state and begin serving commands.
func New(cfg Config) (*Manager, error) {
	cfg.setDefaults()
	if cfg.Store == nil {
		return nil, fmt.Errorf("manager: Store is required")
	}
	if cfg.WatchdogConn == nil || cfg.WorkerConn == nil {
		return nil, fmt.Errorf("manager: WatchdogConn and WorkerConn are required")
	}
	if cfg.EventBroker == nil {
		cfg.EventBroker = events.NewBroker()
		cfg.EventBroker.Start()
	}

	m := &Manager{
		cfg:           cfg,
		state:         StateIdle,
		envState:      storage.EnvClosed,
		queue:         queue.New(),
		history:       queue.NewHistory(),
		planStatusCh:  make(chan planStatusEvent, 4),
		envEventCh:    make(chan envEvent, 1),
		execCancel:    make(chan struct{}),
		heartbeatStop: make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	m.watchdogLink = rpc.NewLink(cfg.WatchdogConn, nil, nil)
	m.workerLink = rpc.NewLink(cfg.WorkerConn, nil, m.handleWorkerNotify)

	m.eventSub = cfg.EventBroker.Subscribe()
	go m.collectEvents()

	return m, nil
}

// maxEventLog bounds the in-memory ring buffer events_get serves from.
const maxEventLog = 500

// loggedEvent pairs a broadcast event with a monotonic sequence number, so
// events_get callers can long-poll for "everything since the last seq I
// saw" without missing or re-reading entries as the ring buffer trims.
type loggedEvent struct {
	Seq   int64         `json:"seq"`
	Event *events.Event `json:"event"`
}

// collectEvents drains the Manager's standing broker subscription into
// eventLog, giving events_get a history to return. Runs until eventSub is
// closed by doManagerStop's Unsubscribe.
func (m *Manager) collectEvents() {
	for ev := range m.eventSub {
		m.eventsMu.Lock()
		m.eventSeq++
		m.eventLog = append(m.eventLog, loggedEvent{Seq: m.eventSeq, Event: ev})
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[len(m.eventLog)-maxEventLog:]
		}
		m.eventsMu.Unlock()
	}
}

// Start rehydrates persisted state, starts both links, the heartbeat
// emitter, and the SIGTERM/SIGINT handler.
func (m *Manager) Start(ctx context.Context) error {
	m.watchdogLink.Start()
	m.workerLink.Start()

	if err := m.rehydrate(); err != nil {
		log.Errorf("manager: rehydrate from store", err)
	}

	go m.heartbeatLoop(ctx)
	m.installSignalHandler()

	log.Info("manager: started")
	return nil
}

// Done is closed once the Manager has completed an orderly manager_stop.
func (m *Manager) Done() <-chan struct{} {
	return m.doneCh
}

func (m *Manager) rehydrate() error {
	items, err := m.cfg.Store.LoadQueue()
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	for _, it := range items {
		m.queue.Add(it, queue.AtBack())
	}

	hist, err := m.cfg.Store.LoadHistory()
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, h := range hist {
		m.history.Append(h)
	}

	running, err := m.cfg.Store.LoadRunning()
	if err != nil {
		return fmt.Errorf("load running: %w", err)
	}
	m.running = running

	envState, err := m.cfg.Store.LoadEnvState()
	if err != nil {
		return fmt.Errorf("load env state: %w", err)
	}
	m.envState = envState

	// Reconnection after restart: spec.md §4.3 — if the environment was
	// open, ask the Worker (whose pipe endpoint survives Manager restarts
	// unchanged) what it's doing right now and reconstruct run state.
	if envState == storage.EnvOpen {
		go m.reconcileAfterRestart()
	}

	m.refreshGauges()
	return nil
}

func (m *Manager) reconcileAfterRestart() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := m.workerLink.Call(ctx, "status", nil)
	if err != nil {
		log.Errorf("manager: reconnection status() poll", err)
		return
	}

	var status struct {
		EnvState       string `json:"env_state"`
		CurrentPlanUID string `json:"current_plan_uid"`
		ExecState      string `json:"exec_state"`
	}
	if err := json.Unmarshal(reply, &status); err != nil {
		log.Errorf("manager: unmarshal reconnection status reply", err)
		return
	}

	m.mu.Lock()
	cancelCh := m.execCancel
	switch status.ExecState {
	case "running":
		// m.running already holds the in-flight plan loaded from the
		// store — await its terminal status rather than starting
		// runQueueLoop, which would PopFront a fresh item and clash with
		// the Worker still executing this one.
		m.state = StateExecutingQueue
		go m.awaitInFlightPlanTerminal(cancelCh)
	case "paused":
		m.state = StatePaused
		go m.awaitInFlightPlanTerminal(cancelCh)
	default:
		m.state = StateIdle
	}
	m.refreshGaugesLocked()
	m.mu.Unlock()

	log.Info(fmt.Sprintf("manager: reconnected to worker, exec_state=%s", status.ExecState))
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = m.watchdogLink.Notify("heartbeat", nil)
		case <-m.heartbeatStop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) installSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("manager: received shutdown signal, stopping safe_off")
		_, _ = m.doManagerStop("safe_off")
	}()
}

func (m *Manager) refreshGauges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshGaugesLocked()
}

// refreshGaugesLocked must be called with mu held.
func (m *Manager) refreshGaugesLocked() {
	metrics.ManagerState.Set(stateIndex(m.state))
	metrics.EnvironmentState.Set(envStateIndex(m.envState))
	metrics.QueueLength.Set(float64(m.queue.Len()))
	metrics.HistoryLength.Set(float64(m.history.Len()))
}

// Handle dispatches one control-channel command by method name. It
// implements rpc.Handler and is also used directly by in-process tests.
func (m *Manager) Handle(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "queue_item_add":
		return m.handleQueueItemAdd(params)
	case "queue_item_get":
		return m.handleQueueItemGet(params)
	case "queue_plan_remove":
		return m.handleQueuePlanRemove(params)
	case "queue_plan_move":
		return m.handleQueuePlanMove(params)
	case "queue_get":
		return m.handleQueueGet()
	case "queue_clear":
		return m.handleQueueClear()
	case "queue_start":
		return m.handleQueueStart()
	case "queue_stop":
		return m.handleQueueStop()
	case "queue_stop_cancel":
		return m.handleQueueStopCancel()
	case "environment_open":
		return m.handleEnvironmentOpen()
	case "environment_close":
		return m.handleEnvironmentClose()
	case "environment_destroy":
		return m.handleEnvironmentDestroy()
	case "re_pause":
		return m.handleRePause(params)
	case "re_resume":
		return m.forwardToWorker(StatePaused, "resume", nil)
	case "re_stop":
		return m.forwardToWorker(StatePaused, "stop", nil)
	case "re_abort":
		return m.forwardToWorker(StatePaused, "abort", nil)
	case "re_halt":
		return m.forwardToWorker(StatePaused, "halt", nil)
	case "history_get":
		return m.handleHistoryGet()
	case "history_clear":
		return m.handleHistoryClear()
	case "events_get":
		return m.handleEventsGet(params)
	case "manager_stop":
		return m.handleManagerStop(params)
	case "manager_kill":
		return m.handleManagerKill()
	case "plans_allowed":
		return m.handlePlansAllowed(params)
	case "devices_allowed":
		return m.handleDevicesAllowed(params)
	default:
		return nil, fmt.Errorf("%w: %s", rpc.ErrMethodNotFound, method)
	}
}

func successReply() (json.RawMessage, error) {
	return json.Marshal(map[string]bool{"success": true})
}

func errorReply(msg string) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{"success": false, "msg": msg})
}

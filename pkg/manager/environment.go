package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/qserver/pkg/events"
	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/queue"
	"github.com/cuemby/qserver/pkg/storage"
)

// handleEnvironmentOpen implements spec.md §4.3's opening sequence. It ACKs
// as soon as start_re_worker has been issued; the ready/failed transition
// happens in the background once the Worker reports in.
func (m *Manager) handleEnvironmentOpen() (json.RawMessage, error) {
	m.mu.Lock()
	if m.envState != storage.EnvClosed {
		m.mu.Unlock()
		return errorReply(fmt.Sprintf("environment_open: environment is %s, not closed", m.envState))
	}
	m.envState = storage.EnvOpening
	m.state = StateCreatingEnvironment
	m.persistEnvStateLocked()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.watchdogLink.Call(ctx, "start_re_worker", nil); err != nil {
		m.mu.Lock()
		m.envState = storage.EnvClosed
		m.state = StateIdle
		m.persistEnvStateLocked()
		m.mu.Unlock()
		return errorReply(fmt.Sprintf("start_re_worker: %v", err))
	}

	go m.awaitEnvironmentReady()

	return json.Marshal(map[string]interface{}{"success": true, "msg": "opening"})
}

func (m *Manager) awaitEnvironmentReady() {
	select {
	case ev := <-m.envEventCh:
		m.mu.Lock()
		if ev.ready {
			m.envState = storage.EnvOpen
			m.state = StateIdle
			m.persistEnvStateLocked()
			m.mu.Unlock()
			m.publish(&events.Event{Type: events.EventEnvironmentOpen, Message: "environment ready"})
		} else {
			m.envState = storage.EnvClosed
			m.state = StateIdle
			m.persistEnvStateLocked()
			m.mu.Unlock()
			m.publish(&events.Event{Type: events.EventEnvironmentFailed, Message: ev.err})
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.JoinTimeout)
			defer cancel()
			_, _ = m.watchdogLink.Call(ctx, "join_re_worker", nil)
		}
	case <-time.After(m.cfg.EnvironmentStartupTimeout):
		m.mu.Lock()
		m.envState = storage.EnvClosed
		m.state = StateIdle
		m.persistEnvStateLocked()
		m.mu.Unlock()
		log.Error("manager: environment_open timed out waiting for worker")
	}
}

// handleEnvironmentClose implements the orderly close sequence. Rejected
// unless idle.
func (m *Manager) handleEnvironmentClose() (json.RawMessage, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return errorReply(fmt.Sprintf("environment_close: manager is %s, not idle", m.state))
	}
	m.state = StateClosingEnvironment
	m.envState = storage.EnvClosing
	m.persistEnvStateLocked()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.workerLink.Call(ctx, "shutdown", nil); err != nil {
		log.Errorf("manager: environment_close shutdown call", err)
	}

	go m.finishEnvironmentClose()

	return json.Marshal(map[string]interface{}{"success": true, "msg": "closing"})
}

func (m *Manager) finishEnvironmentClose() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.JoinTimeout)
	defer cancel()
	if _, err := m.watchdogLink.Call(ctx, "join_re_worker", nil); err != nil {
		log.Errorf("manager: environment_close join_re_worker", err)
	}

	m.mu.Lock()
	m.envState = storage.EnvClosed
	m.state = StateIdle
	m.persistEnvStateLocked()
	m.mu.Unlock()
	m.publish(&events.Event{Type: events.EventEnvironmentClosed, Message: "environment closed"})
}

// handleEnvironmentDestroy implements the forced-destroy path: usable any
// time, force-kills the Worker, and requeues any in-flight plan at the
// front with a synthesized failed(environment_destroyed) history entry.
func (m *Manager) handleEnvironmentDestroy() (json.RawMessage, error) {
	m.mu.Lock()
	m.state = StateDestroyingEnvironment
	m.envState = storage.EnvDestroying
	running := m.running
	// Wake any runQueueLoop/awaitInFlightPlanTerminal goroutine blocked
	// waiting for a plan_status event from the Worker we're about to
	// kill — it will never send one for the plan it was executing. Swap
	// in a fresh channel so the next queue_start/reconnection starts an
	// uncancelled generation.
	close(m.execCancel)
	m.execCancel = make(chan struct{})
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.watchdogLink.Call(ctx, "kill_re_worker", nil); err != nil {
		log.Errorf("manager: environment_destroy kill_re_worker", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if running != nil {
		entry := &queue.HistoryEntry{
			Item:       *running,
			Status:     queue.StatusFailed,
			Error:      "environment_destroyed",
			FinishedAt: time.Now(),
		}
		m.history.Append(entry)
		if err := m.cfg.Store.AppendHistory(entry); err != nil {
			log.Errorf("manager: persist destroyed-plan history entry", err)
		}
		m.queue.PushFront(running)
		m.running = nil
		m.persistQueueLocked()
		m.persistRunningLocked()
	}

	m.envState = storage.EnvClosed
	m.state = StateIdle
	m.persistEnvStateLocked()

	return json.Marshal(map[string]interface{}{"success": true})
}

// persistEnvStateLocked must be called with mu held.
func (m *Manager) persistEnvStateLocked() {
	if err := m.cfg.Store.SaveEnvState(m.envState); err != nil {
		log.Errorf("manager: persist environment state", err)
	}
	m.refreshGaugesLocked()
}

// persistRunningLocked must be called with mu held.
func (m *Manager) persistRunningLocked() {
	if err := m.cfg.Store.SaveRunning(m.running); err != nil {
		log.Errorf("manager: persist running item", err)
	}
}

// handleWorkerNotify serves the Worker's unsolicited events: environment_ready,
// environment_failed, plan_status, heartbeat_worker.
func (m *Manager) handleWorkerNotify(method string, params json.RawMessage) {
	switch method {
	case "environment_ready":
		select {
		case m.envEventCh <- envEvent{ready: true}:
		default:
		}
	case "environment_failed":
		var p struct {
			Err string `json:"err"`
		}
		_ = json.Unmarshal(params, &p)
		select {
		case m.envEventCh <- envEvent{ready: false, err: p.Err}:
		default:
		}
	case "plan_status":
		var payload struct {
			UID    string                 `json:"uid"`
			Status queue.Status           `json:"status"`
			Result map[string]interface{} `json:"result,omitempty"`
		}
		if err := json.Unmarshal(params, &payload); err != nil {
			log.Errorf("manager: unmarshal plan_status event", err)
			return
		}
		if payload.Status == queue.StatusRunning {
			m.publish(eventForStatus(payload.UID, payload.Status))
			return
		}
		select {
		case m.planStatusCh <- planStatusEvent{UID: payload.UID, Status: payload.Status, Result: payload.Result}:
		default:
			log.Error("manager: plan_status channel full, dropping event")
		}
		m.publish(eventForStatus(payload.UID, payload.Status))
	case "heartbeat_worker":
		// Self-check only; no state transition required.
	}
}

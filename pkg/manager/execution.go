package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/qserver/pkg/engine"
	"github.com/cuemby/qserver/pkg/events"
	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/metrics"
	"github.com/cuemby/qserver/pkg/queue"
	"github.com/cuemby/qserver/pkg/storage"
)

func (m *Manager) handleQueueStart() (json.RawMessage, error) {
	m.mu.Lock()
	if m.state != StateIdle || m.envState != storage.EnvOpen {
		m.mu.Unlock()
		return errorReply("queue_start requires state idle and environment open")
	}
	m.state = StateExecutingQueue
	m.refreshGaugesLocked()
	cancelCh := m.execCancel
	m.mu.Unlock()

	go m.runQueueLoop(cancelCh)
	return successReply()
}

func (m *Manager) handleQueueStop() (json.RawMessage, error) {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()

	m.publish(&events.Event{Type: events.EventQueueStopPending, Message: "queue stop pending"})
	return successReply()
}

func (m *Manager) handleQueueStopCancel() (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopping = false
	return successReply()
}

// runQueueLoop implements spec.md §4.2's queue execution algorithm. It runs
// in its own goroutine, started by queue_start (or by reconnection after a
// Manager restart that finds the Worker mid-plan). cancelCh is the
// generation's execCancel, captured by the caller under mu at spawn time;
// environment_destroy closes it to tear down whichever generation is
// currently running without racing a later one.
func (m *Manager) runQueueLoop(cancelCh chan struct{}) {
	for {
		m.mu.Lock()
		if m.state != StateExecutingQueue {
			m.mu.Unlock()
			return
		}
		if m.stopping {
			m.stopping = false
			m.state = StateIdle
			m.refreshGaugesLocked()
			m.mu.Unlock()
			return
		}
		item, ok := m.queue.PopFront()
		if !ok {
			m.state = StateIdle
			m.persistQueueLocked()
			m.mu.Unlock()
			return
		}
		m.running = item
		m.persistQueueLocked()
		m.persistRunningLocked()
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := m.workerLink.Call(ctx, "run_plan", map[string]interface{}{"item": item})
		cancel()
		if err != nil {
			log.Errorf("manager: run_plan call", err)
			m.finishRunning(queue.StatusFailed, nil, err.Error())
			continue
		}

		status, result, ok := m.awaitPlanStatus(cancelCh)
		if !ok {
			// environment_destroy cancelled this generation; it already
			// took care of requeueing/history for the running item.
			return
		}
		if status == queue.StatusPaused {
			m.mu.Lock()
			m.state = StatePaused
			m.refreshGaugesLocked()
			m.mu.Unlock()

			status, result, ok = m.awaitPlanStatus(cancelCh)
			if !ok {
				return
			}

			m.mu.Lock()
			m.state = StateExecutingQueue
			m.refreshGaugesLocked()
			m.mu.Unlock()
		}

		terminal := m.finishRunning(status, result, "")
		if !terminal {
			continue
		}

		if status == queue.StatusAborted || status == queue.StatusHalted {
			m.mu.Lock()
			m.state = StateIdle
			m.refreshGaugesLocked()
			m.mu.Unlock()
			return
		}
	}
}

// awaitInFlightPlanTerminal is used only by the post-restart reconnection
// path, where the Manager finds the Worker already mid-plan (running or
// paused) and has no queue-loop goroutine waiting on awaitPlanStatus. It
// awaits that plan's terminal status — preserving its identity in
// m.running rather than popping a fresh item off the queue — then resumes
// the normal pop loop for whatever remains queued behind it.
func (m *Manager) awaitInFlightPlanTerminal(cancelCh chan struct{}) {
	status, result, ok := m.awaitPlanStatus(cancelCh)
	if !ok {
		return
	}
	m.mu.Lock()
	m.state = StateExecutingQueue
	m.refreshGaugesLocked()
	m.mu.Unlock()

	m.finishRunning(status, result, "")

	if status == queue.StatusAborted || status == queue.StatusHalted {
		m.mu.Lock()
		m.state = StateIdle
		m.refreshGaugesLocked()
		m.mu.Unlock()
		return
	}
	go m.runQueueLoop(cancelCh)
}

// awaitPlanStatus blocks for the next non-running plan_status event (a
// terminal status or paused), or returns
// ok=false if cancelCh is closed first — environment_destroy's signal that
// this generation's in-flight plan was force-killed and no plan_status will
// ever arrive for it.
func (m *Manager) awaitPlanStatus(cancelCh chan struct{}) (queue.Status, map[string]interface{}, bool) {
	select {
	case ev := <-m.planStatusCh:
		return ev.Status, ev.Result, true
	case <-cancelCh:
		return "", nil, false
	}
}

// finishRunning appends a history entry for the currently-running item and
// clears the running slot. Returns whether the status was terminal (it
// always is here — awaitPlanStatus only ever returns terminal statuses
// after an optional pause).
func (m *Manager) finishRunning(status queue.Status, result map[string]interface{}, errMsg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running == nil {
		return true
	}
	entry := &queue.HistoryEntry{
		Item:       *m.running,
		Status:     status,
		Result:     result,
		Error:      errMsg,
		FinishedAt: time.Now(),
	}
	m.history.Append(entry)
	if err := m.cfg.Store.AppendHistory(entry); err != nil {
		log.Errorf("manager: persist history entry", err)
	}
	metrics.PlansCompletedTotal.WithLabelValues(string(status)).Inc()

	m.running = nil
	m.persistRunningLocked()
	m.refreshGaugesLocked()
	return status.IsTerminal()
}

// handleRePause forwards a pause request to the Worker. Rejected unless
// currently executing a plan.
func (m *Manager) handleRePause(params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Mode engine.PauseMode `json:"mode"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("manager: unmarshal re_pause params: %w", err)
		}
	}
	if p.Mode == "" {
		p.Mode = engine.PauseDeferred
	}
	return m.forwardToWorker(StateExecutingQueue, "pause", map[string]interface{}{"mode": p.Mode})
}

// forwardToWorker gates on the Manager being in requiredState, then issues
// cmd to the Worker and ACKs as soon as it has been sent — spec.md §4.2's
// "ACK as soon as the instruction has been issued to the Worker, not after
// completion."
func (m *Manager) forwardToWorker(requiredState RunState, cmd string, params interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	if m.state != requiredState {
		m.mu.Unlock()
		return errorReply(fmt.Sprintf("%s requires state %s, got %s", cmd, requiredState, m.state))
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.workerLink.Call(ctx, cmd, params); err != nil {
		return errorReply(err.Error())
	}
	return successReply()
}

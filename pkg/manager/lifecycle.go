package manager

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/qserver/pkg/log"
)

func (m *Manager) handleHistoryGet() (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(map[string]interface{}{"success": true, "entries": m.history.Entries()})
}

func (m *Manager) handleHistoryClear() (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history.Clear()
	if err := m.cfg.Store.ClearHistory(); err != nil {
		log.Errorf("manager: clear persisted history", err)
	}
	m.refreshGaugesLocked()
	return successReply()
}

type managerStopParams struct {
	Mode string `json:"mode"`
}

func (m *Manager) handleManagerStop(params json.RawMessage) (json.RawMessage, error) {
	var p managerStopParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("manager: unmarshal manager_stop params: %w", err)
		}
	}
	if p.Mode == "" {
		p.Mode = "safe_on"
	}
	return m.doManagerStop(p.Mode)
}

func (m *Manager) doManagerStop(mode string) (json.RawMessage, error) {
	m.mu.Lock()
	planRunning := m.state == StateExecutingQueue || m.state == StatePaused
	if mode == "safe_on" && planRunning {
		m.mu.Unlock()
		return errorReply("manager_stop safe_on: a plan is running")
	}
	m.mu.Unlock()

	m.stopOnce.Do(func() {
		m.stopHeartbeat()
		if m.cfg.EventBroker != nil {
			m.cfg.EventBroker.Unsubscribe(m.eventSub)
		}
		_ = m.watchdogLink.Notify("manager_stopping", nil)
		log.Info("manager: stopped")
		close(m.doneCh)
	})
	return successReply()
}

// handleManagerKill simulates total unresponsiveness (spec.md §4.2's
// diagnostic command): the heartbeat emitter stops and this handler never
// replies, so the Watchdog's 5s/15s gap rule restarts the Manager.
func (m *Manager) handleManagerKill() (json.RawMessage, error) {
	m.mu.Lock()
	m.killed = true
	m.mu.Unlock()

	m.stopHeartbeat()
	select {}
}

func (m *Manager) handlePlansAllowed(params json.RawMessage) (json.RawMessage, error) {
	group := userGroupOf(params)
	return json.Marshal(map[string]interface{}{"success": true, "plans": m.cfg.Permissions.PlansAllowed(group)})
}

func (m *Manager) handleDevicesAllowed(params json.RawMessage) (json.RawMessage, error) {
	group := userGroupOf(params)
	return json.Marshal(map[string]interface{}{"success": true, "devices": m.cfg.Permissions.DevicesAllowed(group)})
}

func userGroupOf(params json.RawMessage) string {
	var p struct {
		UserGroup string `json:"user_group"`
	}
	_ = json.Unmarshal(params, &p)
	return p.UserGroup
}

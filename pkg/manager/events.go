package manager

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/qserver/pkg/events"
	"github.com/cuemby/qserver/pkg/queue"
)

// publish is a nil-safe wrapper so command handlers never need to check
// cfg.EventBroker themselves.
func (m *Manager) publish(ev *events.Event) {
	if m.cfg.EventBroker != nil {
		m.cfg.EventBroker.Publish(ev)
	}
}

type eventsGetParams struct {
	SinceSeq int64 `json:"since_seq"`
}

// handleEventsGet serves the Manager's own event-broker subscription back
// over the control channel: a client long-polls by repeating the call with
// since_seq set to the last next_seq it received.
func (m *Manager) handleEventsGet(params json.RawMessage) (json.RawMessage, error) {
	var p eventsGetParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("manager: unmarshal events_get params: %w", err)
		}
	}

	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	out := make([]loggedEvent, 0)
	for _, le := range m.eventLog {
		if le.Seq > p.SinceSeq {
			out = append(out, le)
		}
	}
	// truncated reports that the ring buffer evicted entries the caller
	// hadn't seen yet — its since_seq predates what's still retained.
	truncated := p.SinceSeq > 0 && len(m.eventLog) > 0 && p.SinceSeq < m.eventLog[0].Seq-1
	return json.Marshal(map[string]interface{}{
		"success":   true,
		"events":    out,
		"next_seq":  m.eventSeq,
		"truncated": truncated,
	})
}

func eventPlanQueued(item *queue.Item) *events.Event {
	return &events.Event{
		Type:    events.EventPlanQueued,
		Message: fmt.Sprintf("plan %s queued: %s", item.UID, item.Name),
		Metadata: map[string]string{
			"plan_uid": item.UID,
			"name":     item.Name,
		},
	}
}

func eventForStatus(uid string, status queue.Status) *events.Event {
	meta := map[string]string{"plan_uid": uid}
	switch status {
	case queue.StatusRunning:
		return &events.Event{Type: events.EventPlanRunning, Message: "plan running: " + uid, Metadata: meta}
	case queue.StatusPaused:
		return &events.Event{Type: events.EventPlanPaused, Message: "plan paused: " + uid, Metadata: meta}
	case queue.StatusCompleted:
		return &events.Event{Type: events.EventPlanCompleted, Message: "plan completed: " + uid, Metadata: meta}
	case queue.StatusStopped:
		return &events.Event{Type: events.EventPlanStopped, Message: "plan stopped: " + uid, Metadata: meta}
	case queue.StatusAborted:
		return &events.Event{Type: events.EventPlanAborted, Message: "plan aborted: " + uid, Metadata: meta}
	case queue.StatusHalted:
		return &events.Event{Type: events.EventPlanHalted, Message: "plan halted: " + uid, Metadata: meta}
	case queue.StatusFailed:
		return &events.Event{Type: events.EventPlanFailed, Message: "plan failed: " + uid, Metadata: meta}
	default:
		return &events.Event{Type: events.EventPlanFailed, Message: "plan status " + string(status) + ": " + uid, Metadata: meta}
	}
}

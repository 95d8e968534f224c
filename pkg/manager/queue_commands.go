package manager

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/qserver/pkg/log"
	"github.com/cuemby/qserver/pkg/queue"
)

// wirePosition is queue_item_add's position argument: exactly one field
// set, mirroring spec.md §4.2's "integer / front / back / before_uid:U /
// after_uid:U" union as a plain JSON object rather than a string grammar.
type wirePosition struct {
	Index     *int   `json:"index,omitempty"`
	Front     bool   `json:"front,omitempty"`
	Back      bool   `json:"back,omitempty"`
	BeforeUID string `json:"before_uid,omitempty"`
	AfterUID  string `json:"after_uid,omitempty"`
}

func (w *wirePosition) toPosition() queue.Position {
	if w == nil {
		return queue.Position{}
	}
	switch {
	case w.Front:
		return queue.AtFront()
	case w.Back:
		return queue.AtBack()
	case w.BeforeUID != "":
		return queue.BeforeUIDPos(w.BeforeUID)
	case w.AfterUID != "":
		return queue.AfterUIDPos(w.AfterUID)
	case w.Index != nil:
		return queue.AtIndex(*w.Index)
	default:
		return queue.Position{}
	}
}

// wireRef is the queue_item_get/queue_plan_remove/move-source argument:
// either a UID or a position, defaulting to back.
type wireRef struct {
	UID   string `json:"uid,omitempty"`
	Index *int   `json:"index,omitempty"`
}

func (w *wireRef) toRef() queue.Ref {
	if w == nil {
		return queue.Ref{}
	}
	if w.UID != "" {
		return queue.RefUID(w.UID)
	}
	if w.Index != nil {
		return queue.RefIndex(*w.Index)
	}
	return queue.Ref{}
}

// wireMoveDest is queue_plan_move's destination argument.
type wireMoveDest struct {
	Index  *int   `json:"index,omitempty"`
	UID    string `json:"uid,omitempty"`
	Before bool   `json:"before,omitempty"`
}

func (w *wireMoveDest) toMoveDest() queue.MoveDest {
	if w == nil {
		return queue.MoveDest{}
	}
	return queue.MoveDest{Index: w.Index, UID: w.UID, Before: w.Before}
}

type queueItemAddParams struct {
	Item     *queue.Item   `json:"item"`
	Position *wirePosition `json:"position,omitempty"`
}

func (m *Manager) handleQueueItemAdd(params json.RawMessage) (json.RawMessage, error) {
	var p queueItemAddParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("manager: unmarshal queue_item_add params: %w", err)
	}
	if p.Item == nil {
		return nil, fmt.Errorf("manager: queue_item_add requires an item")
	}
	if !m.cfg.Permissions.AllowPlan(p.Item.UserGroup, p.Item.Name) {
		return errorReply(fmt.Sprintf("plan %q not allowed for group %q", p.Item.Name, p.Item.UserGroup))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Item.UID == "" {
		p.Item.UID = queue.NewUID()
	}
	p.Item.QueuedAt = time.Now()
	placed, err := m.queue.Add(p.Item, p.Position.toPosition())
	if err != nil {
		return errorReply(err.Error())
	}
	m.persistQueueLocked()
	m.publish(eventPlanQueued(placed))
	return json.Marshal(map[string]interface{}{"success": true, "item": placed})
}

type refParams struct {
	wireRef
}

func (m *Manager) handleQueueItemGet(params json.RawMessage) (json.RawMessage, error) {
	var p refParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("manager: unmarshal queue_item_get params: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.queue.Get(p.toRef())
	if err != nil {
		return errorReply(err.Error())
	}
	return json.Marshal(map[string]interface{}{"success": true, "item": item})
}

func (m *Manager) handleQueuePlanRemove(params json.RawMessage) (json.RawMessage, error) {
	var p refParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("manager: unmarshal queue_plan_remove params: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.queue.Remove(p.toRef())
	if err != nil {
		return errorReply(err.Error())
	}
	m.persistQueueLocked()
	return json.Marshal(map[string]interface{}{"success": true, "item": item})
}

type queuePlanMoveParams struct {
	Src wireRef      `json:"src"`
	Dst wireMoveDest `json:"dst"`
}

func (m *Manager) handleQueuePlanMove(params json.RawMessage) (json.RawMessage, error) {
	var p queuePlanMoveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("manager: unmarshal queue_plan_move params: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.queue.Move(p.Src.toRef(), p.Dst.toMoveDest()); err != nil {
		return errorReply(err.Error())
	}
	m.persistQueueLocked()
	return successReply()
}

func (m *Manager) handleQueueGet() (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(map[string]interface{}{
		"success": true,
		"items":   m.queue.Items(),
		"running": m.running,
	})
}

func (m *Manager) handleQueueClear() (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.Clear()
	m.persistQueueLocked()
	return successReply()
}

// persistQueueLocked must be called with mu held.
func (m *Manager) persistQueueLocked() {
	if err := m.cfg.Store.SaveQueue(m.queue.Items()); err != nil {
		log.Errorf("manager: persist queue", err)
	}
	m.refreshGaugesLocked()
}

// Package queue implements the plan queue and history: the ordered list of
// submitted plan items, position/UID resolution, and the append-only
// record of completed attempts. It is the sole owner of this state —
// callers (the manager) serialize all access under their own mutex, so the
// types here do not lock internally.
package queue

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal (or in-flight) state of a plan attempt.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusAborted   Status = "aborted"
	StatusHalted    Status = "halted"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether a status leaves the running slot and belongs
// in history.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusAborted, StatusHalted, StatusFailed:
		return true
	default:
		return false
	}
}

// Item is a submitted unit of work: a plan name, positional args, keyword
// args, and the metadata the queue attaches at insert time.
type Item struct {
	UID       string                 `json:"plan_uid"`
	Name      string                 `json:"name"`
	Args      []interface{}          `json:"args,omitempty"`
	Kwargs    map[string]interface{} `json:"kwargs,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	UserGroup string                 `json:"user_group,omitempty"`
	QueuedAt  time.Time              `json:"queued_at"`
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// manager's control loop (wire serialization still shares Args/Kwargs/Meta
// maps, which callers must not mutate — they're treated as immutable once
// queued).
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// NewUID mints a new plan UID: a UUIDv4 with dashes stripped, giving a
// 32-character hex string. See DESIGN.md for why a UUID library stands in
// for a bespoke 128-bit random hex generator.
func NewUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HistoryEntry is an append-only record of a completed (or terminally
// failed) plan attempt.
type HistoryEntry struct {
	Item       Item                   `json:"item"`
	Status     Status                 `json:"status"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	FinishedAt time.Time              `json:"finished_at"`
}

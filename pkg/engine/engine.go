// Package engine hosts the long-running execution engine a Worker drives:
// the thing that actually runs a plan's steps. spec.md §1 explicitly puts
// plan semantics and device models out of scope, so this package defines
// only the seam (the Engine interface and its pause/resume/stop/abort/halt
// control vocabulary) plus one concrete, dependency-free implementation
// (SimEngine) that exercises every control path a real engine would need.
package engine

import (
	"context"

	"github.com/cuemby/qserver/pkg/queue"
)

// PauseMode mirrors the Worker's re_pause request modes.
type PauseMode string

const (
	PauseDeferred  PauseMode = "deferred"
	PauseImmediate PauseMode = "immediate"
)

// Control is a thread-safe mailbox an Engine polls between (or, for
// immediate pause, within) plan steps. The Worker's command reader
// forwards each incoming command to it — spec.md §5's "commands are
// forwarded to the engine via a thread-safe queue."
type Control struct {
	pauseCh  chan PauseMode
	resumeCh chan struct{}
	stopCh   chan struct{}
	abortCh  chan struct{}
	haltCh   chan struct{}
}

// NewControl creates an empty Control mailbox.
func NewControl() *Control {
	return &Control{
		pauseCh:  make(chan PauseMode, 1),
		resumeCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}, 1),
		abortCh:  make(chan struct{}, 1),
		haltCh:   make(chan struct{}, 1),
	}
}

// Pause requests the engine pause at its next (or, for immediate, current)
// step boundary.
func (c *Control) Pause(mode PauseMode) {
	select {
	case c.pauseCh <- mode:
	default:
	}
}

// Resume requests a paused engine continue.
func (c *Control) Resume() {
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
}

// Stop requests the engine finish cleanly after the current step.
func (c *Control) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	default:
	}
}

// Abort requests the engine terminate the plan immediately, status aborted.
func (c *Control) Abort() {
	select {
	case c.abortCh <- struct{}{}:
	default:
	}
}

// Halt requests the engine terminate the plan immediately, status halted.
// Distinct from Abort only in the status it produces — real engines may
// also skip cleanup steps Abort would still run.
func (c *Control) Halt() {
	select {
	case c.haltCh <- struct{}{}:
	default:
	}
}

// Engine executes one plan at a time against a long-lived context (device
// handles, simulated or real, that outlive any single plan).
type Engine interface {
	// Execute runs item until it reaches a terminal status, blocking
	// through any pause. onPaused is called the moment the engine
	// actually pauses (not when Pause is merely requested) so the Worker
	// can emit plan_status(uid, paused) while Execute is still blocked
	// waiting for Resume/Stop/Abort/Halt. result is nil for anything but
	// a successful completion.
	Execute(ctx context.Context, item *queue.Item, ctrl *Control, onPaused func()) (status queue.Status, result map[string]interface{}, err error)
}

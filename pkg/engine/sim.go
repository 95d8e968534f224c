package engine

import (
	"context"
	"time"

	"github.com/cuemby/qserver/pkg/queue"
)

// SimEngine runs a plan as a fixed number of timed steps, reading
// "num_steps" and "step_duration_ms" from the item's kwargs (defaulting
// to 10 steps of 1s each, matching the ~10s plans used in spec.md §8's
// end-to-end scenarios). It has no device model — it exists to exercise
// every Engine control path without pulling in real instrument code,
// which is out of scope (spec.md §1).
type SimEngine struct{}

// NewSimEngine creates a SimEngine.
func NewSimEngine() *SimEngine {
	return &SimEngine{}
}

func simParams(item *queue.Item) (steps int, stepDuration time.Duration) {
	steps = 10
	stepDuration = time.Second

	if item.Kwargs != nil {
		if n, ok := item.Kwargs["num_steps"].(float64); ok && n > 0 {
			steps = int(n)
		}
		if ms, ok := item.Kwargs["step_duration_ms"].(float64); ok && ms > 0 {
			stepDuration = time.Duration(ms) * time.Millisecond
		}
	}
	return steps, stepDuration
}

// Execute implements Engine.
func (e *SimEngine) Execute(ctx context.Context, item *queue.Item, ctrl *Control, onPaused func()) (queue.Status, map[string]interface{}, error) {
	steps, stepDuration := simParams(item)
	ticker := time.NewTicker(stepDuration)
	defer ticker.Stop()

	completedSteps := 0
	for completedSteps < steps {
		select {
		case <-ctx.Done():
			return queue.StatusFailed, nil, ctx.Err()

		case <-ticker.C:
			completedSteps++

		case mode := <-ctrl.pauseCh:
			status, err := e.waitWhilePaused(ctx, mode, ctrl, onPaused)
			if status != "" {
				return status, nil, err
			}
			// resumed: fall through to the next loop iteration

		case <-ctrl.stopCh:
			return queue.StatusStopped, nil, nil

		case <-ctrl.abortCh:
			return queue.StatusAborted, nil, nil

		case <-ctrl.haltCh:
			return queue.StatusHalted, nil, nil
		}
	}

	return queue.StatusCompleted, map[string]interface{}{
		"steps_completed": completedSteps,
	}, nil
}

// waitWhilePaused blocks until Resume, Stop, Abort, or Halt arrives. It
// returns a non-empty status if the pause ended in termination rather
// than resumption.
func (e *SimEngine) waitWhilePaused(ctx context.Context, mode PauseMode, ctrl *Control, onPaused func()) (queue.Status, error) {
	if onPaused != nil {
		onPaused()
	}
	_ = mode // SimEngine pauses as soon as Pause arrives; deferred and immediate are handled alike

	select {
	case <-ctx.Done():
		return queue.StatusFailed, ctx.Err()
	case <-ctrl.resumeCh:
		return "", nil
	case <-ctrl.stopCh:
		return queue.StatusStopped, nil
	case <-ctrl.abortCh:
		return queue.StatusAborted, nil
	case <-ctrl.haltCh:
		return queue.StatusHalted, nil
	}
}

// String implements fmt.Stringer for log-friendly pause mode values.
func (m PauseMode) String() string { return string(m) }

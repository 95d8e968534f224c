package manager

import "github.com/cuemby/qserver/pkg/storage"

// RunState is the Manager's control-loop state, distinct from the
// environment's own open/closed lifecycle (storage.EnvState) — a Manager
// can be idle with the environment open, or creating_environment with it
// still closed.
type RunState string

const (
	StateIdle                  RunState = "idle"
	StateCreatingEnvironment   RunState = "creating_environment"
	StateExecutingQueue        RunState = "executing_queue"
	StatePaused                RunState = "paused"
	StateClosingEnvironment    RunState = "closing_environment"
	StateDestroyingEnvironment RunState = "destroying_environment"
)

// stateIndex maps a RunState to the numeric value qserver_manager_state
// reports, for dashboards that chart state over time.
func stateIndex(s RunState) float64 {
	switch s {
	case StateIdle:
		return 0
	case StateCreatingEnvironment:
		return 1
	case StateExecutingQueue:
		return 2
	case StatePaused:
		return 3
	case StateClosingEnvironment:
		return 4
	case StateDestroyingEnvironment:
		return 5
	default:
		return -1
	}
}

func envStateIndex(s storage.EnvState) float64 {
	switch s {
	case storage.EnvClosed:
		return 0
	case storage.EnvOpening:
		return 1
	case storage.EnvOpen:
		return 2
	case storage.EnvClosing:
		return 3
	case storage.EnvDestroying:
		return 4
	default:
		return -1
	}
}

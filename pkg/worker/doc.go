// Package worker implements the Worker process: it answers Manager
// commands (run_plan, pause, resume, stop, abort, halt, status, shutdown,
// plans_allowed_query, devices_allowed_query) and emits unsolicited events
// (environment_ready, plan_status, heartbeat_worker) over the pipe
// Watchdog hands it. Its simulated profile load always succeeds, so it
// never emits the environment_failed event the Manager also accepts.
package worker

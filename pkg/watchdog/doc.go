// Package watchdog implements the top-level supervisor: it spawns the
// Manager as a child OS process, serves the Manager's RPC vocabulary
// (start_re_worker, join_re_worker, kill_re_worker, is_worker_alive,
// manager_stopping, heartbeat), and restarts the Manager on a heartbeat
// gap without disturbing the Worker, whose pipe endpoint Watchdog keeps
// alive across Manager restarts by holding it itself and re-inheriting
// it to each new Manager process.
package watchdog

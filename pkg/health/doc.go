// Package health provides a small Checker interface (TCP, process); the
// Watchdog uses the process checker to probe Manager and Worker process
// liveness. It also provides
// a Status type for tracking consecutive pass/fail streaks against a
// configurable retry threshold.
package health

// Package log wraps zerolog with qserver's component-logger conventions.
//
// Call Init once at process start (watchdog, manager, and worker each do
// this independently since they are separate OS processes), then either use
// the package-level helpers (log.Info, log.Error, ...) or a component
// logger from WithComponent for fields that should appear on every line a
// subsystem emits.
package log

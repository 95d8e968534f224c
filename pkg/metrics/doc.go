// Package metrics is the prometheus client_golang wiring for the Manager
// and Watchdog: state/queue gauges, plan-outcome counters, and request
// latency histograms, plus the Timer helper used to feed them.
package metrics

// Package metrics exposes the Prometheus gauges/counters/histograms a
// running Manager and Watchdog report on, plus a small Timer helper for
// feeding histograms.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ManagerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserver_manager_state",
			Help: "Current Manager state, as the numeric index into the state enum",
		},
	)

	EnvironmentState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserver_environment_state",
			Help: "Current environment state, as the numeric index into the state enum",
		},
	)

	QueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserver_queue_length",
			Help: "Number of plans currently queued",
		},
	)

	HistoryLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserver_history_length",
			Help: "Number of plan attempts recorded in history",
		},
	)

	PlansCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qserver_plans_completed_total",
			Help: "Total number of plan attempts by terminal status",
		},
		[]string{"status"},
	)

	PlanExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qserver_plan_execution_duration_seconds",
			Help:    "Wall-clock duration of a plan attempt from run_plan to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"status"},
	)

	ManagerRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qserver_manager_restarts_total",
			Help: "Total number of times the Watchdog has restarted the Manager",
		},
	)

	HeartbeatGapSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qserver_heartbeat_gap_seconds",
			Help: "Seconds since the Watchdog last observed a Manager heartbeat",
		},
	)

	ControlChannelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qserver_control_channel_requests_total",
			Help: "Total number of control-channel requests by method and outcome",
		},
		[]string{"method", "success"},
	)

	ControlChannelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qserver_control_channel_request_duration_seconds",
			Help:    "Control-channel request handling latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		ManagerState,
		EnvironmentState,
		QueueLength,
		HistoryLength,
		PlansCompletedTotal,
		PlanExecutionDuration,
		ManagerRestartsTotal,
		HeartbeatGapSeconds,
		ControlChannelRequestsTotal,
		ControlChannelRequestDuration,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and feeding the result to a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesRunTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_monitor_cycles_total",
		Help: "The number of completed liveness check cycles",
	})
	cycleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_monitor_cycle_failures_total",
		Help: "The number of cycles aborted because no chain time snapshot could be obtained",
	})
	readFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_monitor_read_failures_total",
		Help: "The number of per-operator ledger reads that failed",
	})
	alertsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_monitor_alerts_sent_total",
		Help: "The number of alerts delivered to the alert sink",
	})
	alertFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_monitor_alert_failures_total",
		Help: "The number of alerts the alert sink failed to deliver",
	})
	penaltyInvocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_monitor_penalty_invocations_total",
		Help: "The number of successful penalty invocations triggered by the monitor",
	})
	penaltyInvocationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_monitor_penalty_invocation_failures_total",
		Help: "The number of penalty invocations rejected by the ledger",
	})
)

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sato_probes_total",
		Help: "Probe executions by service and outcome.",
	}, []string{"service", "outcome"})

	ProbeLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sato_probe_latency_seconds",
		Help: "Latency of the most recent successful probe.",
	}, []string{"service"})

	ServiceState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sato_service_state",
		Help: "Current lifecycle state (0 checking, 1 operational, 2 degraded, 3 down).",
	}, []string{"service"})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sato_state_transitions_total",
		Help: "State transitions by service and destination state.",
	}, []string{"service", "to"})

	RestartAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sato_restart_attempts_total",
		Help: "Remediation attempts by service and outcome.",
	}, []string{"service", "outcome"})

	OpenAlertGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sato_alert_groups_open",
		Help: "Alert groups currently open.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sato_notifications_total",
		Help: "Notification events emitted by type.",
	}, []string{"type"})
)

// stateValue maps lifecycle states onto the gauge scale
var stateValue = map[string]float64{
	"checking":    0,
	"operational": 1,
	"degraded":    2,
	"down":        3,
}

// ObserveProbe records one probe result
func ObserveProbe(serviceID string, success bool, latency time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
		ProbeLatency.WithLabelValues(serviceID).Set(latency.Seconds())
	}
	ProbesTotal.WithLabelValues(serviceID, outcome).Inc()
}

// ObserveState updates the state gauge for a service
func ObserveState(serviceID, state string) {
	ServiceState.WithLabelValues(serviceID).Set(stateValue[state])
}

// ObserveTransition counts a state transition
func ObserveTransition(serviceID, to string) {
	TransitionsTotal.WithLabelValues(serviceID, to).Inc()
}

// ForgetService drops a removed service's series
func ForgetService(serviceID string) {
	ServiceState.DeleteLabelValues(serviceID)
	ProbeLatency.DeleteLabelValues(serviceID)
}

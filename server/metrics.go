package server

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the /metrics counters the server exposes, operational
// surface alongside the intercept protocol itself.
type metrics struct {
	callsStarted   prometheus.Counter
	callsPaused    prometheus.Counter
	callsCompleted prometheus.Counter
	callsFailed    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cideldill_calls_started_total",
			Help: "Total number of intercepted calls that reached call/start.",
		}),
		callsPaused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cideldill_calls_paused_total",
			Help: "Total number of calls paused by a breakpoint match.",
		}),
		callsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cideldill_calls_completed_total",
			Help: "Total number of calls reported as successfully completed.",
		}),
		callsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cideldill_calls_failed_total",
			Help: "Total number of calls reported as completed with an exception.",
		}),
	}
	reg.MustRegister(m.callsStarted, m.callsPaused, m.callsCompleted, m.callsFailed)
	return m
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sessionEventsTotal, sessionsLive) }

var (
	sessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_events_total",
			Help: "Session state changes by event type and mode.",
		},
		[]string{"event", "mode"},
	)

	sessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_live",
			Help: "Sessions currently held in memory.",
		},
	)
)

func IncSessionEvent(event, mode string) {
	sessionEventsTotal.WithLabelValues(norm(event), norm(mode)).Inc()
}

func SetLiveSessions(n int) {
	sessionsLive.Set(float64(n))
}

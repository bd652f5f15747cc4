package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons
const (
	dropMalformed  = "malformed"
	dropPeerGone   = "peer_gone"
	dropBufferFull = "buffer_full"
	dropClosed     = "closed"
)

// Metrics counts relay traffic. A nil Registerer yields unregistered
// collectors, which is what tests want.
type Metrics struct {
	connections prometheus.Gauge
	received    *prometheus.CounterVec
	forwarded   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_connections_active",
			Help: "Open signaling connections.",
		}),
		received: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_events_received_total",
			Help: "Events received from clients.",
		}, []string{"event"}),
		forwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_events_forwarded_total",
			Help: "Events delivered to room members.",
		}, []string{"event"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_events_dropped_total",
			Help: "Events that could not be delivered.",
		}, []string{"reason"}),
	}
}

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Frame outcomes, used as the "outcome" label.
const (
	outcomeResponse = "response"
	outcomeEvent    = "event"
	outcomeIgnored  = "ignored"
	outcomeDropped  = "dropped"
	outcomePanic    = "panic"
)

// metrics holds the dispatcher counters on a registry of its own, so several
// sessions in one process do not collide.
type metrics struct {
	reg    *prometheus.Registry
	frames *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arcor",
				Subsystem: "dispatch",
				Name:      "frames_total",
				Help:      "Inbound frames by dispatch outcome.",
			},
			[]string{"outcome"},
		),
	}
	m.reg.MustRegister(m.frames)
	for _, o := range []string{outcomeResponse, outcomeEvent, outcomeIgnored, outcomeDropped, outcomePanic} {
		m.frames.WithLabelValues(o)
	}
	return m
}

func (m *metrics) inc(outcome string) {
	m.frames.WithLabelValues(outcome).Inc()
}

func (m *metrics) count(outcome string) uint64 {
	var pb dto.Metric
	if err := m.frames.WithLabelValues(outcome).Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}

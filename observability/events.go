package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	committed   *prometheus.CounterVec
	subscribers prometheus.Gauge
	dropped     prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry for the ledger event log and its live
// subscribers.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "labledger",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Committed ledger events segmented by type.",
			}, []string{"type"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "labledger",
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Live event stream subscribers.",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "labledger",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Live deliveries skipped because a subscriber buffer was full.",
			}),
		}
		prometheus.MustRegister(eventRegistry.committed, eventRegistry.subscribers, eventRegistry.dropped)
	})
	return eventRegistry
}

func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.committed.WithLabelValues(normalized).Inc()
}

// SubscriberDelta adjusts the live subscriber gauge.
func (m *eventMetrics) SubscriberDelta(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

func (m *eventMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

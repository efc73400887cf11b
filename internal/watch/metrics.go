package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subwatch",
		Subsystem: "watcher",
		Name:      "events_total",
		Help:      "Semantic events emitted, by action and entry kind",
	}, []string{"action", "kind"})
	metricDiagnostics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subwatch",
		Subsystem: "watcher",
		Name:      "diagnostics_total",
		Help:      "Recoverable errors, by type",
	}, []string{"type"})
	metricRawEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subwatch",
		Subsystem: "watcher",
		Name:      "raw_events_total",
		Help:      "Raw kernel records decoded",
	})
	metricResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subwatch",
		Subsystem: "watcher",
		Name:      "resyncs_total",
		Help:      "Full re-walks after event queue overflow",
	})
	metricWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "subwatch",
		Subsystem: "watcher",
		Name:      "watched_directories",
		Help:      "Directories currently watched",
	})
)

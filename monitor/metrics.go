package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	seen      prometheus.Counter
	matched   prometheus.Counter
	discarded prometheus.Counter
	settled   prometheus.Counter
	failed    prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsRegistry *metrics
)

func defaultMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsRegistry = &metrics{
			seen: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "drb",
				Subsystem: "monitor",
				Name:      "events_total",
				Help:      "Total transfer events delivered by the subscription.",
			}),
			matched: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "drb",
				Subsystem: "monitor",
				Name:      "events_matched_total",
				Help:      "Transfer events whose destination is a known deposit address.",
			}),
			discarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "drb",
				Subsystem: "monitor",
				Name:      "events_discarded_total",
				Help:      "Transfer events rejected by the address cache without a store lookup.",
			}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "drb",
				Subsystem: "monitor",
				Name:      "settlements_total",
				Help:      "Settlements completed successfully.",
			}),
			failed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "drb",
				Subsystem: "monitor",
				Name:      "settlements_failed_total",
				Help:      "Settlement attempts that failed; funds remain at the custodial address.",
			}),
		}
		prometheus.MustRegister(
			metricsRegistry.seen,
			metricsRegistry.matched,
			metricsRegistry.discarded,
			metricsRegistry.settled,
			metricsRegistry.failed,
		)
	})

	return metricsRegistry
}

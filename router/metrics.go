package router

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RecomputeDuration *prometheus.HistogramVec
	RoutesPublished   *prometheus.CounterVec
	NoRoute           *prometheus.CounterVec
	SearchErrors      *prometheus.CounterVec
}

// NewMetrics creates the router collectors, labelled by pair, and registers
// them on reg. Routers sharing a registry share collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	labels := []string{"pair"}
	return &Metrics{
		RecomputeDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "liveroute",
			Subsystem: "router",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of one route recomputation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, labels)),
		RoutesPublished: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveroute",
			Subsystem: "router",
			Name:      "routes_published_total",
			Help:      "Routes delivered to the subscriber.",
		}, labels)),
		NoRoute: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveroute",
			Subsystem: "router",
			Name:      "no_route_total",
			Help:      "Recomputations that found no path.",
		}, labels)),
		SearchErrors: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveroute",
			Subsystem: "router",
			Name:      "search_errors_total",
			Help:      "Recomputations that failed.",
		}, labels)),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

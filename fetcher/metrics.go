package fetcher

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the fetcher's collectors.
type Metrics struct {
	DiscoveryDuration *prometheus.HistogramVec
	DiscoveryFailures *prometheus.CounterVec
	Merges            *prometheus.CounterVec
	RegistryPools     prometheus.Gauge
}

// NewMetrics creates the fetcher collectors and registers them on reg.
// Collectors already registered by another fetcher are shared.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DiscoveryDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "liveroute",
			Subsystem: "fetcher",
			Name:      "discovery_duration_seconds",
			Help:      "Duration of pool discovery per provider.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"})),
		DiscoveryFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveroute",
			Subsystem: "fetcher",
			Name:      "discovery_failures_total",
			Help:      "Failed discovery attempts per provider.",
		}, []string{"provider"})),
		Merges: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveroute",
			Subsystem: "fetcher",
			Name:      "merges_total",
			Help:      "Provider snapshots merged into the pool registry.",
		}, []string{"provider"})),
		RegistryPools: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "liveroute",
			Subsystem: "fetcher",
			Name:      "registry_pools",
			Help:      "Pools currently in the registry.",
		})),
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

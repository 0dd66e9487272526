package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	fetches *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	counter := func(name, help string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "widget",
			Name:      name,
			Help:      help,
		}, []string{"widget"})
		if reg == nil {
			return c
		}
		if err := reg.Register(c); err != nil {
			// several managers may share one registry
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					return existing
				}
			}
		}
		return c
	}

	return &metrics{
		hits:    counter("cache_hits_total", "Widget fetches served from the cache."),
		misses:  counter("cache_misses_total", "Widget cache lookups that found no fresh entry."),
		fetches: counter("requests_total", "Widget data requests sent to the API."),
		errors:  counter("errors_total", "Widget fetches that fell back to mock data."),
	}
}

package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// promMetrics are served on /metrics. Each server owns its registry so
// several servers can coexist in one process.
type promMetrics struct {
	registry *prometheus.Registry

	saved        *prometheus.CounterVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	invalidation prometheus.Counter
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	m := &promMetrics{
		registry: reg,
		saved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_conversations_saved_total",
				Help: "Conversations assembled and saved through the API",
			},
			[]string{"project"},
		),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_projects_cache_hits_total",
			Help: "Project listings served from cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_projects_cache_misses_total",
			Help: "Project listings read from disk",
		}),
		invalidation: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_projects_cache_invalidations_total",
			Help: "Project cache invalidations caused by log directory changes",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.saved,
		m.cacheHits,
		m.cacheMisses,
		m.invalidation,
	)
	return m
}

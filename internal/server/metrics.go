package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// breakCounter is the subset of filestate.Cache this package needs for
// the oplock break-queue depth gauge.
type breakCounter interface {
	PendingBreakCount() int
}

// Metrics exposes active sessions, per-tier buffer pool occupancy, and
// oplock break-queue depth for observability. The session and break-queue
// gauges are pull-based (GaugeFunc) and read live state at scrape time;
// the per-tier buffer gauges hold the values last passed to
// ObserveBufferPool.
type Metrics struct {
	activeSessions  prometheus.GaugeFunc
	tierOutstanding *prometheus.GaugeVec
	tierFree        *prometheus.GaugeVec
	breakQueueDepth prometheus.GaugeFunc
}

// NewMetrics builds and registers gauges against reg. sessions and
// breaks may be nil if those subsystems aren't wired into this process;
// their gauges then always report zero. If reg is nil, gauges are
// constructed but not registered (for tests).
func NewMetrics(reg prometheus.Registerer, sessions *SessionList, breaks breakCounter) *Metrics {
	m := &Metrics{}

	m.activeSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "smbd",
		Subsystem: "server",
		Name:      "active_sessions",
		Help:      "Current number of registered SrvSessions.",
	}, func() float64 {
		if sessions == nil {
			return 0
		}
		return float64(sessions.Len())
	})

	m.tierOutstanding = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "smbd",
		Subsystem: "bufpool",
		Name:      "tier_outstanding",
		Help:      "Buffers currently checked out of a size tier.",
	}, []string{"tier"})

	m.tierFree = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "smbd",
		Subsystem: "bufpool",
		Name:      "tier_free",
		Help:      "Buffers currently idle in a size tier's free list.",
	}, []string{"tier"})

	m.breakQueueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "smbd",
		Subsystem: "filestate",
		Name:      "oplock_break_queue_depth",
		Help:      "Number of file-state entries with an oplock break currently outstanding.",
	}, func() float64 {
		if breaks == nil {
			return 0
		}
		return float64(breaks.PendingBreakCount())
	})

	if reg != nil {
		for _, c := range []prometheus.Collector{m.activeSessions, m.tierOutstanding, m.tierFree, m.breakQueueDepth} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

// TierNames labels the three bufpool tiers in size order, matching
// bufpool.Pool.Stats()'s fixed [3]Stats ordering.
var TierNames = [3]string{"small", "medium", "large"}

// ObserveBufferPool updates the tier gauges from a live snapshot. Callers
// pass bufpool.Pool.Stats() results; this package doesn't import
// internal/bufpool to avoid a dependency edge from server -> bufpool
// beyond what metrics wiring needs.
func (m *Metrics) ObserveBufferPool(outstanding, free [3]int) {
	for i, name := range TierNames {
		m.tierOutstanding.WithLabelValues(name).Set(float64(outstanding[i]))
		m.tierFree.WithLabelValues(name).Set(float64(free[i]))
	}
}

package revolt

import "github.com/prometheus/client_golang/prometheus"

const (
	entityChannel = "channel"
	entityMessage = "message"
	entityUser    = "user"
)

// cacheMetrics is nil when metrics are disabled; every method tolerates a
// nil receiver.
type cacheMetrics struct {
	lookups  *prometheus.CounterVec
	entities *prometheus.GaugeVec
	events   *prometheus.CounterVec
	stream   *prometheus.CounterVec
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	m := &cacheMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revolt",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Fetch-or-create lookups by entity and result (hit or miss).",
		}, []string{"entity", "result"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "revolt",
			Subsystem: "cache",
			Name:      "entities",
			Help:      "Live entities held by the registry.",
		}, []string{"entity"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revolt",
			Subsystem: "cache",
			Name:      "events_emitted_total",
			Help:      "Cache events emitted by kind.",
		}, []string{"kind"}),
		stream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revolt",
			Subsystem: "stream",
			Name:      "packets_total",
			Help:      "Push packets received by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.lookups, m.entities, m.events, m.stream)
	return m
}

func (m *cacheMetrics) hit(entity string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(entity, "hit").Inc()
}

func (m *cacheMetrics) miss(entity string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(entity, "miss").Inc()
}

func (m *cacheMetrics) setEntities(entity string, n int) {
	if m == nil {
		return
	}
	m.entities.WithLabelValues(entity).Set(float64(n))
}

func (m *cacheMetrics) emitted(kind EventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(kind)).Inc()
}

func (m *cacheMetrics) packet(typ string) {
	if m == nil {
		return
	}
	m.stream.WithLabelValues(typ).Inc()
}

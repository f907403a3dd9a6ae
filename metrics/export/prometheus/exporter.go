package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/sessioncap"
	"github.com/MrEthical07/sessioncap/metrics/export/internaldefs"
)

// MetricsSource is satisfied by *sessioncap.Engine.
type MetricsSource interface {
	MetricsSnapshot() sessioncap.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   sessioncap.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   sessioncap.MetricID
	desc *prometheus.Desc
}

// Collector is a prometheus.Collector over a [MetricsSource].
type Collector struct {
	source       MetricsSource
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
}

// NewCollector builds a collector. It does not register itself.
func NewCollector(source MetricsSource) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, "Audit events dropped due to dispatcher backpressure.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	for _, hd := range c.histograms {
		ch <- hd.desc
	}
	ch <- c.auditDropped
}

// Collect emits nothing when the engine has metrics disabled.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(snapshot.Counters[cd.id]))
	}
	for _, hd := range c.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[hd.id]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// The engine does not track a latency sum.
		ch <- prometheus.MustNewConstHistogram(hd.desc, cumulative[len(cumulative)-1], 0, buckets)
	}
	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(dropped))
}

// Register adds a collector for source to reg.
func Register(reg prometheus.Registerer, source MetricsSource) (*Collector, error) {
	c := NewCollector(source)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler serves source's metrics from a dedicated registry, leaving the
// global default registry untouched.
func Handler(source MetricsSource) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(source))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

var _ prometheus.Collector = (*Collector)(nil)

package stats

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Source produces a fresh report on every call.
type Source interface {
	Statistics() *Values
}

// Collector publishes the reports of a set of sources as Prometheus gauges.
//
// Every entry becomes one gauge named
// <namespace>_<section>_<entry>[_megabytes], labelled with the report ID, so
// several tapes can share one collector.
type Collector struct {
	namespace string

	mu      sync.Mutex
	sources []Source
	descs   map[string]*prometheus.Desc
}

// NewCollector creates a collector for the given sources.
func NewCollector(namespace string, sources ...Source) *Collector {
	return &Collector{
		namespace: namespace,
		sources:   sources,
		descs:     make(map[string]*prometheus.Desc),
	}
}

// Add registers another source.
func (c *Collector) Add(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, src)
}

// Describe implements prometheus.Collector. Metric names depend on the
// report contents, so descriptors are derived from a collection pass.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, src := range c.sources {
		values := src.Statistics()
		for _, s := range values.Sections {
			for _, e := range s.Entries {
				ch <- prometheus.MustNewConstMetric(
					c.desc(s, e),
					prometheus.GaugeValue,
					e.Value,
					values.ID,
				)
			}
		}
	}
}

func (c *Collector) desc(s *Section, e Entry) *prometheus.Desc {
	name := prometheus.BuildFQName(c.namespace, metricName(s.Name), metricName(e.Name))
	if e.Memory {
		name += "_megabytes"
	}
	if d, ok := c.descs[name]; ok {
		return d
	}
	d := prometheus.NewDesc(name, s.Name+": "+e.Name, []string{"tape"}, nil)
	c.descs[name] = d
	return d
}

// metricName lowercases s and replaces every run of non-alphanumeric
// characters with a single underscore.
func metricName(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

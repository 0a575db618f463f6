// Package prometheus exposes the metric registry to Prometheus scrapes.
//
// Names are converted to the Prometheus charset by replacing every illegal
// character with an underscore. Counters and gauges become gauges, meters
// become a counter plus rate gauges, and histograms and timers become
// summaries with the p50 to p999 quantiles. Timer summaries are in seconds.
package prometheus

import (
	"net/http"
	"strings"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/export"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector is a prometheus.Collector reading the registry on every scrape.
type Collector struct {
	source    export.Source
	namespace string
	labels    prom.Labels
	logger    logrus.FieldLogger
}

var _ prom.Collector = (*Collector)(nil)

// Option configures a Collector.
type Option func(*Collector)

// WithNamespace prefixes every exported name.
func WithNamespace(namespace string) Option {
	return func(c *Collector) { c.namespace = metricName(namespace) }
}

// WithConstLabels attaches labels to every exported series.
func WithConstLabels(labels map[string]string) Option {
	return func(c *Collector) { c.labels = labels }
}

// WithLogger sets the logger used to report dropped series.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger.WithField("component", "prometheus")
		}
	}
}

// NewCollector creates a collector over source.
func NewCollector(source export.Source, opts ...Option) *Collector {
	c := &Collector{
		source: source,
		logger: logrus.StandardLogger().WithField("component", "prometheus"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Describe sends nothing, making this an unchecked collector. The set of
// series changes as metrics are registered and removed.
func (c *Collector) Describe(chan<- *prom.Desc) {}

// Collect converts every registered metric.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	seen := make(map[string]string)
	for _, e := range c.source.Metrics(registry.All) {
		name := metricName(e.Name)
		if c.namespace != "" {
			name = c.namespace + "_" + name
		}
		if other, dup := seen[name]; dup {
			c.logger.WithFields(logrus.Fields{
				"metric":    e.Name,
				"collision": other,
			}).Warn("Skipping metric whose Prometheus name collides")
			continue
		}
		seen[name] = e.Name
		c.collect(ch, name, e.Name, e.Metric)
	}
}

func (c *Collector) collect(ch chan<- prom.Metric, name, original string, m metrics.Metric) {
	help := "Metric " + original
	switch m.Kind() {
	case metrics.KindCounter:
		if counter, ok := m.(metrics.Counter); ok {
			c.send(ch, c.desc(name, help), prom.GaugeValue, float64(counter.Count()))
		}
	case metrics.KindGauge:
		if g, ok := m.(metrics.Gauge); ok {
			if v, ok := metrics.Numeric(g.Value()); ok {
				c.send(ch, c.desc(name, help), prom.GaugeValue, v)
			}
		}
	case metrics.KindHistogram:
		if h, ok := m.(metrics.Histogram); ok {
			c.summary(ch, c.desc(name, help), h.Snapshot(), 1)
		}
	case metrics.KindMeter:
		if mt, ok := m.(metrics.Meter); ok {
			r := mt.Rates()
			c.send(ch, c.desc(name+"_total", help), prom.CounterValue, float64(r.Count))
			c.rates(ch, name, help, r)
		}
	case metrics.KindTimer:
		if t, ok := m.(metrics.Timer); ok {
			c.summary(ch, c.desc(name+"_seconds", help), t.Snapshot(), float64(time.Second))
			c.rates(ch, name, help, t.Rates())
		}
	}
}

func (c *Collector) desc(name, help string) *prom.Desc {
	return prom.NewDesc(name, help, nil, c.labels)
}

func (c *Collector) send(ch chan<- prom.Metric, desc *prom.Desc, valueType prom.ValueType, v float64) {
	m, err := prom.NewConstMetric(desc, valueType, v)
	if err != nil {
		c.logger.WithError(err).WithField("desc", desc.String()).Warn("Dropping invalid series")
		ch <- prom.NewInvalidMetric(desc, err)
		return
	}
	ch <- m
}

func (c *Collector) rates(ch chan<- prom.Metric, name, help string, r metrics.Rates) {
	c.send(ch, c.desc(name+"_m1_rate", help), prom.GaugeValue, r.M1)
	c.send(ch, c.desc(name+"_m5_rate", help), prom.GaugeValue, r.M5)
	c.send(ch, c.desc(name+"_m15_rate", help), prom.GaugeValue, r.M15)
	c.send(ch, c.desc(name+"_mean_rate", help), prom.GaugeValue, r.Mean)
}

func (c *Collector) summary(ch chan<- prom.Metric, desc *prom.Desc, d metrics.Distribution, scale float64) {
	quantiles := map[float64]float64{
		0.5:   d.P50 / scale,
		0.75:  d.P75 / scale,
		0.95:  d.P95 / scale,
		0.98:  d.P98 / scale,
		0.99:  d.P99 / scale,
		0.999: d.P999 / scale,
	}
	sum := d.Mean * float64(d.Count) / scale
	m, err := prom.NewConstSummary(desc, uint64(max(d.Count, 0)), sum, quantiles)
	if err != nil {
		c.logger.WithError(err).WithField("desc", desc.String()).Warn("Dropping invalid summary")
		ch <- prom.NewInvalidMetric(desc, err)
		return
	}
	ch <- m
}

// NewRegistry returns a Prometheus registry holding c and, when runtime is
// set, the Go runtime and process collectors.
func NewRegistry(c *Collector, runtime bool) (*prom.Registry, error) {
	reg := prom.NewRegistry()
	cs := []prom.Collector{c}
	if runtime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, col := range cs {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves the gatherer in the text or OpenMetrics exposition format.
func Handler(g prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// metricName maps a canonical name onto [a-zA-Z_:][a-zA-Z0-9_:]*.
func metricName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_', ch == ':':
			b.WriteByte(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteByte(ch)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Package export turns registered metrics into flat datapoints for reporters
// and pull surfaces.
//
// Every metric expands into one point per statistic. Counters yield count,
// gauges yield value when numeric, histograms and timers yield count max mean
// min stddev p50 p75 p95 p98 p99 p999, and meters yield count m1_rate m5_rate
// m15_rate mean_rate. Timers carry both groups with durations in
// milliseconds.
package export

import (
	"math"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
)

// Source enumerates registered metrics. *registry.Registry satisfies it.
type Source interface {
	Metrics(filter registry.Filter) []registry.Entry
}

// Point is a single statistic of a named metric.
type Point struct {
	Name  string
	Stat  string
	Value float64
}

// Path returns the dotted name of the point.
func (p Point) Path() string {
	return p.Name + "." + p.Stat
}

// Statistic names.
const (
	StatCount    = "count"
	StatValue    = "value"
	StatMax      = "max"
	StatMean     = "mean"
	StatMin      = "min"
	StatStdDev   = "stddev"
	StatP50      = "p50"
	StatP75      = "p75"
	StatP95      = "p95"
	StatP98      = "p98"
	StatP99      = "p99"
	StatP999     = "p999"
	StatM1Rate   = "m1_rate"
	StatM5Rate   = "m5_rate"
	StatM15Rate  = "m15_rate"
	StatMeanRate = "mean_rate"
)

var nanosPerMilli = float64(time.Millisecond)

// Expand returns the datapoints of m under name. Non-numeric gauges and
// unknown metric types yield nothing.
func Expand(name string, m metrics.Metric) []Point {
	if m == nil {
		return nil
	}
	switch m.Kind() {
	case metrics.KindCounter:
		if c, ok := m.(metrics.Counter); ok {
			return []Point{{name, StatCount, float64(c.Count())}}
		}
	case metrics.KindGauge:
		if g, ok := m.(metrics.Gauge); ok {
			if v, ok := metrics.Numeric(g.Value()); ok {
				return []Point{{name, StatValue, v}}
			}
		}
	case metrics.KindHistogram:
		if h, ok := m.(metrics.Histogram); ok {
			return distribution(name, h.Snapshot(), 1, nil)
		}
	case metrics.KindMeter:
		if mt, ok := m.(metrics.Meter); ok {
			return rates(name, mt.Rates(), true, nil)
		}
	case metrics.KindTimer:
		if t, ok := m.(metrics.Timer); ok {
			points := distribution(name, t.Snapshot(), nanosPerMilli, nil)
			return rates(name, t.Rates(), false, points)
		}
	}
	return nil
}

// ExpandAll expands every entry in order.
func ExpandAll(entries []registry.Entry) []Point {
	var points []Point
	for _, e := range entries {
		points = append(points, Expand(e.Name, e.Metric)...)
	}
	return points
}

// Values groups the points of every entry by metric name and statistic.
// NaN and infinite values are left out.
func Values(entries []registry.Entry) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(entries))
	for _, p := range ExpandAll(entries) {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		stats, ok := out[p.Name]
		if !ok {
			stats = make(map[string]float64)
			out[p.Name] = stats
		}
		stats[p.Stat] = p.Value
	}
	return out
}

func distribution(name string, d metrics.Distribution, scale float64, points []Point) []Point {
	return append(points,
		Point{name, StatCount, float64(d.Count)},
		Point{name, StatMax, float64(d.Max) / scale},
		Point{name, StatMean, d.Mean / scale},
		Point{name, StatMin, float64(d.Min) / scale},
		Point{name, StatStdDev, d.StdDev / scale},
		Point{name, StatP50, d.P50 / scale},
		Point{name, StatP75, d.P75 / scale},
		Point{name, StatP95, d.P95 / scale},
		Point{name, StatP98, d.P98 / scale},
		Point{name, StatP99, d.P99 / scale},
		Point{name, StatP999, d.P999 / scale},
	)
}

func rates(name string, r metrics.Rates, withCount bool, points []Point) []Point {
	if withCount {
		points = append(points, Point{name, StatCount, float64(r.Count)})
	}
	return append(points,
		Point{name, StatM1Rate, r.M1},
		Point{name, StatM5Rate, r.M5},
		Point{name, StatM15Rate, r.M15},
		Point{name, StatMeanRate, r.Mean},
	)
}

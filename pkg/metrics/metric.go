package metrics

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Reservoir parameters for histograms, biased towards the last five minutes.
const (
	reservoirSize  = 1028
	reservoirAlpha = 0.015
)

// Quantiles reported by every Distribution.
var Quantiles = []float64{0.5, 0.75, 0.95, 0.98, 0.99, 0.999}

// Metric is anything that can be bound in a registry.
type Metric interface {
	Kind() Kind
}

// Counter is an integer accumulator that can move in both directions.
type Counter interface {
	Metric
	Count() int64
	Inc(n int64) error
	Dec(n int64) error
}

// Histogram tracks the distribution of observed values.
type Histogram interface {
	Metric
	Count() int64
	Update(v int64) error
	Snapshot() Distribution
}

// Meter tracks the rate of events.
type Meter interface {
	Metric
	Count() int64
	Mark(n int64) error
	Rates() Rates
}

// Timer combines a histogram of durations with a meter of invocations.
type Timer interface {
	Metric
	Count() int64
	Update(d time.Duration) error
	// Time runs fn and records its duration, including when fn panics.
	Time(fn func()) error
	Snapshot() Distribution
	Rates() Rates
}

// Distribution is a statistical snapshot of a histogram or timer. Timer values
// are nanoseconds.
type Distribution struct {
	Count  int64   `json:"count"`
	Min    int64   `json:"min"`
	Max    int64   `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	P98    float64 `json:"p98"`
	P99    float64 `json:"p99"`
	P999   float64 `json:"p999"`
}

// Rates is a snapshot of a meter or timer's throughput in events per second.
type Rates struct {
	Count int64   `json:"count"`
	M1    float64 `json:"m1_rate"`
	M5    float64 `json:"m5_rate"`
	M15   float64 `json:"m15_rate"`
	Mean  float64 `json:"mean_rate"`
}

type sampled interface {
	Count() int64
	Max() int64
	Min() int64
	Mean() float64
	StdDev() float64
	Percentiles([]float64) []float64
}

func distributionOf(s sampled) Distribution {
	ps := s.Percentiles(Quantiles)
	return Distribution{
		Count:  s.Count(),
		Min:    s.Min(),
		Max:    s.Max(),
		Mean:   s.Mean(),
		StdDev: s.StdDev(),
		P50:    ps[0],
		P75:    ps[1],
		P95:    ps[2],
		P98:    ps[3],
		P99:    ps[4],
		P999:   ps[5],
	}
}

type counter struct {
	c gometrics.Counter
}

// NewCounter returns a new, unregistered counter.
func NewCounter() Counter {
	return &counter{c: gometrics.NewCounter()}
}

func (c *counter) Kind() Kind   { return KindCounter }
func (c *counter) Count() int64 { return c.c.Count() }

func (c *counter) Inc(n int64) error {
	c.c.Inc(n)
	return nil
}

func (c *counter) Dec(n int64) error {
	c.c.Dec(n)
	return nil
}

type histogram struct {
	h gometrics.Histogram
}

// NewHistogram returns a new, unregistered histogram backed by an exponentially
// decaying reservoir.
func NewHistogram() Histogram {
	return &histogram{h: gometrics.NewHistogram(gometrics.NewExpDecaySample(reservoirSize, reservoirAlpha))}
}

func (h *histogram) Kind() Kind   { return KindHistogram }
func (h *histogram) Count() int64 { return h.h.Count() }

func (h *histogram) Update(v int64) error {
	h.h.Update(v)
	return nil
}

func (h *histogram) Snapshot() Distribution {
	return distributionOf(h.h.Snapshot())
}

type meter struct {
	r *rateTracker
}

// NewMeter returns a new, unregistered meter.
func NewMeter() Meter {
	return &meter{r: newRateTracker(time.Now)}
}

func (m *meter) Kind() Kind   { return KindMeter }
func (m *meter) Count() int64 { return m.r.Count() }

func (m *meter) Mark(n int64) error {
	m.r.mark(n)
	return nil
}

func (m *meter) Rates() Rates { return m.r.rates() }

type timer struct {
	h gometrics.Histogram
	r *rateTracker
}

// NewTimer returns a new, unregistered timer.
func NewTimer() Timer {
	return &timer{
		h: gometrics.NewHistogram(gometrics.NewExpDecaySample(reservoirSize, reservoirAlpha)),
		r: newRateTracker(time.Now),
	}
}

func (t *timer) Kind() Kind   { return KindTimer }
func (t *timer) Count() int64 { return t.h.Count() }

func (t *timer) Update(d time.Duration) error {
	t.h.Update(int64(d))
	t.r.mark(1)
	return nil
}

func (t *timer) Time(fn func()) (err error) {
	start := time.Now()
	defer func() {
		err = t.Update(time.Since(start))
	}()
	fn()
	return nil
}

func (t *timer) Snapshot() Distribution {
	return distributionOf(t.h.Snapshot())
}

func (t *timer) Rates() Rates {
	rates := t.r.rates()
	rates.Count = t.h.Count()
	return rates
}

// New returns a fresh, unregistered metric of the given leaf kind, or nil for
// gauges and sets which have no default value source.
func New(kind Kind) Metric {
	switch kind {
	case KindCounter:
		return NewCounter()
	case KindHistogram:
		return NewHistogram()
	case KindMeter:
		return NewMeter()
	case KindTimer:
		return NewTimer()
	default:
		return nil
	}
}

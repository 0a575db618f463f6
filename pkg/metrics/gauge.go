package metrics

import (
	"math"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Gauge is a pull-based reading. Value returns nil when the reading is
// unavailable.
type Gauge interface {
	Metric
	Value() any
}

type funcGauge[T any] struct {
	fn func() T
}

// NewGauge returns a gauge that calls fn on every read. A panicking fn is
// logged and reported as unavailable.
func NewGauge[T any](fn func() T) Gauge {
	return &funcGauge[T]{fn: fn}
}

func (g *funcGauge[T]) Kind() Kind { return KindGauge }

func (g *funcGauge[T]) Value() (v any) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("Gauge value computation failed")
			v = nil
		}
	}()
	return g.fn()
}

// SettableGauge holds the last value passed to Update.
type SettableGauge struct {
	bits atomic.Uint64
}

// NewSettableGauge returns a gauge holding zero.
func NewSettableGauge() *SettableGauge {
	return &SettableGauge{}
}

func (g *SettableGauge) Kind() Kind { return KindGauge }

// Update replaces the held value.
func (g *SettableGauge) Update(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Float returns the held value.
func (g *SettableGauge) Float() float64 {
	return math.Float64frombits(g.bits.Load())
}

func (g *SettableGauge) Value() any {
	return g.Float()
}

// Numeric converts a gauge reading into a float64. ok is false for nil and
// non-numeric readings.
func Numeric(v any) (f float64, ok bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

package metrics

import (
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
)

// The forwarding wrappers expose another metric's readings. A wrapper built by
// the NewForwarding* constructors is read-only: every mutation returns
// ErrUnsupportedOperation. Writable returns a copy that forwards mutations.
//
// The delegate is resolved through a provider on every call, so a wrapper can
// follow a metric that is swapped over time. A provider returning nil reads as
// zero.

// ForwardingCounter forwards to a Counter.
type ForwardingCounter struct {
	delegate func() Counter
	writable bool
}

// NewForwardingCounter returns a read-only view of c.
func NewForwardingCounter(c Counter) *ForwardingCounter {
	return NewForwardingCounterFunc(func() Counter { return c })
}

// NewForwardingCounterFunc returns a read-only view of whatever provider returns.
func NewForwardingCounterFunc(provider func() Counter) *ForwardingCounter {
	return &ForwardingCounter{delegate: provider}
}

// Writable returns a copy of f that forwards mutations.
func (f *ForwardingCounter) Writable() *ForwardingCounter {
	return &ForwardingCounter{delegate: f.delegate, writable: true}
}

func (f *ForwardingCounter) Kind() Kind { return KindCounter }

func (f *ForwardingCounter) Count() int64 {
	if c := f.delegate(); c != nil {
		return c.Count()
	}
	return 0
}

func (f *ForwardingCounter) Inc(n int64) error {
	if !f.writable {
		return errors.UnsupportedOperation("Counter.Inc")
	}
	if c := f.delegate(); c != nil {
		return c.Inc(n)
	}
	return nil
}

func (f *ForwardingCounter) Dec(n int64) error {
	if !f.writable {
		return errors.UnsupportedOperation("Counter.Dec")
	}
	if c := f.delegate(); c != nil {
		return c.Dec(n)
	}
	return nil
}

// ForwardingHistogram forwards to a Histogram.
type ForwardingHistogram struct {
	delegate func() Histogram
	writable bool
}

// NewForwardingHistogram returns a read-only view of h.
func NewForwardingHistogram(h Histogram) *ForwardingHistogram {
	return NewForwardingHistogramFunc(func() Histogram { return h })
}

// NewForwardingHistogramFunc returns a read-only view of whatever provider returns.
func NewForwardingHistogramFunc(provider func() Histogram) *ForwardingHistogram {
	return &ForwardingHistogram{delegate: provider}
}

// Writable returns a copy of f that forwards mutations.
func (f *ForwardingHistogram) Writable() *ForwardingHistogram {
	return &ForwardingHistogram{delegate: f.delegate, writable: true}
}

func (f *ForwardingHistogram) Kind() Kind { return KindHistogram }

func (f *ForwardingHistogram) Count() int64 {
	if h := f.delegate(); h != nil {
		return h.Count()
	}
	return 0
}

func (f *ForwardingHistogram) Update(v int64) error {
	if !f.writable {
		return errors.UnsupportedOperation("Histogram.Update")
	}
	if h := f.delegate(); h != nil {
		return h.Update(v)
	}
	return nil
}

func (f *ForwardingHistogram) Snapshot() Distribution {
	if h := f.delegate(); h != nil {
		return h.Snapshot()
	}
	return Distribution{}
}

// ForwardingMeter forwards to a Meter.
type ForwardingMeter struct {
	delegate func() Meter
	writable bool
}

// NewForwardingMeter returns a read-only view of m.
func NewForwardingMeter(m Meter) *ForwardingMeter {
	return NewForwardingMeterFunc(func() Meter { return m })
}

// NewForwardingMeterFunc returns a read-only view of whatever provider returns.
func NewForwardingMeterFunc(provider func() Meter) *ForwardingMeter {
	return &ForwardingMeter{delegate: provider}
}

// Writable returns a copy of f that forwards mutations.
func (f *ForwardingMeter) Writable() *ForwardingMeter {
	return &ForwardingMeter{delegate: f.delegate, writable: true}
}

func (f *ForwardingMeter) Kind() Kind { return KindMeter }

func (f *ForwardingMeter) Count() int64 {
	if m := f.delegate(); m != nil {
		return m.Count()
	}
	return 0
}

func (f *ForwardingMeter) Mark(n int64) error {
	if !f.writable {
		return errors.UnsupportedOperation("Meter.Mark")
	}
	if m := f.delegate(); m != nil {
		return m.Mark(n)
	}
	return nil
}

func (f *ForwardingMeter) Rates() Rates {
	if m := f.delegate(); m != nil {
		return m.Rates()
	}
	return Rates{}
}

// ForwardingTimer forwards to a Timer.
type ForwardingTimer struct {
	delegate func() Timer
	writable bool
}

// NewForwardingTimer returns a read-only view of t.
func NewForwardingTimer(t Timer) *ForwardingTimer {
	return NewForwardingTimerFunc(func() Timer { return t })
}

// NewForwardingTimerFunc returns a read-only view of whatever provider returns.
func NewForwardingTimerFunc(provider func() Timer) *ForwardingTimer {
	return &ForwardingTimer{delegate: provider}
}

// Writable returns a copy of f that forwards mutations.
func (f *ForwardingTimer) Writable() *ForwardingTimer {
	return &ForwardingTimer{delegate: f.delegate, writable: true}
}

func (f *ForwardingTimer) Kind() Kind { return KindTimer }

func (f *ForwardingTimer) Count() int64 {
	if t := f.delegate(); t != nil {
		return t.Count()
	}
	return 0
}

func (f *ForwardingTimer) Update(d time.Duration) error {
	if !f.writable {
		return errors.UnsupportedOperation("Timer.Update")
	}
	if t := f.delegate(); t != nil {
		return t.Update(d)
	}
	return nil
}

// Time on a read-only timer still runs fn, then reports the rejected mutation.
func (f *ForwardingTimer) Time(fn func()) error {
	if !f.writable {
		fn()
		return errors.UnsupportedOperation("Timer.Time")
	}
	if t := f.delegate(); t != nil {
		return t.Time(fn)
	}
	fn()
	return nil
}

func (f *ForwardingTimer) Snapshot() Distribution {
	if t := f.delegate(); t != nil {
		return t.Snapshot()
	}
	return Distribution{}
}

func (f *ForwardingTimer) Rates() Rates {
	if t := f.delegate(); t != nil {
		return t.Rates()
	}
	return Rates{}
}

package metrics

import (
	stderrors "errors"
	"time"
)

// The composite wrappers apply every mutation to a main metric and then to a
// supplementary metric resolved through a provider on each call. Reads come
// from the main metric only. A nil supplementary target is skipped.

// CompositeCounter fans counter mutations out to two counters.
type CompositeCounter struct {
	main          Counter
	supplementary func() Counter
}

// NewCompositeCounter returns a counter writing to main and supplementary().
func NewCompositeCounter(main Counter, supplementary func() Counter) *CompositeCounter {
	return &CompositeCounter{main: main, supplementary: supplementary}
}

func (c *CompositeCounter) Kind() Kind   { return KindCounter }
func (c *CompositeCounter) Count() int64 { return c.main.Count() }

func (c *CompositeCounter) Inc(n int64) error {
	err := c.main.Inc(n)
	if s := resolve(c.supplementary); s != nil {
		err = stderrors.Join(err, s.Inc(n))
	}
	return err
}

func (c *CompositeCounter) Dec(n int64) error {
	err := c.main.Dec(n)
	if s := resolve(c.supplementary); s != nil {
		err = stderrors.Join(err, s.Dec(n))
	}
	return err
}

// CompositeHistogram fans histogram updates out to two histograms.
type CompositeHistogram struct {
	main          Histogram
	supplementary func() Histogram
}

// NewCompositeHistogram returns a histogram writing to main and supplementary().
func NewCompositeHistogram(main Histogram, supplementary func() Histogram) *CompositeHistogram {
	return &CompositeHistogram{main: main, supplementary: supplementary}
}

func (c *CompositeHistogram) Kind() Kind             { return KindHistogram }
func (c *CompositeHistogram) Count() int64           { return c.main.Count() }
func (c *CompositeHistogram) Snapshot() Distribution { return c.main.Snapshot() }

func (c *CompositeHistogram) Update(v int64) error {
	err := c.main.Update(v)
	if s := resolve(c.supplementary); s != nil {
		err = stderrors.Join(err, s.Update(v))
	}
	return err
}

// CompositeMeter fans marks out to two meters.
type CompositeMeter struct {
	main          Meter
	supplementary func() Meter
}

// NewCompositeMeter returns a meter writing to main and supplementary().
func NewCompositeMeter(main Meter, supplementary func() Meter) *CompositeMeter {
	return &CompositeMeter{main: main, supplementary: supplementary}
}

func (c *CompositeMeter) Kind() Kind   { return KindMeter }
func (c *CompositeMeter) Count() int64 { return c.main.Count() }
func (c *CompositeMeter) Rates() Rates { return c.main.Rates() }

func (c *CompositeMeter) Mark(n int64) error {
	err := c.main.Mark(n)
	if s := resolve(c.supplementary); s != nil {
		err = stderrors.Join(err, s.Mark(n))
	}
	return err
}

// CompositeTimer fans durations out to two timers.
type CompositeTimer struct {
	main          Timer
	supplementary func() Timer
}

// NewCompositeTimer returns a timer writing to main and supplementary().
func NewCompositeTimer(main Timer, supplementary func() Timer) *CompositeTimer {
	return &CompositeTimer{main: main, supplementary: supplementary}
}

func (c *CompositeTimer) Kind() Kind             { return KindTimer }
func (c *CompositeTimer) Count() int64           { return c.main.Count() }
func (c *CompositeTimer) Snapshot() Distribution { return c.main.Snapshot() }
func (c *CompositeTimer) Rates() Rates           { return c.main.Rates() }

func (c *CompositeTimer) Update(d time.Duration) error {
	err := c.main.Update(d)
	if s := resolve(c.supplementary); s != nil {
		err = stderrors.Join(err, s.Update(d))
	}
	return err
}

// Time measures fn once and records the same duration on both timers.
func (c *CompositeTimer) Time(fn func()) (err error) {
	start := time.Now()
	defer func() {
		err = c.Update(time.Since(start))
	}()
	fn()
	return nil
}

func resolve[M any](provider func() M) (m M) {
	if provider == nil {
		return m
	}
	return provider()
}

package metrics

import (
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// tickInterval matches the decay interval go-metrics' EWMAs are tuned for.
const tickInterval = 5 * time.Second

// maxCatchUpTicks bounds the work done after a long idle period. Past it the
// moving averages have decayed to effectively zero.
const maxCatchUpTicks = 2048

// rateTracker keeps the one, five and fifteen minute moving averages of a
// meter. It ticks lazily on access instead of joining go-metrics' global
// ticker, so an unreferenced tracker is garbage collected like any value.
type rateTracker struct {
	mu       sync.Mutex
	now      func() time.Time
	count    int64
	start    time.Time
	lastTick time.Time
	m1       gometrics.EWMA
	m5       gometrics.EWMA
	m15      gometrics.EWMA
}

func newRateTracker(now func() time.Time) *rateTracker {
	t := now()
	return &rateTracker{
		now:      now,
		start:    t,
		lastTick: t,
		m1:       gometrics.NewEWMA1(),
		m5:       gometrics.NewEWMA5(),
		m15:      gometrics.NewEWMA15(),
	}
}

// tickLocked applies every tick interval elapsed since the last one.
func (r *rateTracker) tickLocked() {
	elapsed := r.now().Sub(r.lastTick)
	if elapsed < tickInterval {
		return
	}
	n := int64(elapsed / tickInterval)
	r.lastTick = r.lastTick.Add(time.Duration(n) * tickInterval)
	if n > maxCatchUpTicks {
		n = maxCatchUpTicks
	}
	for i := int64(0); i < n; i++ {
		r.m1.Tick()
		r.m5.Tick()
		r.m15.Tick()
	}
}

func (r *rateTracker) mark(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickLocked()
	r.count += n
	r.m1.Update(n)
	r.m5.Update(n)
	r.m15.Update(n)
}

func (r *rateTracker) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *rateTracker) rates() Rates {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tickLocked()
	rates := Rates{
		Count: r.count,
		M1:    r.m1.Rate(),
		M5:    r.m5.Rate(),
		M15:   r.m15.Rate(),
	}
	if secs := r.now().Sub(r.start).Seconds(); secs > 0 {
		rates.Mean = float64(r.count) / secs
	}
	return rates
}

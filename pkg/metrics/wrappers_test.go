package metrics

import (
	"testing"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardingIsReadOnly(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	require.NoError(t, c.Inc(4))
	h := NewHistogram()
	require.NoError(t, h.Update(10))
	m := NewMeter()
	require.NoError(t, m.Mark(2))
	tm := NewTimer()
	require.NoError(t, tm.Update(time.Second))

	fc := NewForwardingCounter(c)
	fh := NewForwardingHistogram(h)
	fm := NewForwardingMeter(m)
	ft := NewForwardingTimer(tm)

	assert.Equal(t, int64(4), fc.Count())
	assert.Equal(t, int64(1), fh.Count())
	assert.Equal(t, int64(10), fh.Snapshot().Max)
	assert.Equal(t, int64(2), fm.Rates().Count)
	assert.Equal(t, int64(1), ft.Count())

	assert.ErrorIs(t, fc.Inc(1), errors.ErrUnsupportedOperation)
	assert.ErrorIs(t, fc.Dec(1), errors.ErrUnsupportedOperation)
	assert.ErrorIs(t, fh.Update(1), errors.ErrUnsupportedOperation)
	assert.ErrorIs(t, fm.Mark(1), errors.ErrUnsupportedOperation)
	assert.ErrorIs(t, ft.Update(time.Millisecond), errors.ErrUnsupportedOperation)

	ran := false
	assert.ErrorIs(t, ft.Time(func() { ran = true }), errors.ErrUnsupportedOperation)
	assert.True(t, ran)

	// Nothing leaked through to the delegates.
	assert.Equal(t, int64(4), c.Count())
	assert.Equal(t, int64(1), h.Count())
	assert.Equal(t, int64(2), m.Count())
	assert.Equal(t, int64(1), tm.Count())
}

func TestForwardingWritable(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	fc := NewForwardingCounter(c).Writable()
	require.NoError(t, fc.Inc(3))
	require.NoError(t, fc.Dec(1))
	assert.Equal(t, int64(2), c.Count())

	tm := NewTimer()
	ft := NewForwardingTimer(tm).Writable()
	require.NoError(t, ft.Time(func() {}))
	assert.Equal(t, int64(1), tm.Count())
}

func TestForwardingFollowsProvider(t *testing.T) {
	t.Parallel()

	first, second := NewMeter(), NewMeter()
	require.NoError(t, first.Mark(1))
	require.NoError(t, second.Mark(5))

	current := first
	fm := NewForwardingMeterFunc(func() Meter { return current })
	assert.Equal(t, int64(1), fm.Count())

	current = second
	assert.Equal(t, int64(5), fm.Count())

	current = nil
	assert.Equal(t, int64(0), fm.Count())
	assert.Equal(t, Rates{}, fm.Rates())
}

func TestCompositeCounterFanOut(t *testing.T) {
	t.Parallel()

	c1, c2 := NewCounter(), NewCounter()
	cc := NewCompositeCounter(c1, func() Counter { return c2 })

	require.NoError(t, cc.Inc(5))
	assert.Equal(t, int64(5), c1.Count())
	assert.Equal(t, int64(5), c2.Count())

	require.NoError(t, c2.Inc(100))
	assert.Equal(t, int64(5), cc.Count(), "reads come from main only")

	require.NoError(t, cc.Dec(2))
	assert.Equal(t, int64(3), c1.Count())
	assert.Equal(t, int64(103), c2.Count())
}

func TestCompositeResolvesSupplementaryEachCall(t *testing.T) {
	t.Parallel()

	main := NewMeter()
	periods := []Meter{NewMeter(), NewMeter()}
	i := 0
	cm := NewCompositeMeter(main, func() Meter { return periods[i] })

	require.NoError(t, cm.Mark(1))
	i = 1
	require.NoError(t, cm.Mark(2))

	assert.Equal(t, int64(3), main.Count())
	assert.Equal(t, int64(1), periods[0].Count())
	assert.Equal(t, int64(2), periods[1].Count())
}

func TestCompositeSkipsNilSupplementary(t *testing.T) {
	t.Parallel()

	main := NewHistogram()
	ch := NewCompositeHistogram(main, func() Histogram { return nil })
	require.NoError(t, ch.Update(7))
	assert.Equal(t, int64(1), ch.Count())

	cc := NewCompositeCounter(NewCounter(), nil)
	require.NoError(t, cc.Inc(1))
	assert.Equal(t, int64(1), cc.Count())
}

func TestCompositeReportsSupplementaryError(t *testing.T) {
	t.Parallel()

	main := NewCounter()
	readOnly := NewForwardingCounter(NewCounter())
	cc := NewCompositeCounter(main, func() Counter { return readOnly })

	err := cc.Inc(1)
	assert.ErrorIs(t, err, errors.ErrUnsupportedOperation)
	assert.Equal(t, int64(1), main.Count())
}

func TestCompositeTimerMeasuresOnce(t *testing.T) {
	t.Parallel()

	main, supp := NewTimer(), NewTimer()
	ct := NewCompositeTimer(main, func() Timer { return supp })

	calls := 0
	require.NoError(t, ct.Time(func() {
		calls++
		time.Sleep(2 * time.Millisecond)
	}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), main.Count())
	assert.Equal(t, int64(1), supp.Count())
	assert.Equal(t, main.Snapshot().Max, supp.Snapshot().Max)
}

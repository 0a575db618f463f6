package export

import (
	"math"
	"testing"
	"time"

	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stats(points []Point) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.Stat)
	}
	return out
}

func value(t *testing.T, points []Point, stat string) float64 {
	t.Helper()
	for _, p := range points {
		if p.Stat == stat {
			return p.Value
		}
	}
	t.Fatalf("no %s point", stat)
	return 0
}

func TestExpandCounter(t *testing.T) {
	c := metrics.NewCounter()
	require.NoError(t, c.Inc(3))

	points := Expand("Worker.jobsCounter", c)
	require.Len(t, points, 1)
	assert.Equal(t, Point{"Worker.jobsCounter", StatCount, 3}, points[0])
	assert.Equal(t, "Worker.jobsCounter.count", points[0].Path())
}

func TestExpandGauge(t *testing.T) {
	assert.Equal(t, []Point{{"g", StatValue, 7}}, Expand("g", metrics.NewGauge(func() int { return 7 })))
	assert.Empty(t, Expand("s", metrics.NewGauge(func() string { return "up" })))
}

func TestExpandHistogram(t *testing.T) {
	h := metrics.NewHistogram()
	for i := int64(1); i <= 100; i++ {
		require.NoError(t, h.Update(i))
	}

	points := Expand("h", h)
	assert.Equal(t, []string{"count", "max", "mean", "min", "stddev", "p50", "p75", "p95", "p98", "p99", "p999"}, stats(points))
	assert.Equal(t, 100.0, value(t, points, StatCount))
	assert.Equal(t, 100.0, value(t, points, StatMax))
	assert.Equal(t, 1.0, value(t, points, StatMin))
}

func TestExpandMeter(t *testing.T) {
	m := metrics.NewMeter()
	require.NoError(t, m.Mark(2))

	points := Expand("m", m)
	assert.Equal(t, []string{"count", "m1_rate", "m5_rate", "m15_rate", "mean_rate"}, stats(points))
	assert.Equal(t, 2.0, value(t, points, StatCount))
}

func TestExpandTimerInMilliseconds(t *testing.T) {
	tm := metrics.NewTimer()
	require.NoError(t, tm.Update(250*time.Millisecond))

	points := Expand("t", tm)
	assert.Equal(t, []string{
		"count", "max", "mean", "min", "stddev", "p50", "p75", "p95", "p98", "p99", "p999",
		"m1_rate", "m5_rate", "m15_rate", "mean_rate",
	}, stats(points))
	assert.Equal(t, 250.0, value(t, points, StatMax))
	assert.Equal(t, 1.0, value(t, points, StatCount))
}

func TestExpandThroughWrappers(t *testing.T) {
	c := metrics.NewCounter()
	require.NoError(t, c.Inc(5))

	points := Expand("ro", metrics.NewForwardingCounter(c))
	assert.Equal(t, []Point{{"ro", StatCount, 5}}, points)
	assert.Nil(t, Expand("nil", nil))
}

func TestValues(t *testing.T) {
	reg := registry.New()
	c := metrics.NewCounter()
	require.NoError(t, c.Inc(1))
	require.NoError(t, reg.RegisterOnce("a", c))
	require.NoError(t, reg.RegisterOnce("b", metrics.NewGauge(func() float64 { return 1.5 })))
	require.NoError(t, reg.RegisterOnce("c", metrics.NewGauge(func() float64 { return math.NaN() })))

	values := Values(reg.Metrics(registry.All))
	assert.Equal(t, map[string]map[string]float64{
		"a": {"count": 1},
		"b": {"value": 1.5},
	}, values)
}

// Package metrics defines the metric kinds understood by the registry and
// the wrappers layered on top of them.
//
// Counters, histograms, meters and timers are backed by
// github.com/rcrowley/go-metrics. Every mutator returns an error so that
// read-only forwarding views can refuse writes without panicking:
//
//	errs := metrics.NewMeter()
//	_ = errs.Mark(1)
//
//	view := metrics.NewForwardingMeter(errs)
//	err := view.Mark(1) // ErrUnsupportedOperation
//
// Composite wrappers fan one mutation out to a main metric and a
// supplementary metric that is resolved on every call, which suits rolling
// per-period metrics.
package metrics

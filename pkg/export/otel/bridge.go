// Package otel publishes registry datapoints through an OpenTelemetry meter.
package otel

import (
	"context"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/export"
	"github.com/monitoringcenter/monitoringcenter/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentName is the name of the observable gauge carrying all points.
const InstrumentName = "monitoringcenter.metric"

// Attribute keys identifying a point.
const (
	MetricKey = attribute.Key("metric")
	StatKey   = attribute.Key("stat")
)

// Bridge observes every registered metric on each collection. Each point is
// one observation of a single gauge distinguished by metric and stat
// attributes.
type Bridge struct {
	gauge        metric.Float64ObservableGauge
	registration metric.Registration
}

// NewBridge registers the observable gauge on meter.
func NewBridge(meter metric.Meter, source export.Source) (*Bridge, error) {
	if meter == nil || source == nil {
		return nil, errors.InvalidArgument("otel bridge needs a meter and a metric source")
	}

	gauge, err := meter.Float64ObservableGauge(InstrumentName,
		metric.WithDescription("Statistics of metrics registered with the monitoring center"))
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "creating observable gauge").
			WithCause(err).
			WithComponent("otel")
	}

	b := &Bridge{gauge: gauge}
	b.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, p := range export.ExpandAll(source.Metrics(registry.All)) {
			o.ObserveFloat64(gauge, p.Value, metric.WithAttributes(
				MetricKey.String(p.Name),
				StatKey.String(p.Stat),
			))
		}
		return nil
	}, gauge)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "registering observable callback").
			WithCause(err).
			WithComponent("otel")
	}
	return b, nil
}

// Close stops observing.
func (b *Bridge) Close() error {
	return b.registration.Unregister()
}

// Package registry holds the process-wide mapping from canonical name to
// metric.
//
// Names are unique. GetOrCreate invokes its factory at most once per name
// even under concurrent first access, and RegisterOnce fails with a
// DUPLICATE_NAME error when a name is already bound. Removal only affects
// future lookups: handles already held by callers stay usable.
package registry

import (
	"slices"
	"strings"
	"sync"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/naming"
	"github.com/sirupsen/logrus"
)

// Entry is a bound name in an enumeration snapshot.
type Entry struct {
	Name   string
	Kind   metrics.Kind
	Metric metrics.Metric
}

// Filter selects entries during enumeration.
type Filter func(name string, m metrics.Metric) bool

// All matches every entry.
func All(string, metrics.Metric) bool { return true }

// WithPrefix matches names inside the given namespace. An empty namespace
// matches everything.
func WithPrefix(namespace string) Filter {
	return func(name string, _ metrics.Metric) bool {
		return naming.IsUnder(name, namespace)
	}
}

// OfKind matches metrics of the given kind.
func OfKind(kind metrics.Kind) Filter {
	return func(_ string, m metrics.Metric) bool {
		return m.Kind() == kind
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry maps canonical names to metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]metrics.Metric
	logger  logrus.FieldLogger
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		metrics: make(map[string]metrics.Metric),
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithField("component", "registry")
	return r
}

func validate(name string, kind metrics.Kind) error {
	if strings.TrimSpace(name) == "" {
		return errors.InvalidArgument("metric name must not be blank")
	}
	if !kind.IsLeaf() {
		return errors.InvalidArgument("cannot bind a metric of kind %s", kind).WithDetail("name", name)
	}
	return nil
}

func kindMismatch(name string, bound, requested metrics.Kind) error {
	return errors.Newf(errors.ErrCodeKindMismatch, "%q is bound to a %s, not a %s", name, bound, requested).
		WithDetail("name", name)
}

// GetOrCreate returns the metric bound to name, creating it with factory if
// the name is free. factory runs under the registry lock and is called at
// most once per name; concurrent callers all receive the same instance. A
// metric of a different kind already bound to name yields KIND_MISMATCH.
func (r *Registry) GetOrCreate(name string, kind metrics.Kind, factory func() metrics.Metric) (metrics.Metric, error) {
	if err := validate(name, kind); err != nil {
		return nil, err
	}

	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	if ok {
		if m.Kind() != kind {
			return nil, kindMismatch(name, m.Kind(), kind)
		}
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		if m.Kind() != kind {
			return nil, kindMismatch(name, m.Kind(), kind)
		}
		return m, nil
	}

	m = factory()
	if m == nil {
		return nil, errors.InvalidArgument("factory for %q returned nil", name)
	}
	if m.Kind() != kind {
		return nil, kindMismatch(name, m.Kind(), kind)
	}
	r.metrics[name] = m
	r.logger.WithField("metric", name).Debug("Created metric")
	return m, nil
}

// RegisterOnce binds m to name, failing with DUPLICATE_NAME if the name is
// taken.
func (r *Registry) RegisterOnce(name string, m metrics.Metric) error {
	if m == nil {
		return errors.InvalidArgument("metric must not be nil").WithDetail("name", name)
	}
	if err := validate(name, m.Kind()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.metrics[name]; ok {
		return errors.DuplicateName(name)
	}
	r.metrics[name] = m
	r.logger.WithFields(logrus.Fields{"metric": name, "kind": m.Kind()}).Debug("Registered metric")
	return nil
}

// Remove unbinds name. It reports whether a metric was bound.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.metrics[name]; !ok {
		return false
	}
	delete(r.metrics, name)
	r.logger.WithField("metric", name).Debug("Removed metric")
	return true
}

// RemoveMatching unbinds every name satisfying match in one critical
// section and returns how many were removed.
func (r *Registry) RemoveMatching(match func(name string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name := range r.metrics {
		if match(name) {
			delete(r.metrics, name)
			removed++
		}
	}
	if removed > 0 {
		r.logger.WithField("count", removed).Debug("Removed metrics")
	}
	return removed
}

// Get returns the metric bound to name.
func (r *Registry) Get(name string) (metrics.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.metrics[name]
	return m, ok
}

// Metrics returns a name-sorted snapshot of the entries matching filter. A
// nil filter matches everything.
func (r *Registry) Metrics(filter Filter) []Entry {
	if filter == nil {
		filter = All
	}

	r.mu.RLock()
	entries := make([]Entry, 0, len(r.metrics))
	for name, m := range r.metrics {
		if filter(name, m) {
			entries = append(entries, Entry{Name: name, Kind: m.Kind(), Metric: m})
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries
}

// Names returns the sorted bound names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of bound names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

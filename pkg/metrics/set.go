package metrics

import (
	"reflect"
	"slices"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
)

// MaxSetDepth bounds how deeply metric sets may nest.
const MaxSetDepth = 64

// MetricSet groups metrics under relative names. Values may be nested sets.
type MetricSet interface {
	Metric
	Metrics() map[string]Metric
}

// Set is a literal MetricSet.
type Set map[string]Metric

func (s Set) Kind() Kind                 { return KindSet }
func (s Set) Metrics() map[string]Metric { return s }

// Leaf is a metric found while flattening a set, with the relative names
// leading to it from the root.
type Leaf struct {
	Path   []string
	Metric Metric
}

type frame struct {
	path []string
	set  MetricSet
}

// Flatten walks set depth-first and returns every leaf metric. Within a set,
// leaves come in name order followed by the leaves of its nested sets. Nil
// values are skipped. A set nested deeper than MaxSetDepth, which
// includes a set containing itself, is rejected.
func Flatten(set MetricSet) ([]Leaf, error) {
	if isNil(set) {
		return nil, errors.InvalidArgument("metric set must not be nil")
	}

	var leaves []Leaf
	stack := []frame{{set: set}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(top.path) > MaxSetDepth {
			return nil, errors.InvalidArgument("metric set nested deeper than %d levels", MaxSetDepth)
		}

		children := top.set.Metrics()
		names := make([]string, 0, len(children))
		for name := range children {
			names = append(names, name)
		}
		slices.Sort(names)

		// Nested sets are pushed in reverse so they pop in name order.
		var nested []frame
		for _, name := range names {
			m := children[name]
			if isNil(m) {
				continue
			}
			path := append(slices.Clip(top.path), name)
			if sub, ok := m.(MetricSet); ok && m.Kind() == KindSet {
				nested = append(nested, frame{path: path, set: sub})
				continue
			}
			if !m.Kind().IsLeaf() {
				return nil, errors.InvalidArgument("metric %v has unknown kind %s", path, m.Kind())
			}
			leaves = append(leaves, Leaf{Path: path, Metric: m})
		}
		for i := len(nested) - 1; i >= 0; i-- {
			stack = append(stack, nested[i])
		}
	}
	return leaves, nil
}

func isNil(m any) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

package metrics

// Kind is the closed set of metric kinds the registry understands.
type Kind int

const (
	KindCounter Kind = iota + 1
	KindGauge
	KindHistogram
	KindMeter
	KindTimer

	// KindSet marks a MetricSet: a group of metrics that is flattened on
	// registration and never bound under a name itself.
	KindSet
)

// String returns the string representation of a kind
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	case KindMeter:
		return "meter"
	case KindTimer:
		return "timer"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

// Postfix returns the type postfix appended to canonical names, or "" for kinds
// that never carry one.
func (k Kind) Postfix() string {
	switch k {
	case KindCounter:
		return "Counter"
	case KindGauge:
		return "Gauge"
	case KindHistogram:
		return "Histogram"
	case KindMeter:
		return "Meter"
	case KindTimer:
		return "Timer"
	default:
		return ""
	}
}

// IsComposite reports whether the kind exposes multiple derived readings.
func (k Kind) IsComposite() bool {
	switch k {
	case KindHistogram, KindMeter, KindTimer:
		return true
	default:
		return false
	}
}

// IsLeaf reports whether a metric of this kind can be bound under a name.
func (k Kind) IsLeaf() bool {
	return k >= KindCounter && k <= KindTimer
}

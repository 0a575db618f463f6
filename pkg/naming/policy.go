package naming

import (
	"strings"

	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
)

// PostfixPolicy decides which metric kinds get their type appended to the
// canonical name.
type PostfixPolicy int

const (
	// PolicyOff never appends a postfix.
	PolicyOff PostfixPolicy = iota
	// PolicyAddCompositeTypes appends a postfix to timers, meters and histograms.
	PolicyAddCompositeTypes
	// PolicyAddAllTypes appends a postfix to every kind.
	PolicyAddAllTypes
)

// DefaultPostfixPolicy is used when no policy is configured.
const DefaultPostfixPolicy = PolicyAddCompositeTypes

func (p PostfixPolicy) String() string {
	switch p {
	case PolicyOff:
		return "OFF"
	case PolicyAddCompositeTypes:
		return "ADD_COMPOSITE_TYPES"
	case PolicyAddAllTypes:
		return "ADD_ALL_TYPES"
	default:
		return "UNKNOWN"
	}
}

// Applies reports whether p appends a postfix for kind.
func (p PostfixPolicy) Applies(kind metrics.Kind) bool {
	switch p {
	case PolicyAddCompositeTypes:
		return kind.IsComposite()
	case PolicyAddAllTypes:
		return kind.IsLeaf()
	default:
		return false
	}
}

// ParsePostfixPolicy parses the configuration spelling of a policy. Matching
// is case-insensitive and accepts '-' for '_'.
func ParsePostfixPolicy(s string) (PostfixPolicy, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "OFF":
		return PolicyOff, nil
	case "ADD_COMPOSITE_TYPES":
		return PolicyAddCompositeTypes, nil
	case "ADD_ALL_TYPES":
		return PolicyAddAllTypes, nil
	default:
		return PolicyOff, errors.NewError(errors.ErrCodeInvalidConfig, "unknown postfix policy").
			WithDetail("value", s)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (p PostfixPolicy) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PostfixPolicy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParsePostfixPolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Set implements flag.Value.
func (p *PostfixPolicy) Set(s string) error {
	parsed, err := ParsePostfixPolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

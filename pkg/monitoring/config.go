package monitoring

import (
	"github.com/monitoringcenter/monitoringcenter/pkg/errors"
	"github.com/monitoringcenter/monitoringcenter/pkg/export/graphite"
	"github.com/monitoringcenter/monitoringcenter/pkg/health"
	"github.com/monitoringcenter/monitoringcenter/pkg/naming"
)

// NamingConfig identifies the node and selects the postfix policy. The
// identifiers only ever prefix exported names. Canonical in-process names
// never contain them.
type NamingConfig struct {
	ApplicationName string               `yaml:"application_name" json:"application_name"`
	DatacenterName  string               `yaml:"datacenter_name" json:"datacenter_name,omitempty"`
	NodeGroupName   string               `yaml:"node_group_name" json:"node_group_name,omitempty"`
	NodeID          string               `yaml:"node_id" json:"node_id,omitempty"`
	PostfixPolicy   naming.PostfixPolicy `yaml:"postfix_policy" json:"postfix_policy"`
}

// Prefix returns the sanitized export prefix application.datacenter.group.node,
// skipping blank parts.
func (n NamingConfig) Prefix() string {
	return naming.Join(n.ApplicationName, n.DatacenterName, n.NodeGroupName, n.NodeID)
}

// Labels returns the non-blank identifiers keyed for use as constant labels.
func (n NamingConfig) Labels() map[string]string {
	labels := make(map[string]string, 4)
	for k, v := range map[string]string{
		"application": n.ApplicationName,
		"datacenter":  n.DatacenterName,
		"node_group":  n.NodeGroupName,
		"node":        n.NodeID,
	} {
		if v != "" {
			labels[k] = v
		}
	}
	return labels
}

// Config is everything Configure needs.
type Config struct {
	Naming   NamingConfig
	Graphite graphite.Config
	Health   health.Config

	// RuntimeMetrics adds Go runtime and process series to the Prometheus gatherer.
	RuntimeMetrics bool
}

// Validate checks the fields Configure depends on.
func (c Config) Validate() error {
	if naming.Sanitize(c.Naming.ApplicationName) == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "application name must not be blank").
			WithDetail("field", "naming.application_name")
	}
	switch c.Naming.PostfixPolicy {
	case naming.PolicyOff, naming.PolicyAddCompositeTypes, naming.PolicyAddAllTypes:
	default:
		return errors.Newf(errors.ErrCodeInvalidConfig, "unknown postfix policy %d", c.Naming.PostfixPolicy).
			WithDetail("field", "naming.postfix_policy")
	}
	if c.Graphite.Enabled {
		if c.Graphite.Address == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig, "graphite address must not be empty").
				WithDetail("field", "graphite.address")
		}
		if c.Graphite.Interval <= 0 {
			return errors.NewError(errors.ErrCodeInvalidConfig, "graphite interval must be positive").
				WithDetail("field", "graphite.interval")
		}
	}
	return nil
}

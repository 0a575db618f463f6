package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/monitoringcenter/monitoringcenter/pkg/api"
	"github.com/monitoringcenter/monitoringcenter/pkg/export/graphite"
	"github.com/monitoringcenter/monitoringcenter/pkg/health"
	"github.com/monitoringcenter/monitoringcenter/pkg/monitoring"
	"github.com/monitoringcenter/monitoringcenter/pkg/naming"
	"github.com/monitoringcenter/monitoringcenter/pkg/utils"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "MONITORINGCENTER_"

// Configuration represents the complete application configuration
type Configuration struct {
	Naming         monitoring.NamingConfig `yaml:"naming"`
	Logging        LoggingConfig           `yaml:"logging"`
	Graphite       graphite.Config         `yaml:"graphite"`
	HTTP           api.ServerConfig        `yaml:"http"`
	HealthChecks   health.Config           `yaml:"health_checks"`
	RuntimeMetrics bool                    `yaml:"runtime_metrics"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewDefault creates a configuration with default values. The node id
// defaults to the host name.
func NewDefault() *Configuration {
	return &Configuration{
		Naming: monitoring.NamingConfig{
			NodeID:        defaultNodeID(),
			PostfixPolicy: naming.PolicyAddCompositeTypes,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: utils.FormatText,
		},
		Graphite:     graphite.DefaultConfig(),
		HTTP:         api.DefaultServerConfig(),
		HealthChecks: health.DefaultConfig(),
	}
}

func defaultNodeID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from MONITORINGCENTER_* environment
// variables. Unset variables leave the current value alone.
func (c *Configuration) LoadFromEnv() error {
	// Naming
	envString("APPLICATION_NAME", &c.Naming.ApplicationName)
	envString("DATACENTER_NAME", &c.Naming.DatacenterName)
	envString("NODE_GROUP_NAME", &c.Naming.NodeGroupName)
	envString("NODE_ID", &c.Naming.NodeID)
	if val := os.Getenv(EnvPrefix + "POSTFIX_POLICY"); val != "" {
		if err := c.Naming.PostfixPolicy.Set(val); err != nil {
			return fmt.Errorf("%sPOSTFIX_POLICY: %w", EnvPrefix, err)
		}
	}

	// Logging
	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)

	// Graphite
	if err := envBool("GRAPHITE_ENABLED", &c.Graphite.Enabled); err != nil {
		return err
	}
	envString("GRAPHITE_ADDRESS", &c.Graphite.Address)
	if err := envDuration("GRAPHITE_INTERVAL", &c.Graphite.Interval); err != nil {
		return err
	}

	// HTTP
	if err := envBool("HTTP_ENABLED", &c.HTTP.Enabled); err != nil {
		return err
	}
	envString("HTTP_ADDRESS", &c.HTTP.Address)
	envString("HTTP_USERNAME", &c.HTTP.Username)
	envString("HTTP_PASSWORD", &c.HTTP.Password)

	// Health checks
	if err := envDuration("HEALTH_CHECK_INTERVAL", &c.HealthChecks.Interval); err != nil {
		return err
	}

	return envBool("RUNTIME_METRICS", &c.RuntimeMetrics)
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) error {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%s%s: invalid boolean %q", EnvPrefix, key, val)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s%s: invalid duration %q", EnvPrefix, key, val)
	}
	*dst = d
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if err := c.Monitoring().Validate(); err != nil {
		return err
	}

	if _, err := utils.ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", utils.FormatText, utils.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be one of: %s, %s)",
			c.Logging.Format, utils.FormatText, utils.FormatJSON)
	}

	if c.HTTP.Enabled {
		if c.HTTP.Address == "" {
			return fmt.Errorf("http.address is required when http is enabled")
		}
		if c.HTTP.Username != "" && c.HTTP.Password == "" {
			return fmt.Errorf("http.password is required when http.username is set")
		}
		if c.Graphite.Enabled && c.Graphite.Address == c.HTTP.Address {
			return fmt.Errorf("graphite.address and http.address cannot be the same")
		}
	}

	return nil
}

// Monitoring extracts the part of the configuration the monitoring center
// consumes.
func (c *Configuration) Monitoring() monitoring.Config {
	return monitoring.Config{
		Naming:         c.Naming,
		Graphite:       c.Graphite,
		Health:         c.HealthChecks,
		RuntimeMetrics: c.RuntimeMetrics,
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
naming:
  application_name: from-file
  node_id: file-node
logging:
  level: debug
`), 0600))
	t.Setenv("MONITORINGCENTER_NODE_ID", "env-node")
	t.Setenv("MONITORINGCENTER_LOG_LEVEL", "warn")

	cfg, err := loadConfig(&arguments{
		configFile:      path,
		logLevel:        "error",
		graphiteAddress: "graphite.internal:2003",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Naming.ApplicationName)
	assert.Equal(t, "env-node", cfg.Naming.NodeID, "env beats file")
	assert.Equal(t, "error", cfg.Logging.Level, "flags beat env")
	assert.True(t, cfg.Graphite.Enabled)
	assert.Equal(t, "graphite.internal:2003", cfg.Graphite.Address)
}

func TestLoadConfigRequiresApplicationName(t *testing.T) {
	_, err := loadConfig(&arguments{})
	assert.Error(t, err)
}

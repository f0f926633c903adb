package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err) // bind_addresses is still unset, Validate rejects it
	assert.Nil(t, cfg)
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
network_server:
  bind_addresses:
    - "0.0.0.0:445"
  protocol_name: "SMB2"
file_state_cache:
  case_sensitive: true
  file_state_expire_seconds: 45
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.0.0.0:445"}, cfg.NetworkServer.BindAddresses)
	assert.True(t, cfg.FileStateCache.CaseSensitive)
	assert.Equal(t, 45, cfg.FileStateCache.FileStateExpireSeconds)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields still get their defaults.
	assert.Equal(t, DefaultMetricsListenAddress, cfg.Metrics.ListenAddress)
}

func TestLoad_EnvVarOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
network_server:
  bind_addresses:
    - "0.0.0.0:445"
  protocol_name: "SMB2"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("SMBCORED_NETWORK_SERVER_PROTOCOL_NAME", "SMB3")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SMB3", cfg.NetworkServer.ProtocolName)
}

func TestMustLoad_ExplicitMissingFileIsActionableError(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveConfig_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.NetworkServer.BindAddresses = []string{"0.0.0.0:445"}
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.NetworkServer.ProtocolName, loaded.NetworkServer.ProtocolName)
	assert.Equal(t, cfg.NetworkServer.BindAddresses, loaded.NetworkServer.BindAddresses)
}

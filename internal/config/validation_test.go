package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.NetworkServer.BindAddresses = []string{"0.0.0.0:445"}
	return cfg
}

func TestValidate_AcceptsDefaultConfigWithBindAddress(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_RejectsMissingBindAddresses(t *testing.T) {
	cfg := DefaultConfig()
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BindAddresses")
}

func TestValidate_RejectsMissingProtocolName(t *testing.T) {
	cfg := validConfig()
	cfg.NetworkServer.ProtocolName = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProtocolName")
}

func TestValidate_RejectsUnknownProtocolOrderEntry(t *testing.T) {
	cfg := validConfig()
	cfg.Passthru.ProtocolOrder = []string{"CarrierPigeon"}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProtocolOrder")
}

func TestValidate_RejectsBadLoggingLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Level")
}

func TestValidate_ReportsMultipleViolationsAtOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkServer.ProtocolName = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProtocolName")
	assert.Contains(t, err.Error(), "BindAddresses")
}

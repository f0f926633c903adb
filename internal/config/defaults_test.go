package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_LeavesExplicitValuesAlone(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.NetworkServer.ProtocolName = "SMB3"

	ApplyDefaults(cfg)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "SMB3", cfg.NetworkServer.ProtocolName)
	assert.Equal(t, DefaultLoggingFormat, cfg.Logging.Format)
}

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultLoggingLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultMetricsListenAddress, cfg.Metrics.ListenAddress)
	assert.Equal(t, DefaultFileStateExpireSeconds, cfg.FileStateCache.FileStateExpireSeconds)
	assert.Equal(t, DefaultProtocolName, cfg.NetworkServer.ProtocolName)
	assert.Equal(t, []string{"NativeSMB", "NetBIOS"}, cfg.Passthru.ProtocolOrder)
}

func TestApplyDefaults_IsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	again := *cfg
	ApplyDefaults(&again)
	assert.Equal(t, *cfg, again)
}

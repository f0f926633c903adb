package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileStateCacheConfig_ToCacheConfig_TakesSmallerInterval(t *testing.T) {
	c := FileStateCacheConfig{FileStateExpireSeconds: 60, CacheCheckSeconds: 10, CaseSensitive: true}
	cc := c.ToCacheConfig()

	assert.Equal(t, 10*time.Second, cc.ExpireInterval)
	assert.True(t, cc.CaseSensitive)
}

func TestFileStateCacheConfig_ToCacheConfig_ExpireOnlyWhenCheckUnset(t *testing.T) {
	c := FileStateCacheConfig{FileStateExpireSeconds: 30}
	cc := c.ToCacheConfig()

	assert.Equal(t, 30*time.Second, cc.ExpireInterval)
}

func TestPassthruConfig_ToAuthenticatorConfig(t *testing.T) {
	c := PassthruConfig{
		SessionTimeoutMS: 5000,
		GuestAllowed:     true,
		Domain:           "CORP",
		Server:           "FS01",
	}

	ac := c.ToAuthenticatorConfig(nil)
	assert.Equal(t, 5*time.Second, ac.SessionTimeout)
	assert.True(t, ac.GuestAllowed)
	assert.Equal(t, "CORP", ac.Domain)
	assert.Equal(t, "FS01", ac.Server)
}

func TestPassthruConfig_ToAuthorityPoolConfig_NullDomainUsesAnyServerWhenNoDomain(t *testing.T) {
	c := PassthruConfig{OfflineCheckSeconds: 120}
	pc := c.ToAuthorityPoolConfig()

	assert.Equal(t, 2*time.Minute, pc.CheckInterval)
	assert.True(t, pc.NullDomainUseAnyServer)
}

func TestLoggingConfig_ToLoggerConfig(t *testing.T) {
	c := LoggingConfig{Level: "debug", Format: "json", Output: "stderr"}
	lc := c.ToLoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "stderr", lc.Output)
}

func TestNetworkServerConfig_ToServerConfig(t *testing.T) {
	c := NetworkServerConfig{
		ProtocolName:      "SMB2",
		MaxSessions:       100,
		ShutdownTimeoutMS: 15000,
	}

	sc := c.ToServerConfig()
	assert.Equal(t, "SMB2", sc.ProtocolName)
	assert.Equal(t, 100, sc.MaxSessions)
	assert.Equal(t, 15*time.Second, sc.ShutdownTimeout)
}

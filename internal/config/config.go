package config

import (
	"time"

	"github.com/smbcore/smbd/internal/filestate"
	"github.com/smbcore/smbd/internal/logger"
	"github.com/smbcore/smbd/internal/passthru"
	"github.com/smbcore/smbd/internal/server"
)

// Config is the root configuration for smbcored: one sub-struct per
// configurable surface, plus the ambient logging/metrics concerns every
// component shares.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	FileStateCache FileStateCacheConfig `mapstructure:"file_state_cache" yaml:"file_state_cache"`
	Passthru       PassthruConfig       `mapstructure:"passthru" yaml:"passthru"`
	NetworkServer  NetworkServerConfig  `mapstructure:"network_server" yaml:"network_server"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output,omitempty"`
}

// ToLoggerConfig converts to the logger package's Init config.
func (c LoggingConfig) ToLoggerConfig() logger.Config {
	return logger.Config{Level: c.Level, Format: c.Format, Output: c.Output}
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address" validate:"omitempty,hostname_port"`
}

// FileStateCacheConfig is the FileStateCache surface named in the external
// interfaces section: file_state_expire_seconds, cache_check_seconds,
// case_sensitive, debug, debug_expired, dump_on_shutdown.
type FileStateCacheConfig struct {
	FileStateExpireSeconds int  `mapstructure:"file_state_expire_seconds" yaml:"file_state_expire_seconds" validate:"omitempty,min=1"`
	CacheCheckSeconds      int  `mapstructure:"cache_check_seconds" yaml:"cache_check_seconds" validate:"omitempty,min=1"`
	CaseSensitive          bool `mapstructure:"case_sensitive" yaml:"case_sensitive"`
	Debug                  bool `mapstructure:"debug" yaml:"debug"`
	DebugExpired           bool `mapstructure:"debug_expired" yaml:"debug_expired"`
	DumpOnShutdown         bool `mapstructure:"dump_on_shutdown" yaml:"dump_on_shutdown"`
}

// ToCacheConfig converts to the filestate package's runtime config. This
// cache implementation uses a single sweep interval for both expiry and
// the periodic check, so the smaller of FileStateExpireSeconds and
// CacheCheckSeconds (when both are set) governs ExpireInterval.
func (c FileStateCacheConfig) ToCacheConfig() filestate.Config {
	interval := time.Duration(c.FileStateExpireSeconds) * time.Second
	if c.CacheCheckSeconds > 0 {
		check := time.Duration(c.CacheCheckSeconds) * time.Second
		if interval <= 0 || check < interval {
			interval = check
		}
	}
	return filestate.Config{
		CaseSensitive:      c.CaseSensitive,
		ExpireInterval:     interval,
		OplockBreakTimeout: filestate.DefaultOplockBreakTimeout,
		Debug:              c.Debug,
		DebugExpired:       c.DebugExpired,
		DumpOnShutdown:     c.DumpOnShutdown,
	}
}

// protocolOrderValue restricts ProtocolOrder entries to the set named in
// the external interfaces section.
type protocolOrderValue string

const (
	ProtocolNetBIOS   protocolOrderValue = "NetBIOS"
	ProtocolNativeSMB protocolOrderValue = "NativeSMB"
	ProtocolNone      protocolOrderValue = "None"
)

// PassthruConfig is the Passthru surface: server_list | domain,
// session_timeout_ms, offline_check_seconds, protocol_order[primary,
// secondary], disable_session_cleanup.
type PassthruConfig struct {
	// ServerList names specific passthru targets by address or hostname.
	// Neither converter below reads it: ToAuthorityPoolConfig leaves
	// Authorities empty, and only Domain reaches the pool and
	// authenticator configs.
	ServerList []string `mapstructure:"server_list" yaml:"server_list,omitempty"`
	Domain     string   `mapstructure:"domain" yaml:"domain,omitempty"`

	SessionTimeoutMS      int      `mapstructure:"session_timeout_ms" yaml:"session_timeout_ms" validate:"omitempty,min=1"`
	OfflineCheckSeconds   int      `mapstructure:"offline_check_seconds" yaml:"offline_check_seconds" validate:"omitempty,min=1"`
	ProtocolOrder         []string `mapstructure:"protocol_order" yaml:"protocol_order,omitempty" validate:"omitempty,dive,oneof=NetBIOS NativeSMB None"`
	DisableSessionCleanup bool     `mapstructure:"disable_session_cleanup" yaml:"disable_session_cleanup"`

	// GuestAllowed and the TargetInfo fields aren't named in the external
	// interfaces section but are required by the authenticator's type-2
	// message construction; carried here rather than invented ad hoc at
	// the call site.
	GuestAllowed bool   `mapstructure:"guest_allowed" yaml:"guest_allowed"`
	Server       string `mapstructure:"server" yaml:"server,omitempty"`
	DnsDomain    string `mapstructure:"dns_domain" yaml:"dns_domain,omitempty"`
	DnsServer    string `mapstructure:"dns_server" yaml:"dns_server,omitempty"`
}

// ToAuthenticatorConfig converts to the passthru package's runtime config.
// The caller must still supply a *passthru.AuthorityPool (built from
// ServerList/Domain by the transport layer, which owns the concrete
// RemoteAuthority implementations).
func (c PassthruConfig) ToAuthenticatorConfig(pool *passthru.AuthorityPool) passthru.Config {
	return passthru.Config{
		Pool:           pool,
		SessionTimeout: time.Duration(c.SessionTimeoutMS) * time.Millisecond,
		GuestAllowed:   c.GuestAllowed,
		Domain:         c.Domain,
		Server:         c.Server,
		DnsDomain:      c.DnsDomain,
		DnsServer:      c.DnsServer,
	}
}

// ToAuthorityPoolConfig converts to the passthru package's pool config.
// Authorities is left empty; populating it from ServerList requires
// constructing concrete RemoteAuthority implementations, which is a
// transport-layer concern outside this package.
func (c PassthruConfig) ToAuthorityPoolConfig() passthru.AuthorityPoolConfig {
	return passthru.AuthorityPoolConfig{
		CheckInterval:          time.Duration(c.OfflineCheckSeconds) * time.Second,
		NullDomainUseAnyServer: c.Domain == "",
	}
}

// NetworkServerConfig is the NetworkServer surface: bind_addresses[],
// protocol_name, debug_flags.
type NetworkServerConfig struct {
	BindAddresses []string `mapstructure:"bind_addresses" yaml:"bind_addresses" validate:"required,min=1,dive,hostname_port"`
	ProtocolName  string   `mapstructure:"protocol_name" yaml:"protocol_name" validate:"required"`
	DebugFlags    []string `mapstructure:"debug_flags" yaml:"debug_flags,omitempty"`

	MaxSessions          int `mapstructure:"max_sessions" yaml:"max_sessions" validate:"omitempty,min=1"`
	ShutdownTimeoutMS    int `mapstructure:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms" validate:"omitempty,min=1"`
	MetricsLogIntervalMS int `mapstructure:"metrics_log_interval_ms" yaml:"metrics_log_interval_ms,omitempty"`
}

// ToServerConfig converts to the server package's runtime config.
// Listener and SessionListeners are wired by the caller, not loaded from
// configuration.
func (c NetworkServerConfig) ToServerConfig() server.Config {
	return server.Config{
		ProtocolName:       c.ProtocolName,
		MaxSessions:        c.MaxSessions,
		ShutdownTimeout:    time.Duration(c.ShutdownTimeoutMS) * time.Millisecond,
		MetricsLogInterval: time.Duration(c.MetricsLogIntervalMS) * time.Millisecond,
	}
}

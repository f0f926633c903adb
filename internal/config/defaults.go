package config

// Default values applied by ApplyDefaults to any field left at its zero
// value after decoding.
const (
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "text"

	DefaultMetricsListenAddress = "127.0.0.1:9100"

	DefaultFileStateExpireSeconds = 60
	DefaultCacheCheckSeconds      = 60

	DefaultSessionTimeoutMS    = 10_000
	DefaultOfflineCheckSeconds = 300

	DefaultProtocolName         = "SMB2"
	DefaultShutdownTimeoutMS    = 10_000
	DefaultMaxSessions          = 0 // unlimited
	DefaultMetricsLogIntervalMS = 0 // disabled
)

// DefaultConfig returns a Config populated with the package defaults. It
// is not itself valid (NetworkServer.BindAddresses is still empty). Load
// does not call it; Load applies the same defaults through ApplyDefaults
// after decoding.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any zero-valued field with its default. Called
// after decoding so that a partially-specified config file or env
// override only has to name the fields it cares about.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}

	if cfg.FileStateCache.FileStateExpireSeconds == 0 {
		cfg.FileStateCache.FileStateExpireSeconds = DefaultFileStateExpireSeconds
	}
	if cfg.FileStateCache.CacheCheckSeconds == 0 {
		cfg.FileStateCache.CacheCheckSeconds = DefaultCacheCheckSeconds
	}

	if cfg.Passthru.SessionTimeoutMS == 0 {
		cfg.Passthru.SessionTimeoutMS = DefaultSessionTimeoutMS
	}
	if cfg.Passthru.OfflineCheckSeconds == 0 {
		cfg.Passthru.OfflineCheckSeconds = DefaultOfflineCheckSeconds
	}
	if len(cfg.Passthru.ProtocolOrder) == 0 {
		cfg.Passthru.ProtocolOrder = []string{string(ProtocolNativeSMB), string(ProtocolNetBIOS)}
	}

	if cfg.NetworkServer.ProtocolName == "" {
		cfg.NetworkServer.ProtocolName = DefaultProtocolName
	}
	if cfg.NetworkServer.ShutdownTimeoutMS == 0 {
		cfg.NetworkServer.ShutdownTimeoutMS = DefaultShutdownTimeoutMS
	}
}

package config

import (
	"strings"
	"time"
)

// Default ports for the two servers. The dashboard sits one port above the
// retrieval server by convention.
const (
	DefaultServerPort    = 5678
	DefaultDashboardPort = 5679
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	applyServerDefaults(&cfg.Server)
	applyDashboardDefaults(&cfg.Dashboard)
	applyFeedDefaults(&cfg.Feed)
	applyAdaptorDefaults(&cfg.Adaptor)
	applyTrustDefaults(&cfg.Trust)
	applySessionDefaults(&cfg.Session)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu", "alloc_objects", "alloc_space",
			"inuse_objects", "inuse_space", "goroutines",
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultServerPort
	}
	// The external port tracks the listen port unless a reverse proxy
	// remaps it.
	if cfg.ExternalPort == 0 {
		cfg.ExternalPort = cfg.Port
	}
	if cfg.DocPath == "" {
		cfg.DocPath = "/doc/"
	}
	if !strings.HasSuffix(cfg.DocPath, "/") {
		cfg.DocPath += "/"
	}
	if cfg.ScoringType == "" {
		cfg.ScoringType = "content"
	}
	if cfg.HeaderTimeout == 0 {
		cfg.HeaderTimeout = 30 * time.Second
	}
	if cfg.ContentTimeout == 0 {
		cfg.ContentTimeout = 180 * time.Second
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 16
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 160
	}
}

func applyDashboardDefaults(cfg *DashboardConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultDashboardPort
	}
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
}

func applyFeedDefaults(cfg *FeedConfig) {
	if cfg.MaxRecordsPerFeed == 0 {
		cfg.MaxRecordsPerFeed = 5000
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 2 * cfg.MaxRecordsPerFeed
	}
	if cfg.MaxBatchLatency == 0 {
		cfg.MaxBatchLatency = 5 * time.Minute
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 12
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
}

func applyAdaptorDefaults(cfg *AdaptorConfig) {
	if cfg.FullListingSchedule == "" {
		cfg.FullListingSchedule = "daily=03:00"
	}
	if cfg.IncrementalPollPeriod == 0 {
		cfg.IncrementalPollPeriod = 15 * time.Minute
	}
}

func applyTrustDefaults(cfg *TrustConfig) {
	if len(cfg.AllowedIPs) == 0 && len(cfg.AllowedCIDRs) == 0 {
		cfg.AllowedIPs = []string{"127.0.0.1"}
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Minute
	}
}

// GetDefaultConfig returns a fully defaulted configuration, used when no
// config file exists.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	// No feed destination can be guessed; leave validation to flag it
	// unless the caller fills it in.
	cfg.Feed.DestinationURL = "http://localhost:19900/xmlfeed"
	cfg.Feed.Datasource = "default_source"
	cfg.Adaptor.PushOnStart = true
	return cfg
}

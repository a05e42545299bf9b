package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the static configuration of the connector daemon:
//   - Logging and telemetry behavior
//   - The retrieval server (document serving towards the indexer)
//   - The dashboard server (status, metrics)
//   - Feed generation and delivery
//   - Adaptor wiring and listing schedules
//   - Trust classification of retrieval clients
//   - Session verification for end-user requests
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (CONNECTOR_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server configures the retrieval HTTP server
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Dashboard configures the secondary status/metrics HTTP server
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`

	// Feed configures batch generation and delivery to the indexer
	Feed FeedConfig `mapstructure:"feed" yaml:"feed"`

	// Adaptor configures the repository adaptor and its listing schedules
	Adaptor AdaptorConfig `mapstructure:"adaptor" yaml:"adaptor"`

	// Trust configures which retrieval clients are fully trusted
	Trust TrustConfig `mapstructure:"trust" yaml:"trust"`

	// Session configures end-user session verification
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the retrieval HTTP server, the surface the
// indexer crawls.
type ServerConfig struct {
	// Host is the hostname the indexer reaches the connector under.
	// Used when minting document URLs.
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// Port is the retrieval listen port
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ExternalPort is the port the indexer uses to reach the connector.
	// Differs from Port only behind a reverse proxy; defaults to Port.
	ExternalPort int `mapstructure:"external_port" validate:"omitempty,min=1,max=65535" yaml:"external_port,omitempty"`

	// DocPath is the URL path prefix documents are served beneath
	DocPath string `mapstructure:"doc_path" yaml:"doc_path"`

	// DocIDIsURL treats identifiers as complete URLs instead of
	// percent-encoding them beneath DocPath
	DocIDIsURL bool `mapstructure:"docid_is_url" yaml:"docid_is_url"`

	// Secure enables HTTPS with client-certificate trust classification
	Secure bool `mapstructure:"secure" yaml:"secure"`

	// TLSCert and TLSKey are the server certificate pair for secure mode
	TLSCert string `mapstructure:"tls_cert" yaml:"tls_cert,omitempty"`
	TLSKey  string `mapstructure:"tls_key" yaml:"tls_key,omitempty"`

	// MarkAllDocsPublic serves every document without authorization
	MarkAllDocsPublic bool `mapstructure:"mark_all_docs_public" yaml:"mark_all_docs_public"`

	// UseCompression enables gzip response bodies when the client
	// negotiates them
	UseCompression bool `mapstructure:"use_compression" yaml:"use_compression"`

	// UseDocControlsHeader sends ACLs in the X-Gsa-Doc-Controls header
	// instead of the legacy metadata keys. No default is derived from the
	// indexer version; the toggle decides.
	UseDocControlsHeader bool `mapstructure:"use_doc_controls_header" yaml:"use_doc_controls_header"`

	// ScoringType is advertised in the doc-controls header: content or web
	ScoringType string `mapstructure:"scoring_type" validate:"omitempty,oneof=content web" yaml:"scoring_type"`

	// HeaderTimeout bounds the adaptor's header phase per request
	HeaderTimeout time.Duration `mapstructure:"header_timeout" yaml:"header_timeout"`

	// ContentTimeout bounds the adaptor's content phase per request
	ContentTimeout time.Duration `mapstructure:"content_timeout" yaml:"content_timeout"`

	// MaxWorkers caps concurrent retrieval handlers
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`

	// QueueCapacity caps requests waiting for a worker; excess requests
	// are rejected with 503
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity"`
}

// BaseURL returns the document base URL the identifier codec mints under.
func (s ServerConfig) BaseURL() string {
	scheme := "http"
	if s.Secure {
		scheme = "https"
	}
	port := s.ExternalPort
	if port == 0 {
		port = s.Port
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, s.Host, port, s.DocPath)
}

// DashboardConfig configures the secondary HTTP server for operators.
type DashboardConfig struct {
	// Enabled controls whether the dashboard server runs
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dashboard listen port
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Username for basic authentication on /status
	Username string `mapstructure:"username" yaml:"username"`

	// PasswordHash is the bcrypt hash of the dashboard password
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash,omitempty"`
}

// FeedConfig configures batch generation and delivery.
type FeedConfig struct {
	// DestinationURL is the indexer's feed ingestion endpoint
	DestinationURL string `mapstructure:"destination_url" validate:"required,url" yaml:"destination_url"`

	// Datasource names this connector's feed source at the indexer
	Datasource string `mapstructure:"datasource" validate:"required" yaml:"datasource"`

	// MaxRecordsPerFeed caps records per feed file
	MaxRecordsPerFeed int `mapstructure:"max_records_per_feed" yaml:"max_records_per_feed"`

	// QueueSize bounds the async pusher queue; defaults to twice
	// MaxRecordsPerFeed
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size,omitempty"`

	// MaxBatchLatency bounds how long a partial batch waits before
	// delivery
	MaxBatchLatency time.Duration `mapstructure:"max_batch_latency" yaml:"max_batch_latency"`

	// MaxAttempts bounds delivery retries for one feed
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// InitialBackoff is the first retry delay; doubled each attempt
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`

	// ArchiveDir, when set, receives a copy of every sent feed
	ArchiveDir string `mapstructure:"archive_dir" yaml:"archive_dir,omitempty"`

	// S3 optionally archives feeds to an S3 bucket as well
	S3 S3ArchiveConfig `mapstructure:"s3" yaml:"s3"`

	// GroupsCaseSensitive marks group-membership feeds as case sensitive
	GroupsCaseSensitive bool `mapstructure:"groups_case_sensitive" yaml:"groups_case_sensitive"`
}

// S3ArchiveConfig configures the optional S3 feed archiver.
type S3ArchiveConfig struct {
	// Enabled controls whether feeds are archived to S3
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Bucket is the target bucket name
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`

	// Prefix is prepended to every archive key
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`

	// Region overrides the SDK's default region resolution
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// AccessKeyID and SecretAccessKey select static credentials; when
	// empty the SDK's default chain applies. SecretAccessKey may be
	// stored through the sensitive-value codec.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// AdaptorConfig wires the repository adaptor and its schedules.
type AdaptorConfig struct {
	// FullListingSchedule fires the full listing job. Accepted forms:
	// "daily=HH:MM" or "every=<duration>".
	FullListingSchedule string `mapstructure:"full_listing_schedule" yaml:"full_listing_schedule"`

	// PushOnStart submits one full listing immediately at startup
	PushOnStart bool `mapstructure:"push_on_start" yaml:"push_on_start"`

	// IncrementalPollPeriod fires the incremental listing job at a fixed
	// rate when the adaptor supports incremental listing
	IncrementalPollPeriod time.Duration `mapstructure:"incremental_poll_period" yaml:"incremental_poll_period"`

	// Exec configures the out-of-process command adaptor. Ignored when an
	// adaptor is registered in code.
	Exec ExecAdaptorConfig `mapstructure:"exec" yaml:"exec"`

	// Settings is passed through to the adaptor verbatim
	Settings map[string]string `mapstructure:"settings" yaml:"settings,omitempty"`
}

// ExecAdaptorConfig configures the subprocess adaptor speaking the framed
// command stream.
type ExecAdaptorConfig struct {
	// ListerCommand produces a listing dialect stream on stdout
	ListerCommand []string `mapstructure:"lister_command" yaml:"lister_command,omitempty"`

	// RetrieverCommand receives an identifier argument and produces a
	// retrieval dialect stream on stdout
	RetrieverCommand []string `mapstructure:"retriever_command" yaml:"retriever_command,omitempty"`

	// AuthorizerCommand receives an authz query on stdin and produces an
	// authz response stream on stdout
	AuthorizerCommand []string `mapstructure:"authorizer_command" yaml:"authorizer_command,omitempty"`
}

// TrustConfig lists the peers treated as the indexer.
type TrustConfig struct {
	// AllowedNames are certificate common names trusted in secure mode
	AllowedNames []string `mapstructure:"allowed_names" yaml:"allowed_names,omitempty"`

	// SkipCertNames are common names exempted from certificate checks
	SkipCertNames []string `mapstructure:"skip_cert_names" yaml:"skip_cert_names,omitempty"`

	// AllowedIPs are source addresses trusted in non-secure mode
	AllowedIPs []string `mapstructure:"allowed_ips" yaml:"allowed_ips,omitempty"`

	// AllowedCIDRs are source ranges trusted in non-secure mode
	AllowedCIDRs []string `mapstructure:"allowed_cidrs" yaml:"allowed_cidrs,omitempty"`
}

// SessionConfig configures end-user session verification. The session
// cookie is minted by the external SAML collaborator; the connector only
// verifies it.
type SessionConfig struct {
	// JWTSecret signs and verifies session cookies. Stored through the
	// sensitive-value codec; redacted in config dumps.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`

	// TTL bounds minted session lifetimes
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// SSORedirectURL, when set, turns authorization denials into a
	// redirect to the single-sign-on entry point instead of a 403
	SSORedirectURL string `mapstructure:"sso_redirect_url" validate:"omitempty,url" yaml:"sso_redirect_url,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CONNECTOR_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please create a configuration file or specify one:\n"+
				"  connectord <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupViper configures environment variable and config file handling.
func setupViper(v *viper.Viper, configPath string) {
	// Example: CONNECTOR_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CONNECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook converts strings like "30s" or "5m" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path. Uses
// XDG_CONFIG_HOME if set, otherwise ~/.config.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "connector")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "connector")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

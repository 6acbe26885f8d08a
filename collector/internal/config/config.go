package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the collector configuration.
const (
	DefaultListen         = ":8080"
	DefaultMaxBodyBytes   = 64 * 1024
	DefaultStoreTTL       = time.Hour
	DefaultStreamInterval = 5 * time.Second
	DefaultAPIKeyHeader   = "x-api-key"

	DefaultOutputHostname = "asgw"
	DefaultSyslogPort     = 514
	DefaultSyslogFacility = 16
	DefaultSyslogSeverity = 6

	DefaultMaxOrg       = 32
	DefaultMaxSys       = 32
	DefaultMaxApp       = 256
	DefaultMaxDataSize  = 2048
	DefaultMaxDataCount = 8
)

// Config holds the collector configuration parsed from the `collector:`
// section of the config file.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig holds all collector settings.
type CollectorConfig struct {
	// Listen is the address the HTTP server binds, e.g. ":8080".
	Listen string `yaml:"listen"`

	// MaxBodyBytes caps the POST /v1/msg body; larger bodies get 413.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	Limits LimitsConfig `yaml:"limits"`

	// SaveIP records the client address with each accepted report.
	// Enabled unless the file sets save_ip: false.
	SaveIP bool `yaml:"save_ip"`

	// TLS serves HTTPS when both files are set.
	TLS TLSConfig `yaml:"tls"`

	// Transform and Output forward every accepted observation.
	Transform TransformConfig `yaml:"transform"`
	Output    OutputConfig    `yaml:"output"`

	// Auth guards the report query API. Ingestion is never authenticated.
	Auth AuthConfig `yaml:"auth"`

	Store StoreConfig `yaml:"store"`

	// StreamInterval is how often /v1/stream clients receive a summary.
	StreamInterval time.Duration `yaml:"stream_interval"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// LimitsConfig bounds the reports the collector accepts.
type LimitsConfig struct {
	MaxOrg       int `yaml:"max_org"`
	MaxSys       int `yaml:"max_sys"`
	MaxApp       int `yaml:"max_app"`
	MaxDataSize  int `yaml:"max_data_size"`
	MaxDataCount int `yaml:"max_data_count"`

	// LimitOrg, when set, is the only organization id (40 hex chars) accepted.
	LimitOrg string `yaml:"limit_org"`
}

// LimitOrgBytes returns the decoded LimitOrg, or nil when unset.
// Load has already validated the encoding.
func (l LimitsConfig) LimitOrgBytes() []byte {
	if l.LimitOrg == "" {
		return nil
	}
	b, _ := hex.DecodeString(l.LimitOrg)
	return b
}

// TLSConfig holds the server certificate for HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both the certificate and key are configured.
func (t TLSConfig) Enabled() bool { return t.CertFile != "" && t.KeyFile != "" }

// TransformConfig selects how observations are rendered for the output.
type TransformConfig struct {
	// Format is one of: json | kvp.
	Format string `yaml:"format"`

	// IncludeOrg adds the organization id to every record.
	IncludeOrg bool `yaml:"include_org"`
}

// OutputConfig selects where transformed observations are sent.
type OutputConfig struct {
	// Type is one of: none | console | file | udpsyslog | tcpsyslog.
	Type string `yaml:"type"`

	// Path is the file the file output appends to.
	Path string `yaml:"path"`

	// Hostname names this collector in file and syslog records (default "asgw").
	Hostname string `yaml:"hostname"`

	Syslog SyslogConfig `yaml:"syslog"`
}

// SyslogConfig addresses an RFC 5424 syslog receiver.
type SyslogConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Facility int    `yaml:"facility"`
	Severity int    `yaml:"severity"`
}

// AuthConfig controls client authentication on the query API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from (default "x-api-key").
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultAPIKeyHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// StoreConfig selects and tunes the report store.
type StoreConfig struct {
	// Backend is one of: memory | bolt.
	Backend string `yaml:"backend"`

	// Path is the bbolt database file. Required for the bolt backend.
	Path string `yaml:"path"`

	// TTL is how long an accepted report is kept. Zero keeps reports forever.
	TTL time.Duration `yaml:"ttl"`
}

// Load reads and parses the config file at path, returning the collector
// configuration. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("collector config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("collector config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("collector config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Collector: CollectorConfig{
			Listen:       DefaultListen,
			MaxBodyBytes: DefaultMaxBodyBytes,
			Limits: LimitsConfig{
				MaxOrg:       DefaultMaxOrg,
				MaxSys:       DefaultMaxSys,
				MaxApp:       DefaultMaxApp,
				MaxDataSize:  DefaultMaxDataSize,
				MaxDataCount: DefaultMaxDataCount,
			},
			SaveIP:    true,
			Transform: TransformConfig{Format: "json"},
			Output: OutputConfig{
				Type:     "none",
				Hostname: DefaultOutputHostname,
				Syslog: SyslogConfig{
					Port:     DefaultSyslogPort,
					Facility: DefaultSyslogFacility,
					Severity: DefaultSyslogSeverity,
				},
			},
			Auth:           AuthConfig{Mode: "none"},
			Store:          StoreConfig{Backend: "memory", TTL: DefaultStoreTTL},
			StreamInterval: DefaultStreamInterval,
			LogLevel:       "info",
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	c := cfg.Collector
	if c.Listen == "" {
		return fmt.Errorf("collector.listen is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("collector.max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}

	l := c.Limits
	for name, v := range map[string]int{
		"max_org":        l.MaxOrg,
		"max_sys":        l.MaxSys,
		"max_app":        l.MaxApp,
		"max_data_size":  l.MaxDataSize,
		"max_data_count": l.MaxDataCount,
	} {
		if v <= 0 {
			return fmt.Errorf("collector.limits.%s must be positive, got %d", name, v)
		}
	}
	if l.LimitOrg != "" {
		b, err := hex.DecodeString(l.LimitOrg)
		if err != nil || len(b) != 20 {
			return fmt.Errorf("collector.limits.limit_org must be 40 hex chars")
		}
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("collector.tls needs both cert_file and key_file")
	}

	switch c.Transform.Format {
	case "json", "kvp":
	default:
		return fmt.Errorf("collector.transform.format %q unknown: want json|kvp", c.Transform.Format)
	}
	if c.Output.Hostname == "" || strings.ContainsAny(c.Output.Hostname, " \t\n") {
		return fmt.Errorf("collector.output.hostname must be a single non-empty word")
	}
	switch c.Output.Type {
	case "none", "console":
	case "file":
		if c.Output.Path == "" {
			return fmt.Errorf("collector.output.path is required for the file output")
		}
	case "udpsyslog", "tcpsyslog":
		sl := c.Output.Syslog
		if sl.Host == "" {
			return fmt.Errorf("collector.output.syslog.host is required for %s", c.Output.Type)
		}
		if sl.Port <= 0 || sl.Port > 65535 {
			return fmt.Errorf("collector.output.syslog.port %d out of range", sl.Port)
		}
		if sl.Facility < 0 || sl.Facility > 23 || sl.Severity < 0 || sl.Severity > 7 {
			return fmt.Errorf("collector.output.syslog facility/severity out of range")
		}
	default:
		return fmt.Errorf("collector.output.type %q unknown: want none|console|file|udpsyslog|tcpsyslog", c.Output.Type)
	}

	switch c.Auth.Mode {
	case "apikey":
		if c.Auth.KeyEnv == "" {
			return fmt.Errorf("collector.auth.key_env is required for apikey mode")
		}
	case "none", "":
	default:
		return fmt.Errorf("collector.auth.mode %q unknown: want apikey|none", c.Auth.Mode)
	}

	switch c.Store.Backend {
	case "memory":
	case "bolt":
		if c.Store.Path == "" {
			return fmt.Errorf("collector.store.path is required for the bolt backend")
		}
	default:
		return fmt.Errorf("collector.store.backend %q unknown: want memory|bolt", c.Store.Backend)
	}
	if c.Store.TTL < 0 {
		return fmt.Errorf("collector.store.ttl must not be negative")
	}
	if c.StreamInterval <= 0 {
		return fmt.Errorf("collector.stream_interval must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("collector.log_level %q unknown: want debug|info|warn|error", c.LogLevel)
	}
	return nil
}

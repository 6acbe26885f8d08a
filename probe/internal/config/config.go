package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultURIEnv   = "MSG_URI"
	DefaultEnvFile  = ".env"
	DefaultLogLevel = "info"
)

// Config is the top-level probe configuration.
// Fields map 1:1 to config/probe.example.yaml.
type Config struct {
	Target    TargetConfig   `yaml:"target"`
	Scenarios ScenarioConfig `yaml:"scenarios"`
	Output    OutputConfig   `yaml:"output"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// TargetConfig describes the collector endpoint every scenario is sent to.
type TargetConfig struct {
	// URI is the full URL reports are POSTed to, e.g. https://host/v1/msg.
	// When empty it is resolved from the URIEnv environment variable.
	URI string `yaml:"uri"`

	// URIEnv is the name of the environment variable holding the URI.
	URIEnv string `yaml:"uri_env"`

	// EnvFile is an optional dotenv file loaded before URIEnv is resolved.
	// Relative paths are resolved against the config file's directory.
	// Variables already set in the process environment win.
	EnvFile string `yaml:"env_file"`

	// InsecureSkipVerify disables TLS certificate verification for this
	// target only. Intended for collectors with self-signed certificates in
	// a controlled test environment.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Timeout bounds one delivery. Zero leaves the platform default.
	Timeout time.Duration `yaml:"timeout"`

	// Headers are added verbatim to every request.
	Headers map[string]string `yaml:"headers"`

	// TLS holds optional client certificate and CA settings.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds optional client-side TLS material.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// ScenarioConfig selects and tunes the scenarios that run.
type ScenarioConfig struct {
	// Include lists scenario names to run, in catalog order. Empty runs all.
	Include []string `yaml:"include"`

	// Expect overrides the expected HTTP status per scenario name.
	Expect map[string]int `yaml:"expect"`
}

// OutputConfig controls where run artefacts are written. Empty disables.
type OutputConfig struct {
	// DumpDir receives one <scenario>.pb file per serialized payload.
	DumpDir string `yaml:"dump_dir"`

	// MetricsFile receives the run summary in Prometheus text format.
	MetricsFile string `yaml:"metrics_file"`

	// JSONFile receives the run summary as JSON.
	JSONFile string `yaml:"json_file"`
}

// Override mutates a loaded Config before validation. Used for CLI flags.
type Override func(*Config)

// WithTarget replaces the target URI when uri is non-empty.
func WithTarget(uri string) Override {
	return func(c *Config) {
		if uri != "" {
			c.Target.URI = uri
		}
	}
}

// WithScenarios replaces the scenario selection when names is non-empty.
func WithScenarios(names []string) Override {
	return func(c *Config) {
		if len(names) > 0 {
			c.Scenarios.Include = names
		}
	}
}

// WithInsecure forces certificate verification off when insecure is true.
func WithInsecure(insecure bool) Override {
	return func(c *Config) {
		if insecure {
			c.Target.InsecureSkipVerify = true
		}
	}
}

// Load reads and parses the YAML config file at path, resolves environment
// indirections, applies overrides, and validates the result.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if cfg.Target.EnvFile != "" {
		envPath := cfg.Target.EnvFile
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(filepath.Dir(path), envPath)
		}
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("config: load env file %q: %w", envPath, err)
		}
	}

	return finish(cfg, overrides)
}

// FromEnv builds a Config without a config file: defaults, an optional
// DefaultEnvFile in the working directory, then the URI from DefaultURIEnv.
func FromEnv(overrides ...Override) (*Config, error) {
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file %q: %w", DefaultEnvFile, err)
	}
	return finish(defaults(), overrides)
}

func finish(cfg *Config, overrides []Override) (*Config, error) {
	if cfg.Target.URI == "" && cfg.Target.URIEnv != "" {
		cfg.Target.URI = os.Getenv(cfg.Target.URIEnv)
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Target: TargetConfig{
			URIEnv: DefaultURIEnv,
		},
		LogLevel: DefaultLogLevel,
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Target.URI == "" {
		return fmt.Errorf("target.uri is required (or set $%s)", cfg.Target.URIEnv)
	}
	u, err := url.Parse(cfg.Target.URI)
	if err != nil {
		return fmt.Errorf("target.uri: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("target.uri %q: scheme must be http or https", cfg.Target.URI)
	}
	if u.Host == "" {
		return fmt.Errorf("target.uri %q: host is required", cfg.Target.URI)
	}
	if cfg.Target.Timeout < 0 {
		return fmt.Errorf("target.timeout must not be negative")
	}
	if (cfg.Target.TLS.CertFile == "") != (cfg.Target.TLS.KeyFile == "") {
		return fmt.Errorf("target.tls: cert_file and key_file must be set together")
	}
	for name, code := range cfg.Scenarios.Expect {
		if code < 100 || code > 599 {
			return fmt.Errorf("scenarios.expect[%q]: status %d out of range [100, 599]", name, code)
		}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	return nil
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
target:
  uri: "https://collector.local:8443/v1/msg"
  insecure_skip_verify: true
  timeout: 5s
  headers:
    X-Forwarded-For: "10.1.2.3"
scenarios:
  include: [oversized-data, repeated-data-items]
  expect:
    oversized-organization-id: 413
output:
  dump_dir: /tmp/payloads
log_level: debug
`
	cfg := loadFromString(t, yaml)

	if cfg.Target.URI != "https://collector.local:8443/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
	if !cfg.Target.InsecureSkipVerify {
		t.Error("target.insecure_skip_verify: got false")
	}
	if cfg.Target.Timeout != 5*time.Second {
		t.Errorf("target.timeout: got %v", cfg.Target.Timeout)
	}
	if got := cfg.Target.Headers["X-Forwarded-For"]; got != "10.1.2.3" {
		t.Errorf("headers: got %q", got)
	}
	if len(cfg.Scenarios.Include) != 2 || cfg.Scenarios.Include[1] != "repeated-data-items" {
		t.Errorf("scenarios.include: got %v", cfg.Scenarios.Include)
	}
	if cfg.Scenarios.Expect["oversized-organization-id"] != 413 {
		t.Errorf("scenarios.expect: got %v", cfg.Scenarios.Expect)
	}
	if cfg.Output.DumpDir != "/tmp/payloads" {
		t.Errorf("output.dump_dir: got %q", cfg.Output.DumpDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level: got %q", cfg.LogLevel)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
target:
  uri: "http://localhost:8080/v1/msg"
`)
	if cfg.Target.URIEnv != DefaultURIEnv {
		t.Errorf("default uri_env: got %q, want %q", cfg.Target.URIEnv, DefaultURIEnv)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("default log_level: got %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.Target.InsecureSkipVerify {
		t.Error("insecure_skip_verify must default to false")
	}
	if cfg.Target.Timeout != 0 {
		t.Errorf("default timeout: got %v, want 0", cfg.Target.Timeout)
	}
}

func TestLoad_URIFromEnvironment(t *testing.T) {
	t.Setenv("PROBE_TEST_URI", "http://from-env:9000/v1/msg")
	cfg := loadFromString(t, `
target:
  uri_env: PROBE_TEST_URI
`)
	if cfg.Target.URI != "http://from-env:9000/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
}

func TestLoad_URIFromEnvFile(t *testing.T) {
	const key = "PROBE_TEST_ENVFILE_URI"
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "probe.env"), []byte(key+"=http://dotenv:8080/v1/msg\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	path := filepath.Join(dir, "probe.yaml")
	content := `
target:
  uri_env: ` + key + `
  env_file: probe.env
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Target.URI != "http://dotenv:8080/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := loadStringErr(t, `
target:
  uri: "http://localhost/v1/msg"
  env_file: does-not-exist.env
`)
	if err == nil {
		t.Fatal("expected error for missing env_file, got nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing uri", "target:\n  uri_env: PROBE_TEST_UNSET_VAR\n"},
		{"bad scheme", "target:\n  uri: \"ftp://host/v1/msg\"\n"},
		{"no host", "target:\n  uri: \"http:///v1/msg\"\n"},
		{"negative timeout", "target:\n  uri: \"http://h/v1/msg\"\n  timeout: -1s\n"},
		{"cert without key", "target:\n  uri: \"https://h/v1/msg\"\n  tls:\n    cert_file: c.pem\n"},
		{"expect out of range", "target:\n  uri: \"http://h/v1/msg\"\nscenarios:\n  expect:\n    oversized-data: 42\n"},
		{"unknown log level", "target:\n  uri: \"http://h/v1/msg\"\nlog_level: chatty\n"},
		{"bad yaml", "target: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
target:
  uri: "http://file:8080/v1/msg"
scenarios:
  include: [oversized-data]
`)
	cfg, err := Load(path,
		WithTarget("https://flag:8443/v1/msg"),
		WithScenarios([]string{"repeated-data-items"}),
		WithInsecure(true),
	)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Target.URI != "https://flag:8443/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
	if len(cfg.Scenarios.Include) != 1 || cfg.Scenarios.Include[0] != "repeated-data-items" {
		t.Errorf("scenarios.include: got %v", cfg.Scenarios.Include)
	}
	if !cfg.Target.InsecureSkipVerify {
		t.Error("insecure override not applied")
	}
}

func TestLoad_EmptyOverridesKeepFileValues(t *testing.T) {
	path := writeConfig(t, `
target:
  uri: "http://file:8080/v1/msg"
`)
	cfg, err := Load(path, WithTarget(""), WithScenarios(nil), WithInsecure(false))
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Target.URI != "http://file:8080/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
}

func TestFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(DefaultURIEnv, "http://env-only:8080/v1/msg")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() unexpected error: %v", err)
	}
	if cfg.Target.URI != "http://env-only:8080/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
}

func TestFromEnv_TargetOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(DefaultURIEnv, "")

	cfg, err := FromEnv(WithTarget("http://flag-only/v1/msg"))
	if err != nil {
		t.Fatalf("FromEnv() unexpected error: %v", err)
	}
	if cfg.Target.URI != "http://flag-only/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "target:\n  uri: \"http://before/v1/msg\"\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c })
	}()

	// Keep rewriting until the watcher is registered and picks up a change.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case c := <-got:
			if c.Target.URI != "http://after/v1/msg" {
				t.Errorf("reloaded target.uri: got %q", c.Target.URI)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-ticker.C:
			if err := os.WriteFile(path, []byte("target:\n  uri: \"http://after/v1/msg\"\n"), 0o600); err != nil {
				t.Fatalf("rewrite config: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("no reload observed before timeout")
		}
	}
}

// writeConfig writes content to a temp config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	return Load(writeConfig(t, content))
}

func TestLoad_ExampleFile(t *testing.T) {
	t.Setenv(DefaultURIEnv, "https://collector.local/v1/msg")
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "probe.example.yaml"))
	if err != nil {
		t.Fatalf("Load(example) unexpected error: %v", err)
	}
	if cfg.Target.URI != "https://collector.local/v1/msg" {
		t.Errorf("target.uri: got %q", cfg.Target.URI)
	}
	if cfg.Target.Timeout != 30*time.Second {
		t.Errorf("target.timeout: got %v", cfg.Target.Timeout)
	}
}

// Package config loads and watches the probe configuration file (probe.yaml).
//
// Top-level types:
//   - Config{Target, Scenarios, Output, LogLevel} — full config tree parsed from YAML
//   - TargetConfig — uri, uri_env, env_file, insecure_skip_verify, timeout,
//     headers, tls (client cert/key and CA)
//   - ScenarioConfig — include (names to run) and expect (status overrides)
//   - OutputConfig — dump_dir, metrics_file, json_file
//
// Load(path, overrides...) reads the YAML file, applies defaults, loads the
// optional dotenv file (godotenv), resolves the URI from uri_env (MSG_URI by
// default) when uri is empty, applies CLI overrides, then validates.
// FromEnv(overrides...) does the same without a config file.
//
// Watch(ctx, path, onChange, overrides...) uses fsnotify to detect file
// changes and calls onChange with the newly parsed Config. It re-adds the
// watch after every reload to survive the rename→create pattern used by
// atomic-save editors.
package config

// Package config loads the collector configuration from the `collector:`
// section of a YAML file. Other top-level keys are ignored, so the probe and
// the collector can share one file.
//
// Config fields:
//   - Listen         — HTTP listen address (default ":8080")
//   - MaxBodyBytes   — request body limit for POST /v1/msg (default 65536)
//   - Limits         — per-field report limits; oversized identity fields drop
//     the report, oversized data items are skipped, and at most
//     MaxDataCount items are kept per observation
//   - Limits.LimitOrg — optional 40-hex-char organization id; reports from any
//     other organization are dropped
//   - SaveIP         — record the client address (X-Forwarded-For, else peer);
//     on unless the file sets save_ip: false
//   - TLS            — cert_file and key_file; both set serves HTTPS
//   - Transform      — "json" (default) or "kvp"; include_org adds the org id
//   - Output         — "none" (default), "console", "file" (Path required),
//     "udpsyslog" or "tcpsyslog" (Syslog.Host required, port 514)
//   - Auth.Mode      — "apikey" or "none"; guards the report query API only
//   - Store.Backend  — "memory" (default) or "bolt" (Store.Path required)
//   - Store.TTL      — how long an accepted report is retained (default 1h)
//   - StreamInterval — WebSocket summary broadcast period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config

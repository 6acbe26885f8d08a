// Package api implements the collector's read-only report API.
//
// Register(router) adds:
//
//	GET /v1/reports            — newest-first summaries ([]ReportSummary), ?limit=N
//	GET /v1/reports/{id}       — one admitted report (ReportResponse); 404 if unknown
//	GET /v1/reports/{id}/raw   — the body exactly as received, application/octet-stream
//	GET /v1/stats              — stored report count and collector uptime
//
// JSON endpoints respond with Content-Type: application/json. Identifier bytes
// are rendered as lowercase hex and data payloads as standard base64.
// Authentication is applied by the caller with auth.APIKey on the subrouter.
package api

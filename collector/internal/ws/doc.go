// Package ws implements the collector's WebSocket live feed (/v1/stream).
//
// Hub keeps the set of connected clients. Run(ctx) broadcasts a "reports"
// event every interval and closes all clients when ctx is cancelled.
// Publish(entry) pushes a "report" event immediately; the receiver calls it
// for every stored report.
//
// Message format:
//
//	{"event": "reports", "data": {"generated_at": ..., "count": N, "reports": [ReportSummary...]}}
//	{"event": "report",  "data": ReportSummary}
//
// A client whose send buffer is full is disconnected. The upgrader accepts
// all origins; restrict them at the reverse proxy.
package ws

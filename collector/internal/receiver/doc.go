// Package receiver implements the collector's ingestion endpoint.
//
//	POST /v1/msg  — CTI report body (application/octet-stream)
//	GET  /v1/msg  — ping, always 200
//	GET  /        — health, always 200
//
// A POST body larger than the configured limit is answered 413. Everything
// else that can be read is answered 200 whether or not the report is kept:
// undecodable payloads, reports over the identity limits, reports from an
// organization other than limit_org, and reports without observations are
// counted and dropped. Admitted reports have empty and oversized data items
// skipped and each observation truncated to MaxDataCount items. They are then
// forwarded to the configured output, if any, and stored. Only an output or
// store failure produces 500.
//
// Devices are never authenticated here; see package auth for the query API.
package receiver

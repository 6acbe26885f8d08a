// Package store keeps the reports accepted by the collector.
//
// Two backends implement Store:
//   - Memory: a mutex-guarded map, lost on restart
//   - Bolt:   a bbolt file, one bucket keyed by report id, values JSON records
//     holding the raw request body and the admitted report encoding
//
// Both stamp ReceivedAt from their clock when the caller leaves it zero, hide
// entries older than the TTL from Get and List, and remove them on Evict. A
// zero TTL keeps entries forever. Run drives Evict on a ticker until its
// context is cancelled.
package store

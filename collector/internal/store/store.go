package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/additionsec/as-gateway/pkg/cti"
)

// ErrNotFound is returned by Get for a missing or expired id.
var ErrNotFound = errors.New("store: report not found")

// Entry is one accepted report.
type Entry struct {
	ID         string
	ReceivedAt time.Time

	// RemoteIP is the client address, empty unless the collector saves it.
	RemoteIP string

	// Report is the admitted report: empty and oversized data items skipped and each
	// observation capped at the configured item count.
	Report *cti.Report

	// Raw is the request body exactly as received.
	Raw []byte

	// SkippedItems is the number of data items dropped during admission.
	SkippedItems int
}

// Store persists accepted reports. Implementations are safe for concurrent use.
type Store interface {
	Put(e *Entry) error
	Get(id string) (*Entry, error)

	// List returns live entries, newest first.
	List() ([]*Entry, error)

	// Count returns the number of entries held, including expired ones not
	// yet evicted.
	Count() (int, error)

	// Evict removes entries received at or before now minus the TTL and
	// returns how many were removed.
	Evict(now time.Time) (int, error)

	Close() error
}

// Run calls s.Evict every half TTL (minimum 1 second) until ctx is
// cancelled. With a zero TTL it only waits for ctx.
func Run(ctx context.Context, s Store, ttl time.Duration) {
	if ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.Evict(now)
			if err != nil {
				slog.Error("store: eviction failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("store: evicted expired reports", "count", n)
			}
		}
	}
}

// live reports whether an entry received at ts is within ttl of now.
func live(ts, now time.Time, ttl time.Duration) bool {
	return ttl <= 0 || ts.After(now.Add(-ttl))
}

// sortNewestFirst orders entries by ReceivedAt descending, then by id.
func sortNewestFirst(entries []*Entry) {
	slices.SortFunc(entries, func(a, b *Entry) int {
		if c := b.ReceivedAt.Compare(a.ReceivedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/additionsec/as-gateway/pkg/cti"
)

// BucketReports holds one record per accepted report, keyed by id.
const BucketReports = "Reports"

// boltRecord is the JSON value stored per report.
type boltRecord struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	RemoteIP   string    `json:"remote_ip,omitempty"`
	Raw        []byte    `json:"raw"`
	Report     []byte    `json:"report"` // cti encoding of the admitted report
	Skipped    int       `json:"skipped_items,omitempty"`
}

// Bolt is a Store backed by a bbolt database file.
type Bolt struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// OpenBolt opens (or creates) the database at path and its reports bucket.
func OpenBolt(path string, ttl time.Duration) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketReports)); err != nil {
			return fmt.Errorf("store: create bucket %s: %w", BucketReports, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db, ttl: ttl, now: time.Now}, nil
}

// Put serializes e and stores it under e.ID.
func (s *Bolt) Put(e *Entry) error {
	if e == nil || e.ID == "" {
		return errors.New("store: entry id is required")
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = s.now()
	}

	rec := boltRecord{ID: e.ID, ReceivedAt: e.ReceivedAt, RemoteIP: e.RemoteIP, Raw: e.Raw, Skipped: e.SkippedItems}
	if e.Report != nil {
		b, err := cti.Marshal(e.Report)
		if err != nil {
			return fmt.Errorf("store: encode report: %w", err)
		}
		rec.Report = b
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: serialize entry: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketReports))
		if bucket == nil {
			return fmt.Errorf("store: %s bucket not found", BucketReports)
		}
		if err := bucket.Put([]byte(e.ID), data); err != nil {
			return fmt.Errorf("store: put %s: %w", e.ID, err)
		}
		return nil
	})
}

// Get returns the live entry for id, or ErrNotFound.
func (s *Bolt) Get(id string) (*Entry, error) {
	var e *Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(BucketReports)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var err error
		e, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !live(e.ReceivedAt, s.now(), s.ttl) {
		return nil, ErrNotFound
	}
	return e, nil
}

// List returns all live entries, newest first.
func (s *Bolt) List() ([]*Entry, error) {
	now := s.now()
	var out []*Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketReports)).ForEach(func(_, v []byte) error {
			e, err := decodeRecord(v)
			if err != nil {
				return err
			}
			if live(e.ReceivedAt, now, s.ttl) {
				out = append(out, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// Count returns the number of keys in the reports bucket.
func (s *Bolt) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(BucketReports)).Stats().KeyN
		return nil
	})
	return n, err
}

// Evict deletes entries that are no longer live at now.
func (s *Bolt) Evict(now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketReports))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("store: deserialize %s: %w", k, err)
			}
			if !live(rec.ReceivedAt, now, s.ttl) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("store: delete %s: %w", k, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the database file.
func (s *Bolt) Close() error {
	return s.db.Close()
}

func decodeRecord(data []byte) (*Entry, error) {
	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: deserialize entry: %w", err)
	}
	e := &Entry{
		ID:           rec.ID,
		ReceivedAt:   rec.ReceivedAt,
		RemoteIP:     rec.RemoteIP,
		Raw:          rec.Raw,
		SkippedItems: rec.Skipped,
	}
	if rec.Report != nil {
		r, err := cti.Unmarshal(rec.Report)
		if err != nil {
			return nil, fmt.Errorf("store: decode report %s: %w", rec.ID, err)
		}
		e.Report = r
	}
	return e, nil
}

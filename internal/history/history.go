// Package history keeps a record of compaction attempts in a BoltDB file.
//
// The database is opened for each call and closed again so that a running
// daemon and one-off CLI invocations can share it.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/szaher/contextd/internal/compaction"
	"github.com/szaher/contextd/internal/namespace"
)

// Dir is the directory under the data root holding daemon state. Its name is
// never a conversation id, so discovery skips it.
const Dir = ".contextd"

const (
	fileName    = "history.db"
	rootBucket  = "compactions"
	openTimeout = 2 * time.Second
)

// Entry is one recorded compaction attempt.
type Entry struct {
	RunID          string        `json:"run_id,omitempty"`
	TenantID       int64         `json:"tenant"`
	ConversationID int64         `json:"conversation"`
	Status         string        `json:"status"`
	LiveBytes      int           `json:"live_bytes"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
	At             time.Time     `json:"at"`
}

// Key returns the conversation the entry belongs to.
func (e Entry) Key() namespace.Key {
	return namespace.Key{TenantID: e.TenantID, ConversationID: e.ConversationID}
}

// FromResult converts a compaction result.
func FromResult(runID string, at time.Time, res compaction.Result) Entry {
	e := Entry{
		RunID:          runID,
		TenantID:       res.Key.TenantID,
		ConversationID: res.Key.ConversationID,
		Status:         string(res.Status),
		LiveBytes:      res.LiveBytes,
		Duration:       res.Duration,
		At:             at.UTC(),
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// Store reads and writes the history file.
type Store struct {
	path string
}

// DefaultPath returns the history file location for a data root.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, Dir, fileName)
}

// New returns a store backed by the file at path. The file is created on
// first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) open(readOnly bool) (*bolt.DB, error) {
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: openTimeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", s.path, err)
	}
	return db, nil
}

// Record appends entries.
func (s *Store) Record(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		if err != nil {
			return err
		}
		for _, e := range entries {
			b, err := root.CreateBucketIfNotExists([]byte(e.Key().String()))
			if err != nil {
				return err
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			enc, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(itob(seq), enc); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordReport records every result of a sweep.
func (s *Store) RecordReport(r *compaction.Report) error {
	entries := make([]Entry, 0, len(r.Results))
	for _, res := range r.Results {
		entries = append(entries, FromResult(r.RunID, r.Finished, res))
	}
	return s.Record(entries...)
}

// List returns up to limit entries for key, newest first. A limit of zero or
// less returns all of them.
func (s *Store) List(key namespace.Key, limit int) ([]Entry, error) {
	var out []Entry
	err := s.view(func(root *bolt.Bucket) error {
		b := root.Bucket([]byte(key.String()))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				// Skip malformed entries rather than failing the listing.
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// ListAll returns up to limit entries across every conversation, newest
// first.
func (s *Store) ListAll(limit int) ([]Entry, error) {
	var out []Entry
	err := s.view(func(root *bolt.Bucket) error {
		return root.ForEach(func(name, v []byte) error {
			// Nested buckets have nil values.
			if v != nil {
				return nil
			}
			return root.Bucket(name).ForEach(func(_, v []byte) error {
				var e Entry
				if err := json.Unmarshal(v, &e); err == nil {
					out = append(out, e)
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) view(fn func(root *bolt.Bucket) error) error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return nil
		}
		return fn(root)
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

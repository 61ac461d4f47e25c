package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var errReadOnly = errors.New("journal is open read-only")

var (
	entriesBucket = []byte("entries")
	// byCodeBucket indexes entries as codeID|seq with empty values.
	byCodeBucket = []byte("by_code")
)

type boltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
	ro  bool

	mu          sync.Mutex
	every       time.Duration
	nextCleanup time.Time
}

func openBolt(path string, opts Options) (*boltStore, error) {
	if opts.ReadOnly {
		db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
		if err != nil {
			return nil, fmt.Errorf("open journal %s read-only: %w", path, err)
		}
		return &boltStore{db: db, ttl: opts.EntryTTL, now: time.Now, ro: true}, nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, byCodeBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &boltStore{db: db, ttl: opts.EntryTTL, every: opts.CleanupInterval, now: time.Now}
	s.nextCleanup = s.now().Add(s.every)
	return s, nil
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stamps e with the next sequence id, its time and its expiry, then
// stores it.
func (s *boltStore) Record(e Entry) (Entry, error) {
	if s.ro {
		return e, errReadOnly
	}
	now := s.now()
	if err := s.cleanupIfDue(now); err != nil {
		return e, err
	}
	if e.At.IsZero() {
		e.At = now.UTC()
	}
	e.ExpiresAt = now.Add(s.ttl).UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		seq, err := entries.NextSequence()
		if err != nil {
			return err
		}
		e.ID = seq
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode journal entry: %w", err)
		}
		if err := entries.Put(seqKey(seq), raw); err != nil {
			return err
		}
		return tx.Bucket(byCodeBucket).Put(codeKey(e.CodeID, seq), nil)
	})
	if err != nil {
		return e, fmt.Errorf("record %s of code %d: %w", e.Action, e.CodeID, err)
	}
	return e, nil
}

func (s *boltStore) List(limit int) ([]Entry, error) {
	now := s.now()
	if err := s.cleanupIfDue(now); err != nil {
		return nil, err
	}

	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		if entries == nil {
			return nil
		}
		c := entries.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if e, ok := decodeLive(v, now); ok {
				out = append(out, e)
				if limit > 0 && len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (s *boltStore) ListForCode(codeID, limit int) ([]Entry, error) {
	now := s.now()
	if err := s.cleanupIfDue(now); err != nil {
		return nil, err
	}

	prefix := seqKey(uint64(codeID))
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		entries, index := tx.Bucket(entriesBucket), tx.Bucket(byCodeBucket)
		if entries == nil || index == nil {
			return nil
		}
		c := index.Cursor()

		// Walk the code's index range backwards: seek past it, then step back.
		k, _ := c.Seek(seqKey(uint64(codeID) + 1))
		if k == nil {
			k, _ = c.Last()
		} else {
			k, _ = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Prev() {
			if e, ok := decodeLive(entries.Get(k[8:]), now); ok {
				out = append(out, e)
				if limit > 0 && len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

// cleanupIfDue drops expired entries and their index keys at most once per
// cleanup interval.
func (s *boltStore) cleanupIfDue(now time.Time) error {
	if s.ro {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.nextCleanup) {
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		var expired [][]byte
		err := entries.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err == nil && e.ExpiresAt.After(now) {
				return nil
			}
			expired = append(expired, codeKey(e.CodeID, binary.BigEndian.Uint64(k)))
			return nil
		})
		if err != nil {
			return err
		}
		index := tx.Bucket(byCodeBucket)
		for _, key := range expired {
			if err := index.Delete(key); err != nil {
				return err
			}
			if err := entries.Delete(key[8:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	s.nextCleanup = now.Add(s.every)
	return nil
}

func decodeLive(raw []byte, now time.Time) (Entry, bool) {
	var e Entry
	if raw == nil || json.Unmarshal(raw, &e) != nil {
		return Entry{}, false
	}
	return e, e.ExpiresAt.After(now)
}

func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), seq)
}

func codeKey(codeID int, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(seqKey(uint64(codeID)), seq)
}

// Package storage keeps a local journal of code mutations accepted by VAN.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Entry is one recorded mutation.
type Entry struct {
	ID        uint64          `json:"id" yaml:"id"`
	Action    string          `json:"action" yaml:"action"`
	CodeID    int             `json:"code_id,omitempty" yaml:"code_id,omitempty"`
	Name      string          `json:"name,omitempty" yaml:"name,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty" yaml:"-"`
	At        time.Time       `json:"at" yaml:"at"`
	ExpiresAt time.Time       `json:"expires_at" yaml:"expires_at"`
}

// Store records and lists journal entries. List methods return unexpired
// entries newest first; a limit <= 0 means no limit.
type Store interface {
	Close() error
	Record(e Entry) (Entry, error)
	List(limit int) ([]Entry, error)
	ListForCode(codeID, limit int) ([]Entry, error)
}

// Options sets journal retention. ReadOnly opens the journal with a shared
// lock so several readers can list it at once; Record fails on such a store
// and expired entries are skipped but not pruned.
type Options struct {
	EntryTTL        time.Duration
	CleanupInterval time.Duration
	ReadOnly        bool
}

const (
	defaultEntryTTL        = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore opens the journal backend named by typ: "bbolt", or "none" to
// disable journaling.
func NewStore(typ, path string, opts Options) (Store, error) {
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = defaultEntryTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}

	switch typ = strings.ToLower(strings.TrimSpace(typ)); typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt journal requires a path")
		}
		if opts.ReadOnly {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return noopStore{}, nil
			}
		}
		store, err := openBolt(path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported journal type %q", typ)
	}
}

type noopStore struct{}

func (noopStore) Close() error                          { return nil }
func (noopStore) Record(e Entry) (Entry, error)         { return e, nil }
func (noopStore) List(int) ([]Entry, error)             { return nil, nil }
func (noopStore) ListForCode(int, int) ([]Entry, error) { return nil, nil }

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, opts Options) *boltStore {
	t.Helper()
	if opts.EntryTTL == 0 {
		opts.EntryTTL = defaultEntryTTL
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	store, err := openBolt(filepath.Join(t.TempDir(), "journal.db"), opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreRecordsNewestFirst(t *testing.T) {
	store := openTestStore(t, Options{})

	first, err := store.Record(Entry{Action: ActionCreate, CodeID: 10, Name: "a", Payload: json.RawMessage(`{"name":"a"}`)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if first.ID == 0 || first.At.IsZero() || first.ExpiresAt.IsZero() {
		t.Fatalf("expected id and timestamps to be stamped, got %+v", first)
	}
	if _, err := store.Record(Entry{Action: ActionDelete, CodeID: 10}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != ActionDelete || entries[1].Action != ActionCreate {
		t.Fatalf("unexpected order %+v", entries)
	}
	if string(entries[1].Payload) != `{"name":"a"}` {
		t.Fatalf("payload not preserved: %s", entries[1].Payload)
	}

	limited, err := store.List(1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("List(1) = %d entries, err=%v", len(limited), err)
	}
}

func TestBoltStoreListForCode(t *testing.T) {
	store := openTestStore(t, Options{})

	for _, e := range []Entry{
		{Action: ActionCreate, CodeID: 5},
		{Action: ActionCreate, CodeID: 6},
		{Action: ActionUpdate, CodeID: 5},
		{Action: ActionCreate, CodeID: 7},
		{Action: ActionDelete, CodeID: 5},
	} {
		if _, err := store.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.ListForCode(5, 0)
	if err != nil {
		t.Fatalf("ListForCode: %v", err)
	}
	if len(got) != 3 || got[0].Action != ActionDelete || got[2].Action != ActionCreate {
		t.Fatalf("unexpected entries for code 5: %+v", got)
	}
	for _, e := range got {
		if e.CodeID != 5 {
			t.Fatalf("entry for wrong code: %+v", e)
		}
	}

	if got, _ := store.ListForCode(5, 2); len(got) != 2 || got[1].Action != ActionUpdate {
		t.Fatalf("limit not applied: %+v", got)
	}
	if got, _ := store.ListForCode(7, 0); len(got) != 1 {
		t.Fatalf("expected the last code in the index, got %+v", got)
	}
	if got, _ := store.ListForCode(99, 0); len(got) != 0 {
		t.Fatalf("expected nothing for unknown code, got %+v", got)
	}
}

func TestBoltStoreExpiresEntries(t *testing.T) {
	store := openTestStore(t, Options{EntryTTL: time.Minute, CleanupInterval: time.Minute})

	clock := time.Now()
	store.now = func() time.Time { return clock }

	if _, err := store.Record(Entry{Action: ActionUpdate, CodeID: 1}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	clock = clock.Add(2 * time.Minute)

	entries, err := store.List(0)
	if err != nil {
		t.Fatalf("List after expiry: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected entries to expire, got %+v", entries)
	}
	if byCode, _ := store.ListForCode(1, 0); len(byCode) != 0 {
		t.Fatalf("expected index to be pruned, got %+v", byCode)
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if _, err := store.Record(Entry{Action: ActionCreate}); err != nil {
		t.Fatalf("noop store Record: %v", err)
	}
	if entries, err := store.List(0); err != nil || entries != nil {
		t.Fatalf("noop store List = %v, %v", entries, err)
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("redis", "", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if _, err := NewStore("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestReadOnlyStoresShareJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	writer, err := NewStore("bbolt", path, Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := writer.Record(Entry{Action: ActionCreate, CodeID: 3}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first, err := NewStore("bbolt", path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("first read-only open: %v", err)
	}
	defer first.Close()
	second, err := NewStore("bbolt", path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("second read-only open while the first is held: %v", err)
	}
	defer second.Close()

	for _, store := range []Store{first, second} {
		entries, err := store.ListForCode(3, 0)
		if err != nil || len(entries) != 1 {
			t.Fatalf("ListForCode = %+v, %v", entries, err)
		}
	}
	if _, err := first.Record(Entry{Action: ActionDelete, CodeID: 3}); err == nil {
		t.Fatalf("expected Record to fail on a read-only journal")
	}
}

func TestReadOnlyStoreMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "journal.db")
	store, err := NewStore("bbolt", path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if entries, err := store.List(0); err != nil || len(entries) != 0 {
		t.Fatalf("List = %v, %v", entries, err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read-only open must not create the journal, stat err=%v", err)
	}
}

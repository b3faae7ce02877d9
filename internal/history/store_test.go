package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"omnipkg/pkg/classify"
	"omnipkg/pkg/operation"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func record(t *testing.T, store *Store, n int, start time.Time) {
	t.Helper()
	for i := range n {
		op := finished(fmt.Sprintf("op-%d", i), start.Add(time.Duration(i)*time.Minute), operation.Result{Outcome: classify.Succeeded})
		if err := store.Record(op); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
}

func TestRecordImplementsRecorder(t *testing.T) {
	var _ operation.Recorder = (*Store)(nil)

	store := setupTestStore(t)
	record(t, store, 1, time.Now())

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestList(t *testing.T) {
	store := setupTestStore(t)
	record(t, store, 5, time.Now().Add(-time.Hour))

	all, err := store.List(0)
	if err != nil {
		t.Fatalf("List(0) error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("List(0) = %d entries, want 5", len(all))
	}
	if all[0].ID != "op-4" || all[4].ID != "op-0" {
		t.Errorf("List(0) order = %s..%s, want most recent first", all[0].ID, all[4].ID)
	}

	some, err := store.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(some) != 2 || some[0].ID != "op-4" {
		t.Errorf("List(2) = %+v", some)
	}
}

func TestSameTimestamp(t *testing.T) {
	store := setupTestStore(t)
	at := time.Now()
	for _, id := range []string{"a", "b"} {
		if err := store.Record(finished(id, at, operation.Result{Outcome: classify.Succeeded})); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := store.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestGet(t *testing.T) {
	store := setupTestStore(t)
	op := finished("op-x", time.Now(), operation.Result{Outcome: classify.Failed, ExitCode: 2}, "boom")
	if err := store.Record(op); err != nil {
		t.Fatal(err)
	}

	e, err := store.Get("op-x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.ExitCode != 2 || e.Success {
		t.Errorf("entry = %+v", e)
	}
	lines, err := e.Lines()
	if err != nil || len(lines) != 1 || lines[0] != "boom" {
		t.Errorf("Lines() = %q, %v", lines, err)
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLast(t *testing.T) {
	store := setupTestStore(t)

	e, err := store.Last()
	if err != nil || e != nil {
		t.Fatalf("Last() on empty store = %v, %v", e, err)
	}

	record(t, store, 3, time.Now().Add(-time.Hour))
	e, err = store.Last()
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.ID != "op-2" {
		t.Errorf("Last() = %+v, want op-2", e)
	}
}

func TestClear(t *testing.T) {
	store := setupTestStore(t)
	record(t, store, 3, time.Now())

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n, _ := store.Count(); n != 0 {
		t.Errorf("Count() after Clear = %d", n)
	}
	record(t, store, 1, time.Now())
	if n, _ := store.Count(); n != 1 {
		t.Errorf("Count() after re-record = %d", n)
	}
}

func TestPrune(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()
	for i, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour, 0} {
		op := finished(fmt.Sprintf("op-%d", i), now.Add(-age), operation.Result{Outcome: classify.Succeeded})
		if err := store.Record(op); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := store.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune() deleted %d, want 2", deleted)
	}
	entries, _ := store.List(0)
	if len(entries) != 2 || entries[1].ID != "op-2" {
		t.Errorf("remaining = %+v", entries)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	record(t, store, 2, time.Now())
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if n, _ := store.Count(); n != 2 {
		t.Errorf("Count() after reopen = %d, want 2", n)
	}
}

package session

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	if err := backend.Merge("alex", MemoryRecord{Name: "小明", Age: 25}); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if err := backend.Merge("alex", MemoryRecord{FavoriteApps: []string{"Chrome"}}); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	// New backend instance against the same file sees accumulated state.
	reopened, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, err := reopened.Load("alex")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := MemoryRecord{Name: "小明", Age: 25, FavoriteApps: []string{"Chrome"}}
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("record = %+v, want %+v", rec, want)
	}
}

func TestFileBackendUnknownIdentity(t *testing.T) {
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	rec, err := backend.Load("nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !rec.IsZero() {
		t.Errorf("unknown identity should yield zero record, got %+v", rec)
	}
}

func TestFileBackendIsolatesIdentities(t *testing.T) {
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	backend.Merge("a", MemoryRecord{Name: "甲"})
	backend.Merge("b", MemoryRecord{Name: "乙"})

	recA, _ := backend.Load("a")
	recB, _ := backend.Load("b")
	if recA.Name != "甲" || recB.Name != "乙" {
		t.Errorf("identities leaked: a=%+v b=%+v", recA, recB)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer backend.Close()

	if err := backend.Merge("alex", MemoryRecord{Name: "小明", Occupation: "程序员"}); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if err := backend.Merge("alex", MemoryRecord{
		Occupation:  "设计师",
		Preferences: map[string]string{"编程语言": "Python"},
	}); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	rec, err := backend.Load("alex")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Name != "小明" {
		t.Errorf("Name = %q, want 小明", rec.Name)
	}
	if rec.Occupation != "设计师" {
		t.Errorf("Occupation = %q, want 设计师", rec.Occupation)
	}
	if rec.Preferences["编程语言"] != "Python" {
		t.Errorf("Preferences = %v, missing 编程语言", rec.Preferences)
	}
}

func TestSQLiteBackendUnknownIdentity(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer backend.Close()

	rec, err := backend.Load("nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !rec.IsZero() {
		t.Errorf("unknown identity should yield zero record, got %+v", rec)
	}
}

func TestPersistentStoreSeparatesHistoryFromMemory(t *testing.T) {
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	store := NewPersistentStore(10, backend)
	defer store.Close()

	store.RecordInteraction("alex", Interaction{User: "你好", Assistant: "你好呀"})
	store.MergeMemory("alex", MemoryRecord{Name: "小明"})

	if got := store.Memory("alex").Name; got != "小明" {
		t.Errorf("Memory().Name = %q, want 小明", got)
	}
	if got := len(store.History("alex")); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}

	// Fresh store over the same backend: memory survives, history
	// does not.
	again := NewPersistentStore(10, backend)
	if got := again.Memory("alex").Name; got != "小明" {
		t.Errorf("reloaded Memory().Name = %q, want 小明", got)
	}
	if got := len(again.History("alex")); got != 0 {
		t.Errorf("reloaded history length = %d, want 0", got)
	}
}

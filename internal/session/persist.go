package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// MemoryBackend persists memory records. Implementations follow the
// whole-document contract: every merge reads the stored record, folds
// the new facts in, and rewrites it — no incremental patching.
type MemoryBackend interface {
	Load(identity string) (MemoryRecord, error)
	Merge(identity string, rec MemoryRecord) error
	Close() error
}

// PersistentStore keeps conversation history in memory (process
// lifetime, like MemStore) while delegating memory records to a
// backend that survives restarts.
type PersistentStore struct {
	history *MemStore
	backend MemoryBackend
}

// NewPersistentStore creates a store with durable memory records.
func NewPersistentStore(maxHistory int, backend MemoryBackend) *PersistentStore {
	return &PersistentStore{
		history: NewMemStore(maxHistory),
		backend: backend,
	}
}

// RecordInteraction appends to the in-memory history.
func (s *PersistentStore) RecordInteraction(identity string, in Interaction) error {
	return s.history.RecordInteraction(identity, in)
}

// RecentMessages formats recent history for the prompt.
func (s *PersistentStore) RecentMessages(identity string, limit int) []Message {
	return s.history.RecentMessages(identity, limit)
}

// History returns a copy of the identity's interactions.
func (s *PersistentStore) History(identity string) []Interaction {
	return s.history.History(identity)
}

// MergeMemory folds facts into the persisted record.
func (s *PersistentStore) MergeMemory(identity string, rec MemoryRecord) error {
	if rec.IsZero() {
		return nil
	}
	return s.backend.Merge(identity, rec)
}

// Memory loads the persisted record. A load failure degrades to the
// zero record; memory is advisory context, not critical state.
func (s *PersistentStore) Memory(identity string) MemoryRecord {
	rec, err := s.backend.Load(identity)
	if err != nil {
		return MemoryRecord{}
	}
	return rec
}

// Context renders the persisted record for prompt injection.
func (s *PersistentStore) Context(identity string) string {
	return FormatContext(s.Memory(identity))
}

// Greeting returns the personalized greeting.
func (s *PersistentStore) Greeting(identity string) string {
	return FormatGreeting(s.Memory(identity))
}

// Close releases the backend.
func (s *PersistentStore) Close() error {
	return s.backend.Close()
}

// FileBackend stores the entire identity→record map as one JSON
// document. Writers serialize around the whole file: concurrent merges
// for different identities still take turns, because each write
// rewrites every record.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates the backend, ensuring the parent directory
// exists.
func NewFileBackend(path string) (*FileBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &FileBackend{path: path}, nil
}

// Load reads the identity's record from the document.
func (b *FileBackend) Load(identity string) (MemoryRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.readAll()
	if err != nil {
		return MemoryRecord{}, err
	}
	return all[identity], nil
}

// Merge performs the whole-document read-merge-write cycle.
func (b *FileBackend) Merge(identity string, rec MemoryRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.readAll()
	if err != nil {
		return err
	}

	existing := all[identity]
	existing.Merge(rec)
	all[identity] = existing

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("write memory file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per operation.
func (b *FileBackend) Close() error { return nil }

// readAll loads the full document. A missing file is an empty store.
// Caller must hold b.mu.
func (b *FileBackend) readAll() (map[string]MemoryRecord, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]MemoryRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file: %w", err)
	}

	all := map[string]MemoryRecord{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &all); err != nil {
			return nil, fmt.Errorf("parse memory file: %w", err)
		}
	}
	return all, nil
}

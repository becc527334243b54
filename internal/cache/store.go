package cache

import (
	"context"
	"sync"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
)

// #region entry

// EntryState is the lifecycle state of a cache entry.
type EntryState string

const (
	StateAbsent   EntryState = ""
	StateBuilding EntryState = "building"
	StateReady    EntryState = "ready"
)

// Entry is the cache's view of one fingerprint.
type Entry struct {
	Fingerprint canvas.Fingerprint
	Canvas      *canvas.Canvas // nil unless State == StateReady
	State       EntryState
}

// #endregion entry

// #region store-interface

// Store is the durable tier behind the in-process cache. Load only reports
// ready entries; a building marker left by a crashed process reads as absent.
type Store interface {
	Load(ctx context.Context, fp canvas.Fingerprint) ([]byte, bool, error)
	Begin(ctx context.Context, fp canvas.Fingerprint) error
	Commit(ctx context.Context, fp canvas.Fingerprint, data []byte) error
	Abort(ctx context.Context, fp canvas.Fingerprint) error
}

// #endregion store-interface

// #region memory-store

type memEntry struct {
	state EntryState
	data  []byte
}

// MemoryStore keeps entries in a map. Used by tests and by the "memory" backend.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[canvas.Fingerprint]memEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[canvas.Fingerprint]memEntry)}
}

func (s *MemoryStore) Load(_ context.Context, fp canvas.Fingerprint) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fp]
	if !ok || e.state != StateReady {
		return nil, false, nil
	}
	return append([]byte(nil), e.data...), true, nil
}

func (s *MemoryStore) Begin(_ context.Context, fp canvas.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[fp]; ok && e.state == StateReady {
		return nil
	}
	s.entries[fp] = memEntry{state: StateBuilding}
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, fp canvas.Fingerprint, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fp] = memEntry{state: StateReady, data: append([]byte(nil), data...)}
	return nil
}

func (s *MemoryStore) Abort(_ context.Context, fp canvas.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[fp]; ok && e.state == StateBuilding {
		delete(s.entries, fp)
	}
	return nil
}

// #endregion memory-store

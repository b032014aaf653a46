// Package store implements core.MappingStore.
//
// Two backends are provided: Memory for single-process use and tests, and
// Postgres for deployments that keep saved mappings across restarts. Both
// index a mapping under its filename pair key and its column fingerprint
// key; saving under a key that is already taken replaces the older mapping.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/colmap/internal/core"
)

// Memory keeps saved mappings in process memory.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]core.SavedMapping
	byKey map[string]string // pair or fingerprint key -> id
	now   func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		byID:  make(map[string]core.SavedMapping),
		byKey: make(map[string]string),
		now:   time.Now,
	}
}

var _ core.MappingStore = (*Memory)(nil)

// Save implements core.MappingStore.
func (s *Memory) Save(_ context.Context, m core.SavedMapping) (core.SavedMapping, error) {
	m = prepare(m, s.now())
	keys := lookupKeys(&m)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if oldID, ok := s.byKey[k]; ok {
			s.removeLocked(oldID)
		}
	}
	s.removeLocked(m.ID)

	s.byID[m.ID] = clone(m)
	for _, k := range keys {
		s.byKey[k] = m.ID
	}
	return clone(m), nil
}

// FindCompatible implements core.MappingStore.
func (s *Memory) FindCompatible(_ context.Context, schemaFile, dataFile string, schemaCols, dataCols []string) (*core.SavedMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range []string{core.PairKey(schemaFile, dataFile), core.FingerprintKey(schemaCols, dataCols)} {
		if id, ok := s.byKey[k]; ok {
			m := clone(s.byID[id])
			return &m, nil
		}
	}
	return nil, core.ErrMappingNotFound
}

// Get implements core.MappingStore.
func (s *Memory) Get(_ context.Context, id string) (*core.SavedMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, core.ErrMappingNotFound
	}
	m = clone(m)
	return &m, nil
}

// List implements core.MappingStore.
func (s *Memory) List(_ context.Context) ([]core.SavedMapping, error) {
	s.mu.RLock()
	out := make([]core.SavedMapping, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, clone(m))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete implements core.MappingStore.
func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return core.ErrMappingNotFound
	}
	s.removeLocked(id)
	return nil
}

func (s *Memory) removeLocked(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for k, v := range s.byKey {
		if v == id {
			delete(s.byKey, k)
		}
	}
}

// prepare fills in the ID, version and creation time.
func prepare(m core.SavedMapping, now time.Time) core.SavedMapping {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Version == "" {
		m.Version = core.MappingFileVersion
	}
	if m.CreatedAt == "" {
		m.CreatedAt = now.UTC().Format(time.RFC3339)
	}
	return m
}

// lookupKeys returns the keys a mapping is indexed under. Imported mappings
// carry no filenames and are only reachable by fingerprint.
func lookupKeys(m *core.SavedMapping) []string {
	keys := make([]string, 0, 2)
	if m.SchemaFile != "" || m.DataFile != "" {
		keys = append(keys, m.PairKey())
	}
	return append(keys, m.FingerprintKey())
}

// clone copies the slices so callers cannot mutate stored state.
func clone(m core.SavedMapping) core.SavedMapping {
	m.SchemaColumns = append([]string(nil), m.SchemaColumns...)
	m.DataColumns = append([]string(nil), m.DataColumns...)
	m.Mappings = append([]core.ColumnMapping(nil), m.Mappings...)
	return m
}

package store

import (
	"sync"

	"annuaire-go/internal/annuaire"
)

// MemoryStore is an in-memory implementation of the record store, useful for
// testing. This implementation is safe for concurrent use.
type MemoryStore struct {
	tables map[string][]annuaire.Record
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]annuaire.Record)}
}

var _ annuaire.Store = (*MemoryStore)(nil)

func (s *MemoryStore) ReadAll(table annuaire.Table) ([]annuaire.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.tables[table.ID]
	out := make([]annuaire.Record, len(recs))
	for i, rec := range recs {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func (s *MemoryStore) AppendOne(table annuaire.Table, rec annuaire.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table.ID] = append(s.tables[table.ID], copyRecord(rec))
	return nil
}

func (s *MemoryStore) RewriteAll(table annuaire.Table, recs []annuaire.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]annuaire.Record, len(recs))
	for i, rec := range recs {
		copied[i] = copyRecord(rec)
	}
	s.tables[table.ID] = copied
	return nil
}

func (s *MemoryStore) Create(table annuaire.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table.ID]; !ok {
		s.tables[table.ID] = nil
	}
	return nil
}

func (s *MemoryStore) Remove(table annuaire.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables, table.ID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Exists reports whether the table has ever been created or written.
// Only used by tests to verify cascade behavior.
func (s *MemoryStore) Exists(table annuaire.Table) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tables[table.ID]
	return ok
}

func copyRecord(rec annuaire.Record) annuaire.Record {
	out := make(annuaire.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"annuaire-go/internal/annuaire"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all snapshots in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name      string
	snapshots map[string][]byte // installID -> archive bytes
	versions  map[string]int64  // installID -> version
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		snapshots: make(map[string][]byte),
		versions:  make(map[string]int64),
	}
}

var _ annuaire.Vault = (*MemoryVault)(nil)

// PutSnapshot stores the snapshot archive for an installation.
func (m *MemoryVault) PutSnapshot(installID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[installID] = data
	m.versions[installID] = version
	return nil
}

// GetSnapshot retrieves the snapshot archive for an installation.
func (m *MemoryVault) GetSnapshot(installID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshots[installID]
	if !ok {
		return fmt.Errorf("snapshot not found for installation: %s", installID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns the snapshot version for an installation.
// Returns 0 if no snapshot has been stored.
func (m *MemoryVault) SnapshotVersion(installID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[installID], nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

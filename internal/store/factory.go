package store

import (
	"fmt"
	"os"
	"path/filepath"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/config"
)

// NewStoreFromConfig creates a record store implementation based on the
// store config type. dataDir is where file-backed stores keep their data.
func NewStoreFromConfig(cfg config.StoreConfig, dataDir string) (annuaire.Store, error) {
	switch cfg.Type {
	case "csv", "":
		return NewCSVStore(dataDir)
	case "sqlite":
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(dataDir, "annuaire.db"))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

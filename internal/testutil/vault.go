package testutil

import (
	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() annuaire.Vault {
	return vault.NewMemoryVault("test-vault")
}

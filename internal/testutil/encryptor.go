package testutil

import (
	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/encryption"
)

// NewTestEncryptor returns a fake encryptor that needs no key files and,
// until Setup pins one, unlocks with any passphrase.
func NewTestEncryptor() annuaire.Encryptor {
	return encryption.NewFakeEncryptor()
}

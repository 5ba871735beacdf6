package encryption

import (
	"fmt"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/config"
)

// NewEncryptorFromConfig picks the Encryptor implementation for the config.
// An empty type means age.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (annuaire.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption needs public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewFakeEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

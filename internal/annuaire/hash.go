package annuaire

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns a clear-text password into an opaque one-way digest
// and verifies a password against a stored digest. The registry never stores
// or compares passwords in clear text.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// SHA256Hasher produces hex-encoded SHA-256 digests. This matches the legacy
// accounts file, so existing users.csv data keeps authenticating.
type SHA256Hasher struct{}

var _ PasswordHasher = SHA256Hasher{}

func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (SHA256Hasher) Verify(hash, password string) bool {
	sum := sha256.Sum256([]byte(password))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(hash), []byte(computed)) == 1
}

// BcryptHasher produces salted bcrypt digests. New installations should
// prefer it; it is not interchangeable with digests written by SHA256Hasher.
type BcryptHasher struct {
	Cost int
}

var _ PasswordHasher = BcryptHasher{}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(out), nil
}

func (h BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewPasswordHasher selects a hasher by configured name. The empty name maps
// to sha256 for compatibility with data written by earlier releases.
func NewPasswordHasher(kind string) (PasswordHasher, error) {
	switch kind {
	case "sha256", "":
		return SHA256Hasher{}, nil
	case "bcrypt":
		return BcryptHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher: %q", kind)
	}
}

package annuaire

import "io"

// Vault is an off-site home for data-directory snapshots. Each installation
// keeps a single current snapshot in the vault, replaced on every backup,
// with a version marker for staleness checks.
type Vault interface {
	// PutSnapshot stores the snapshot archive for an installation, replacing
	// any previous one, and records its version. size is the number of bytes
	// that will be read from r.
	PutSnapshot(installID string, r io.Reader, size int64, version int64) error

	// GetSnapshot retrieves the current snapshot archive and writes it to w.
	GetSnapshot(installID string, w io.Writer) error

	// SnapshotVersion returns the stored snapshot version, or 0 when the
	// installation has never been backed up.
	SnapshotVersion(installID string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}

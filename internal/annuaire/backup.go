package annuaire

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// BackupService snapshots the whole data directory into a gzip'd tar
// archive and ships it to a vault, and restores such archives back into the
// data directory. Archives may optionally be encrypted with the configured
// Encryptor.
type BackupService struct {
	dataDir   string
	installID string
	vault     Vault
	encryptor Encryptor
	logger    Logger
}

// NewBackupService creates a BackupService. encryptor may be nil when the
// installation has no encryption configured; encrypted backups then fail.
func NewBackupService(dataDir, installID string, vault Vault, encryptor Encryptor, logger Logger) *BackupService {
	return &BackupService{
		dataDir:   dataDir,
		installID: installID,
		vault:     vault,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Backup archives the data directory and uploads it to the vault with the
// next snapshot version. Returns the version that was written.
func (s *BackupService) Backup(encrypt bool) (int64, error) {
	if encrypt && (s.encryptor == nil || !s.encryptor.IsConfigured()) {
		return 0, fmt.Errorf("encryption requested but no encryption keys are configured")
	}

	previous, err := s.vault.SnapshotVersion(s.installID)
	if err != nil {
		return 0, fmt.Errorf("checking vault snapshot version: %w", err)
	}
	version := previous + 1

	archive, err := os.CreateTemp("", "annuaire-backup-*.tar.gz")
	if err != nil {
		return 0, fmt.Errorf("creating temp archive: %w", err)
	}
	archivePath := archive.Name()
	defer os.Remove(archivePath)

	if err := s.packInto(archive); err != nil {
		archive.Close()
		return 0, err
	}
	if err := archive.Close(); err != nil {
		return 0, fmt.Errorf("closing temp archive: %w", err)
	}

	uploadPath := archivePath
	if encrypt {
		encrypted, err := os.CreateTemp("", "annuaire-backup-*.tar.gz.age")
		if err != nil {
			return 0, fmt.Errorf("creating temp file: %w", err)
		}
		encryptedPath := encrypted.Name()
		defer os.Remove(encryptedPath)

		plain, err := os.Open(archivePath)
		if err != nil {
			encrypted.Close()
			return 0, fmt.Errorf("reopening archive: %w", err)
		}
		err = s.encryptor.Encrypt(plain, encrypted)
		plain.Close()
		if cerr := encrypted.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return 0, fmt.Errorf("encrypting archive: %w", err)
		}
		uploadPath = encryptedPath
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return 0, fmt.Errorf("opening archive for upload: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	if err := s.vault.PutSnapshot(s.installID, f, info.Size(), version); err != nil {
		return 0, fmt.Errorf("uploading snapshot: %w", err)
	}

	s.logger.Info("backup uploaded", "version", version, "bytes", info.Size(), "encrypted", encrypt)
	return version, nil
}

// Restore downloads the current snapshot and unpacks it into the data
// directory, overwriting existing files. decrypt must be non-nil for
// archives written with Backup(encrypt=true) and nil otherwise.
func (s *BackupService) Restore(decrypt DecryptionContext) error {
	version, err := s.vault.SnapshotVersion(s.installID)
	if err != nil {
		return fmt.Errorf("checking vault snapshot version: %w", err)
	}
	if version == 0 {
		return fmt.Errorf("no snapshot in vault for this installation")
	}

	downloaded, err := os.CreateTemp("", "annuaire-restore-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	downloadedPath := downloaded.Name()
	defer os.Remove(downloadedPath)

	err = s.vault.GetSnapshot(s.installID, downloaded)
	if cerr := downloaded.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("downloading snapshot: %w", err)
	}

	archivePath := downloadedPath
	if decrypt != nil {
		plain, err := os.CreateTemp("", "annuaire-restore-*.tar.gz")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		plainPath := plain.Name()
		defer os.Remove(plainPath)

		ciphertext, err := os.Open(downloadedPath)
		if err != nil {
			plain.Close()
			return fmt.Errorf("opening snapshot: %w", err)
		}
		err = decrypt.Decrypt(ciphertext, plain)
		ciphertext.Close()
		if cerr := plain.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("decrypting snapshot: %w", err)
		}
		archivePath = plainPath
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	if err := s.unpackFrom(f); err != nil {
		return err
	}

	s.logger.Info("backup restored", "version", version)
	return nil
}

// packInto writes a tar.gz of every regular file under the data directory,
// with paths relative to it.
func (s *BackupService) packInto(w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(s.dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if err != nil {
		return fmt.Errorf("archiving data directory: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalizing gzip: %w", err)
	}
	return nil
}

// unpackFrom extracts a tar.gz produced by packInto into the data directory.
func (s *BackupService) unpackFrom(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.FromSlash(hdr.Name)
		if strings.Contains(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes data directory: %s", hdr.Name)
		}
		dest := filepath.Join(s.dataDir, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}

		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		_, err = io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing file: %w", err)
		}
	}
	return nil
}

package app

import (
	"fmt"
	"os"
	"time"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/config"
	"annuaire-go/internal/encryption"
	"annuaire-go/internal/store"
	"annuaire-go/internal/vault"
)

// App is the application layer between the CLI and the directory services.
// It constructs all dependencies from config, exposes the wired services,
// and manages the store lifecycle on Close.
type App struct {
	Accounts    *annuaire.AccountService
	Permissions *annuaire.PermissionService
	Directory   *annuaire.DirectoryService

	cfg       *config.Config
	store     annuaire.Store
	encryptor annuaire.Encryptor
	logger    annuaire.Logger
	logFile   *os.File
}

// New creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "ContactAdd", "UserCreate").
// The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	st, err := store.NewStoreFromConfig(cfg.Store, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("creating record store: %w", err)
	}

	hasher, err := annuaire.NewPasswordHasher(cfg.Auth.Hasher)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating password hasher: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}
	logger.Info("operation started", "operation", operation)

	perms := annuaire.NewPermissionService(st, logger)

	return &App{
		Accounts:    annuaire.NewAccountService(st, hasher, logger),
		Permissions: perms,
		Directory:   annuaire.NewDirectoryService(st, perms, logger),
		cfg:         cfg,
		store:       st,
		encryptor:   enc,
		logger:      logger,
		logFile:     logFile,
	}, nil
}

// Encryptor returns the configured encryptor, for key setup and
// encrypted export/import from the CLI.
func (a *App) Encryptor() annuaire.Encryptor {
	return a.encryptor
}

// newBackupService builds a BackupService against the first configured vault.
func (a *App) newBackupService() (*annuaire.BackupService, error) {
	if len(a.cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(a.cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	return annuaire.NewBackupService(a.cfg.DataDir, a.cfg.InstallID, v, a.encryptor, a.logger), nil
}

// Backup snapshots the data directory to the configured vault.
// Returns the snapshot version that was written.
func (a *App) Backup(encrypt bool) (int64, error) {
	svc, err := a.newBackupService()
	if err != nil {
		return 0, err
	}
	return svc.Backup(encrypt)
}

// Restore downloads the current snapshot from the configured vault and
// unpacks it into the data directory. passphrase unlocks the private key
// for encrypted snapshots; pass "" for unencrypted ones.
func (a *App) Restore(passphrase string) error {
	svc, err := a.newBackupService()
	if err != nil {
		return err
	}

	var decrypt annuaire.DecryptionContext
	if passphrase != "" {
		decrypt, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return svc.Restore(decrypt)
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing record store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/config"
)

// AgeEncryptor protects exports and backup archives with an age X25519 key
// pair. The recipient (public) key sits on disk in the clear so encrypting
// never prompts; the identity (private) key is itself age-encrypted under a
// passphrase and only ever unsealed in memory by Unlock.
type AgeEncryptor struct {
	recipientPath string
	identityPath  string
}

var _ annuaire.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates an AgeEncryptor over the key paths in cfg.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientPath: cfg.PublicKeyPath,
		identityPath:  cfg.PrivateKeyPath,
	}
}

// Setup generates the key pair and writes both key files. It refuses to
// overwrite an existing pair: losing the identity key means losing every
// archive encrypted to it.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if e.IsConfigured() {
		return fmt.Errorf("a key pair already exists under %s", filepath.Dir(e.identityPath))
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	if err := e.writeRecipient(identity.Recipient()); err != nil {
		return err
	}
	return e.sealIdentity(identity, passphrase)
}

// writeRecipient stores the public half in the clear with a comment line.
func (e *AgeEncryptor) writeRecipient(recipient *age.X25519Recipient) error {
	if err := os.MkdirAll(filepath.Dir(e.recipientPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	contents := "# annuaire recipient for encrypted exports and backups\n" + recipient.String() + "\n"
	if err := os.WriteFile(e.recipientPath, []byte(contents), 0644); err != nil {
		return fmt.Errorf("writing recipient file: %w", err)
	}
	return nil
}

// sealIdentity encrypts the private half to a passphrase-derived scrypt
// recipient and writes it. The identity never touches disk in the clear.
func (e *AgeEncryptor) sealIdentity(identity *age.X25519Identity, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(e.identityPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	guard, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("deriving passphrase key: %w", err)
	}

	f, err := os.OpenFile(e.identityPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	w, err := age.Encrypt(f, guard)
	if err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}
	return f.Close()
}

// Encrypt encrypts r to w for the stored recipient. No passphrase is needed,
// so exports and backups can be encrypted unattended.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	contents, err := os.ReadFile(e.recipientPath)
	if err != nil {
		return fmt.Errorf("reading recipient file: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(contents))
	if err != nil {
		return fmt.Errorf("parsing recipient file %s: %w", e.recipientPath, err)
	}

	ew, err := age.Encrypt(w, recipients...)
	if err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if _, err := io.Copy(ew, r); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	return nil
}

// Unlock unseals the identity file with the passphrase. The unsealed
// identity lives only in the returned session.
func (e *AgeEncryptor) Unlock(passphrase string) (annuaire.DecryptionContext, error) {
	sealed, err := os.Open(e.identityPath)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer sealed.Close()

	guard, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase key: %w", err)
	}
	r, err := age.Decrypt(sealed, guard)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, errors.New("incorrect passphrase")
		}
		return nil, fmt.Errorf("unsealing identity: %w", err)
	}
	identities, err := age.ParseIdentities(r)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file: %w", err)
	}

	return &ageSession{identities: identities}, nil
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, path := range []string{e.recipientPath, e.identityPath} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// ageSession holds an unsealed identity for the rest of the command.
type ageSession struct {
	identities []age.Identity
}

var _ annuaire.DecryptionContext = (*ageSession)(nil)

func (s *ageSession) Decrypt(r io.Reader, w io.Writer) error {
	dr, err := age.Decrypt(r, s.identities...)
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	if _, err := io.Copy(w, dr); err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	return nil
}

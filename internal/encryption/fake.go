package encryption

import (
	"bytes"
	"fmt"
	"io"

	"annuaire-go/internal/annuaire"
)

const fakeMarker = "annuaire-fake-enc\n"

// fakeMask is XORed over every payload byte so the fake output never
// contains the plaintext verbatim.
const fakeMask = 0x5c

// FakeEncryptor is a stand-in Encryptor for tests. It frames the payload
// with a marker line and masks every byte, so output is deterministic,
// visibly not the plaintext, and reversible without real keys. When Setup
// has recorded a passphrase, Unlock insists on the same one; otherwise any
// passphrase unlocks.
type FakeEncryptor struct {
	passphrase string
	keysMade   bool
}

var _ annuaire.Encryptor = (*FakeEncryptor)(nil)

// NewFakeEncryptor creates a FakeEncryptor. It reports itself configured
// from the start, with or without Setup.
func NewFakeEncryptor() *FakeEncryptor {
	return &FakeEncryptor{}
}

func (e *FakeEncryptor) Setup(passphrase string) error {
	if e.keysMade {
		return fmt.Errorf("a key pair already exists")
	}
	e.passphrase = passphrase
	e.keysMade = true
	return nil
}

func (e *FakeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.WriteString(w, fakeMarker); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	return maskCopy(w, r)
}

func (e *FakeEncryptor) Unlock(passphrase string) (annuaire.DecryptionContext, error) {
	if e.keysMade && passphrase != e.passphrase {
		return nil, fmt.Errorf("incorrect passphrase")
	}
	return fakeSession{}, nil
}

func (e *FakeEncryptor) IsConfigured() bool {
	return true
}

// fakeSession undoes the framing and masking applied by FakeEncryptor.
type fakeSession struct{}

var _ annuaire.DecryptionContext = fakeSession{}

func (fakeSession) Decrypt(r io.Reader, w io.Writer) error {
	marker := make([]byte, len(fakeMarker))
	if _, err := io.ReadFull(r, marker); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(marker, []byte(fakeMarker)) {
		return fmt.Errorf("input was not produced by the fake encryptor")
	}
	return maskCopy(w, r)
}

func maskCopy(w io.Writer, r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for i := range buf[:n] {
				buf[i] ^= fakeMask
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("copying payload: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("copying payload: %w", err)
		}
	}
}

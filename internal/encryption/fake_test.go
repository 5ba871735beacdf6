package encryption

import (
	"bytes"
	"strings"
	"testing"
)

func TestFakeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "contacts export", input: contactsCSV},
		{name: "header only", input: "nom,prenom,telephone,adresse,email\n"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewFakeEncryptor()

			var encrypted bytes.Buffer
			if err := e.Encrypt(strings.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !strings.HasPrefix(encrypted.String(), fakeMarker) {
				t.Error("output does not start with the fake marker")
			}
			if tt.input != "" && strings.Contains(encrypted.String(), tt.input) {
				t.Error("output still holds the plaintext verbatim")
			}

			session, err := e.Unlock("anything")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var decrypted bytes.Buffer
			if err := session.Decrypt(&encrypted, &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if decrypted.String() != tt.input {
				t.Errorf("round trip changed the payload:\ngot  %q\nwant %q", decrypted.String(), tt.input)
			}
		})
	}
}

func TestFakeEncryptor_Deterministic(t *testing.T) {
	t.Parallel()
	e := NewFakeEncryptor()

	var first, second bytes.Buffer
	if err := e.Encrypt(strings.NewReader(contactsCSV), &first); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if err := e.Encrypt(strings.NewReader(contactsCSV), &second); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("same input produced different output")
	}
}

func TestFakeEncryptor_Passphrase(t *testing.T) {
	t.Parallel()

	t.Run("any passphrase before setup", func(t *testing.T) {
		e := NewFakeEncryptor()
		if _, err := e.Unlock("whatever"); err != nil {
			t.Errorf("Unlock() error = %v", err)
		}
	})

	t.Run("setup pins the passphrase", func(t *testing.T) {
		e := NewFakeEncryptor()
		if err := e.Setup("right"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := e.Unlock("right"); err != nil {
			t.Errorf("Unlock() with the setup passphrase: error = %v", err)
		}
		if _, err := e.Unlock("wrong"); err == nil {
			t.Error("Unlock() with another passphrase succeeded")
		}
	})

	t.Run("double setup refused", func(t *testing.T) {
		e := NewFakeEncryptor()
		if err := e.Setup("first"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if err := e.Setup("second"); err == nil {
			t.Error("second Setup() succeeded")
		}
	})
}

func TestFakeSession_RejectsForeignInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "plaintext csv", input: contactsCSV},
		{name: "truncated marker", input: fakeMarker[:4]},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			if err := (fakeSession{}).Decrypt(strings.NewReader(tt.input), &out); err == nil {
				t.Error("Decrypt() accepted input the fake never produced")
			}
		})
	}
}

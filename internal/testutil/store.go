package testutil

import (
	"testing"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/store"
)

// NewTestStore creates a new in-memory record store for testing.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore()
}

// SeedAccount writes an account row directly into the store, hashing the
// password the same way the registry does, and creates the account's
// directory table.
func SeedAccount(t *testing.T, st annuaire.Store, username, password, email string, admin bool) {
	t.Helper()

	hash, err := annuaire.SHA256Hasher{}.Hash(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	isAdmin := "False"
	if admin {
		isAdmin = "True"
	}

	rec := annuaire.Record{
		"username":      username,
		"password_hash": hash,
		"is_admin":      isAdmin,
		"email":         email,
	}
	if err := st.AppendOne(annuaire.AccountsTable, rec); err != nil {
		t.Fatalf("seeding account %s: %v", username, err)
	}
	if err := st.Create(annuaire.DirectoryTable(username)); err != nil {
		t.Fatalf("creating directory for %s: %v", username, err)
	}
}

// SeedGrant writes a permission row directly into the store.
func SeedGrant(t *testing.T, st annuaire.Store, owner, grantee string, level annuaire.Level) {
	t.Helper()

	rec := annuaire.Record{
		"owner":           owner,
		"granted_to":      grantee,
		"permission_type": string(level),
	}
	if err := st.AppendOne(annuaire.PermissionsTable, rec); err != nil {
		t.Fatalf("seeding grant %s->%s: %v", owner, grantee, err)
	}
}

// SeedContact writes a contact row directly into owner's directory.
func SeedContact(t *testing.T, st annuaire.Store, owner string, c annuaire.Contact) {
	t.Helper()

	rec := annuaire.Record{
		"nom":       c.Nom,
		"prenom":    c.Prenom,
		"telephone": c.Telephone,
		"adresse":   c.Adresse,
		"email":     c.Email,
	}
	if err := st.AppendOne(annuaire.DirectoryTable(owner), rec); err != nil {
		t.Fatalf("seeding contact %s for %s: %v", c.Email, owner, err)
	}
}

package annuaire_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/store"
	"annuaire-go/internal/testutil"
)

func newDirectoryService(st annuaire.Store) *annuaire.DirectoryService {
	perms := annuaire.NewPermissionService(st, annuaire.NewNopLogger())
	return annuaire.NewDirectoryService(st, perms, annuaire.NewNopLogger())
}

func seedDirStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := testutil.NewTestStore()
	testutil.SeedAccount(t, st, "alice", "secret123", "alice@example.com", false)
	testutil.SeedAccount(t, st, "bob", "secret123", "bob@example.com", false)
	return st
}

func strptr(s string) *string { return &s }

func TestDirectoryService_Add(t *testing.T) {
	t.Run("adds a contact", func(t *testing.T) {
		st := seedDirStore(t)
		svc := newDirectoryService(st)

		err := svc.Add("alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
			Telephone: "0612345678", Adresse: "1 rue de la Paix",
		})
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}

		contacts, err := svc.List("alice", "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(contacts) != 1 || contacts[0].Nom != "Dupont" {
			t.Errorf("List() = %v, want one Dupont contact", contacts)
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
		})
		svc := newDirectoryService(st)

		err := svc.Add("alice", annuaire.Contact{
			Nom: "Martin", Prenom: "Paul", Email: "jean@example.com",
		})
		if !errors.Is(err, annuaire.ErrConflict) {
			t.Errorf("Add() error = %v, want ErrConflict", err)
		}
	})

	t.Run("rejects invalid contacts", func(t *testing.T) {
		tests := []struct {
			name    string
			contact annuaire.Contact
		}{
			{"missing last name", annuaire.Contact{Prenom: "Jean", Email: "j@example.com"}},
			{"missing first name", annuaire.Contact{Nom: "Dupont", Email: "j@example.com"}},
			{"missing email", annuaire.Contact{Nom: "Dupont", Prenom: "Jean"}},
			{"bad email", annuaire.Contact{Nom: "Dupont", Prenom: "Jean", Email: "nope"}},
			{"bad phone", annuaire.Contact{Nom: "Dupont", Prenom: "Jean", Email: "j@example.com", Telephone: "12"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := newDirectoryService(seedDirStore(t))
				if err := svc.Add("alice", tt.contact); !errors.Is(err, annuaire.ErrInvalidInput) {
					t.Errorf("Add() error = %v, want ErrInvalidInput", err)
				}
			})
		}
	})

	t.Run("unknown owner", func(t *testing.T) {
		svc := newDirectoryService(seedDirStore(t))
		err := svc.Add("ghost", annuaire.Contact{Nom: "Dupont", Prenom: "Jean", Email: "j@example.com"})
		if !errors.Is(err, annuaire.ErrNotFound) {
			t.Errorf("Add() error = %v, want ErrNotFound", err)
		}
	})
}

func TestDirectoryService_Search(t *testing.T) {
	seed := func(t *testing.T) *store.MemoryStore {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com", Telephone: "0612345678",
		})
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupontel", Prenom: "Albert", Email: "albert@example.com",
		})
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Martin", Prenom: "Paul", Email: "paul@example.com",
		})
		return st
	}

	t.Run("case-insensitive substring match", func(t *testing.T) {
		svc := newDirectoryService(seed(t))

		results, err := svc.Search("alice", "", "nom", "dupont")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Search(nom, dupont) returned %d contacts, want 2", len(results))
		}

		results, err = svc.Search("alice", "", "nom", "DUPONTEL")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 || results[0].Nom != "Dupontel" {
			t.Errorf("Search(nom, DUPONTEL) = %v, want Dupontel only", results)
		}
	})

	t.Run("empty value matches every contact", func(t *testing.T) {
		svc := newDirectoryService(seed(t))
		results, err := svc.Search("alice", "", "email", "")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 3 {
			t.Errorf("Search(email, \"\") returned %d contacts, want 3", len(results))
		}
	})

	t.Run("invalid field", func(t *testing.T) {
		svc := newDirectoryService(seed(t))
		_, err := svc.Search("alice", "", "password", "x")
		if !errors.Is(err, annuaire.ErrInvalidInput) {
			t.Errorf("Search() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("no grant means permission denied", func(t *testing.T) {
		svc := newDirectoryService(seed(t))
		_, err := svc.Search("bob", "alice", "nom", "dupont")
		if !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("Search() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("read grant opens the directory", func(t *testing.T) {
		st := seed(t)
		testutil.SeedGrant(t, st, "alice", "bob", annuaire.LevelRead)
		svc := newDirectoryService(st)

		results, err := svc.Search("bob", "alice", "prenom", "jean")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Errorf("Search() returned %d contacts, want 1", len(results))
		}
	})

	t.Run("write grant is enough to read", func(t *testing.T) {
		st := seed(t)
		testutil.SeedGrant(t, st, "alice", "bob", annuaire.LevelWrite)
		svc := newDirectoryService(st)

		if _, err := svc.Search("bob", "alice", "nom", "martin"); err != nil {
			t.Errorf("Search() error = %v, want nil", err)
		}
	})
}

func TestDirectoryService_List(t *testing.T) {
	t.Run("empty owner defaults to the actor", func(t *testing.T) {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
		})
		svc := newDirectoryService(st)

		contacts, err := svc.List("alice", "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(contacts) != 1 {
			t.Errorf("List() returned %d contacts, want 1", len(contacts))
		}
	})

	t.Run("no grant means permission denied", func(t *testing.T) {
		svc := newDirectoryService(seedDirStore(t))
		_, err := svc.List("bob", "alice")
		if !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("List() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("unknown actor", func(t *testing.T) {
		svc := newDirectoryService(seedDirStore(t))
		_, err := svc.List("ghost", "")
		if !errors.Is(err, annuaire.ErrNotFound) {
			t.Errorf("List() error = %v, want ErrNotFound", err)
		}
	})
}

func TestDirectoryService_Delete(t *testing.T) {
	t.Run("removes by email", func(t *testing.T) {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
		})
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Martin", Prenom: "Paul", Email: "paul@example.com",
		})
		svc := newDirectoryService(st)

		if err := svc.Delete("alice", "jean@example.com"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		contacts, err := svc.List("alice", "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(contacts) != 1 || contacts[0].Email != "paul@example.com" {
			t.Errorf("List() = %v, want only paul@example.com", contacts)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		svc := newDirectoryService(seedDirStore(t))
		err := svc.Delete("alice", "ghost@example.com")
		if !errors.Is(err, annuaire.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})
}

func TestDirectoryService_Update(t *testing.T) {
	seed := func(t *testing.T) *store.MemoryStore {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
			Telephone: "0612345678", Adresse: "1 rue de la Paix",
		})
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Martin", Prenom: "Paul", Email: "paul@example.com",
		})
		return st
	}

	t.Run("patches named fields only", func(t *testing.T) {
		svc := newDirectoryService(seed(t))

		err := svc.Update("alice", "jean@example.com", annuaire.ContactPatch{
			Nom: strptr("Durand"),
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		contacts, _ := svc.Search("alice", "", "email", "jean@example.com")
		if len(contacts) != 1 {
			t.Fatalf("contact not found after update")
		}
		if contacts[0].Nom != "Durand" {
			t.Errorf("Nom = %s, want Durand", contacts[0].Nom)
		}
		if contacts[0].Prenom != "Jean" || contacts[0].Telephone != "0612345678" {
			t.Errorf("unpatched fields changed: %+v", contacts[0])
		}
	})

	t.Run("optional fields can be cleared", func(t *testing.T) {
		svc := newDirectoryService(seed(t))

		err := svc.Update("alice", "jean@example.com", annuaire.ContactPatch{
			Telephone: strptr(""),
			Adresse:   strptr(""),
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		contacts, _ := svc.Search("alice", "", "email", "jean@example.com")
		if len(contacts) != 1 {
			t.Fatalf("contact not found after update")
		}
		if contacts[0].Telephone != "" || contacts[0].Adresse != "" {
			t.Errorf("optional fields not cleared: %+v", contacts[0])
		}
	})

	t.Run("empty values for required fields are ignored", func(t *testing.T) {
		svc := newDirectoryService(seed(t))

		err := svc.Update("alice", "jean@example.com", annuaire.ContactPatch{
			Nom: strptr(""),
		})
		if !errors.Is(err, annuaire.ErrNoChanges) {
			t.Errorf("Update() error = %v, want ErrNoChanges", err)
		}
	})

	t.Run("empty patch fails", func(t *testing.T) {
		svc := newDirectoryService(seed(t))
		err := svc.Update("alice", "jean@example.com", annuaire.ContactPatch{})
		if !errors.Is(err, annuaire.ErrNoChanges) {
			t.Errorf("Update() error = %v, want ErrNoChanges", err)
		}
	})

	t.Run("email change re-checks uniqueness", func(t *testing.T) {
		svc := newDirectoryService(seed(t))
		err := svc.Update("alice", "jean@example.com", annuaire.ContactPatch{
			Email: strptr("paul@example.com"),
		})
		if !errors.Is(err, annuaire.ErrConflict) {
			t.Errorf("Update() error = %v, want ErrConflict", err)
		}
	})

	t.Run("merged record is validated", func(t *testing.T) {
		svc := newDirectoryService(seed(t))
		err := svc.Update("alice", "jean@example.com", annuaire.ContactPatch{
			Telephone: strptr("12"),
		})
		if !errors.Is(err, annuaire.ErrInvalidInput) {
			t.Errorf("Update() error = %v, want ErrInvalidInput", err)
		}
	})
}

func TestDirectoryService_ExportImport(t *testing.T) {
	t.Run("export writes the legacy header and field order", func(t *testing.T) {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
			Telephone: "0612345678", Adresse: "1 rue de la Paix",
		})
		svc := newDirectoryService(st)

		var buf bytes.Buffer
		if err := svc.ExportTo("alice", &buf); err != nil {
			t.Fatalf("ExportTo() error = %v", err)
		}

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("export has %d lines, want 2", len(lines))
		}
		if lines[0] != "nom,prenom,telephone,adresse,email" {
			t.Errorf("header = %q", lines[0])
		}
		if lines[1] != "Dupont,Jean,0612345678,1 rue de la Paix,jean@example.com" {
			t.Errorf("row = %q", lines[1])
		}
	})

	t.Run("round trip between directories", func(t *testing.T) {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
		})
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Martin", Prenom: "Paul", Email: "paul@example.com",
		})
		svc := newDirectoryService(st)

		var buf bytes.Buffer
		if err := svc.ExportTo("alice", &buf); err != nil {
			t.Fatalf("ExportTo() error = %v", err)
		}

		summary, err := svc.ImportFrom("bob", &buf)
		if err != nil {
			t.Fatalf("ImportFrom() error = %v", err)
		}
		if summary.Imported != 2 || summary.Skipped != 0 {
			t.Errorf("summary = %+v, want 2 imported, 0 skipped", summary)
		}

		contacts, err := svc.List("bob", "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(contacts) != 2 {
			t.Errorf("bob has %d contacts, want 2", len(contacts))
		}
	})

	t.Run("skips invalid and duplicate rows", func(t *testing.T) {
		st := seedDirStore(t)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
		})
		svc := newDirectoryService(st)

		src := strings.Join([]string{
			"nom,prenom,telephone,adresse,email",
			"Martin,Paul,,,paul@example.com",
			"Dupont,Jean,,,jean@example.com",
			",Sans,,,anon@example.com",
			"Martin,Paul,,,paul@example.com",
		}, "\n")

		summary, err := svc.ImportFrom("alice", strings.NewReader(src))
		if err != nil {
			t.Fatalf("ImportFrom() error = %v", err)
		}
		if summary.Imported != 1 {
			t.Errorf("Imported = %d, want 1", summary.Imported)
		}
		if summary.Skipped != 3 {
			t.Errorf("Skipped = %d, want 3", summary.Skipped)
		}
	})

	t.Run("report caps the error list at five", func(t *testing.T) {
		summary := annuaire.ImportSummary{
			Imported: 1,
			Skipped:  7,
			Errors:   []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"},
		}
		report := summary.Report()
		if !strings.Contains(report, "and 2 more") {
			t.Errorf("Report() = %q, want it to end with \"and 2 more\"", report)
		}
		if strings.Contains(report, "e6") {
			t.Errorf("Report() = %q, should not show the sixth error", report)
		}
	})

	t.Run("missing import file", func(t *testing.T) {
		svc := newDirectoryService(seedDirStore(t))
		_, err := svc.Import("alice", "/nonexistent/contacts.csv")
		if !errors.Is(err, annuaire.ErrNotFound) {
			t.Errorf("Import() error = %v, want ErrNotFound", err)
		}
	})
}

package annuaire_test

import (
	"errors"
	"testing"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/store"
	"annuaire-go/internal/testutil"
)

func newAccountService(st annuaire.Store) *annuaire.AccountService {
	return annuaire.NewAccountService(st, annuaire.SHA256Hasher{}, annuaire.NewNopLogger())
}

func TestAccountService_Bootstrap(t *testing.T) {
	t.Run("creates the first administrator", func(t *testing.T) {
		st := testutil.NewTestStore()
		svc := newAccountService(st)

		if err := svc.Bootstrap("admin", "secret123", "admin@example.com"); err != nil {
			t.Fatalf("Bootstrap() error = %v", err)
		}

		if !svc.IsAdmin("admin") {
			t.Error("expected bootstrapped account to be an administrator")
		}
		if !st.Exists(annuaire.DirectoryTable("admin")) {
			t.Error("expected bootstrap to create the admin's directory")
		}
	})

	t.Run("fails once any account exists", func(t *testing.T) {
		st := testutil.NewTestStore()
		testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
		svc := newAccountService(st)

		err := svc.Bootstrap("other", "secret123", "other@example.com")
		if !errors.Is(err, annuaire.ErrConflict) {
			t.Errorf("Bootstrap() error = %v, want ErrConflict", err)
		}
	})

	t.Run("rejects invalid credentials", func(t *testing.T) {
		tests := []struct {
			name     string
			username string
			password string
			email    string
		}{
			{"short username", "ab", "secret123", "a@example.com"},
			{"bad username characters", "admin!", "secret123", "a@example.com"},
			{"short password", "admin", "abc", "a@example.com"},
			{"bad email", "admin", "secret123", "not-an-email"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := newAccountService(testutil.NewTestStore())
				err := svc.Bootstrap(tt.username, tt.password, tt.email)
				if !errors.Is(err, annuaire.ErrInvalidInput) {
					t.Errorf("Bootstrap() error = %v, want ErrInvalidInput", err)
				}
			})
		}
	})
}

func TestAccountService_Create(t *testing.T) {
	t.Run("administrator creates a user with an empty directory", func(t *testing.T) {
		st := testutil.NewTestStore()
		testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
		svc := newAccountService(st)

		if err := svc.Create("admin", "alice", "secret123", "alice@example.com", false); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if !st.Exists(annuaire.DirectoryTable("alice")) {
			t.Error("expected a directory to be created for the new account")
		}
		contacts, err := st.ReadAll(annuaire.DirectoryTable("alice"))
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if len(contacts) != 0 {
			t.Errorf("new directory has %d contacts, want 0", len(contacts))
		}
	})

	t.Run("non-administrator is denied", func(t *testing.T) {
		st := testutil.NewTestStore()
		testutil.SeedAccount(t, st, "bob", "secret123", "bob@example.com", false)
		svc := newAccountService(st)

		err := svc.Create("bob", "alice", "secret123", "alice@example.com", false)
		if !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("Create() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("unknown actor is denied", func(t *testing.T) {
		svc := newAccountService(testutil.NewTestStore())
		err := svc.Create("ghost", "alice", "secret123", "alice@example.com", false)
		if !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("Create() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		st := testutil.NewTestStore()
		testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
		testutil.SeedAccount(t, st, "alice", "secret123", "alice@example.com", false)
		svc := newAccountService(st)

		err := svc.Create("admin", "alice", "secret123", "alice2@example.com", false)
		if !errors.Is(err, annuaire.ErrConflict) {
			t.Errorf("Create() error = %v, want ErrConflict", err)
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		st := testutil.NewTestStore()
		testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
		testutil.SeedAccount(t, st, "alice", "secret123", "alice@example.com", false)
		svc := newAccountService(st)

		err := svc.Create("admin", "alice2", "secret123", "alice@example.com", false)
		if !errors.Is(err, annuaire.ErrConflict) {
			t.Errorf("Create() error = %v, want ErrConflict", err)
		}
	})
}

func TestAccountService_Delete(t *testing.T) {
	seed := func(t *testing.T) *store.MemoryStore {
		st := testutil.NewTestStore()
		testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
		testutil.SeedAccount(t, st, "alice", "secret123", "alice@example.com", false)
		testutil.SeedAccount(t, st, "bob", "secret123", "bob@example.com", false)
		return st
	}

	t.Run("cascades to directory and grants on both sides", func(t *testing.T) {
		st := seed(t)
		testutil.SeedGrant(t, st, "alice", "bob", annuaire.LevelRead)
		testutil.SeedGrant(t, st, "bob", "alice", annuaire.LevelWrite)
		testutil.SeedContact(t, st, "alice", annuaire.Contact{
			Nom: "Dupont", Prenom: "Jean", Email: "jean@example.com",
		})
		svc := newAccountService(st)

		if err := svc.Delete("admin", "alice"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		if st.Exists(annuaire.DirectoryTable("alice")) {
			t.Error("expected alice's directory to be removed")
		}
		grants, err := st.ReadAll(annuaire.PermissionsTable)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		for _, g := range grants {
			if g["owner"] == "alice" || g["granted_to"] == "alice" {
				t.Errorf("grant still mentions deleted account: %v", g)
			}
		}
	})

	t.Run("administrator cannot delete itself", func(t *testing.T) {
		svc := newAccountService(seed(t))
		err := svc.Delete("admin", "admin")
		if !errors.Is(err, annuaire.ErrSelfAction) {
			t.Errorf("Delete() error = %v, want ErrSelfAction", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := newAccountService(seed(t))
		err := svc.Delete("admin", "ghost")
		if !errors.Is(err, annuaire.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("non-administrator is denied", func(t *testing.T) {
		svc := newAccountService(seed(t))
		err := svc.Delete("bob", "alice")
		if !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("Delete() error = %v, want ErrPermissionDenied", err)
		}
	})
}

func TestAccountService_Update(t *testing.T) {
	seed := func(t *testing.T) *store.MemoryStore {
		st := testutil.NewTestStore()
		testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
		testutil.SeedAccount(t, st, "alice", "secret123", "alice@example.com", false)
		return st
	}

	t.Run("empty patch fails", func(t *testing.T) {
		svc := newAccountService(seed(t))
		err := svc.Update("admin", "alice", annuaire.AccountPatch{})
		if !errors.Is(err, annuaire.ErrNoChanges) {
			t.Errorf("Update() error = %v, want ErrNoChanges", err)
		}
	})

	t.Run("password change takes effect", func(t *testing.T) {
		svc := newAccountService(seed(t))

		if err := svc.Update("admin", "alice", annuaire.AccountPatch{Password: "newsecret"}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		if _, err := svc.Authenticate("alice", "newsecret"); err != nil {
			t.Errorf("Authenticate() with new password error = %v", err)
		}
		if _, err := svc.Authenticate("alice", "secret123"); !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("Authenticate() with old password error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("email change re-checks uniqueness", func(t *testing.T) {
		svc := newAccountService(seed(t))
		err := svc.Update("admin", "alice", annuaire.AccountPatch{Email: "admin@example.com"})
		if !errors.Is(err, annuaire.ErrConflict) {
			t.Errorf("Update() error = %v, want ErrConflict", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := newAccountService(seed(t))
		err := svc.Update("admin", "ghost", annuaire.AccountPatch{Email: "g@example.com"})
		if !errors.Is(err, annuaire.ErrNotFound) {
			t.Errorf("Update() error = %v, want ErrNotFound", err)
		}
	})
}

func TestAccountService_Authenticate(t *testing.T) {
	st := testutil.NewTestStore()
	testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
	testutil.SeedAccount(t, st, "alice", "hunter22", "alice@example.com", false)
	svc := newAccountService(st)

	t.Run("resolves roles", func(t *testing.T) {
		role, err := svc.Authenticate("admin", "secret123")
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if role != annuaire.RoleAdmin {
			t.Errorf("role = %s, want %s", role, annuaire.RoleAdmin)
		}

		role, err = svc.Authenticate("alice", "hunter22")
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if role != annuaire.RoleUser {
			t.Errorf("role = %s, want %s", role, annuaire.RoleUser)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate("alice", "wrong")
		if !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("Authenticate() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Authenticate("ghost", "whatever")
		if !errors.Is(err, annuaire.ErrNotFound) {
			t.Errorf("Authenticate() error = %v, want ErrNotFound", err)
		}
	})
}

func TestAccountService_List(t *testing.T) {
	st := testutil.NewTestStore()
	testutil.SeedAccount(t, st, "admin", "secret123", "admin@example.com", true)
	testutil.SeedAccount(t, st, "alice", "secret123", "alice@example.com", false)
	svc := newAccountService(st)

	t.Run("returns every account to an administrator", func(t *testing.T) {
		accounts, err := svc.List("admin")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(accounts) != 2 {
			t.Fatalf("List() returned %d accounts, want 2", len(accounts))
		}
	})

	t.Run("non-administrator is denied", func(t *testing.T) {
		_, err := svc.List("alice")
		if !errors.Is(err, annuaire.ErrPermissionDenied) {
			t.Errorf("List() error = %v, want ErrPermissionDenied", err)
		}
	})
}

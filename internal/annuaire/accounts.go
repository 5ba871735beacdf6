package annuaire

import "fmt"

// Account is a provisioned user. The username is the identity key and is
// immutable once created; the email must be unique across all accounts.
type Account struct {
	Username     string
	PasswordHash string
	Admin        bool
	Email        string
}

// AccountSummary is an account as exposed to administrators: everything
// except the credential hash.
type AccountSummary struct {
	Username string
	Email    string
	Admin    bool
}

// Role is the resolved authorization level of an authenticated account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// AccountPatch describes an account update. Empty fields are left unchanged;
// neither field can be cleared.
type AccountPatch struct {
	Password string
	Email    string
}

// AccountService owns user identity and credentials. Creating an account
// co-creates an empty contact directory; deleting one cascades to the
// directory and to every grant mentioning the account.
type AccountService struct {
	store  Store
	hasher PasswordHasher
	logger Logger
}

// NewAccountService creates an AccountService over the given store.
func NewAccountService(store Store, hasher PasswordHasher, logger Logger) *AccountService {
	return &AccountService{store: store, hasher: hasher, logger: logger}
}

func accountFromRecord(rec Record) Account {
	return Account{
		Username:     rec["username"],
		PasswordHash: rec["password_hash"],
		Admin:        rec["is_admin"] == adminTrue,
		Email:        rec["email"],
	}
}

func accountToRecord(a Account) Record {
	isAdmin := adminFalse
	if a.Admin {
		isAdmin = adminTrue
	}
	return Record{
		"username":      a.Username,
		"password_hash": a.PasswordHash,
		"is_admin":      isAdmin,
		"email":         a.Email,
	}
}

// loadAccounts reads the whole accounts table.
func loadAccounts(store Store) ([]Account, error) {
	recs, err := store.ReadAll(AccountsTable)
	if err != nil {
		return nil, ioFailure("reading accounts", err)
	}
	accounts := make([]Account, 0, len(recs))
	for _, rec := range recs {
		accounts = append(accounts, accountFromRecord(rec))
	}
	return accounts, nil
}

// findAccount returns the account with the given username, or nil.
func findAccount(store Store, username string) (*Account, error) {
	accounts, err := loadAccounts(store)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Username == username {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// requireAdmin resolves the actor and fails unless it is an administrator.
func (s *AccountService) requireAdmin(actor string) error {
	account, err := findAccount(s.store, actor)
	if err != nil {
		return err
	}
	if account == nil || !account.Admin {
		return denied("only an administrator may manage accounts")
	}
	return nil
}

// IsAdmin reports whether the given username names an administrator account.
func (s *AccountService) IsAdmin(username string) bool {
	account, err := findAccount(s.store, username)
	return err == nil && account != nil && account.Admin
}

// Bootstrap creates the first administrator. It is only callable while the
// registry is empty; any later call fails with ErrConflict.
func (s *AccountService) Bootstrap(username, password, email string) error {
	accounts, err := loadAccounts(s.store)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return conflict("an administrator already exists")
	}
	if err := s.validateNewAccount(username, password, email); err != nil {
		return err
	}
	if err := s.persistAccount(username, password, email, true); err != nil {
		return err
	}
	s.logger.Info("administrator bootstrapped", "username", username)
	return nil
}

// Create provisions a new account on behalf of an administrator and creates
// its empty contact directory.
func (s *AccountService) Create(adminActor, username, password, email string, admin bool) error {
	if err := s.requireAdmin(adminActor); err != nil {
		return err
	}
	if err := s.validateNewAccount(username, password, email); err != nil {
		return err
	}

	accounts, err := loadAccounts(s.store)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.Username == username {
			return conflict("username already taken: %s", username)
		}
		if a.Email == email {
			return conflict("email address already in use: %s", email)
		}
	}

	if err := s.persistAccount(username, password, email, admin); err != nil {
		return err
	}
	s.logger.Info("account created", "username", username, "admin", admin, "by", adminActor)
	return nil
}

func (s *AccountService) validateNewAccount(username, password, email string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	return validateEmail(email)
}

func (s *AccountService) persistAccount(username, password, email string, admin bool) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	account := Account{Username: username, PasswordHash: hash, Admin: admin, Email: email}
	if err := s.store.AppendOne(AccountsTable, accountToRecord(account)); err != nil {
		return ioFailure("saving account", err)
	}
	if err := s.store.Create(DirectoryTable(username)); err != nil {
		return ioFailure("creating directory", err)
	}
	return nil
}

// Delete removes an account, its contact directory, and every grant where it
// appears as owner or grantee. Administrators cannot delete themselves.
func (s *AccountService) Delete(adminActor, username string) error {
	if err := s.requireAdmin(adminActor); err != nil {
		return err
	}

	accounts, err := loadAccounts(s.store)
	if err != nil {
		return err
	}
	idx := -1
	for i, a := range accounts {
		if a.Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return notFound("no such user: %s", username)
	}
	if adminActor == username {
		return selfAction("cannot delete your own administrator account")
	}

	remaining := make([]Record, 0, len(accounts)-1)
	for i, a := range accounts {
		if i != idx {
			remaining = append(remaining, accountToRecord(a))
		}
	}
	if err := s.store.RewriteAll(AccountsTable, remaining); err != nil {
		return ioFailure("removing account", err)
	}
	if err := s.store.Remove(DirectoryTable(username)); err != nil {
		return ioFailure("removing directory", err)
	}
	if err := purgeGrantsFor(s.store, username); err != nil {
		return err
	}

	s.logger.Info("account deleted", "username", username, "by", adminActor)
	return nil
}

// Update patches an account's password and/or email. An empty patch fails
// with ErrNoChanges; an email change re-checks uniqueness against every
// other account.
func (s *AccountService) Update(adminActor, username string, patch AccountPatch) error {
	if err := s.requireAdmin(adminActor); err != nil {
		return err
	}

	accounts, err := loadAccounts(s.store)
	if err != nil {
		return err
	}
	idx := -1
	for i, a := range accounts {
		if a.Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return notFound("no such user: %s", username)
	}

	changed := false
	if patch.Password != "" {
		if err := validatePassword(patch.Password); err != nil {
			return err
		}
		hash, err := s.hasher.Hash(patch.Password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		accounts[idx].PasswordHash = hash
		changed = true
	}
	if patch.Email != "" {
		if err := validateEmail(patch.Email); err != nil {
			return err
		}
		for i, a := range accounts {
			if i != idx && a.Email == patch.Email {
				return conflict("email address already in use: %s", patch.Email)
			}
		}
		accounts[idx].Email = patch.Email
		changed = true
	}
	if !changed {
		return noChanges("nothing to update")
	}

	recs := make([]Record, 0, len(accounts))
	for _, a := range accounts {
		recs = append(recs, accountToRecord(a))
	}
	if err := s.store.RewriteAll(AccountsTable, recs); err != nil {
		return ioFailure("updating account", err)
	}

	s.logger.Info("account updated", "username", username, "by", adminActor)
	return nil
}

// Authenticate verifies the credentials and returns the account's role.
func (s *AccountService) Authenticate(username, password string) (Role, error) {
	account, err := findAccount(s.store, username)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", notFound("no such user: %s", username)
	}
	if !s.hasher.Verify(account.PasswordHash, password) {
		return "", denied("incorrect password")
	}
	if account.Admin {
		return RoleAdmin, nil
	}
	return RoleUser, nil
}

// List returns every account without credential hashes. Admin-only.
func (s *AccountService) List(adminActor string) ([]AccountSummary, error) {
	if err := s.requireAdmin(adminActor); err != nil {
		return nil, err
	}
	accounts, err := loadAccounts(s.store)
	if err != nil {
		return nil, err
	}
	summaries := make([]AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		summaries = append(summaries, AccountSummary{
			Username: a.Username,
			Email:    a.Email,
			Admin:    a.Admin,
		})
	}
	return summaries, nil
}

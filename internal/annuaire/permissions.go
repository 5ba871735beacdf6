package annuaire

// Level is the access scope of a grant.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAll   Level = "all"
)

// Valid reports whether the level is one of read, write, all.
func (l Level) Valid() bool {
	return l == LevelRead || l == LevelWrite || l == LevelAll
}

// Allows reports whether a grant at this level satisfies the required level.
// "all" satisfies everything and a "write" grant satisfies a read
// requirement, but write does not imply "all" and read implies nothing
// beyond itself. The asymmetry is deliberate and matches the legacy policy.
func (l Level) Allows(required Level) bool {
	if l == LevelAll {
		return true
	}
	if l == required {
		return true
	}
	return required == LevelRead && l == LevelWrite
}

// Grant gives one account (the grantee) some level of access to another
// account's directory. At most one grant exists per (owner, grantee) pair.
type Grant struct {
	Owner   string
	Grantee string
	Level   Level
}

func grantFromRecord(rec Record) Grant {
	return Grant{
		Owner:   rec["owner"],
		Grantee: rec["granted_to"],
		Level:   Level(rec["permission_type"]),
	}
}

func grantToRecord(g Grant) Record {
	return Record{
		"owner":           g.Owner,
		"granted_to":      g.Grantee,
		"permission_type": string(g.Level),
	}
}

func loadGrants(store Store) ([]Grant, error) {
	recs, err := store.ReadAll(PermissionsTable)
	if err != nil {
		return nil, ioFailure("reading permissions", err)
	}
	grants := make([]Grant, 0, len(recs))
	for _, rec := range recs {
		grants = append(grants, grantFromRecord(rec))
	}
	return grants, nil
}

// purgeGrantsFor drops every grant mentioning the username on either side.
// Called from the account-deletion cascade.
func purgeGrantsFor(store Store, username string) error {
	grants, err := loadGrants(store)
	if err != nil {
		return err
	}
	kept := make([]Record, 0, len(grants))
	for _, g := range grants {
		if g.Owner != username && g.Grantee != username {
			kept = append(kept, grantToRecord(g))
		}
	}
	if err := store.RewriteAll(PermissionsTable, kept); err != nil {
		return ioFailure("purging permissions", err)
	}
	return nil
}

// PermissionService owns the grant ledger and answers access questions.
// It never mutates accounts or directories.
type PermissionService struct {
	store  Store
	logger Logger
}

// NewPermissionService creates a PermissionService over the given store.
func NewPermissionService(store Store, logger Logger) *PermissionService {
	return &PermissionService{store: store, logger: logger}
}

// Grant records a new access grant from owner to grantee. Changing the level
// of an existing grant requires revoking it first.
func (s *PermissionService) Grant(owner, grantee string, level Level) error {
	ownerAccount, err := findAccount(s.store, owner)
	if err != nil {
		return err
	}
	if ownerAccount == nil {
		return notFound("no such owner: %s", owner)
	}
	granteeAccount, err := findAccount(s.store, grantee)
	if err != nil {
		return err
	}
	if granteeAccount == nil {
		return notFound("no such grantee: %s", grantee)
	}
	if !level.Valid() {
		return invalid("invalid permission level %q: must be read, write or all", level)
	}
	if owner == grantee {
		return selfAction("cannot grant access to yourself")
	}

	grants, err := loadGrants(s.store)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.Owner == owner && g.Grantee == grantee {
			return conflict("a grant from %s to %s already exists", owner, grantee)
		}
	}

	grant := Grant{Owner: owner, Grantee: grantee, Level: level}
	if err := s.store.AppendOne(PermissionsTable, grantToRecord(grant)); err != nil {
		return ioFailure("saving grant", err)
	}

	s.logger.Info("permission granted", "owner", owner, "grantee", grantee, "level", level)
	return nil
}

// Revoke removes the grant from owner to grantee, whatever its level.
func (s *PermissionService) Revoke(owner, grantee string) error {
	ownerAccount, err := findAccount(s.store, owner)
	if err != nil {
		return err
	}
	if ownerAccount == nil {
		return notFound("no such owner: %s", owner)
	}

	grants, err := loadGrants(s.store)
	if err != nil {
		return err
	}
	kept := make([]Record, 0, len(grants))
	removed := false
	for _, g := range grants {
		if g.Owner == owner && g.Grantee == grantee {
			removed = true
			continue
		}
		kept = append(kept, grantToRecord(g))
	}
	if !removed {
		return notFound("no grant from %s to %s to revoke", owner, grantee)
	}
	if err := s.store.RewriteAll(PermissionsTable, kept); err != nil {
		return ioFailure("removing grant", err)
	}

	s.logger.Info("permission revoked", "owner", owner, "grantee", grantee)
	return nil
}

// GrantedBy lists every grant the owner has handed out.
func (s *PermissionService) GrantedBy(owner string) ([]Grant, error) {
	account, err := findAccount(s.store, owner)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, notFound("no such user: %s", owner)
	}
	grants, err := loadGrants(s.store)
	if err != nil {
		return nil, err
	}
	var out []Grant
	for _, g := range grants {
		if g.Owner == owner {
			out = append(out, g)
		}
	}
	return out, nil
}

// ReceivedBy lists every grant the user has received from other owners.
func (s *PermissionService) ReceivedBy(grantee string) ([]Grant, error) {
	account, err := findAccount(s.store, grantee)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, notFound("no such user: %s", grantee)
	}
	grants, err := loadGrants(s.store)
	if err != nil {
		return nil, err
	}
	var out []Grant
	for _, g := range grants {
		if g.Grantee == grantee {
			out = append(out, g)
		}
	}
	return out, nil
}

// Evaluate decides whether actor may perform an operation requiring the
// given level on owner's directory. Owners always have full access to their
// own directory, with or without grants.
func (s *PermissionService) Evaluate(owner, actor string, required Level) (bool, error) {
	if owner == actor {
		return true, nil
	}
	grants, err := loadGrants(s.store)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Owner == owner && g.Grantee == actor && g.Level.Allows(required) {
			return true, nil
		}
	}
	return false, nil
}

package annuaire

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Contact is a single entry in an account's directory. The email is the
// contact's identifier within the directory: no two contacts in one
// directory share an email.
type Contact struct {
	Nom       string
	Prenom    string
	Telephone string
	Adresse   string
	Email     string
}

// ContactPatch describes a contact update. Nil fields are left unchanged.
// Telephone and Adresse are optional contact fields, so supplying an empty
// value clears them; the required fields ignore empty values.
type ContactPatch struct {
	Nom       *string
	Prenom    *string
	Email     *string
	Telephone *string
	Adresse   *string
}

// ImportSummary reports the outcome of a bulk import. Rows that fail
// validation or duplicate an existing email are skipped, not fatal.
type ImportSummary struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Report renders the summary for display, capping the error list at five.
func (s ImportSummary) Report() string {
	if s.Skipped == 0 {
		return fmt.Sprintf("%d contact(s) imported", s.Imported)
	}
	shown := s.Errors
	more := 0
	if len(shown) > 5 {
		more = len(shown) - 5
		shown = shown[:5]
	}
	msg := fmt.Sprintf("%d contact(s) imported, %d skipped: %s", s.Imported, s.Skipped, strings.Join(shown, "; "))
	if more > 0 {
		msg += fmt.Sprintf(" and %d more", more)
	}
	return msg
}

// SearchFields are the contact fields a search may match against.
var SearchFields = []string{"nom", "prenom", "email", "telephone", "adresse"}

func contactFromRecord(rec Record) Contact {
	return Contact{
		Nom:       rec["nom"],
		Prenom:    rec["prenom"],
		Telephone: rec["telephone"],
		Adresse:   rec["adresse"],
		Email:     rec["email"],
	}
}

func contactToRecord(c Contact) Record {
	return Record{
		"nom":       c.Nom,
		"prenom":    c.Prenom,
		"telephone": c.Telephone,
		"adresse":   c.Adresse,
		"email":     c.Email,
	}
}

func (c Contact) field(name string) string {
	switch name {
	case "nom":
		return c.Nom
	case "prenom":
		return c.Prenom
	case "telephone":
		return c.Telephone
	case "adresse":
		return c.Adresse
	case "email":
		return c.Email
	}
	return ""
}

// DirectoryService orchestrates contact operations over the per-account
// directory tables. Mutations are owner-only; reads honor grants through the
// permission service. Accounts and grants are never mutated from here.
type DirectoryService struct {
	store  Store
	perms  *PermissionService
	logger Logger
}

// NewDirectoryService creates a DirectoryService.
func NewDirectoryService(store Store, perms *PermissionService, logger Logger) *DirectoryService {
	return &DirectoryService{store: store, perms: perms, logger: logger}
}

func (s *DirectoryService) requireAccount(username string) error {
	account, err := findAccount(s.store, username)
	if err != nil {
		return err
	}
	if account == nil {
		return notFound("no such user: %s", username)
	}
	return nil
}

func (s *DirectoryService) readDirectory(owner string) ([]Contact, error) {
	recs, err := s.store.ReadAll(DirectoryTable(owner))
	if err != nil {
		return nil, ioFailure("reading directory", err)
	}
	contacts := make([]Contact, 0, len(recs))
	for _, rec := range recs {
		contacts = append(contacts, contactFromRecord(rec))
	}
	return contacts, nil
}

// Add appends a new contact to the owner's directory. Adding is owner-only:
// grants never delegate it.
func (s *DirectoryService) Add(owner string, c Contact) error {
	if err := s.requireAccount(owner); err != nil {
		return err
	}
	if err := validateContact(c); err != nil {
		return err
	}

	contacts, err := s.readDirectory(owner)
	if err != nil {
		return err
	}
	for _, existing := range contacts {
		if existing.Email == c.Email {
			return conflict("a contact with email %s already exists", c.Email)
		}
	}

	if err := s.store.AppendOne(DirectoryTable(owner), contactToRecord(c)); err != nil {
		return ioFailure("saving contact", err)
	}
	s.logger.Info("contact added", "owner", owner, "email", c.Email)
	return nil
}

// Search finds contacts in owner's directory whose field contains value,
// case-insensitively. An empty value matches every contact; an empty owner
// means the actor's own directory. The actor needs read access; without it
// the caller gets ErrPermissionDenied and is expected to render an empty
// result.
func (s *DirectoryService) Search(actor, owner, field, value string) ([]Contact, error) {
	if owner == "" {
		owner = actor
	}
	if err := s.requireAccount(actor); err != nil {
		return nil, err
	}
	ok, err := s.perms.Evaluate(owner, actor, LevelRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, denied("%s has no read access to %s's directory", actor, owner)
	}

	validField := false
	for _, f := range SearchFields {
		if field == f {
			validField = true
			break
		}
	}
	if !validField {
		return nil, invalid("invalid search field %q: must be one of %s", field, strings.Join(SearchFields, ", "))
	}

	contacts, err := s.readDirectory(owner)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(value)
	var results []Contact
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.field(field)), needle) {
			results = append(results, c)
		}
	}
	return results, nil
}

// List returns every contact in owner's directory. An empty owner means the
// actor's own directory. The actor needs read access.
func (s *DirectoryService) List(actor, owner string) ([]Contact, error) {
	if owner == "" {
		owner = actor
	}
	if err := s.requireAccount(actor); err != nil {
		return nil, err
	}
	ok, err := s.perms.Evaluate(owner, actor, LevelRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, denied("%s has no read access to %s's directory", actor, owner)
	}
	return s.readDirectory(owner)
}

// Delete removes the contact identified by email from owner's directory.
// Owner-only.
func (s *DirectoryService) Delete(owner, email string) error {
	if err := s.requireAccount(owner); err != nil {
		return err
	}

	contacts, err := s.readDirectory(owner)
	if err != nil {
		return err
	}
	kept := make([]Record, 0, len(contacts))
	removed := false
	for _, c := range contacts {
		if c.Email == email {
			removed = true
			continue
		}
		kept = append(kept, contactToRecord(c))
	}
	if !removed {
		return notFound("no contact with email %s", email)
	}
	if err := s.store.RewriteAll(DirectoryTable(owner), kept); err != nil {
		return ioFailure("removing contact", err)
	}

	s.logger.Info("contact deleted", "owner", owner, "email", email)
	return nil
}

// Update patches the contact identified by currentEmail. Owner-only. An
// email change re-checks uniqueness against the other contacts, and the
// merged record is validated as a whole before anything is written.
func (s *DirectoryService) Update(owner, currentEmail string, patch ContactPatch) error {
	if err := s.requireAccount(owner); err != nil {
		return err
	}

	contacts, err := s.readDirectory(owner)
	if err != nil {
		return err
	}
	idx := -1
	for i, c := range contacts {
		if c.Email == currentEmail {
			idx = i
			break
		}
	}
	if idx < 0 {
		return notFound("no contact with email %s", currentEmail)
	}

	merged := contacts[idx]
	changed := false
	if patch.Nom != nil && *patch.Nom != "" {
		merged.Nom = *patch.Nom
		changed = true
	}
	if patch.Prenom != nil && *patch.Prenom != "" {
		merged.Prenom = *patch.Prenom
		changed = true
	}
	if patch.Email != nil && *patch.Email != "" {
		for i, c := range contacts {
			if i != idx && c.Email == *patch.Email {
				return conflict("a contact with email %s already exists", *patch.Email)
			}
		}
		merged.Email = *patch.Email
		changed = true
	}
	if patch.Telephone != nil {
		merged.Telephone = *patch.Telephone
		changed = true
	}
	if patch.Adresse != nil {
		merged.Adresse = *patch.Adresse
		changed = true
	}
	if !changed {
		return noChanges("nothing to update")
	}
	if err := validateContact(merged); err != nil {
		return err
	}

	contacts[idx] = merged
	recs := make([]Record, 0, len(contacts))
	for _, c := range contacts {
		recs = append(recs, contactToRecord(c))
	}
	if err := s.store.RewriteAll(DirectoryTable(owner), recs); err != nil {
		return ioFailure("updating contact", err)
	}

	s.logger.Info("contact updated", "owner", owner, "email", currentEmail)
	return nil
}

// ExportTo serializes owner's directory as CSV (header row, legacy field
// order) to the writer. Owner-only.
func (s *DirectoryService) ExportTo(owner string, w io.Writer) error {
	if err := s.requireAccount(owner); err != nil {
		return err
	}
	contacts, err := s.readDirectory(owner)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ContactFields); err != nil {
		return ioFailure("writing export", err)
	}
	for _, c := range contacts {
		row := make([]string, len(ContactFields))
		rec := contactToRecord(c)
		for i, f := range ContactFields {
			row[i] = rec[f]
		}
		if err := cw.Write(row); err != nil {
			return ioFailure("writing export", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return ioFailure("writing export", err)
	}
	return nil
}

// Export writes owner's directory to a CSV file at path.
func (s *DirectoryService) Export(owner, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return ioFailure("creating export file", err)
	}
	defer f.Close()

	if err := s.ExportTo(owner, f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return ioFailure("closing export file", err)
	}
	s.logger.Info("directory exported", "owner", owner, "path", path)
	return nil
}

// ImportFrom reads CSV contact rows from r and appends the valid,
// non-duplicate ones to owner's directory. Each row is checked against the
// directory as it stands at that moment, so duplicates inside the import
// file are caught too. Row failures are collected in the summary; only a
// read fault on the source aborts the call.
func (s *DirectoryService) ImportFrom(owner string, r io.Reader) (ImportSummary, error) {
	var summary ImportSummary
	if err := s.requireAccount(owner); err != nil {
		return summary, err
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return summary, nil
	}
	if err != nil {
		return summary, ioFailure("reading import file", err)
	}

	fieldIndex := make(map[string]int, len(header))
	for i, name := range header {
		fieldIndex[strings.TrimSpace(name)] = i
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				continue
			}
			return summary, ioFailure("reading import file", err)
		}

		get := func(name string) string {
			i, ok := fieldIndex[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		contact := Contact{
			Nom:       get("nom"),
			Prenom:    get("prenom"),
			Telephone: get("telephone"),
			Adresse:   get("adresse"),
			Email:     get("email"),
		}

		if err := validateContact(contact); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("invalid contact (%s): %v", orNA(contact.Email), err))
			continue
		}

		// Re-read the directory before each duplicate check so rows
		// appended earlier in this same import are seen.
		contacts, err := s.readDirectory(owner)
		if err != nil {
			return summary, err
		}
		duplicate := false
		for _, existing := range contacts {
			if existing.Email == contact.Email {
				duplicate = true
				break
			}
		}
		if duplicate {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("skipped (email already exists): %s", contact.Email))
			continue
		}

		if err := s.store.AppendOne(DirectoryTable(owner), contactToRecord(contact)); err != nil {
			return summary, ioFailure("saving contact", err)
		}
		summary.Imported++
	}

	s.logger.Info("directory imported", "owner", owner, "imported", summary.Imported, "skipped", summary.Skipped)
	return summary, nil
}

// Import reads contacts from a CSV file at path. A missing source file fails
// with ErrNotFound.
func (s *DirectoryService) Import(owner, path string) (ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ImportSummary{}, notFound("import file not found: %s", path)
		}
		return ImportSummary{}, ioFailure("opening import file", err)
	}
	defer f.Close()
	return s.ImportFrom(owner, f)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

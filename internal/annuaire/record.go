package annuaire

// Record is a single row in a record store: a fixed-schema mapping from
// field name to string value. Field order is carried by the Table, not the
// record itself.
type Record map[string]string

// Table identifies a record store and fixes its field schema. Field order is
// preserved on write for file compatibility with the legacy CSV layout, but
// carries no meaning on read.
type Table struct {
	ID     string
	Fields []string
}

// Store is the durable table abstraction all services persist through.
// Implementations are not required to be safe for concurrent use; the CLI
// runs one operation at a time.
type Store interface {
	// ReadAll returns every record of the table in insertion order.
	// A table that was never written reads as empty, not as an error.
	ReadAll(table Table) ([]Record, error)

	// AppendOne adds a single record to the end of the table, creating the
	// table if it does not exist yet.
	AppendOne(table Table, rec Record) error

	// RewriteAll replaces the table's entire contents with the given records.
	RewriteAll(table Table, recs []Record) error

	// Create ensures an empty table exists. Existing tables are left alone.
	Create(table Table) error

	// Remove deletes the table and its backing storage. Removing a table
	// that does not exist is not an error.
	Remove(table Table) error

	// Close releases any underlying resources.
	Close() error
}

// Legacy on-disk values for the accounts is_admin column.
const (
	adminTrue  = "True"
	adminFalse = "False"
)

// AccountsTable is the single table holding every user account.
var AccountsTable = Table{
	ID:     "users",
	Fields: []string{"username", "password_hash", "is_admin", "email"},
}

// PermissionsTable is the single table holding every directory access grant.
var PermissionsTable = Table{
	ID:     "permissions",
	Fields: []string{"owner", "granted_to", "permission_type"},
}

// ContactFields is the contact schema, in legacy file order.
var ContactFields = []string{"nom", "prenom", "telephone", "adresse", "email"}

// DirectoryTable returns the per-account contact table for a username.
func DirectoryTable(username string) Table {
	return Table{
		ID:     "annuaire_" + username,
		Fields: ContactFields,
	}
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"annuaire-go/internal/annuaire"
	"annuaire-go/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore keeps every table in a single SQLite database: a generic
// records table with JSON-encoded field maps, ordered by rowid, plus a
// stores table tracking which tables exist. Functionally equivalent to the
// CSV layout but in one file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies any
// pending migrations. path can be ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := openConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// openConnection opens the database and turns on foreign keys, which SQLite
// leaves off by default. The Remove cascade depends on them.
func openConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return db, nil
}

var _ annuaire.Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) ReadAll(table annuaire.Table) ([]annuaire.Record, error) {
	rows, err := s.db.Query("SELECT record FROM records WHERE store_id = ? ORDER BY id", table.ID)
	if err != nil {
		return nil, fmt.Errorf("querying table %s: %w", table.ID, err)
	}
	defer rows.Close()

	var recs []annuaire.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning table %s: %w", table.ID, err)
		}
		var rec annuaire.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decoding record in table %s: %w", table.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading table %s: %w", table.ID, err)
	}
	return recs, nil
}

func (s *SQLiteStore) AppendOne(table annuaire.Table, rec annuaire.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT OR IGNORE INTO stores (store_id) VALUES (?)", table.ID); err != nil {
		return fmt.Errorf("registering table %s: %w", table.ID, err)
	}
	if _, err := tx.Exec("INSERT INTO records (store_id, record) VALUES (?, ?)", table.ID, string(raw)); err != nil {
		return fmt.Errorf("appending to table %s: %w", table.ID, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) RewriteAll(table annuaire.Table, recs []annuaire.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT OR IGNORE INTO stores (store_id) VALUES (?)", table.ID); err != nil {
		return fmt.Errorf("registering table %s: %w", table.ID, err)
	}
	if _, err := tx.Exec("DELETE FROM records WHERE store_id = ?", table.ID); err != nil {
		return fmt.Errorf("clearing table %s: %w", table.ID, err)
	}
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO records (store_id, record) VALUES (?, ?)", table.ID, string(raw)); err != nil {
			return fmt.Errorf("writing table %s: %w", table.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Create(table annuaire.Table) error {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO stores (store_id) VALUES (?)", table.ID); err != nil {
		return fmt.Errorf("creating table %s: %w", table.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(table annuaire.Table) error {
	// The records rows go with the stores row via ON DELETE CASCADE.
	if _, err := s.db.Exec("DELETE FROM stores WHERE store_id = ?", table.ID); err != nil {
		return fmt.Errorf("removing table %s: %w", table.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

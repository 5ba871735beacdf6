package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"annuaire-go/internal/annuaire"
)

// CSVStore is the legacy-compatible record store: one UTF-8 CSV file per
// table under the data directory, header row first, field order fixed by the
// table schema. Rewrites are atomic (temp file + rename).
type CSVStore struct {
	dataDir string
}

// NewCSVStore creates a CSV store rooted at dataDir, creating the directory
// if needed.
func NewCSVStore(dataDir string) (*CSVStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &CSVStore{dataDir: dataDir}, nil
}

var _ annuaire.Store = (*CSVStore)(nil)

func (s *CSVStore) path(table annuaire.Table) string {
	return filepath.Join(s.dataDir, table.ID+".csv")
}

// ReadAll returns every record of the table. A table whose file does not
// exist reads as empty.
func (s *CSVStore) ReadAll(table annuaire.Table) ([]annuaire.Record, error) {
	f, err := os.Open(s.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening table %s: %w", table.ID, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading table %s header: %w", table.ID, err)
	}

	var recs []annuaire.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading table %s: %w", table.ID, err)
		}
		rec := make(annuaire.Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// AppendOne adds a record to the end of the table file, writing the header
// first if the file does not exist yet.
func (s *CSVStore) AppendOne(table annuaire.Table, rec annuaire.Record) error {
	path := s.path(table)
	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening table %s: %w", table.ID, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(table.Fields); err != nil {
			return fmt.Errorf("writing table %s header: %w", table.ID, err)
		}
	}
	if err := w.Write(recordRow(table, rec)); err != nil {
		return fmt.Errorf("appending to table %s: %w", table.ID, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("appending to table %s: %w", table.ID, err)
	}
	return f.Close()
}

// RewriteAll atomically replaces the table's contents: the new file is
// written next to the old one and renamed into place.
func (s *CSVStore) RewriteAll(table annuaire.Table, recs []annuaire.Record) error {
	path := s.path(table)
	tmp, err := os.CreateTemp(s.dataDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(table.Fields); err != nil {
		tmp.Close()
		return fmt.Errorf("writing table %s header: %w", table.ID, err)
	}
	for _, rec := range recs {
		if err := w.Write(recordRow(table, rec)); err != nil {
			tmp.Close()
			return fmt.Errorf("writing table %s: %w", table.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing table %s: %w", table.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing table %s: %w", table.ID, err)
	}
	success = true
	return nil
}

// Create writes a header-only file for the table if none exists.
func (s *CSVStore) Create(table annuaire.Table) error {
	path := s.path(table)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return s.RewriteAll(table, nil)
}

// Remove deletes the table file. A missing file is not an error.
func (s *CSVStore) Remove(table annuaire.Table) error {
	if err := os.Remove(s.path(table)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing table %s: %w", table.ID, err)
	}
	return nil
}

func (s *CSVStore) Close() error { return nil }

// recordRow projects a record onto the table's field order.
func recordRow(table annuaire.Table, rec annuaire.Record) []string {
	row := make([]string, len(table.Fields))
	for i, f := range table.Fields {
		row[i] = rec[f]
	}
	return row
}

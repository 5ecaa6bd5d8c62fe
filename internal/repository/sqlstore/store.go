// Package sqlstore implements the repositories on database/sql. The same
// queries run on PostgreSQL (lib/pq) and SQLite (go-sqlite3); only the table
// definitions differ per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"offer-parser/internal/repository"
)

// ErrNoDatabase is returned by Open when neither database is configured.
var ErrNoDatabase = errors.New("no database configured")

// Open picks PostgreSQL when databaseURL is set, otherwise the SQLite file at sqlitePath.
func Open(ctx context.Context, databaseURL, sqlitePath string) (*repository.Store, error) {
	switch {
	case databaseURL != "":
		return OpenPostgres(ctx, databaseURL)
	case sqlitePath != "":
		return OpenSQLite(ctx, sqlitePath)
	}
	return nil, ErrNoDatabase
}

// Dialect carries the per-database DDL.
type Dialect struct {
	Name   string
	Tables []string
}

// New builds a repository.Store over an open database and creates the tables.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*repository.Store, error) {
	if err := InitializeDatabase(ctx, db, dialect); err != nil {
		return nil, err
	}
	return &repository.Store{
		Emails:   NewEmailRepository(db),
		Accounts: NewAccountRepository(db),
		Schemas:  NewSchemaRepository(db),
		Close:    db.Close,
	}, nil
}

// InitializeDatabase creates the necessary tables
func InitializeDatabase(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, table := range dialect.Tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create %s table: %w", dialect.Name, err)
		}
	}
	return nil
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func encodeJSON(v interface{}, isNil bool) (interface{}, error) {
	if isNil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

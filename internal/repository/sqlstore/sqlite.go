package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"offer-parser/internal/repository"

	_ "github.com/mattn/go-sqlite3"
)

var SQLite = Dialect{
	Name: "sqlite",
	Tables: []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT NOT NULL PRIMARY KEY,
			address TEXT NOT NULL UNIQUE,
			display_name TEXT,
			active BOOLEAN NOT NULL DEFAULT 1,
			last_sync TIMESTAMP,
			email_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emails (
			id TEXT NOT NULL PRIMARY KEY,
			account_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			thread_id TEXT,
			sender TEXT NOT NULL,
			sender_name TEXT,
			subject TEXT,
			body_text TEXT NOT NULL,
			headers TEXT,
			received_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			last_error TEXT,
			parsed_data TEXT,
			parsing_model TEXT,
			parsed_at TIMESTAMP,
			corrected_data TEXT,
			correction_diff TEXT,
			corrected_by TEXT,
			corrected_at TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (account_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_status_received ON emails (status, received_at)`,
		`CREATE TABLE IF NOT EXISTS parsing_schema (
			id INTEGER NOT NULL PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	},
}

func dsnFromPath(path string, addValues url.Values) (string, error) {
	var u *url.URL
	if !strings.HasPrefix(path, "file:") {
		u = &url.URL{Scheme: "file", Path: path}
	} else {
		var err error
		u, err = url.Parse(path)
		if err != nil {
			return "", err
		}
	}
	values := u.Query()
	for k, v := range addValues {
		for _, item := range v {
			values.Add(k, item)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// OpenSQLite opens (or creates) a database file and prepares the tables.
func OpenSQLite(ctx context.Context, path string) (*repository.Store, error) {
	// Concurrent batch workers contend on the single writer lock; let SQLite
	// poll for a while instead of failing with SQLITE_BUSY.
	busyTimeout := int(30*time.Second) / int(time.Millisecond)

	dsn, err := dsnFromPath(path, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", busyTimeout)},
		"_journal_mode": {"WAL"},
	})
	if err != nil {
		return nil, fmt.Errorf("could not form a DSN from %q: %w", path, err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database at %q: %w", dsn, err)
	}
	store, err := New(ctx, db, SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

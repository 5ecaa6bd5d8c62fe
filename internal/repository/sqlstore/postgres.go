package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"offer-parser/internal/repository"

	_ "github.com/lib/pq"
)

var Postgres = Dialect{
	Name: "postgres",
	Tables: []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(255) PRIMARY KEY,
			address VARCHAR(255) UNIQUE NOT NULL,
			display_name TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_sync TIMESTAMP,
			email_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emails (
			id VARCHAR(255) PRIMARY KEY,
			account_id VARCHAR(255) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			thread_id VARCHAR(255),
			sender TEXT NOT NULL,
			sender_name TEXT,
			subject TEXT,
			body_text TEXT NOT NULL,
			headers JSONB,
			received_at TIMESTAMP NOT NULL,
			status VARCHAR(16) NOT NULL,
			error_message TEXT,
			last_error TEXT,
			parsed_data JSONB,
			parsing_model VARCHAR(100),
			parsed_at TIMESTAMP,
			corrected_data JSONB,
			correction_diff JSONB,
			corrected_by VARCHAR(255),
			corrected_at TIMESTAMP,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (account_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_status_received ON emails (status, received_at)`,
		`CREATE TABLE IF NOT EXISTS parsing_schema (
			id INTEGER PRIMARY KEY,
			document JSONB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	},
}

// OpenPostgres connects with lib/pq and prepares the tables.
func OpenPostgres(ctx context.Context, databaseURL string) (*repository.Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	store, err := New(ctx, db, Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

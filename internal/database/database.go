package database

import (
	"database/sql"

	_ "modernc.org/sqlite" // SQLite driver
)

// New creates a new database connection pool.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sounds (
		id TEXT NOT NULL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		duration_seconds REAL,
		bitrate_kbps INTEGER,
		blob_url TEXT NOT NULL,
		thumbnail_blob_url TEXT,
		is_public INTEGER NOT NULL DEFAULT 1,
		author_id TEXT NOT NULL REFERENCES accounts(id),
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sounds_created_at ON sounds(created_at);
	CREATE INDEX IF NOT EXISTS idx_sounds_author_id ON sounds(author_id);
	`

	_, err := db.Exec(sqlStmt)
	return err
}

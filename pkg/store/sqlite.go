package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteClient opens the embedded on-device database. This is the default
// session store: a single file, no server, safe for one writer plus
// concurrent readers via WAL.
type SQLiteClient struct {
	db *sql.DB
}

// OpenSQLite opens (and creates, when missing) the session database at path.
func OpenSQLite(path string) (*SQLiteClient, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; the pipeline serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteClient{db: db}, nil
}

// DB exposes the underlying handle for the SQL store.
func (c *SQLiteClient) DB() *sql.DB {
	return c.db
}

// Close closes the database file.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// NewSQLiteStore opens path and wraps it in a SessionStore.
func NewSQLiteStore(path string) (*SQLStore, error) {
	client, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(client, DialectSQLite), nil
}

func initSQLiteSchema(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sessionId TEXT NOT NULL UNIQUE,
			time TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			people TEXT NOT NULL DEFAULT '',
			hashtags TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			audioUri TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			transcribeSource TEXT NOT NULL DEFAULT '',
			transcribeError TEXT NOT NULL DEFAULT '',
			audioState TEXT NOT NULL DEFAULT 'none',
			title TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			summaryError TEXT NOT NULL DEFAULT '',
			summaryState TEXT NOT NULL DEFAULT 'none',
			fileState TEXT NOT NULL DEFAULT 'saving',
			createdAt TEXT NOT NULL,
			updatedAt TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_audio_state ON sessions(audioState);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

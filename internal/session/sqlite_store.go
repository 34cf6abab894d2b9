package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sessionKey = "session"

// SQLiteStore keeps the session as JSON in a local key/value table
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the local storage database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create local_storage table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load returns the stored session. A row that no longer decodes counts as logged out.
func (s *SQLiteStore) Load(ctx context.Context) (*Session, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM local_storage WHERE key = ?", sessionKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.Token == "" {
		return nil, nil
	}
	return &sess, nil
}

// Save replaces the stored session
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, sessionKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the stored session
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM local_storage WHERE key = ?", sessionKey); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

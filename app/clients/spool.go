package clients

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SpooledMessage is a status message waiting to be delivered
type SpooledMessage struct {
	ID        int64
	MessageID string
	Token     string
	Payload   []byte
	Retries   int
	LastError *string
	CreatedAt string
}

// Spool is a SQLite outbox for status messages that could not be delivered
type Spool struct {
	db *sql.DB
}

// NewSpool opens or creates the outbox at dbPath
func NewSpool(dbPath string) (*Spool, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	spool := &Spool{db: db}
	if err := spool.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return spool, nil
}

// Close closes the database connection
func (s *Spool) Close() error {
	return s.db.Close()
}

func (s *Spool) runMigrations() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS status_outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT UNIQUE NOT NULL,
			token TEXT NOT NULL,
			payload BLOB NOT NULL,
			retries INTEGER DEFAULT 0,
			last_error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Enqueue stores an encoded message and returns its message id
func (s *Spool) Enqueue(ctx context.Context, token string, payload []byte) (string, error) {
	messageID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_outbox (message_id, token, payload) VALUES (?, ?, ?)`,
		messageID, token, payload)
	if err != nil {
		return "", fmt.Errorf("failed to spool message: %w", err)
	}
	return messageID, nil
}

// Pending returns spooled messages oldest first
func (s *Spool) Pending(ctx context.Context, limit int) ([]SpooledMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, token, payload, retries, last_error, created_at
		FROM status_outbox
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []SpooledMessage
	for rows.Next() {
		var m SpooledMessage
		if err := rows.Scan(&m.ID, &m.MessageID, &m.Token, &m.Payload, &m.Retries, &m.LastError, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Remove deletes a delivered or abandoned message
func (s *Spool) Remove(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM status_outbox WHERE message_id = ?`, messageID)
	return err
}

// MarkFailed records a failed delivery attempt
func (s *Spool) MarkFailed(ctx context.Context, messageID string, cause error) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE status_outbox SET retries = retries + 1, last_error = ? WHERE message_id = ?`,
		cause.Error(), messageID)
	return err
}

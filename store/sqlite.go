package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"ollamachat/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Foreign keys drive the session -> messages cascade delete.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT 'New Chat',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			model_name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT,
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new, empty session.
func (s *SQLiteStore) CreateSession(ctx context.Context, title, modelName string) (*domain.ChatSession, error) {
	if title == "" {
		title = domain.DefaultTitle
	}
	now := time.Now()
	session := &domain.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		ModelName: modelName,
		Messages:  []domain.Message{},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at, model_name) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Title, session.CreatedAt, session.UpdatedAt, session.ModelName)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "create_session", Err: err}
	}
	return session, nil
}

// GetSession retrieves a session with its full message history.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	var session domain.ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at, model_name FROM chat_sessions WHERE id = ?`,
		sessionID).Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt, &session.ModelName)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get_session", Err: err}
	}

	messages, err := s.sessionMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return &session, nil
}

func (s *SQLiteStore) sessionMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at, metadata FROM messages WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get_session", Err: err}
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var metadata sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt, &metadata); err != nil {
			return nil, &domain.PersistenceError{Op: "get_session", Err: err}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, &domain.PersistenceError{Op: "get_session", Err: fmt.Errorf("decode message metadata: %w", err)}
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "get_session", Err: err}
	}
	return messages, nil
}

// AddMessage appends a message to a session and bumps the session's
// updated_at to the message's timestamp. Both writes land in one
// transaction so updated_at can never go stale against the message log.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, msg *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "add_message", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, sessionID)
	if err != nil {
		return &domain.PersistenceError{Op: "add_message", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "add_message", Err: err}
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}

	metadata, _ := json.Marshal(msg.Metadata)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, msg.Role, msg.Content, msg.CreatedAt, string(metadata)); err != nil {
		return &domain.PersistenceError{Op: "add_message", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "add_message", Err: err}
	}
	return nil
}

// ListSessions lists session headers, most recently updated first.
// Messages stay empty in this view; use GetSession for the full history.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at, model_name FROM chat_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list_sessions", Err: err}
	}
	defer rows.Close()

	sessions := []domain.ChatSession{}
	for rows.Next() {
		var session domain.ChatSession
		if err := rows.Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt, &session.ModelName); err != nil {
			return nil, &domain.PersistenceError{Op: "list_sessions", Err: err}
		}
		session.Messages = []domain.Message{}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list_sessions", Err: err}
	}
	return sessions, nil
}

// UpdateSessionTitle renames a session.
func (s *SQLiteStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ? WHERE id = ?`,
		title, sessionID)
	if err != nil {
		return &domain.PersistenceError{Op: "update_session_title", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "update_session_title", Err: err}
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session. Owned messages go with it via the
// foreign key cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID); err != nil {
		return &domain.PersistenceError{Op: "delete_session", Err: err}
	}
	return nil
}

// Package store defines the session persistence interface and implementations.
package store

import (
	"context"

	"ollamachat/domain"
)

// Store is the capability interface for session and message persistence.
type Store interface {
	// CreateSession creates an empty session and returns it.
	CreateSession(ctx context.Context, title, modelName string) (*domain.ChatSession, error)

	// GetSession returns the session with its full ordered message history.
	// Returns domain.ErrSessionNotFound if the id does not resolve.
	GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)

	// AddMessage appends a message and bumps the session's updated_at to the
	// message's CreatedAt. The two writes commit together or not at all.
	AddMessage(ctx context.Context, sessionID string, msg *domain.Message) error

	// ListSessions returns session headers ordered by updated_at descending.
	// Messages are never populated in this view.
	ListSessions(ctx context.Context) ([]domain.ChatSession, error)

	// UpdateSessionTitle renames a session.
	UpdateSessionTitle(ctx context.Context, sessionID, title string) error

	// DeleteSession removes a session and cascades to its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// Lifecycle
	Close() error
}

// Package domain defines the core entities for the chat service.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// DefaultTitle is the title given to freshly created sessions.
const DefaultTitle = "New Chat"

// Message is a single chat message. Messages are immutable once stored;
// there is no update operation anywhere in the system.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage mints a message with a fresh ID and the current time.
// Identity is generated here, by the caller, not by the store.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// ChatSession is a persisted conversation thread. Messages are ordered by
// CreatedAt ascending. UpdatedAt is bumped exactly when a message is
// appended, to that message's CreatedAt.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ModelName string    `json:"model_name"`
	Messages  []Message `json:"messages"`
}

// ModelInfo is a read-only projection of the provider's model catalog.
// Never persisted.
type ModelInfo struct {
	Name       string         `json:"name"`
	Size       int64          `json:"size"`
	Digest     string         `json:"digest"`
	ModifiedAt time.Time      `json:"modified_at"`
	Details    map[string]any `json:"details,omitempty"`
}

// PullProgress is one progress record from a model download, relayed
// verbatim without interpretation.
type PullProgress = json.RawMessage

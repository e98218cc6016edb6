package ports

import (
	"context"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
)

// ConversationStore persists one ClientData document per conversation id.
type ConversationStore interface {
	// Get returns the stored document or domain.ErrNotFound.
	Get(ctx context.Context, conversationID string) (*domain.ClientData, error)

	// Save writes data only if the stored version still equals data.Version
	// (zero meaning "must not exist yet"). On success data.Version is bumped and
	// the timestamps are refreshed. A lost race returns domain.ErrVersionConflict.
	Save(ctx context.Context, data *domain.ClientData) error

	// Close closes the storage connection
	Close() error
}

// EventLog is an append-only audit trail of the events a conversation produced.
type EventLog interface {
	// AppendEvent records a published event. Re-appending the same id and type is a no-op.
	AppendEvent(ctx context.Context, event domain.Event) error

	// ListEvents returns the events recorded for a conversation, oldest first.
	ListEvents(ctx context.Context, conversationID string, limit int) ([]domain.Event, error)
}

// StorageProvider manages all storage operations.
// Implementations: memory (default), SQLite, PostgreSQL
type StorageProvider interface {
	ConversationStore
	EventLog
}

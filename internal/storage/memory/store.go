package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
)

// Store is an in-memory implementation of StorageProvider
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*domain.ClientData
	events        map[string][]domain.Event
	seen          map[string]struct{}
	now           func() time.Time
}

var _ ports.StorageProvider = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		conversations: make(map[string]*domain.ClientData),
		events:        make(map[string][]domain.Event),
		seen:          make(map[string]struct{}),
		now:           time.Now,
	}
}

func (s *Store) Get(ctx context.Context, id string) (*domain.ClientData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}

	return data.Clone(), nil
}

func (s *Store) Save(ctx context.Context, data *domain.ClientData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.conversations[data.ConversationID]
	switch {
	case !exists && data.Version != 0:
		return fmt.Errorf("conversation %s was removed: %w", data.ConversationID, domain.ErrVersionConflict)
	case exists && current.Version != data.Version:
		return fmt.Errorf("conversation %s at version %d, have %d: %w",
			data.ConversationID, current.Version, data.Version, domain.ErrVersionConflict)
	}

	now := s.now()
	if !exists {
		data.CreatedAt = now
	} else {
		data.CreatedAt = current.CreatedAt
	}
	data.UpdatedAt = now
	data.Version++

	s.conversations[data.ConversationID] = data.Clone()
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.ID + "/" + string(event.Type)
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}

	id := strings.TrimPrefix(event.Subject, "chatbot/")
	s.events[id] = append(s.events[id], event)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, conversationID string, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[conversationID]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	out := make([]domain.Event, len(events))
	copy(out, events)
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

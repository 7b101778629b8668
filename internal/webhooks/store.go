package webhooks

import (
	"context"
	"sync"

	"github.com/nkoval/go-fit-bridge/internal/domain"
)

// EventStore holds accepted webhook events keyed by event id. Insert is
// the deduplication primitive: it must be atomic per id and must not
// overwrite an existing record.
type EventStore interface {
	// Insert stores evt under its id if the id is unseen, returning true.
	// It returns false without modifying the store when the id exists.
	Insert(ctx context.Context, evt domain.WebhookEvent) (bool, error)
	// Get returns the stored event for id, if any.
	Get(ctx context.Context, id string) (domain.WebhookEvent, bool, error)
}

// MemoryStore is the in-process EventStore. Records are retained for the
// life of the process and never mutated after insertion.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]domain.WebhookEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]domain.WebhookEvent)}
}

func (s *MemoryStore) Insert(_ context.Context, evt domain.WebhookEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[evt.ID]; exists {
		return false, nil
	}
	s.events[evt.ID] = evt
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.WebhookEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[id]
	return evt, ok, nil
}

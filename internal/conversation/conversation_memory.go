package conversation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrConversationNotFound is returned when a conversation ID is unknown.
var ErrConversationNotFound = errors.New("agentloom: conversation not found")

// MemoryStore keeps conversations in a map, for tests and development.
// Contents vanish with the process.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Conversation)}
}

// Save stores conv under its ID, stamping UpdatedAt and backfilling
// CreatedAt on first save. Saving an existing ID overwrites it.
func (s *MemoryStore) Save(ctx context.Context, conv Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}
	s.byID[conv.ID] = conv
	return nil
}

// Load retrieves a conversation by ID.
func (s *MemoryStore) Load(ctx context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.byID[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// Append adds a turn to an existing conversation. Unlike Save it refuses
// IDs that were never saved.
func (s *MemoryStore) Append(ctx context.Context, id string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return ErrConversationNotFound
	}

	conv.Turns = append(conv.Turns, turn)
	conv.UpdatedAt = time.Now()
	s.byID[id] = conv
	return nil
}

// Delete removes a conversation.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.byID, id)
	return nil
}

// Count reports how many conversations are stored.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear drops every stored conversation.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]Conversation)
}

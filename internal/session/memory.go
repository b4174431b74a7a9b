package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process durable tier for tests and local
// development.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[string]*Session),
	}
}

func (r *MemoryRepository) Insert(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *s
	r.rows[s.ID] = &clone
	return nil
}

func (r *MemoryRepository) Find(_ context.Context, sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (r *MemoryRepository) Extend(_ context.Context, sessionID string, expiresAt, lastActivityAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, ok := r.rows[sessionID]; ok {
		row.ExpiresAt = expiresAt
		row.LastActivityAt = lastActivityAt
	}
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rows, sessionID)
	return nil
}

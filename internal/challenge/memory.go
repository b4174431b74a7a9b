package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process durable tier for tests and local
// development. It mirrors the Postgres repository's semantics, including
// the conditional MarkUsed transition.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]*Challenge
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[string]*Challenge),
		now:  time.Now,
	}
}

// SetClock overrides the repository clock. Test use only.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepository) Insert(_ context.Context, ch *Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	clone := *ch
	r.rows[ch.Token] = &clone
	return nil
}

func (r *MemoryRepository) FindByToken(_ context.Context, token string) (*Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[token]
	if !ok || row.Expired(r.now()) {
		return nil, ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (r *MemoryRepository) FindMostRecentUnusedByEmail(_ context.Context, tenantID, email string) (*Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newest *Challenge
	for _, row := range r.rows {
		if tenantID != "" && row.TenantID != tenantID {
			continue
		}
		if row.Email != email || row.Used || row.Expired(r.now()) {
			continue
		}
		if newest == nil || row.CreatedAt.After(newest.CreatedAt) {
			newest = row
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	clone := *newest
	return &clone, nil
}

func (r *MemoryRepository) IncrementAttempts(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, ok := r.rows[token]; ok {
		row.Attempts++
	}
	return nil
}

func (r *MemoryRepository) MarkUsed(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[token]
	if !ok || row.Used {
		return false, nil
	}
	row.Used = true
	return true, nil
}

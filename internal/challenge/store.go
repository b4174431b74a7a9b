package challenge

import (
	"context"
	"errors"
	"time"
)

// Store composes the fast and durable tiers behind one read-through,
// write-through surface, so fallback logic is written once.
type Store struct {
	fast    *FastStore
	durable Repository
}

func NewStore(fast *FastStore, durable Repository) *Store {
	return &Store{
		fast:    fast,
		durable: durable,
	}
}

// Create writes the challenge to the durable tier first (source of truth),
// then mirrors it into the fast tier with a TTL matching the deadline. A
// fast-tier failure is not fatal; reads fall back to the durable tier.
func (s *Store) Create(ctx context.Context, ch *Challenge) error {
	if err := s.durable.Insert(ctx, ch); err != nil {
		return err
	}

	_ = s.fast.Save(ctx, ch, time.Until(ch.ExpiresAt))
	return nil
}

// FindByToken prefers the fast tier and falls back to the durable tier,
// which is authoritative when the fast tier missed (eviction, restart, or
// an instance that never saw the write). A durable hit re-warms the fast
// tier.
func (s *Store) FindByToken(ctx context.Context, token string) (*Challenge, error) {
	ch, err := s.fast.Find(ctx, token)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnavailable) {
		return nil, err
	}

	ch, err = s.durable.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	_ = s.fast.Save(ctx, ch, time.Until(ch.ExpiresAt))
	return ch, nil
}

// FindMostRecentUnusedByEmail is a durable-tier-only query for clients
// that resumed the flow without the token.
func (s *Store) FindMostRecentUnusedByEmail(ctx context.Context, tenantID, email string) (*Challenge, error) {
	return s.durable.FindMostRecentUnusedByEmail(ctx, tenantID, email)
}

// IncrementAttempts records a failed comparison. The durable count is
// authoritative; the fast mirror is best effort.
func (s *Store) IncrementAttempts(ctx context.Context, token string) error {
	if err := s.durable.IncrementAttempts(ctx, token); err != nil {
		return err
	}
	_ = s.fast.IncrementAttempts(ctx, token)
	return nil
}

// MarkUsed delegates the single-use decision to the durable tier's
// conditional update and, when this caller won, drops the fast-tier entry
// so the token stops resolving on the hot path.
func (s *Store) MarkUsed(ctx context.Context, token string) (bool, error) {
	won, err := s.durable.MarkUsed(ctx, token)
	if err != nil {
		return false, err
	}
	if won {
		_ = s.fast.Delete(ctx, token)
	}
	return won, nil
}

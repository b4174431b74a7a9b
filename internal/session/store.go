package session

import (
	"context"
	"errors"
	"time"
)

// Store composes the fast and durable tiers. Get serves the high-frequency
// authenticated-request path from the fast tier only; GetDurable backs the
// refresh flow and enforces lazy expiry on the durable row.
type Store struct {
	fast    *FastStore
	durable Repository
	now     func() time.Time
}

func NewStore(fast *FastStore, durable Repository) *Store {
	return &Store{
		fast:    fast,
		durable: durable,
		now:     time.Now,
	}
}

// SetClock overrides the store clock. Test use only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Create writes the durable row first, then the fast-tier entry with a TTL
// equal to the session lifetime. The durable write must succeed: a
// fast-tier entry without a durable row would break the refresh flow's
// source of truth.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if err := s.durable.Insert(ctx, sess); err != nil {
		return err
	}
	if err := s.fast.Save(ctx, sess, time.Until(sess.ExpiresAt)); err != nil {
		return err
	}
	return nil
}

// Get is the fast-tier-only lookup. A fast-tier miss is unauthenticated;
// there is deliberately no durable fallback here, the client re-logs-in or
// refreshes instead.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.fast.Find(ctx, sessionID)
}

// GetDurable reads the durable row and treats an expired one as not found,
// deleting it lazily from both tiers.
func (s *Store) GetDurable(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.durable.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Expired(s.now()) {
		_ = s.durable.Delete(ctx, sessionID)
		_ = s.fast.Delete(ctx, sessionID)
		return nil, ErrNotFound
	}
	return sess, nil
}

// ExtendDurable moves the session deadline and refreshes the fast-tier
// mirror so both tiers agree on the new expiry.
func (s *Store) ExtendDurable(ctx context.Context, sessionID string, expiresAt, lastActivityAt time.Time) error {
	if err := s.durable.Extend(ctx, sessionID, expiresAt, lastActivityAt); err != nil {
		return err
	}

	sess, err := s.durable.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	_ = s.fast.Save(ctx, sess, time.Until(sess.ExpiresAt))
	return nil
}

// Delete removes the session from both tiers. Used on logout and on
// expiry detection.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.durable.Delete(ctx, sessionID); err != nil {
		return err
	}
	return s.fast.Delete(ctx, sessionID)
}

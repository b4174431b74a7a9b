// Package session stores authenticated sessions across a Redis fast tier
// and a relational durable tier.
//
// The fast tier serves the per-request hot path; the durable tier backs
// the refresh flow and is the invariant holder: a valid fast-tier entry
// always has a durable row, while a missing or expired durable row means
// unauthenticated regardless of what the fast tier says.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound covers absent and expired sessions alike.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Session is one authenticated browser or device. The account fields are a
// snapshot taken at login and may go stale until the next login or
// refresh; they are deliberately not live-joined per request.
type Session struct {
	ID string

	UserID   string
	TenantID string
	Email    string
	Role     string
	Status   string

	IPAddress         string
	UserAgent         string
	DeviceFingerprint string

	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
}

// Expired reports whether the session deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repository is the durable-tier contract.
type Repository interface {
	Insert(ctx context.Context, s *Session) error
	Find(ctx context.Context, sessionID string) (*Session, error)
	Extend(ctx context.Context, sessionID string, expiresAt, lastActivityAt time.Time) error
	Delete(ctx context.Context, sessionID string) error
}

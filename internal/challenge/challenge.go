// Package challenge persists one-time login challenges across two tiers:
// a TTL-based Redis fast tier for hot reads and a relational durable tier
// that is the source of truth and survives fast-tier eviction.
//
// The single-use redemption guarantee lives in the durable tier's
// conditional MarkUsed update; the fast tier is an optimization and never
// decides redemption.
package challenge

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound covers absent and expired challenges alike, so callers
	// cannot distinguish why a challenge is gone.
	ErrNotFound = errors.New("challenge not found")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("challenge store unavailable")
)

// Challenge is one issued one-time code. The code itself is never stored;
// CodeHash is its one-way hash.
type Challenge struct {
	ID       string
	Token    string
	CodeHash [32]byte

	Email    string
	UserID   string
	TenantID string

	Attempts int
	Used     bool

	IPAddress string
	UserAgent string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge deadline has passed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Repository is the durable-tier contract. Rows are retained after use for
// the audit trail; find operations treat expired rows as not found.
type Repository interface {
	Insert(ctx context.Context, ch *Challenge) error
	FindByToken(ctx context.Context, token string) (*Challenge, error)
	FindMostRecentUnusedByEmail(ctx context.Context, tenantID, email string) (*Challenge, error)
	IncrementAttempts(ctx context.Context, token string) error

	// MarkUsed flips the used flag if and only if it is still false,
	// reporting whether this call performed the transition. Exactly one of
	// any set of concurrent callers wins.
	MarkUsed(ctx context.Context, token string) (bool, error)
}

// Package accounts resolves the employee accounts being authenticated.
// The protocol depends only on the Provider interface; the host
// application owns the account data model.
package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("account not found")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("account store unavailable")
)

// Account is the snapshot the protocol needs: identity, role, and the two
// active flags that gate session creation.
type Account struct {
	ID       string
	TenantID string
	Email    string
	Role     string
	Status   string

	Active       bool
	TenantActive bool
}

// Provider is the external account collaborator.
type Provider interface {
	FindByEmail(ctx context.Context, tenantID, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)

	// RecordLogin updates last-login metadata. Best effort; failures do
	// not abort a login.
	RecordLogin(ctx context.Context, id string, at time.Time, ip string) error
}

package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest rejects malformed input before any store is touched.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrChallengeNotFound covers absent and expired challenges alike, so
	// a caller cannot tell why the challenge is gone.
	ErrChallengeNotFound = errors.New("challenge expired or not found")
	// ErrInvalidCode is the generic credential failure. A concurrent
	// redemption loser gets this same error; the race is not revealed.
	ErrInvalidCode = errors.New("invalid code")
	// ErrAttemptsExceeded refuses a challenge whose attempt budget is spent.
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrRateLimited refuses the operation regardless of credential
	// correctness.
	ErrRateLimited = errors.New("too many attempts, try again later")
	// ErrAccountInactive rejects login for a disabled account.
	ErrAccountInactive = errors.New("account inactive")
	// ErrTenantInactive rejects login for a disabled tenant.
	ErrTenantInactive = errors.New("tenant inactive")
	// ErrSessionNotFound means not authenticated.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshInvalid rejects a refresh token that fails verification or
	// references no live durable session.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrBackendUnavailable is the generic conversion for store failures at
	// the protocol boundary.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
)

// InvalidCodeError is a code mismatch with the remaining attempt budget.
// It matches ErrInvalidCode under errors.Is.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidCode
}

package authcore

import "time"

// RequestMeta is the per-request client metadata captured for audit
// correlation. Neither field is an identity signal.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// RequestCodeResult correlates a pending challenge. The token is not a
// secret; the emailed code is.
type RequestCodeResult struct {
	Token string
	// Warning is set when code delivery failed; the challenge itself was
	// still created.
	Warning string
}

// AccountPayload is the sanitized account snapshot returned to clients.
// No hashes, tokens, or internal references beyond what the UI needs.
type AccountPayload struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// VerifyResult is a successful login.
type VerifyResult struct {
	Account   AccountPayload
	SessionID string
	ExpiresAt time.Time

	// Legacy stateless pair, issued alongside the opaque session.
	AccessToken  string
	RefreshToken string
}

// RefreshResult is a successful session extension with a rotated token
// pair.
type RefreshResult struct {
	Account   AccountPayload
	SessionID string
	ExpiresAt time.Time

	AccessToken  string
	RefreshToken string
}

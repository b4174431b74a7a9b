package authcore

import (
	"time"

	"github.com/staffbridge/authcore/internal/secrets"
	"github.com/staffbridge/authcore/tokens"
)

// Config tunes the login protocol. Zero values fall back to the documented
// defaults via withDefaults; a Config is treated as immutable after New.
type Config struct {
	Challenge ChallengeConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Tokens    tokens.Config
}

// ChallengeConfig governs one-time code issuance.
type ChallengeConfig struct {
	// TTL is the absolute challenge deadline, fixed at creation.
	TTL time.Duration
	// MaxAttempts is the per-challenge failed-comparison budget.
	MaxAttempts int
	// TokenBytes is the raw size of the opaque correlation token.
	TokenBytes int
}

// SessionConfig governs session lifetime.
type SessionConfig struct {
	// TTL applies both at creation and on each refresh extension.
	TTL time.Duration
}

// RateLimitConfig governs the verification attempt window.
type RateLimitConfig struct {
	Window      time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Challenge.TTL <= 0 {
		c.Challenge.TTL = 10 * time.Minute
	}
	if c.Challenge.MaxAttempts <= 0 {
		c.Challenge.MaxAttempts = 5
	}
	if c.Challenge.TokenBytes <= 0 {
		c.Challenge.TokenBytes = secrets.DefaultTokenBytes
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 8 * time.Hour
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = 15 * time.Minute
	}
	if c.RateLimit.MaxAttempts <= 0 {
		c.RateLimit.MaxAttempts = 5
	}
	return c
}

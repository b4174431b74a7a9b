package authcore

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/staffbridge/authcore/internal/accounts"
	"github.com/staffbridge/authcore/internal/audit"
	"github.com/staffbridge/authcore/internal/challenge"
	"github.com/staffbridge/authcore/internal/rate"
	"github.com/staffbridge/authcore/internal/secrets"
	"github.com/staffbridge/authcore/internal/session"
)

// VerifyCode redeems a one-time code. Either token (the handle from
// RequestCode) or email identifies the challenge. The steps run strictly
// in order: rate limit first, conditional mark-used as the last gate
// before session creation.
func (s *Service) VerifyCode(ctx context.Context, token, email, code string, meta RequestMeta) (*VerifyResult, error) {
	token, email, err := validateVerifyInput(token, email, code)
	if err != nil {
		return nil, err
	}

	limiterKey := token
	if limiterKey == "" {
		limiterKey = email
	}
	if err := s.limiter.CheckAndIncrement(ctx, limiterKey); err != nil {
		if errors.Is(err, rate.ErrLimited) {
			s.metrics.rateLimited.Add(1)
			s.emit(ctx, audit.EventRateLimitExceeded, func(e *audit.Event) {
				e.Email = email
				e.IP = meta.IPAddress
				e.Reason = "verification_window_exhausted"
			})
			return nil, ErrRateLimited
		}
		// Fail open: an unavailable counting store must not lock every
		// user out, but the degraded window has to be visible.
		s.metrics.degradedRateLimit.Add(1)
		s.logger.WarnContext(ctx, "rate limiter unavailable, proceeding fail-open", "err", err)
	}

	ch, err := s.resolveChallenge(ctx, token, email)
	if err != nil {
		s.failLogin(ctx, meta, "", "", email, "challenge_not_found")
		return nil, err
	}

	if ch.Attempts >= s.config.Challenge.MaxAttempts {
		s.failLogin(ctx, meta, ch.UserID, ch.TenantID, ch.Email, "attempts_exceeded")
		return nil, ErrAttemptsExceeded
	}

	providedHash := secrets.HashCode(code)
	if subtle.ConstantTimeCompare(providedHash[:], ch.CodeHash[:]) != 1 {
		if err := s.challenges.IncrementAttempts(ctx, ch.Token); err != nil {
			s.logger.ErrorContext(ctx, "attempt increment failed", "tenant", ch.TenantID, "err", err)
		}
		s.failLogin(ctx, meta, ch.UserID, ch.TenantID, ch.Email, "code_mismatch")

		remaining := s.config.Challenge.MaxAttempts - ch.Attempts - 1
		if remaining < 0 {
			remaining = 0
		}
		return nil, &InvalidCodeError{AttemptsRemaining: remaining}
	}

	// The single-use gate: exactly one concurrent verification can win
	// this conditional update. Losers get the generic credential error
	// and never reach session creation.
	won, err := s.challenges.MarkUsed(ctx, ch.Token)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if !won {
		s.failLogin(ctx, meta, ch.UserID, ch.TenantID, ch.Email, "challenge_already_used")
		return nil, ErrInvalidCode
	}

	account, err := s.accounts.FindByID(ctx, ch.UserID)
	if err != nil {
		s.failLogin(ctx, meta, ch.UserID, ch.TenantID, ch.Email, "account_missing")
		return nil, ErrAccountInactive
	}
	if !account.TenantActive {
		s.failLogin(ctx, meta, account.ID, account.TenantID, account.Email, "tenant_inactive")
		return nil, ErrTenantInactive
	}
	if !account.Active {
		s.failLogin(ctx, meta, account.ID, account.TenantID, account.Email, "account_inactive")
		return nil, ErrAccountInactive
	}

	sess, err := s.createSession(ctx, account, meta)
	if err != nil {
		s.logger.ErrorContext(ctx, "session creation failed", "tenant", account.TenantID, "err", err)
		return nil, ErrBackendUnavailable
	}

	// Best effort from here on: the login itself already succeeded.
	if err := s.accounts.RecordLogin(ctx, account.ID, s.now(), meta.IPAddress); err != nil {
		s.logger.WarnContext(ctx, "last-login update failed", "tenant", account.TenantID, "err", err)
	}
	_ = s.limiter.Reset(ctx, limiterKey)

	result := &VerifyResult{
		Account:   sanitize(account),
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}
	if s.tokens != nil {
		if result.AccessToken, err = s.tokens.CreateAccess(account.ID, account.TenantID, sess.ID, account.Role); err != nil {
			return nil, ErrBackendUnavailable
		}
		if result.RefreshToken, err = s.tokens.CreateRefresh(sess.ID); err != nil {
			return nil, ErrBackendUnavailable
		}
	}

	s.metrics.loginSuccess.Add(1)
	s.emit(ctx, audit.EventLoginSuccess, func(e *audit.Event) {
		e.UserID = account.ID
		e.TenantID = account.TenantID
		e.Email = account.Email
		e.SessionID = truncateID(sess.ID)
		e.IP = meta.IPAddress
		e.Success = true
	})
	return result, nil
}

func validateVerifyInput(token, email, code string) (string, string, error) {
	if !codePattern.MatchString(code) {
		return "", "", ErrInvalidRequest
	}
	if token == "" && email == "" {
		return "", "", ErrInvalidRequest
	}
	if token != "" && len(token) < minTokenLength {
		return "", "", ErrInvalidRequest
	}
	return token, email, nil
}

func (s *Service) resolveChallenge(ctx context.Context, token, email string) (*challenge.Challenge, error) {
	var (
		ch  *challenge.Challenge
		err error
	)
	if token != "" {
		ch, err = s.challenges.FindByToken(ctx, token)
	} else {
		ch, err = s.challenges.FindMostRecentUnusedByEmail(ctx, "", email)
	}
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, ErrBackendUnavailable
	}
	if ch.Expired(s.now()) {
		return nil, ErrChallengeNotFound
	}
	return ch, nil
}

func (s *Service) createSession(ctx context.Context, account *accounts.Account, meta RequestMeta) (*session.Session, error) {
	sid, err := secrets.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &session.Session{
		ID:                sid.String(),
		UserID:            account.ID,
		TenantID:          account.TenantID,
		Email:             account.Email,
		Role:              account.Role,
		Status:            account.Status,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		DeviceFingerprint: secrets.Fingerprint(meta.IPAddress, meta.UserAgent),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.config.Session.TTL),
		LastActivityAt:    now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) failLogin(ctx context.Context, meta RequestMeta, userID, tenantID, email, reason string) {
	s.metrics.loginFailure.Add(1)
	s.emit(ctx, audit.EventLoginFailed, func(e *audit.Event) {
		e.UserID = userID
		e.TenantID = tenantID
		e.Email = email
		e.IP = meta.IPAddress
		e.Reason = reason
	})
}

package authcore

import (
	"context"
	"errors"

	"github.com/staffbridge/authcore/internal/audit"
	"github.com/staffbridge/authcore/internal/session"
)

// Refresh exchanges a valid refresh token for a rotated pair and extends
// the session. The signed token only names the session; the durable row
// decides whether the session still exists, so a server-side logout or
// lazy expiry invalidates every outstanding refresh token for it.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*RefreshResult, error) {
	if s.tokens == nil {
		return nil, ErrRefreshInvalid
	}
	if refreshToken == "" {
		return nil, ErrInvalidRequest
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, s.failRefresh(ctx, meta, "", "token_invalid")
	}

	sess, err := s.sessions.GetDurable(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, s.failRefresh(ctx, meta, claims.SID, "session_gone")
		}
		return nil, ErrBackendUnavailable
	}

	account, err := s.accounts.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, s.failRefresh(ctx, meta, sess.ID, "account_missing")
	}
	if !account.TenantActive {
		s.metrics.refreshFailure.Add(1)
		s.emit(ctx, audit.EventLoginFailed, func(e *audit.Event) {
			e.UserID = account.ID
			e.TenantID = account.TenantID
			e.SessionID = truncateID(sess.ID)
			e.IP = meta.IPAddress
			e.Reason = "tenant_inactive"
		})
		return nil, ErrTenantInactive
	}
	if !account.Active {
		s.metrics.refreshFailure.Add(1)
		s.emit(ctx, audit.EventLoginFailed, func(e *audit.Event) {
			e.UserID = account.ID
			e.TenantID = account.TenantID
			e.SessionID = truncateID(sess.ID)
			e.IP = meta.IPAddress
			e.Reason = "account_inactive"
		})
		return nil, ErrAccountInactive
	}

	access, err := s.tokens.CreateAccess(account.ID, account.TenantID, sess.ID, account.Role)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	rotated, err := s.tokens.CreateRefresh(sess.ID)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	now := s.now()
	expiresAt := now.Add(s.config.Session.TTL)
	if err := s.sessions.ExtendDurable(ctx, sess.ID, expiresAt, now); err != nil {
		s.logger.ErrorContext(ctx, "session extension failed", "tenant", account.TenantID, "err", err)
		return nil, ErrBackendUnavailable
	}

	s.metrics.refreshSuccess.Add(1)
	s.emit(ctx, audit.EventSessionRefreshed, func(e *audit.Event) {
		e.UserID = account.ID
		e.TenantID = account.TenantID
		e.Email = account.Email
		e.SessionID = truncateID(sess.ID)
		e.IP = meta.IPAddress
		e.Success = true
	})

	return &RefreshResult{
		Account:      sanitize(account),
		SessionID:    sess.ID,
		ExpiresAt:    expiresAt,
		AccessToken:  access,
		RefreshToken: rotated,
	}, nil
}

func (s *Service) failRefresh(ctx context.Context, meta RequestMeta, sessionID, reason string) error {
	s.metrics.refreshFailure.Add(1)
	s.emit(ctx, audit.EventLoginFailed, func(e *audit.Event) {
		e.SessionID = truncateID(sessionID)
		e.IP = meta.IPAddress
		e.Reason = reason
	})
	return ErrRefreshInvalid
}

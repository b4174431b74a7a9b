// Package authcore implements the passwordless login protocol of the HR
// platform: one-time code issuance, single-use verification, and the
// session lifecycle across a Redis fast tier and a relational durable
// tier.
//
// All stores are injected; the package holds no global state. Cross-request
// coordination happens exclusively through the stores' atomic primitives,
// so any number of stateless handler processes can run the protocol
// concurrently.
package authcore

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/staffbridge/authcore/internal/accounts"
	"github.com/staffbridge/authcore/internal/audit"
	"github.com/staffbridge/authcore/internal/challenge"
	"github.com/staffbridge/authcore/internal/rate"
	"github.com/staffbridge/authcore/internal/secrets"
	"github.com/staffbridge/authcore/internal/session"
	"github.com/staffbridge/authcore/mail"
	"github.com/staffbridge/authcore/tokens"
)

var (
	codePattern  = regexp.MustCompile(`^\d{6}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

const minTokenLength = 20

// Service orchestrates challenge issuance, code verification, and the
// session lifecycle.
type Service struct {
	config     Config
	challenges *challenge.Store
	sessions   *session.Store
	limiter    *rate.Limiter
	accounts   accounts.Provider
	mailer     mail.Sender
	tokens     *tokens.Manager
	audit      *audit.Dispatcher
	logger     *slog.Logger
	metrics    counters
	now        func() time.Time
}

// Deps are the injected collaborators. Challenges, Sessions, Limiter, and
// Accounts are required; Mailer, Tokens, Audit, and Logger are optional.
type Deps struct {
	Challenges *challenge.Store
	Sessions   *session.Store
	Limiter    *rate.Limiter
	Accounts   accounts.Provider
	Mailer     mail.Sender
	Tokens     *tokens.Manager
	Audit      *audit.Dispatcher
	Logger     *slog.Logger
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Challenges == nil || deps.Sessions == nil || deps.Limiter == nil || deps.Accounts == nil {
		return nil, errors.New("authcore: challenges, sessions, limiter, and accounts are required")
	}
	if deps.Mailer == nil {
		deps.Mailer = mail.NoOpSender{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Service{
		config:     cfg.withDefaults(),
		challenges: deps.Challenges,
		sessions:   deps.Sessions,
		limiter:    deps.Limiter,
		accounts:   deps.Accounts,
		mailer:     deps.Mailer,
		tokens:     deps.Tokens,
		audit:      deps.Audit,
		logger:     deps.Logger,
		now:        time.Now,
	}, nil
}

// Close flushes the audit dispatcher.
func (s *Service) Close() {
	s.audit.Close()
}

// RequestCode issues a one-time login challenge for email and dispatches
// the code. The returned token is the correlation handle for VerifyCode.
//
// An unresolvable or non-loginable account still returns a
// normal-looking token (nothing is stored, nothing is sent), so the
// endpoint does not disclose which addresses have accounts.
func (s *Service) RequestCode(ctx context.Context, email, tenantID string, meta RequestMeta) (*RequestCodeResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidRequest
	}

	account, err := s.accounts.FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return s.decoyChallenge(ctx, email, tenantID, "account_not_found")
	}
	if !account.Active || !account.TenantActive {
		return s.decoyChallenge(ctx, email, account.TenantID, "account_not_loginable")
	}

	code := devFixedCode
	if !devFixedCodeEnabled {
		code, err = secrets.GenerateCode()
		if err != nil {
			return nil, ErrBackendUnavailable
		}
	}
	token, err := secrets.GenerateToken(s.config.Challenge.TokenBytes)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	now := s.now()
	ch := &challenge.Challenge{
		Token:     token,
		CodeHash:  secrets.HashCode(code),
		Email:     account.Email,
		UserID:    account.ID,
		TenantID:  account.TenantID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.Challenge.TTL),
	}
	if err := s.challenges.Create(ctx, ch); err != nil {
		s.logger.ErrorContext(ctx, "challenge creation failed", "tenant", account.TenantID, "err", err)
		return nil, ErrBackendUnavailable
	}

	result := &RequestCodeResult{Token: token}
	if !devFixedCodeEnabled {
		if err := s.mailer.Send(ctx, account.Email, code); err != nil {
			// Delivery is fire-and-forget: the challenge stands, the
			// caller just gets told the mail may not arrive.
			s.metrics.mailFailures.Add(1)
			s.logger.WarnContext(ctx, "code delivery failed", "tenant", account.TenantID, "err", err)
			result.Warning = "verification code could not be delivered"
		}
	}

	s.metrics.codeRequests.Add(1)
	s.emit(ctx, audit.EventCodeRequested, func(e *audit.Event) {
		e.UserID = account.ID
		e.TenantID = account.TenantID
		e.Email = account.Email
		e.IP = meta.IPAddress
		e.Success = true
	})
	return result, nil
}

// decoyChallenge keeps the response shape of a successful request without
// creating state or sending mail.
func (s *Service) decoyChallenge(ctx context.Context, email, tenantID, reason string) (*RequestCodeResult, error) {
	token, err := secrets.GenerateToken(s.config.Challenge.TokenBytes)
	if err != nil {
		return nil, ErrBackendUnavailable
	}

	s.metrics.codeRequests.Add(1)
	s.emit(ctx, audit.EventCodeRequested, func(e *audit.Event) {
		e.TenantID = tenantID
		e.Email = email
		e.Success = true
		e.Metadata = map[string]string{"decoy": reason}
	})
	return &RequestCodeResult{Token: token}, nil
}

// Logout destroys the session in both tiers.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidRequest
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return ErrBackendUnavailable
	}

	s.emit(ctx, audit.EventLogout, func(e *audit.Event) {
		e.SessionID = truncateID(sessionID)
		e.Success = true
	})
	return nil
}

// GetSession is the fast-tier-only lookup used by the routing layer's
// per-request middleware.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrBackendUnavailable
	}
	return sess, nil
}

// SessionTTL exposes the configured session lifetime for cookie max-age.
func (s *Service) SessionTTL() time.Duration {
	return s.config.Session.TTL
}

// TokenTTLs exposes the configured pair lifetimes for cookie max-age.
func (s *Service) TokenTTLs() (access, refresh time.Duration) {
	return s.config.Tokens.AccessTTL, s.config.Tokens.RefreshTTL
}

func (s *Service) emit(ctx context.Context, eventType string, fill func(*audit.Event)) {
	if s.audit == nil {
		return
	}
	event := audit.NewEvent(eventType)
	if fill != nil {
		fill(&event)
	}
	s.audit.Emit(ctx, event)
}

// truncateID shortens a session id for audit output; full ids never leave
// the stores.
func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func sanitize(a *accounts.Account) AccountPayload {
	return AccountPayload{
		ID:       a.ID,
		TenantID: a.TenantID,
		Email:    a.Email,
		Role:     a.Role,
		Status:   a.Status,
	}
}

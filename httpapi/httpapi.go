// Package httpapi exposes the login protocol over HTTP: the five auth
// routes, the JSON response envelope, and the cookie surface. Handlers
// translate protocol errors to status codes; all protocol decisions stay
// in the service.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/staffbridge/authcore"
)

const (
	cookieSession = "session"
	cookieAccess  = "accessToken"
	cookieRefresh = "refreshToken"
)

// Options tune the HTTP surface.
type Options struct {
	// SecureCookies sets the Secure attribute on every auth cookie.
	// Enable everywhere except plain-HTTP local development.
	SecureCookies bool
	CookieDomain  string
	Logger        *slog.Logger
}

// Server carries the handler dependencies.
type Server struct {
	service *authcore.Service
	opts    Options
	logger  *slog.Logger
}

func NewServer(service *authcore.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		service: service,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Router mounts the auth routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/request-code", s.handleRequestCode)
		r.Post("/verify-code", s.handleVerifyCode)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireSession)
			r.Get("/session", s.handleSession)
		})
	})
	return r
}

type requestCodeRequest struct {
	Email    string `json:"email"`
	TenantID string `json:"tenantId,omitempty"`
}

func (s *Server) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, authcore.ErrInvalidRequest)
		return
	}

	result, err := s.service.RequestCode(r.Context(), req.Email, req.TenantID, clientMeta(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := map[string]string{"token": result.Token}
	if result.Warning != "" {
		payload["warning"] = result.Warning
	}
	writeSuccess(w, http.StatusOK, payload)
}

type verifyCodeRequest struct {
	Token string `json:"token,omitempty"`
	Email string `json:"email,omitempty"`
	Code  string `json:"code"`
}

type loginResponse struct {
	Account   authcore.AccountPayload `json:"account"`
	ExpiresAt time.Time               `json:"expiresAt"`
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, authcore.ErrInvalidRequest)
		return
	}

	result, err := s.service.VerifyCode(r.Context(), req.Token, req.Email, req.Code, clientMeta(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setAuthCookies(w, result.SessionID, result.AccessToken, result.RefreshToken)
	writeSuccess(w, http.StatusOK, loginResponse{
		Account:   result.Account,
		ExpiresAt: result.ExpiresAt,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, cookieRefresh)
	if refreshToken == "" {
		s.writeError(w, r, authcore.ErrRefreshInvalid)
		return
	}

	result, err := s.service.Refresh(r.Context(), refreshToken, clientMeta(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setAuthCookies(w, result.SessionID, result.AccessToken, result.RefreshToken)
	writeSuccess(w, http.StatusOK, loginResponse{
		Account:   result.Account,
		ExpiresAt: result.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID := cookieValue(r, cookieSession); sessionID != "" {
		if err := s.service.Logout(r.Context(), sessionID); err != nil {
			s.logger.WarnContext(r.Context(), "logout failed", "err", err)
		}
	}

	// Cookies are cleared unconditionally; an already-dead session still
	// logs the client out.
	s.clearAuthCookies(w)
	writeSuccess(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		s.writeError(w, r, authcore.ErrSessionNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, loginResponse{
		Account: authcore.AccountPayload{
			ID:       sess.UserID,
			TenantID: sess.TenantID,
			Email:    sess.Email,
			Role:     sess.Role,
			Status:   sess.Status,
		},
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *Server) setAuthCookies(w http.ResponseWriter, sessionID, accessToken, refreshToken string) {
	sessionTTL := s.service.SessionTTL()
	accessTTL, refreshTTL := s.service.TokenTTLs()

	s.setCookie(w, cookieSession, sessionID, sessionTTL)
	if accessToken != "" {
		s.setCookie(w, cookieAccess, accessToken, accessTTL)
	}
	if refreshToken != "" {
		s.setCookie(w, cookieRefresh, refreshToken, refreshTTL)
	}
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	s.setCookie(w, cookieSession, "", -time.Second)
	s.setCookie(w, cookieAccess, "", -time.Second)
	s.setCookie(w, cookieRefresh, "", -time.Second)
}

func (s *Server) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.opts.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func clientMeta(r *http.Request) authcore.RequestMeta {
	return authcore.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := &errorResponse{Code: code, Message: publicMessage(err, status)}

	var invalidCode *authcore.InvalidCodeError
	if errors.As(err, &invalidCode) {
		remaining := invalidCode.AttemptsRemaining
		resp.AttemptsRemaining = &remaining
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}

	writeJSON(w, status, envelope{Success: false, Error: resp})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, authcore.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, authcore.ErrChallengeNotFound):
		return http.StatusBadRequest, "challenge_not_found"
	case errors.Is(err, authcore.ErrAttemptsExceeded):
		return http.StatusBadRequest, "attempts_exceeded"
	case errors.Is(err, authcore.ErrInvalidCode):
		return http.StatusBadRequest, "invalid_code"
	case errors.Is(err, authcore.ErrSessionNotFound):
		return http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, authcore.ErrRefreshInvalid):
		return http.StatusUnauthorized, "refresh_invalid"
	case errors.Is(err, authcore.ErrAccountInactive):
		return http.StatusForbidden, "account_inactive"
	case errors.Is(err, authcore.ErrTenantInactive):
		return http.StatusForbidden, "tenant_inactive"
	case errors.Is(err, authcore.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "something went wrong"
	}
	return err.Error()
}

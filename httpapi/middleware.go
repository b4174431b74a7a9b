package httpapi

import (
	"context"
	"net/http"

	"github.com/staffbridge/authcore"
	"github.com/staffbridge/authcore/internal/session"
)

type contextKey struct{ name string }

var sessionContextKey = contextKey{"session"}

// RequireSession authenticates the request from the session cookie via the
// fast tier and stores the session on the request context. A miss is a
// plain 401; the client re-logs-in or refreshes.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := cookieValue(r, cookieSession)
		if sessionID == "" {
			s.writeError(w, r, authcore.ErrSessionNotFound)
			return
		}

		sess, err := s.service.GetSession(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*session.Session)
	return sess, ok
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"opsportal/internal/models"
	"opsportal/internal/storage"
)

// SessionAuth resolves the session cookie issued by the sign-in flow.
type SessionAuth struct {
	store  storage.Storage
	cookie string
	now    func() time.Time
}

// NewSessionAuth creates a resolver reading the named cookie.
func NewSessionAuth(store storage.Storage, cookieName string) *SessionAuth {
	return &SessionAuth{store: store, cookie: cookieName, now: time.Now}
}

// Resolve returns the request's live session. A missing cookie, an unknown
// id and an expired session all yield (nil, nil); only storage failures
// return an error.
func (a *SessionAuth) Resolve(r *http.Request) (*models.Session, error) {
	c, err := r.Cookie(a.cookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}

	session, err := a.store.GetSession(r.Context(), c.Value)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if session.IsExpired(a.now()) {
		return nil, nil
	}
	return session, nil
}

// Require rejects requests without a live session with 401 and stores the
// session in the context for the rest of the chain.
func (a *SessionAuth) Require() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			session, err := a.Resolve(r)
			if err != nil {
				return err
			}
			if session == nil {
				// Clear any stale cookie.
				http.SetCookie(w, &http.Cookie{
					Name:     a.cookie,
					Value:    "",
					Path:     "/",
					MaxAge:   -1,
					HttpOnly: true,
				})
				writeError(w, r, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Authentication required")
				return nil
			}
			return next(w, r.WithContext(withSession(r.Context(), session)))
		}
	}
}

// SessionID returns the id of the authenticated session in r's context.
func SessionID(r *http.Request) (string, bool) {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		return "", false
	}
	return s.ID, true
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; all that is left is to log it.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeError writes the shared error body tagged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	resp := models.NewErrorResponse(message, errorCode).WithRequestID(RequestIDFromContext(r.Context()))
	writeJSON(w, statusCode, resp)
}

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionCookie = "portal_session"

type session struct {
	tenantID  int64
	createdAt time.Time
}

// SessionStore tracks which browser sessions belong to the logged-in tenant.
// Sessions only gate the portal's own routes; the bearer credential for the
// housing service lives in the credentials manager.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]session)}
}

// Create registers a new session for the tenant and returns its id.
func (s *SessionStore) Create(tenantID int64) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = session{tenantID: tenantID, createdAt: time.Now()}
	s.mu.Unlock()
	return id
}

// TenantID resolves a session id to its tenant.
func (s *SessionStore) TenantID(id string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess.tenantID, ok
}

// Delete removes one session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Clear removes every session. Fired on a forced logout so all tabs drop
// to the login page.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.sessions = make(map[string]session)
	s.mu.Unlock()
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireSession gates authenticated routes. A missing or unknown session
// answers 401 with the login redirect and the destination the tenant was
// headed for, so the UI can resume there after re-login.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			loginRequired(w, r)
			return
		}
		if _, ok := h.sessions.TenantID(cookie.Value); !ok {
			clearSessionCookie(w)
			loginRequired(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) sessionTenantID(r *http.Request) (int64, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return 0, false
	}
	return h.sessions.TenantID(cookie.Value)
}

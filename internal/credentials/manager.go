// Package credentials owns the bearer credential obtained from the housing
// service and its two storage mirrors: the in-memory copy used on every
// outbound call and the durable JSON file that survives a restart. The two
// mirrors are only ever written or cleared as a pair.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const credentialFile = "credentials.json"

// Credential is the bearer token plus the principal record mirrored from
// the login response. The tenant record is kept opaque; only the identifier
// field is validated.
type Credential struct {
	Token    string          `json:"token"`
	Tenant   json.RawMessage `json:"tenant"`
	IssuedAt time.Time       `json:"issued_at"`
}

// Manager is the single owner of the credential. Callers observe exactly
// two states: anonymous and authenticated; there is no partially written
// state, because both mirrors change under one lock.
type Manager struct {
	mu   sync.Mutex
	cred *Credential
	path string
	log  *slog.Logger

	onForcedLogout func(intended string)
}

// NewManager loads any durably stored credential from dataDir. A stored
// record that fails to parse or lacks a tenant identifier is never trusted:
// both mirrors are cleared and the manager starts anonymous.
func NewManager(dataDir string, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	m := &Manager{
		path: filepath.Join(dataDir, credentialFile),
		log:  log,
	}

	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stored credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		log.Warn("stored credential is malformed, clearing", "error", err)
		m.clearLocked()
		return m, nil
	}
	if err := validate(cred); err != nil {
		log.Warn("stored credential rejected, clearing", "reason", err)
		m.clearLocked()
		return m, nil
	}

	m.cred = &cred
	return m, nil
}

// validate checks the parts of a credential the portal relies on: a token
// and a tenant record carrying an identifier.
func validate(cred Credential) error {
	if cred.Token == "" {
		return errors.New("empty token")
	}
	var tenant struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(cred.Tenant, &tenant); err != nil {
		return fmt.Errorf("tenant record: %w", err)
	}
	if tenant.ID == "" {
		return errors.New("tenant record has no id")
	}
	return nil
}

// SetForcedLogoutHandler registers the signal fired on a forced logout so
// the serving layer can redirect to the login entry point and resume the
// originally intended destination afterwards.
func (m *Manager) SetForcedLogoutHandler(f func(intended string)) {
	m.mu.Lock()
	m.onForcedLogout = f
	m.mu.Unlock()
}

// Token returns the current bearer token. Implements the transport client's
// credential source.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return "", false
	}
	return m.cred.Token, true
}

// Authenticated reports whether a credential is established.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred != nil
}

// Principal returns the mirrored tenant record.
func (m *Manager) Principal() (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, false
	}
	return m.cred.Tenant, true
}

// Establish stores a freshly issued credential in both mirrors. The durable
// mirror is written first; if that fails neither mirror changes.
func (m *Manager) Establish(cred Credential) error {
	if err := validate(cred); err != nil {
		return fmt.Errorf("rejecting credential: %w", err)
	}
	if cred.IssuedAt.IsZero() {
		cred.IssuedAt = time.Now()
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing credential: %w", err)
	}

	m.cred = &cred
	m.log.Info("credential established")
	return nil
}

// Clear removes the credential from both mirrors. Used for explicit logout.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	m.log.Info("credential cleared")
}

// clearLocked drops both mirrors. File removal is best effort; the then-
// empty in-memory mirror already makes the state anonymous for all callers.
func (m *Manager) clearLocked() {
	m.cred = nil
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.log.Warn("removing stored credential", "error", err)
	}
}

// HandleUnauthorized is the forced-logout transition: invoked when any call
// comes back authentication-rejected. Both mirrors are cleared and the
// registered signal fires with the destination the caller was headed for.
func (m *Manager) HandleUnauthorized(intended string) {
	m.mu.Lock()
	wasAuthenticated := m.cred != nil
	m.clearLocked()
	signal := m.onForcedLogout
	m.mu.Unlock()

	if wasAuthenticated {
		m.log.Warn("authentication rejected upstream, forcing logout", "intended", intended)
	}
	if signal != nil {
		signal(intended)
	}
}

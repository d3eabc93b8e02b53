package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/credentials"
)

// Tenant is the principal record returned by the housing service on login.
type Tenant struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// RegisterRequest is the payload for a new tenant account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}

// Auth wraps the authentication endpoints and keeps the credential manager
// in step with their outcomes: a successful login establishes the credential,
// logout clears it.
type Auth struct {
	client *backend.Client
	creds  *credentials.Manager
	log    *slog.Logger
}

func NewAuth(client *backend.Client, creds *credentials.Manager, log *slog.Logger) *Auth {
	if log == nil {
		log = slog.Default()
	}
	return &Auth{client: client, creds: creds, log: log}
}

type loginResponse struct {
	Token  string          `json:"token"`
	Tenant json.RawMessage `json:"tenant"`
}

// Login authenticates against the housing service and, on success, stores
// the issued credential in both mirrors before returning the tenant record.
func (a *Auth) Login(ctx context.Context, email, password string) (Tenant, error) {
	env := a.client.Post(ctx, "/tenant/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if !env.Succeeded {
		return Tenant{}, fromEnvelope(env)
	}

	var resp loginResponse
	if err := env.Decode(&resp); err != nil {
		return Tenant{}, &Error{Kind: backend.KindServiceUnavailable, Message: "login response could not be parsed"}
	}

	if err := a.creds.Establish(credentials.Credential{
		Token:    resp.Token,
		Tenant:   resp.Tenant,
		IssuedAt: time.Now(),
	}); err != nil {
		a.log.Error("storing credential after login", "error", err)
		return Tenant{}, &Error{Kind: backend.KindServiceUnavailable, Message: "login succeeded but the session could not be stored"}
	}

	var tenant Tenant
	if err := json.Unmarshal(resp.Tenant, &tenant); err != nil {
		return Tenant{}, &Error{Kind: backend.KindServiceUnavailable, Message: "login response could not be parsed"}
	}
	a.log.Info("tenant logged in", "tenant_id", tenant.ID)
	return tenant, nil
}

type registerResponse struct {
	TenantID int64  `json:"tenant_id"`
	Email    string `json:"email"`
}

// Register creates a new tenant account. Registration does not log the
// tenant in; the caller follows up with Login.
func (a *Auth) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	env := a.client.Post(ctx, "/tenant/auth/register", req)
	if !env.Succeeded {
		return 0, fromEnvelope(env)
	}

	var resp registerResponse
	if err := env.Decode(&resp); err != nil {
		return 0, &Error{Kind: backend.KindServiceUnavailable, Message: "registration response could not be parsed"}
	}
	a.log.Info("tenant registered", "tenant_id", resp.TenantID)
	return resp.TenantID, nil
}

// VerifyToken asks the housing service whether the current token is still
// accepted. A 401 flows through the transport client's forced-logout hook;
// this method only reports validity.
func (a *Auth) VerifyToken(ctx context.Context) (bool, error) {
	env := a.client.Post(ctx, "/tenant/auth/verify-token", nil)
	if !env.Succeeded {
		if env.ErrorKind == backend.KindAuthRejected {
			return false, nil
		}
		return false, fromEnvelope(env)
	}

	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := env.Decode(&resp); err != nil {
		return false, &Error{Kind: backend.KindServiceUnavailable, Message: "verification response could not be parsed"}
	}
	return resp.Valid, nil
}

// Logout clears the credential from both mirrors. Purely local; the housing
// service holds no server-side session to revoke.
func (a *Auth) Logout() {
	a.creds.Clear()
}

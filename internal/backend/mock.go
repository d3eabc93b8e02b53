package backend

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// The mock responder answers write calls when mock mode is enabled, so the
// portal can be developed and tested with the housing service offline.
// Payloads are field-for-field compatible with the real service; the only
// tell is the "(MOCK MODE)" marker in the human-readable message.

func mockStatus(message string) statusBlock {
	return statusBlock{Status: "success", Message: message + " (MOCK MODE)"}
}

func mockEnvelope(req Request) Envelope {
	var payload any
	switch req.Path {
	case "/tenant/auth/login":
		payload = mockLogin(req.Body)
	case "/tenant/auth/register":
		payload = mockRegister(req.Body)
	case "/tenant/auth/verify-token":
		payload = map[string]any{
			"status": mockStatus("Token is valid"),
			"valid":  true,
		}
	default:
		payload = map[string]any{
			"status": mockStatus("Request accepted"),
			"echo":   req.Body,
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Mock payloads are built from plain maps; this cannot happen for
		// well-formed request bodies.
		return failureEnvelope(0, KindValidationError, "mock payload: "+err.Error())
	}
	return successEnvelope(http.StatusOK, data)
}

// bodyField digs a string field out of an arbitrary request body.
func bodyField(body any, field string) string {
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

func mockLogin(body any) map[string]any {
	email := bodyField(body, "email")
	if email == "" {
		email = "tenant@example.com"
	}
	return map[string]any{
		"status": mockStatus("Login successful"),
		"token":  fmt.Sprintf("mock_token_%d", time.Now().Unix()),
		"tenant": map[string]any{
			"id":    mockTenantID(),
			"email": email,
			"name":  "Mock Tenant",
		},
	}
}

func mockRegister(body any) map[string]any {
	return map[string]any{
		"status":    mockStatus("Registration successful"),
		"tenant_id": mockTenantID(),
		"email":     bodyField(body, "email"),
	}
}

// mockTenantID returns a synthetic but well-formed identifier in [1, 1000].
func mockTenantID() int {
	return rand.IntN(1000) + 1
}

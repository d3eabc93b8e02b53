package backend

import (
	"net/http"
	"testing"
)

func TestExtractMessage_TopLevel(t *testing.T) {
	msg, unrecognized := extractMessage([]byte(`{"message":"booking already exists"}`))
	if msg != "booking already exists" || unrecognized {
		t.Errorf("got (%q, %v), want top-level message", msg, unrecognized)
	}
}

func TestExtractMessage_NestedStatus(t *testing.T) {
	msg, unrecognized := extractMessage([]byte(`{"status":{"status":"error","message":"room not available"}}`))
	if msg != "room not available" || unrecognized {
		t.Errorf("got (%q, %v), want nested status.message", msg, unrecognized)
	}
}

func TestExtractMessage_TopLevelWinsOverNested(t *testing.T) {
	body := []byte(`{"message":"outer","status":{"status":"error","message":"inner"}}`)
	msg, _ := extractMessage(body)
	if msg != "outer" {
		t.Errorf("got %q, want top-level message to take priority", msg)
	}
}

func TestExtractMessage_UnrecognizedShapeFlagged(t *testing.T) {
	msg, unrecognized := extractMessage([]byte(`{"error":{"detail":"some new shape"}}`))
	if msg != "" || !unrecognized {
		t.Errorf("got (%q, %v), want unrecognized shape flagged", msg, unrecognized)
	}
}

func TestExtractMessage_EmptyAndNonJSON(t *testing.T) {
	for _, body := range [][]byte{nil, []byte(""), []byte("<html>bad gateway</html>")} {
		msg, unrecognized := extractMessage(body)
		if msg != "" || unrecognized {
			t.Errorf("extractMessage(%q) = (%q, %v), want empty and not flagged", body, msg, unrecognized)
		}
	}
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuthRejected},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusBadRequest, KindValidationError},
		{http.StatusUnprocessableEntity, KindValidationError},
		{http.StatusInternalServerError, KindServiceUnavailable},
		{http.StatusBadGateway, KindServiceUnavailable},
	}
	for _, tt := range tests {
		if got := kindForStatus(tt.status); got != tt.want {
			t.Errorf("kindForStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestEnvelopeInvariant(t *testing.T) {
	// succeeded == (200 <= status < 300), and errorKind set iff failed.
	for status := 200; status < 300; status += 33 {
		env := successEnvelope(status, nil)
		if !env.Succeeded || env.ErrorKind != "" {
			t.Errorf("successEnvelope(%d) = %+v, violates invariant", status, env)
		}
	}
	for _, status := range []int{400, 401, 404, 429, 500, 503} {
		env := failureEnvelope(status, kindForStatus(status), "")
		if env.Succeeded || env.ErrorKind == "" || env.ErrorMessage == "" {
			t.Errorf("failureEnvelope(%d) = %+v, violates invariant", status, env)
		}
	}
}

func TestEnvelopeDecode_FailedCall(t *testing.T) {
	env := failureEnvelope(500, KindServiceUnavailable, "down")
	var v map[string]any
	if err := env.Decode(&v); err == nil {
		t.Error("Decode on failed envelope succeeded, want error")
	}
}

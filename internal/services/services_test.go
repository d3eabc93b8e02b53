package services

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
	"github.com/mietwerk/portal/internal/credentials"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testEnv wires a facade test against a fake housing service.
type testEnv struct {
	server *httptest.Server
	client *backend.Client
	creds  *credentials.Manager
	cache  *cache.Cache
	ttl    time.Duration
}

func newTestEnv(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	creds, err := credentials.NewManager(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	client := backend.NewClient(backend.Config{
		BaseURL:     server.URL,
		Timeout:     5 * time.Second,
		Credentials: creds,
		Logger:      testLogger,
	})

	return &testEnv{
		server: server,
		client: client,
		creds:  creds,
		cache:  cache.New(true),
		ttl:    time.Minute,
	}
}

// downEnv wires a facade test against a service that is unreachable.
func downEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	env.server.Close()
	return env
}

func TestFacadeErrorMessageNeverEmpty(t *testing.T) {
	env := downEnv(t)
	rooms := NewRooms(env.client, env.cache, env.ttl, true, testLogger)

	_, err := rooms.List(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error from unreachable service")
	}
	if err.Error() == "" {
		t.Error("facade error has empty message")
	}
	kind, ok := KindOf(err)
	if !ok {
		t.Fatalf("error is %T, want *Error", err)
	}
	if kind != backend.KindConnectionError {
		t.Errorf("kind = %s, want %s", kind, backend.KindConnectionError)
	}
}

func TestFacadeUpstreamMessageVerbatim(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Start date must be in the future"}`))
	})
	bookings := NewBookings(env.client, env.cache, env.ttl, testLogger)

	_, err := bookings.Create(context.Background(), BookingRequest{RoomID: 7, StartDate: "2020-01-01"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := err.Error(); got != "Start date must be in the future" {
		t.Errorf("message = %q, want upstream message verbatim", got)
	}
	if kind, _ := KindOf(err); kind != backend.KindValidationError {
		t.Errorf("kind = %s, want %s", kind, backend.KindValidationError)
	}
}

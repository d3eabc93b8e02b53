package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

type staticCreds struct {
	token string
}

func (s staticCreds) Token() (string, bool) {
	return s.token, s.token != ""
}

func TestCall_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want bearer token attached", got)
		}
		fmt.Fprint(w, `{"rooms":[{"id":1}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Credentials: staticCreds{token: "tok-123"}})
	env := c.Get(context.Background(), "/rooms", nil)
	if !env.Succeeded || env.HTTPStatus != http.StatusOK {
		t.Fatalf("envelope = %+v, want success", env)
	}

	var payload struct {
		Rooms []struct {
			ID int `json:"id"`
		} `json:"rooms"`
	}
	if err := env.Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(payload.Rooms) != 1 || payload.Rooms[0].ID != 1 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestCall_NoAuthHeaderWhenAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want none for anonymous call", got)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Credentials: staticCreds{}})
	c.Get(context.Background(), "/rooms", nil)
}

func TestCall_QueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("city"); got != "Delft" {
			t.Errorf("city = %q", got)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	q := url.Values{}
	q.Set("city", "Delft")
	env := c.Get(context.Background(), "/rooms", q)
	if !env.Succeeded {
		t.Errorf("envelope = %+v", env)
	}
}

func TestCall_TopLevelErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"email is required"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	env := c.Post(context.Background(), "/tenant/auth/register", map[string]string{})
	if env.Succeeded {
		t.Fatal("envelope succeeded on 400")
	}
	if env.ErrorKind != KindValidationError {
		t.Errorf("kind = %q, want %q", env.ErrorKind, KindValidationError)
	}
	if env.ErrorMessage != "email is required" {
		t.Errorf("message = %q, want upstream message preserved", env.ErrorMessage)
	}
}

func TestCall_NestedStatusErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"status":{"status":"error","message":"room already booked"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	env := c.Post(context.Background(), "/bookings", map[string]int{"room_id": 3})
	if env.ErrorMessage != "room already booked" {
		t.Errorf("message = %q, want nested status.message extracted", env.ErrorMessage)
	}
}

func TestCall_GenericMessageWhenBodyEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	env := c.Get(context.Background(), "/rooms", nil)
	if env.ErrorMessage == "" {
		t.Error("failed envelope has empty message")
	}
	if env.ErrorKind != KindServiceUnavailable {
		t.Errorf("kind = %q, want %q", env.ErrorKind, KindServiceUnavailable)
	}
}

func TestCall_AuthRejectedTriggersHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"token expired"}`)
	}))
	defer srv.Close()

	var rejectedPath string
	c := NewClient(Config{
		BaseURL:        srv.URL,
		OnAuthRejected: func(path string) { rejectedPath = path },
	})
	env := c.Get(context.Background(), "/bookings", nil)
	if env.ErrorKind != KindAuthRejected {
		t.Errorf("kind = %q, want %q", env.ErrorKind, KindAuthRejected)
	}
	if rejectedPath != "/bookings" {
		t.Errorf("hook path = %q, want original call path", rejectedPath)
	}
}

func TestCall_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	env := c.Get(context.Background(), "/rooms", nil)
	if env.Succeeded {
		t.Fatal("envelope succeeded on refused connection")
	}
	if env.ErrorKind != KindConnectionError {
		t.Errorf("kind = %q, want %q", env.ErrorKind, KindConnectionError)
	}
	if env.ErrorMessage == "" {
		t.Error("connection error envelope has empty message")
	}
}

func TestCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 10 * time.Millisecond})
	env := c.Get(context.Background(), "/rooms", nil)
	if env.ErrorKind != KindTimeout {
		t.Errorf("kind = %q, want %q", env.ErrorKind, KindTimeout)
	}
}

func TestCall_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	for range 6 {
		c.Get(context.Background(), "/rooms", nil)
	}
	// Breaker should now be open; calls fail fast without a dial attempt.
	start := time.Now()
	env := c.Get(context.Background(), "/rooms", nil)
	if env.ErrorKind != KindConnectionError {
		t.Errorf("kind = %q, want %q", env.ErrorKind, KindConnectionError)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("open-circuit call took %v, want fail-fast", elapsed)
	}
}

func TestCall_HTTPErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	for range 10 {
		env := c.Get(context.Background(), "/rooms", nil)
		// Every call must still reach the upstream and carry its status.
		if env.HTTPStatus != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500 from upstream (breaker must not trip on HTTP errors)", env.HTTPStatus)
		}
	}
}

func TestMockMode_InterceptsWritesOnly(t *testing.T) {
	var gotRead bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("write call %s %s reached the network in mock mode", r.Method, r.URL.Path)
		}
		gotRead = true
		fmt.Fprint(w, `{"rooms":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MockMode: true})

	env := c.Post(context.Background(), "/bookings", map[string]int{"room_id": 1})
	if !env.Succeeded {
		t.Errorf("mocked write = %+v, want success", env)
	}

	env = c.Get(context.Background(), "/rooms", nil)
	if !env.Succeeded || !gotRead {
		t.Errorf("read call should pass through to the network, env = %+v", env)
	}
}

func TestMockMode_RuntimeToggle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if c.MockMode() {
		t.Fatal("mock mode on by default")
	}

	env := c.Post(context.Background(), "/bookings", nil)
	if env.Succeeded {
		t.Fatal("real call against failing upstream succeeded")
	}

	c.SetMockMode(true)
	env = c.Post(context.Background(), "/bookings", nil)
	if !env.Succeeded {
		t.Errorf("mocked call = %+v, want success after toggle", env)
	}
}

func TestMockMode_PerClientIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mocked := NewClient(Config{BaseURL: srv.URL, MockMode: true})
	real := NewClient(Config{BaseURL: srv.URL})

	if env := mocked.Post(context.Background(), "/bookings", nil); !env.Succeeded {
		t.Errorf("mocked client = %+v", env)
	}
	if env := real.Post(context.Background(), "/bookings", nil); env.Succeeded {
		t.Error("real client answered from mock responder")
	}
}

package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newLinkerServer fakes both lookup directions of the upstream service.
func newLinkerServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			fmt.Fprint(w, forwardJSON("51.9981", "4.3731", "Teststraat 1, Delft"))
		case "/reverse":
			fmt.Fprint(w, `{"display_name":"Teststraat 1, 2611 AA Delft, Nederland"}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
}

func TestLinker_LocateDoesNotLoop(t *testing.T) {
	srv := newLinkerServer(t)
	defer srv.Close()

	r, _ := newTestResolver(srv)
	g, mt := newManualGuard()
	l := NewLinker(r, g)

	l.SetAddress("Teststraat 1, Delft")
	c, err := l.Locate(context.Background())
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if c.Lat != 51.9981 {
		t.Errorf("lat = %v, want 51.9981", c.Lat)
	}

	// The forward result refreshed the label through one reverse lookup,
	// and the derived label write must not start another forward lookup.
	if l.forwardCalls != 1 {
		t.Errorf("forward lookups = %d, want exactly 1", l.forwardCalls)
	}
	if l.reverseCalls != 1 {
		t.Errorf("reverse lookups = %d, want exactly 1", l.reverseCalls)
	}
	if got := l.Address(); got != "Teststraat 1, 2611 AA Delft, Nederland" {
		t.Errorf("address label = %q, want reverse-resolved label", got)
	}

	// After the grace window the linker is quiet; nothing re-fires.
	mt.fireAll()
	if l.forwardCalls != 1 || l.reverseCalls != 1 {
		t.Errorf("lookups after grace window = %d/%d, want 1/1", l.forwardCalls, l.reverseCalls)
	}
}

func TestLinker_PickDoesNotLoop(t *testing.T) {
	srv := newLinkerServer(t)
	defer srv.Close()

	r, _ := newTestResolver(srv)
	g, mt := newManualGuard()
	l := NewLinker(r, g)

	label, err := l.Pick(context.Background(), mustCoord(51.9981, 4.3731))
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if label == "" {
		t.Fatal("Pick returned empty label")
	}

	// The applied address label must not trigger a forward lookup.
	if l.forwardCalls != 0 {
		t.Errorf("forward lookups = %d, want 0", l.forwardCalls)
	}
	if l.reverseCalls != 1 {
		t.Errorf("reverse lookups = %d, want 1", l.reverseCalls)
	}

	c, ok := l.Coordinate()
	if !ok || c.Lat != 51.9981 {
		t.Errorf("coordinate = %v (set=%v), want picked point", c, ok)
	}

	mt.fireAll()
	if l.forwardCalls != 0 {
		t.Errorf("forward lookups after grace window = %d, want 0", l.forwardCalls)
	}
}

func TestLinker_SetAddressAloneNeverResolves(t *testing.T) {
	srv := newLinkerServer(t)
	defer srv.Close()

	r, _ := newTestResolver(srv)
	l := NewLinker(r, NewGuard(0))

	l.SetAddress("Teststraat 1, Delft")
	l.SetAddress("Teststraat 2, Delft")

	if l.forwardCalls != 0 || l.reverseCalls != 0 {
		t.Errorf("lookups = %d/%d, want none without an explicit trigger", l.forwardCalls, l.reverseCalls)
	}
}

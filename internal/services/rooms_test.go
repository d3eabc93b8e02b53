package services

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
)

func TestRoomsListStripsHTMLAndCaches(t *testing.T) {
	var calls atomic.Int64
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"rooms":[
			{"id":1,"name":"Studio A","description":"<p>Bright <b>studio</b></p><br>near campus","address":"Kanaalweg 1","price_euro":600,"available":true}
		]}`))
	})
	rooms := NewRooms(env.client, env.cache, env.ttl, false, testLogger)

	list, err := rooms.List(context.Background(), map[string]string{"available": "true"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Rooms) != 1 {
		t.Fatalf("got %d rooms", len(list.Rooms))
	}
	if list.Sampled {
		t.Error("Sampled = true on a live read")
	}
	if got := list.Rooms[0].Description; got != "Bright studio near campus" {
		t.Errorf("description = %q", got)
	}

	// Same filters in any construction order hit the cache.
	if _, err := rooms.List(context.Background(), map[string]string{"available": "true"}); err != nil {
		t.Fatalf("List (cached): %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestRoomsListSampleFallbackOutsideProduction(t *testing.T) {
	env := downEnv(t)
	rooms := NewRooms(env.client, env.cache, env.ttl, false, testLogger)

	list, err := rooms.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !list.Sampled {
		t.Error("Sampled = false on fallback data")
	}
	if len(list.Rooms) == 0 {
		t.Error("fallback listing is empty")
	}
}

func TestRoomsListNoFallbackInProduction(t *testing.T) {
	env := downEnv(t)
	rooms := NewRooms(env.client, env.cache, env.ttl, true, testLogger)

	if _, err := rooms.List(context.Background(), nil); err == nil {
		t.Fatal("expected error in production when service is down")
	}
}

func TestRoomsListNoFallbackForOtherKinds(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"No such listing"}`))
	})
	rooms := NewRooms(env.client, env.cache, env.ttl, false, testLogger)

	_, err := rooms.List(context.Background(), nil)
	if err == nil {
		t.Fatal("expected not-found error to surface, not sample data")
	}
	if err.Error() != "No such listing" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestRoomsGet(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rooms/5" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"room":{"id":5,"name":"Loft","description":"Top floor","price_euro":820}}`))
	})
	rooms := NewRooms(env.client, env.cache, env.ttl, false, testLogger)

	room, err := rooms.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if room.ID != 5 || room.Name != "Loft" {
		t.Errorf("room = %+v", room)
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"  spaced  ", "spaced"},
		{"<p>hello</p>", "hello"},
		{"<div>a<br/>b</div>", "a b"},
		{"no tags & entities", "no tags & entities"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripTags(tt.in); got != tt.want {
			t.Errorf("stripTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

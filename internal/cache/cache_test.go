package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func staticFetch(value string, calls *int) FetchFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		*calls++
		return json.RawMessage(value), nil
	}
}

func TestKey_OrderIndependent(t *testing.T) {
	a := Key("rooms", map[string]string{"city": "Delft", "max_rent": "800", "sort": "price"})
	b := Key("rooms", map[string]string{"sort": "price", "city": "Delft", "max_rent": "800"})
	if a != b {
		t.Errorf("keys differ for identical queries: %q vs %q", a, b)
	}
}

func TestKey_DistinguishesResourcesAndParams(t *testing.T) {
	base := Key("rooms", map[string]string{"city": "Delft"})
	if Key("bookings", map[string]string{"city": "Delft"}) == base {
		t.Error("different resources share a key")
	}
	if Key("rooms", map[string]string{"city": "Leiden"}) == base {
		t.Error("different parameter values share a key")
	}
	if Key("rooms", nil) == base {
		t.Error("empty query shares a key with non-empty query")
	}
}

func TestGetOrFetch_HitSkipsFetch(t *testing.T) {
	c := New(true)
	calls := 0

	for range 3 {
		v, err := c.GetOrFetch(context.Background(), "rooms:k", time.Minute, staticFetch(`{"rooms":[]}`, &calls))
		if err != nil {
			t.Fatalf("GetOrFetch: %v", err)
		}
		if string(v) != `{"rooms":[]}` {
			t.Errorf("value = %s", v)
		}
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
	if s := c.Stats(); s.Hits != 2 || s.Misses != 1 {
		t.Errorf("stats = %+v, want 2 hits / 1 miss", s)
	}
}

func TestGetOrFetch_ExpiryIsMissAndEvicts(t *testing.T) {
	c := New(true)
	now := time.Now()
	c.now = func() time.Time { return now }

	calls := 0
	c.GetOrFetch(context.Background(), "rooms:k", time.Minute, staticFetch(`1`, &calls))

	now = now.Add(61 * time.Second)
	v, err := c.GetOrFetch(context.Background(), "rooms:k", time.Minute, staticFetch(`2`, &calls))
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if string(v) != `2` {
		t.Errorf("value after expiry = %s, want refetched value", v)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want exactly one re-fetch", calls)
	}
}

func TestGetOrFetch_FailedFetchNotCached(t *testing.T) {
	c := New(true)
	calls := 0
	failing := func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return nil, errors.New("upstream down")
	}

	if _, err := c.GetOrFetch(context.Background(), "rooms:k", time.Minute, failing); err == nil {
		t.Fatal("want error from failed fetch")
	}
	if _, err := c.GetOrFetch(context.Background(), "rooms:k", time.Minute, failing); err == nil {
		t.Fatal("want error again — failure must not be cached")
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}

	ok := 0
	v, err := c.GetOrFetch(context.Background(), "rooms:k", time.Minute, staticFetch(`{"ok":true}`, &ok))
	if err != nil || string(v) != `{"ok":true}` {
		t.Errorf("recovery fetch = (%s, %v)", v, err)
	}
}

func TestGetOrFetch_StaleInFlightWriteDiscarded(t *testing.T) {
	c := New(true)
	now := time.Now()
	c.now = func() time.Time { return now }

	slowStarted := make(chan struct{})
	slowRelease := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.GetOrFetch(context.Background(), "rooms:k", time.Minute, func(ctx context.Context) (json.RawMessage, error) {
			close(slowStarted)
			<-slowRelease
			return json.RawMessage(`"stale"`), nil
		})
	}()

	<-slowStarted
	// Entry is absent while the slow fetch runs, so this is a second miss
	// with a newer write sequence.
	c.GetOrFetch(context.Background(), "rooms:k", time.Minute, func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`"fresh"`), nil
	})

	close(slowRelease)
	wg.Wait()

	calls := 0
	v, _ := c.GetOrFetch(context.Background(), "rooms:k", time.Minute, staticFetch(`"refetched"`, &calls))
	if string(v) != `"fresh"` {
		t.Errorf("cached value = %s, want the newer write to win", v)
	}
	if calls != 0 {
		t.Error("expected a cache hit, got a re-fetch")
	}
}

func TestDisabledCachePassesThrough(t *testing.T) {
	c := New(false)
	calls := 0
	for range 3 {
		c.GetOrFetch(context.Background(), "rooms:k", time.Minute, staticFetch(`1`, &calls))
	}
	if calls != 3 {
		t.Errorf("fetch calls = %d, want every lookup to pass through", calls)
	}
}

func TestInvalidateResource(t *testing.T) {
	c := New(true)
	calls := 0
	c.GetOrFetch(context.Background(), Key("rooms", nil), time.Minute, staticFetch(`1`, &calls))
	c.GetOrFetch(context.Background(), Key("rooms", map[string]string{"city": "Delft"}), time.Minute, staticFetch(`2`, &calls))
	c.GetOrFetch(context.Background(), Key("bookings", nil), time.Minute, staticFetch(`3`, &calls))

	c.InvalidateResource("rooms")

	if s := c.Stats(); s.Keys != 1 {
		t.Errorf("keys after invalidation = %d, want only bookings left", s.Keys)
	}
}

package geocode

import (
	"sync"
	"time"
)

// GuardState is the suppression state machine's current position.
type GuardState int

const (
	// GuardIdle means no derived value is being applied; both resolution
	// directions may fire.
	GuardIdle GuardState = iota
	// GuardApplying means a derived value (coordinate from a forward lookup,
	// or address text from a reverse lookup) is being written into shared
	// state; the complementary resolution direction must not fire.
	GuardApplying
)

const defaultGrace = 500 * time.Millisecond

// Guard suppresses re-triggering a geocode resolution as a side effect of
// applying the other direction's result. Forward and reverse lookups write
// into overlapping state (address text and marker coordinate); without the
// guard an applied coordinate updates the address text, which re-triggers a
// forward lookup, which moves the coordinate again, indefinitely.
//
// The guard stays in GuardApplying for a short grace window after the
// application completes, then returns to GuardIdle on its own.
type Guard struct {
	mu    sync.Mutex
	state GuardState
	grace time.Duration
	gen   uint64

	// after schedules the release of the suppression window; replaced in
	// tests to control time.
	after func(d time.Duration, f func())
}

// NewGuard creates a Guard with the given grace window. A zero grace uses
// the default.
func NewGuard(grace time.Duration) *Guard {
	if grace <= 0 {
		grace = defaultGrace
	}
	return &Guard{
		grace: grace,
		after: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// BeginApply enters the suppression window. Safe to call while already
// applying; any pending release is superseded.
func (g *Guard) BeginApply() {
	g.mu.Lock()
	g.state = GuardApplying
	g.gen++
	g.mu.Unlock()
}

// EndApply schedules the return to GuardIdle after the grace window. A
// BeginApply issued before the window elapses cancels the pending release.
func (g *Guard) EndApply() {
	g.mu.Lock()
	gen := g.gen
	g.mu.Unlock()

	g.after(g.grace, func() {
		g.mu.Lock()
		if g.gen == gen {
			g.state = GuardIdle
		}
		g.mu.Unlock()
	})
}

// Apply runs fn inside the suppression window. The window is entered before
// fn and released (after the grace delay) regardless of how fn exits.
func (g *Guard) Apply(fn func()) {
	g.BeginApply()
	defer g.EndApply()
	fn()
}

// Suppressed reports whether a derived-value application is in progress or
// within its grace window.
func (g *Guard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == GuardApplying
}

// State returns the guard's current state.
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

package geocode

import (
	"testing"
	"time"
)

// manualTimer collects scheduled releases and fires them on demand.
type manualTimer struct {
	pending []func()
}

func (m *manualTimer) after(d time.Duration, f func()) {
	m.pending = append(m.pending, f)
}

func (m *manualTimer) fireAll() {
	for _, f := range m.pending {
		f()
	}
	m.pending = nil
}

func newManualGuard() (*Guard, *manualTimer) {
	g := NewGuard(time.Second)
	mt := &manualTimer{}
	g.after = mt.after
	return g, mt
}

func TestGuard_InitialState(t *testing.T) {
	g, _ := newManualGuard()
	if g.State() != GuardIdle {
		t.Errorf("initial state = %v, want GuardIdle", g.State())
	}
	if g.Suppressed() {
		t.Error("new guard reports suppressed")
	}
}

func TestGuard_SuppressedDuringAndAfterApply(t *testing.T) {
	g, mt := newManualGuard()

	var duringApply bool
	g.Apply(func() {
		duringApply = g.Suppressed()
	})

	if !duringApply {
		t.Error("not suppressed while applying")
	}
	// Still inside the grace window until the timer fires.
	if !g.Suppressed() {
		t.Error("not suppressed within grace window")
	}

	mt.fireAll()
	if g.Suppressed() {
		t.Error("still suppressed after grace window elapsed")
	}
	if g.State() != GuardIdle {
		t.Errorf("state = %v, want GuardIdle", g.State())
	}
}

func TestGuard_ReentryCancelsPendingRelease(t *testing.T) {
	g, mt := newManualGuard()

	g.Apply(func() {})
	stale := mt.pending
	mt.pending = nil

	// A new application begins before the first grace window elapses.
	g.BeginApply()

	// The stale release must not drop the active suppression.
	for _, f := range stale {
		f()
	}
	if !g.Suppressed() {
		t.Error("stale release cleared an active suppression window")
	}

	g.EndApply()
	mt.fireAll()
	if g.Suppressed() {
		t.Error("suppression leaked past the final grace window")
	}
}

func TestGuard_ReleasedOnPanicInApply(t *testing.T) {
	g, mt := newManualGuard()

	func() {
		defer func() { recover() }()
		g.Apply(func() { panic("boom") })
	}()

	// EndApply must still have scheduled the release.
	mt.fireAll()
	if g.Suppressed() {
		t.Error("suppression leaked after panic in Apply")
	}
}

func TestGuard_ZeroGraceUsesDefault(t *testing.T) {
	g := NewGuard(0)
	if g.grace != defaultGrace {
		t.Errorf("grace = %v, want %v", g.grace, defaultGrace)
	}
}

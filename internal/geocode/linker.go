package geocode

import (
	"context"
	"sync"

	"github.com/mietwerk/portal/internal/geo"
)

// Linker binds an address text field to a map coordinate and keeps the two
// in sync through the resolver. Resolution only ever starts from an explicit
// trigger: Locate (the user asked to place the address on the map) or Pick
// (the user clicked the map). Address edits alone never resolve.
//
// Both directions write into the same two fields, so every derived write
// goes through the Guard: a coordinate produced by Locate refreshes the
// address label via reverse lookup, and that label write must not be taken
// for user input and start another forward lookup.
type Linker struct {
	resolver *Resolver
	guard    *Guard

	mu      sync.Mutex
	address string
	coord   geo.Coordinate
	located bool

	forwardCalls int
	reverseCalls int
}

// NewLinker creates a Linker around the given resolver and guard.
func NewLinker(r *Resolver, g *Guard) *Linker {
	return &Linker{resolver: r, guard: g}
}

// SetAddress records user-entered address text. No resolution happens here.
func (l *Linker) SetAddress(address string) {
	l.mu.Lock()
	l.address = address
	l.mu.Unlock()
}

// Address returns the current address text.
func (l *Linker) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// Coordinate returns the current coordinate and whether one has been set.
func (l *Linker) Coordinate() (geo.Coordinate, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.coord, l.located
}

// Locate resolves the current address text into a coordinate and refreshes
// the address label from the result.
func (l *Linker) Locate(ctx context.Context) (geo.Coordinate, error) {
	l.mu.Lock()
	address := l.address
	l.forwardCalls++
	l.mu.Unlock()

	c, err := l.resolver.Forward(ctx, address)
	if err != nil {
		return geo.Coordinate{}, err
	}

	l.guard.Apply(func() {
		l.mu.Lock()
		l.coord = c
		l.located = true
		l.mu.Unlock()
		l.refreshLabel(ctx, c)
	})
	return c, nil
}

// Pick applies a map-click coordinate and resolves its address label.
func (l *Linker) Pick(ctx context.Context, c geo.Coordinate) (string, error) {
	l.mu.Lock()
	l.reverseCalls++
	l.mu.Unlock()

	label, err := l.resolver.Reverse(ctx, c)
	if err != nil {
		return "", err
	}

	l.guard.Apply(func() {
		l.mu.Lock()
		l.coord = c
		l.located = true
		l.mu.Unlock()
		l.applyAddress(ctx, label)
	})
	return label, nil
}

// refreshLabel updates the address text from a freshly applied coordinate.
// Best effort: a failed reverse lookup leaves the typed address in place.
func (l *Linker) refreshLabel(ctx context.Context, c geo.Coordinate) {
	l.mu.Lock()
	l.reverseCalls++
	l.mu.Unlock()

	label, err := l.resolver.Reverse(ctx, c)
	if err != nil {
		return
	}
	l.applyAddress(ctx, label)
}

// applyAddress writes address text that came out of a resolution. While the
// guard is in its suppression window the write is taken as derived and does
// not start a forward lookup; otherwise it behaves like user input followed
// by an explicit locate.
func (l *Linker) applyAddress(ctx context.Context, address string) {
	l.mu.Lock()
	l.address = address
	l.mu.Unlock()

	if l.guard.Suppressed() {
		return
	}
	// Re-resolution failure keeps the applied text.
	_, _ = l.Locate(ctx)
}

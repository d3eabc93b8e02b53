package api

import (
	"net/http"
	"sync"

	"github.com/mietwerk/portal/internal/geocode"
)

// addressForms holds one Linker per session: the address-edit form with its
// map marker. State lives server side so typing, locating and map clicks all
// work against the same suppression guard.
type addressForms struct {
	mu    sync.Mutex
	forms map[string]*geocode.Linker
}

func newAddressForms() *addressForms {
	return &addressForms{forms: make(map[string]*geocode.Linker)}
}

func (a *addressForms) get(sessionID string, resolver *geocode.Resolver) *geocode.Linker {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.forms[sessionID]
	if !ok {
		l = geocode.NewLinker(resolver, geocode.NewGuard(0))
		a.forms[sessionID] = l
	}
	return l
}

func (a *addressForms) drop(sessionID string) {
	a.mu.Lock()
	delete(a.forms, sessionID)
	a.mu.Unlock()
}

func (h *Handler) addressLinker(r *http.Request) (*geocode.Linker, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return h.addresses.get(cookie.Value, h.deps.Resolver), true
}

func addressState(l *geocode.Linker) map[string]any {
	state := map[string]any{
		"address": l.Address(),
	}
	if c, ok := l.Coordinate(); ok {
		state["lat"] = c.Lat
		state["lon"] = c.Lon
	}
	return state
}

func (h *Handler) handleAddressGet(w http.ResponseWriter, r *http.Request) {
	l, ok := h.addressLinker(r)
	if !ok {
		loginRequired(w, r)
		return
	}
	writeJSON(w, http.StatusOK, addressState(l))
}

// handleAddressSet records typed address text. Typing alone never geocodes;
// the client calls locate when the tenant asks for the marker.
func (h *Handler) handleAddressSet(w http.ResponseWriter, r *http.Request) {
	l, ok := h.addressLinker(r)
	if !ok {
		loginRequired(w, r)
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	l.SetAddress(req.Address)
	writeJSON(w, http.StatusOK, addressState(l))
}

func (h *Handler) handleAddressLocate(w http.ResponseWriter, r *http.Request) {
	l, ok := h.addressLinker(r)
	if !ok {
		loginRequired(w, r)
		return
	}
	if _, err := l.Locate(r.Context()); err != nil {
		h.geocodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addressState(l))
}

func (h *Handler) handleAddressPick(w http.ResponseWriter, r *http.Request) {
	l, ok := h.addressLinker(r)
	if !ok {
		loginRequired(w, r)
		return
	}
	var req struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	coord, valid := validCoord(w, req.Lat, req.Lon)
	if !valid {
		return
	}
	if _, err := l.Pick(r.Context(), coord); err != nil {
		h.geocodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addressState(l))
}

// Package api is the portal's HTTP surface: the JSON routes the web UI
// calls, the admin endpoints, and the MCP server for programmatic access.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
	"github.com/mietwerk/portal/internal/credentials"
	"github.com/mietwerk/portal/internal/geo"
	"github.com/mietwerk/portal/internal/geocode"
	"github.com/mietwerk/portal/internal/services"
)

const maxRequestBodySize = 25 << 20 // 25MB; document uploads arrive as base64 JSON

// Deps holds everything the HTTP layer composes.
type Deps struct {
	Auth      *services.Auth
	Rooms     *services.Rooms
	Bookings  *services.Bookings
	Payments  *services.Payments
	Issues    *services.Issues
	Documents *services.Documents
	Tenants   *services.Tenants

	Creds    *credentials.Manager
	Client   *backend.Client
	Cache    *cache.Cache
	Resolver *geocode.Resolver
	Campus   geo.Coordinate
	Logger   *slog.Logger
}

// Handler is the portal's HTTP API.
type Handler struct {
	deps      Deps
	sessions  *SessionStore
	addresses *addressForms
	log       *slog.Logger
}

// NewHandler builds the router. A forced logout upstream drops every portal
// session so all tabs land back on the login page.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{
		deps:      deps,
		sessions:  NewSessionStore(),
		addresses: newAddressForms(),
		log:       deps.Logger,
	}

	if deps.Creds != nil {
		deps.Creds.SetForcedLogoutHandler(func(intended string) {
			h.log.Warn("forced logout, dropping all sessions", "intended", intended)
			h.sessions.Clear()
		})
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/logout", h.handleLogout)
	r.Post("/auth/verify", h.handleVerify)

	r.Get("/rooms", h.handleRoomList)
	r.Get("/rooms/{id}", h.handleRoomGet)

	r.Get("/geocode/forward", h.handleGeocodeForward)
	r.Get("/geocode/reverse", h.handleGeocodeReverse)
	r.Get("/distance", h.handleDistance)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)

		r.Get("/bookings", h.handleBookingList)
		r.Post("/bookings", h.handleBookingCreate)
		r.Get("/payments", h.handlePaymentList)
		r.Post("/payments", h.handlePaymentCreate)
		r.Get("/issues", h.handleIssueList)
		r.Post("/issues", h.handleIssueCreate)
		r.Get("/documents", h.handleDocumentList)
		r.Post("/documents", h.handleDocumentUpload)
		r.Get("/profile", h.handleProfileGet)
		r.Put("/profile", h.handleProfileUpdate)
		r.Get("/profile/address", h.handleAddressGet)
		r.Put("/profile/address", h.handleAddressSet)
		r.Post("/profile/address/locate", h.handleAddressLocate)
		r.Post("/profile/address/pick", h.handleAddressPick)
		r.Get("/dashboard", h.handleDashboard)
	})

	r.Get("/admin/mock", h.handleMockStatus)
	r.Put("/admin/mock", h.handleMockSet)
	r.Get("/admin/cache", h.handleCacheStats)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// loginRequired answers 401 with the redirect target and the destination to
// resume after login.
func loginRequired(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "login required",
			"type":    "authentication_error",
		},
		"redirect": "/login",
		"next":     r.URL.RequestURI(),
	})
}

// facadeError translates a services failure into an HTTP response. The
// upstream message passes through untouched. Auth rejections get the same
// redirect shape as a missing session.
func (h *Handler) facadeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := services.KindOf(err)
	if !ok {
		httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
		return
	}

	if kind == backend.KindAuthRejected {
		h.sessions.Clear()
		loginRequired(w, r)
		return
	}

	code := http.StatusBadGateway
	errType := "upstream_error"
	switch kind {
	case backend.KindValidationError:
		code, errType = http.StatusBadRequest, "validation_error"
	case backend.KindNotFound:
		code, errType = http.StatusNotFound, "not_found"
	case backend.KindRateLimited:
		code, errType = http.StatusTooManyRequests, "rate_limited"
	case backend.KindTimeout:
		code, errType = http.StatusGatewayTimeout, "timeout"
	case backend.KindConnectionError, backend.KindServiceUnavailable:
		code, errType = http.StatusBadGateway, "upstream_error"
	}
	httpError(w, code, errType, "%s", err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// --- auth ---

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	tenant, err := h.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}

	id := h.sessions.Create(tenant.ID)
	setSessionCookie(w, id)
	writeJSON(w, http.StatusOK, map[string]any{"tenant": tenant})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := h.deps.Auth.Register(r.Context(), req)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tenant_id": id})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		h.sessions.Delete(cookie.Value)
		h.addresses.drop(cookie.Value)
	}
	clearSessionCookie(w)
	h.deps.Auth.Logout()
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged out"})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	valid, err := h.deps.Auth.VerifyToken(r.Context())
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

// --- rooms ---

func (h *Handler) handleRoomList(w http.ResponseWriter, r *http.Request) {
	filters := map[string]string{}
	for _, k := range []string{"available", "min_price", "max_price", "min_size"} {
		if v := r.URL.Query().Get(k); v != "" {
			filters[k] = v
		}
	}

	list, err := h.deps.Rooms.List(r.Context(), filters)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleRoomGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid room id")
		return
	}

	room, err := h.deps.Rooms.Get(r.Context(), id)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": room})
}

// --- geocoding ---

func (h *Handler) handleGeocodeForward(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
		return
	}

	coord, err := h.deps.Resolver.Forward(r.Context(), q)
	if err != nil {
		h.geocodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lat": coord.Lat, "lon": coord.Lon})
}

func (h *Handler) handleGeocodeReverse(w http.ResponseWriter, r *http.Request) {
	coord, ok := parseCoord(w, r, "lat", "lon")
	if !ok {
		return
	}

	address, err := h.deps.Resolver.Reverse(r.Context(), coord)
	if err != nil {
		h.geocodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": address})
}

func (h *Handler) geocodeError(w http.ResponseWriter, err error) {
	switch geocode.KindOf(err) {
	case geocode.KindNotFound:
		httpError(w, http.StatusNotFound, "not_found", "%s", err.Error())
	case geocode.KindRateLimited:
		httpError(w, http.StatusTooManyRequests, "rate_limited", "%s", err.Error())
	case geocode.KindTimeout:
		httpError(w, http.StatusGatewayTimeout, "timeout", "%s", err.Error())
	default:
		httpError(w, http.StatusBadGateway, "upstream_error", "%s", err.Error())
	}
}

func (h *Handler) handleDistance(w http.ResponseWriter, r *http.Request) {
	from, ok := parseCoord(w, r, "lat1", "lon1")
	if !ok {
		return
	}
	to, ok := parseCoord(w, r, "lat2", "lon2")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"distance_km": geo.DistanceKm(from, to)})
}

func parseCoord(w http.ResponseWriter, r *http.Request, latKey, lonKey string) (geo.Coordinate, bool) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get(lonKey), 64)
	if errLat != nil || errLon != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s and %s must be numbers", latKey, lonKey)
		return geo.Coordinate{}, false
	}
	return validCoord(w, lat, lon)
}

func validCoord(w http.ResponseWriter, lat, lon float64) (geo.Coordinate, bool) {
	c := geo.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return geo.Coordinate{}, false
	}
	return c, true
}

// --- resource routes ---

func (h *Handler) handleBookingList(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.deps.Bookings.List(r.Context())
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (h *Handler) handleBookingCreate(w http.ResponseWriter, r *http.Request) {
	var req services.BookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	booking, err := h.deps.Bookings.Create(r.Context(), req)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"booking": booking})
}

func (h *Handler) handlePaymentList(w http.ResponseWriter, r *http.Request) {
	payments, err := h.deps.Payments.List(r.Context())
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) handlePaymentCreate(w http.ResponseWriter, r *http.Request) {
	var req services.PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payment, err := h.deps.Payments.Create(r.Context(), req)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

func (h *Handler) handleIssueList(w http.ResponseWriter, r *http.Request) {
	issues, err := h.deps.Issues.List(r.Context())
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
}

func (h *Handler) handleIssueCreate(w http.ResponseWriter, r *http.Request) {
	var req services.IssueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	issue, err := h.deps.Issues.Create(r.Context(), req)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"issue": issue})
}

func (h *Handler) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	documents, err := h.deps.Documents.List(r.Context())
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
}

func (h *Handler) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Content []byte `json:"content"` // base64 in JSON
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
		return
	}

	doc, err := h.deps.Documents.Upload(r.Context(), req.Name, req.Kind, req.Content)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": doc})
}

// --- profile ---

func (h *Handler) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionTenantID(r)
	if !ok {
		loginRequired(w, r)
		return
	}
	tenant, err := h.deps.Tenants.Get(r.Context(), id)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}

	resp := map[string]any{"tenant": tenant}
	if rec, ok := h.deps.Tenants.Mirrored(id); ok && rec.DistanceKm > 0 {
		resp["distance_to_campus_km"] = rec.DistanceKm
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionTenantID(r)
	if !ok {
		loginRequired(w, r)
		return
	}
	var req services.TenantProfile
	if !decodeBody(w, r, &req) {
		return
	}
	tenant, err := h.deps.Tenants.Update(r.Context(), id, req)
	if err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant": tenant})
}

// --- admin ---

func (h *Handler) handleMockStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"enabled": h.deps.Client.MockMode()})
}

func (h *Handler) handleMockSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.deps.Client.SetMockMode(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Cache.Stats())
}

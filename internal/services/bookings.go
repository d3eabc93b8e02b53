package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
)

// Booking is one room booking belonging to the logged-in tenant.
type Booking struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"room_id"`
	RoomName  string `json:"room_name,omitempty"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Status    string `json:"status"`
}

// BookingRequest is the payload for a new booking.
type BookingRequest struct {
	RoomID    int64  `json:"room_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Bookings wraps the booking endpoints. The list read is cached; a
// successful create invalidates it.
type Bookings struct {
	client *backend.Client
	cache  *cache.Cache
	ttl    time.Duration
	log    *slog.Logger
}

func NewBookings(client *backend.Client, c *cache.Cache, ttl time.Duration, log *slog.Logger) *Bookings {
	if log == nil {
		log = slog.Default()
	}
	return &Bookings{client: client, cache: c, ttl: ttl, log: log}
}

// List returns the tenant's bookings.
func (b *Bookings) List(ctx context.Context) ([]Booking, error) {
	key := cache.Key("bookings", nil)
	payload, err := b.cache.GetOrFetch(ctx, key, b.ttl, func(ctx context.Context) (json.RawMessage, error) {
		env := b.client.Get(ctx, "/bookings", nil)
		if !env.Succeeded {
			return nil, fromEnvelope(env)
		}
		return env.Payload, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bookings []Booking `json:"bookings"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &Error{Kind: backend.KindServiceUnavailable, Message: "booking list could not be parsed"}
	}
	return resp.Bookings, nil
}

// Create submits a new booking and invalidates the cached list.
func (b *Bookings) Create(ctx context.Context, req BookingRequest) (Booking, error) {
	env := b.client.Post(ctx, "/bookings", req)
	if !env.Succeeded {
		return Booking{}, fromEnvelope(env)
	}
	b.cache.InvalidateResource("bookings")

	var resp struct {
		Booking Booking `json:"booking"`
	}
	if err := env.Decode(&resp); err != nil {
		return Booking{}, &Error{Kind: backend.KindServiceUnavailable, Message: "booking response could not be parsed"}
	}
	b.log.Info("booking created", "booking_id", resp.Booking.ID, "room_id", req.RoomID)
	return resp.Booking, nil
}

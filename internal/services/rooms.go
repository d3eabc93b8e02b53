package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
)

// Room is one listed room.
type Room struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Address     string  `json:"address"`
	PriceEuro   float64 `json:"price_euro"`
	SizeSqm     float64 `json:"size_sqm"`
	Available   bool    `json:"available"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
}

// RoomList is a room listing plus a flag marking a degraded read: when the
// housing service is unreachable outside production, Sampled is true and
// Rooms holds placeholder data so the page is never blank.
type RoomList struct {
	Rooms   []Room `json:"rooms"`
	Sampled bool   `json:"sampled,omitempty"`
}

// Rooms wraps the room listing endpoints. Reads go through the cache.
type Rooms struct {
	client     *backend.Client
	cache      *cache.Cache
	ttl        time.Duration
	production bool
	log        *slog.Logger
}

func NewRooms(client *backend.Client, c *cache.Cache, ttl time.Duration, production bool, log *slog.Logger) *Rooms {
	if log == nil {
		log = slog.Default()
	}
	return &Rooms{client: client, cache: c, ttl: ttl, production: production, log: log}
}

// List returns all rooms matching the given filters. On connection failure
// or upstream unavailability, non-production deployments fall back to sample
// data marked as such; production surfaces the error.
func (r *Rooms) List(ctx context.Context, filters map[string]string) (RoomList, error) {
	key := cache.Key("rooms", filters)
	payload, err := r.cache.GetOrFetch(ctx, key, r.ttl, func(ctx context.Context) (json.RawMessage, error) {
		query := url.Values{}
		for k, v := range filters {
			query.Set(k, v)
		}
		env := r.client.Get(ctx, "/rooms", query)
		if !env.Succeeded {
			return nil, fromEnvelope(env)
		}
		return env.Payload, nil
	})
	if err != nil {
		if kind, ok := KindOf(err); ok && !r.production &&
			(kind == backend.KindConnectionError || kind == backend.KindServiceUnavailable) {
			r.log.Warn("room listing unavailable, serving sample data", "error", err)
			return RoomList{Rooms: sampleRooms(), Sampled: true}, nil
		}
		return RoomList{}, err
	}

	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return RoomList{}, &Error{Kind: backend.KindServiceUnavailable, Message: "room listing could not be parsed"}
	}
	for i := range resp.Rooms {
		resp.Rooms[i].Description = stripTags(resp.Rooms[i].Description)
	}
	return RoomList{Rooms: resp.Rooms}, nil
}

// Get returns one room by id.
func (r *Rooms) Get(ctx context.Context, id int64) (Room, error) {
	key := cache.Key("rooms", map[string]string{"id": strconv.FormatInt(id, 10)})
	payload, err := r.cache.GetOrFetch(ctx, key, r.ttl, func(ctx context.Context) (json.RawMessage, error) {
		env := r.client.Get(ctx, "/rooms/"+strconv.FormatInt(id, 10), nil)
		if !env.Succeeded {
			return nil, fromEnvelope(env)
		}
		return env.Payload, nil
	})
	if err != nil {
		return Room{}, err
	}

	var resp struct {
		Room Room `json:"room"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Room{}, &Error{Kind: backend.KindServiceUnavailable, Message: "room detail could not be parsed"}
	}
	resp.Room.Description = stripTags(resp.Room.Description)
	return resp.Room, nil
}

// stripTags flattens a description that landlords sometimes enter as HTML
// into plain text. Non-HTML input passes through unchanged apart from
// whitespace normalization.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}

	var b strings.Builder
	tok := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(tok.Text())
			b.WriteByte(' ')
		}
	}
}

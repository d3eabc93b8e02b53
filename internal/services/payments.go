package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
)

// Payment is one rent or deposit payment.
type Payment struct {
	ID         int64   `json:"id"`
	BookingID  int64   `json:"booking_id,omitempty"`
	AmountEuro float64 `json:"amount_euro"`
	DueDate    string  `json:"due_date,omitempty"`
	PaidAt     string  `json:"paid_at,omitempty"`
	Status     string  `json:"status"`
	Reference  string  `json:"reference,omitempty"`
}

// PaymentRequest is the payload to initiate a payment.
type PaymentRequest struct {
	BookingID  int64   `json:"booking_id"`
	AmountEuro float64 `json:"amount_euro"`
	Reference  string  `json:"reference,omitempty"`
}

// Payments wraps the payment endpoints.
type Payments struct {
	client *backend.Client
	cache  *cache.Cache
	ttl    time.Duration
	log    *slog.Logger
}

func NewPayments(client *backend.Client, c *cache.Cache, ttl time.Duration, log *slog.Logger) *Payments {
	if log == nil {
		log = slog.Default()
	}
	return &Payments{client: client, cache: c, ttl: ttl, log: log}
}

// List returns the tenant's payment history.
func (p *Payments) List(ctx context.Context) ([]Payment, error) {
	key := cache.Key("payments", nil)
	payload, err := p.cache.GetOrFetch(ctx, key, p.ttl, func(ctx context.Context) (json.RawMessage, error) {
		env := p.client.Get(ctx, "/payments", nil)
		if !env.Succeeded {
			return nil, fromEnvelope(env)
		}
		return env.Payload, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Payments []Payment `json:"payments"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &Error{Kind: backend.KindServiceUnavailable, Message: "payment list could not be parsed"}
	}
	return resp.Payments, nil
}

// Create initiates a payment and invalidates the cached list.
func (p *Payments) Create(ctx context.Context, req PaymentRequest) (Payment, error) {
	env := p.client.Post(ctx, "/payments", req)
	if !env.Succeeded {
		return Payment{}, fromEnvelope(env)
	}
	p.cache.InvalidateResource("payments")

	var resp struct {
		Payment Payment `json:"payment"`
	}
	if err := env.Decode(&resp); err != nil {
		return Payment{}, &Error{Kind: backend.KindServiceUnavailable, Message: "payment response could not be parsed"}
	}
	p.log.Info("payment created", "payment_id", resp.Payment.ID, "booking_id", req.BookingID)
	return resp.Payment, nil
}

package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/cache"
)

// Issue is one maintenance report filed by the tenant.
type Issue struct {
	ID          int64  `json:"id"`
	RoomID      int64  `json:"room_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// IssueRequest is the payload to report a maintenance issue.
type IssueRequest struct {
	RoomID      int64  `json:"room_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
}

// Issues wraps the maintenance issue endpoints.
type Issues struct {
	client *backend.Client
	cache  *cache.Cache
	ttl    time.Duration
	log    *slog.Logger
}

func NewIssues(client *backend.Client, c *cache.Cache, ttl time.Duration, log *slog.Logger) *Issues {
	if log == nil {
		log = slog.Default()
	}
	return &Issues{client: client, cache: c, ttl: ttl, log: log}
}

// List returns the tenant's reported issues.
func (i *Issues) List(ctx context.Context) ([]Issue, error) {
	key := cache.Key("issues", nil)
	payload, err := i.cache.GetOrFetch(ctx, key, i.ttl, func(ctx context.Context) (json.RawMessage, error) {
		env := i.client.Get(ctx, "/issues", nil)
		if !env.Succeeded {
			return nil, fromEnvelope(env)
		}
		return env.Payload, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Issues []Issue `json:"issues"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &Error{Kind: backend.KindServiceUnavailable, Message: "issue list could not be parsed"}
	}
	return resp.Issues, nil
}

// Create reports a new issue and invalidates the cached list.
func (i *Issues) Create(ctx context.Context, req IssueRequest) (Issue, error) {
	env := i.client.Post(ctx, "/issues", req)
	if !env.Succeeded {
		return Issue{}, fromEnvelope(env)
	}
	i.cache.InvalidateResource("issues")

	var resp struct {
		Issue Issue `json:"issue"`
	}
	if err := env.Decode(&resp); err != nil {
		return Issue{}, &Error{Kind: backend.KindServiceUnavailable, Message: "issue response could not be parsed"}
	}
	i.log.Info("issue reported", "issue_id", resp.Issue.ID)
	return resp.Issue, nil
}

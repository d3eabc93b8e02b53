package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/mietwerk/portal/internal/backend"
	"github.com/mietwerk/portal/internal/geo"
	"github.com/mietwerk/portal/internal/geocode"
	"github.com/mietwerk/portal/internal/storage"
)

// TenantProfile is the editable part of the tenant record.
type TenantProfile struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Tenants wraps the tenant profile endpoints and keeps the local SQLite
// mirror in sync. The mirror is annotated with the geocoded distance from
// the tenant's address to campus; mirror failures are logged, never fatal,
// since the remote record is authoritative.
type Tenants struct {
	client   *backend.Client
	resolver *geocode.Resolver
	store    *storage.Store
	campus   geo.Coordinate
	log      *slog.Logger
}

func NewTenants(client *backend.Client, resolver *geocode.Resolver, store *storage.Store, campus geo.Coordinate, log *slog.Logger) *Tenants {
	if log == nil {
		log = slog.Default()
	}
	return &Tenants{client: client, resolver: resolver, store: store, campus: campus, log: log}
}

// Get fetches the tenant's profile and refreshes the local mirror.
func (t *Tenants) Get(ctx context.Context, id int64) (Tenant, error) {
	env := t.client.Get(ctx, "/tenants/"+strconv.FormatInt(id, 10), nil)
	if !env.Succeeded {
		return Tenant{}, fromEnvelope(env)
	}
	return t.decodeAndMirror(ctx, env)
}

// Update writes profile changes upstream and refreshes the local mirror
// from the returned record.
func (t *Tenants) Update(ctx context.Context, id int64, profile TenantProfile) (Tenant, error) {
	env := t.client.Put(ctx, "/tenants/"+strconv.FormatInt(id, 10), profile)
	if !env.Succeeded {
		return Tenant{}, fromEnvelope(env)
	}
	return t.decodeAndMirror(ctx, env)
}

func (t *Tenants) decodeAndMirror(ctx context.Context, env backend.Envelope) (Tenant, error) {
	var resp struct {
		Tenant Tenant `json:"tenant"`
	}
	if err := env.Decode(&resp); err != nil {
		return Tenant{}, &Error{Kind: backend.KindServiceUnavailable, Message: "tenant record could not be parsed"}
	}
	t.mirror(ctx, resp.Tenant)
	return resp.Tenant, nil
}

// mirror upserts the tenant into local storage, geocoding the address to
// compute the distance to campus when one is present.
func (t *Tenants) mirror(ctx context.Context, tenant Tenant) {
	if t.store == nil {
		return
	}

	rec := storage.TenantRecord{
		RemoteID: tenant.ID,
		Email:    tenant.Email,
		Name:     tenant.Name,
		Address:  tenant.Address,
		SyncedAt: time.Now().UTC(),
	}

	if tenant.Address != "" && t.resolver != nil {
		coord, err := t.resolver.Forward(ctx, tenant.Address)
		if err != nil {
			t.log.Warn("could not geocode tenant address for mirror",
				"tenant_id", tenant.ID, "kind", geocode.KindOf(err))
		} else {
			rec.Lat = coord.Lat
			rec.Lon = coord.Lon
			rec.DistanceKm = geo.DistanceKm(coord, t.campus)
		}
	}

	if err := t.store.UpsertTenant(rec); err != nil {
		t.log.Warn("writing tenant mirror", "tenant_id", tenant.ID, "error", err)
	}
}

// Mirrored returns the locally mirrored tenant record, if one exists.
func (t *Tenants) Mirrored(remoteID int64) (storage.TenantRecord, bool) {
	if t.store == nil {
		return storage.TenantRecord{}, false
	}
	rec, err := t.store.GetTenant(remoteID)
	if err != nil {
		return storage.TenantRecord{}, false
	}
	return rec, true
}

// PrincipalID extracts the tenant identifier from an opaque principal record.
func PrincipalID(raw json.RawMessage) (int64, bool) {
	var p struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, false
	}
	id, err := p.ID.Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

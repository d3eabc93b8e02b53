package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TenantRecord is the locally persisted mirror of a tenant accepted by the
// housing service. It is a cache of remote truth, not the system of record:
// identity and location fields are copied from the service's response and
// the distance to campus is derived once at write time.
type TenantRecord struct {
	RemoteID   int64
	Email      string
	Name       string
	Address    string
	Lat        float64
	Lon        float64
	DistanceKm float64
	SyncedAt   time.Time
}

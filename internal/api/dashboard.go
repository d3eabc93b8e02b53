package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/mietwerk/portal/internal/services"
)

// dashboard is the portal landing page payload: one round trip instead of
// four. The facade reads run in parallel; the first failure wins.
type dashboard struct {
	Bookings  []services.Booking  `json:"bookings"`
	Payments  []services.Payment  `json:"payments"`
	Issues    []services.Issue    `json:"issues"`
	Documents []services.Document `json:"documents"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var d dashboard

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		d.Bookings, err = h.deps.Bookings.List(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Payments, err = h.deps.Payments.List(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Issues, err = h.deps.Issues.List(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Documents, err = h.deps.Documents.List(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		h.facadeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

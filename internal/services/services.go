// Package services exposes one typed facade per remote resource family.
// Each facade composes the transport client, the read cache and the
// credential manager; callers get typed results or a failure whose message
// is safe to show to a tenant as-is.
package services

import (
	"github.com/mietwerk/portal/internal/backend"
)

// Error is a failed facade call. Message is always non-empty: upstream
// messages propagate verbatim, and transport failures carry the generic
// message the envelope layer filled in.
type Error struct {
	Kind    backend.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the error kind when err is a facade Error.
func KindOf(err error) (backend.ErrorKind, bool) {
	if fe, ok := err.(*Error); ok {
		return fe.Kind, true
	}
	return "", false
}

// fromEnvelope converts a failed envelope into an Error. The envelope layer
// guarantees ErrorMessage is non-empty on failure.
func fromEnvelope(env backend.Envelope) *Error {
	return &Error{Kind: env.ErrorKind, Message: env.ErrorMessage}
}

// Package backend is the single choke point for all calls to the remote
// housing-management service. Every outcome, including transport failures
// and mocked responses, is normalized into an Envelope; raw network errors
// never cross this package's boundary.
package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	// KindConnectionError covers host unreachable, DNS failure, connection
	// refused, and an open circuit breaker.
	KindConnectionError ErrorKind = "connection_error"
	// KindTimeout means the per-call deadline elapsed.
	KindTimeout ErrorKind = "timeout"
	// KindRateLimited is upstream throttling (HTTP 429).
	KindRateLimited ErrorKind = "rate_limited"
	// KindNotFound is a well-formed request with no matching data (HTTP 404).
	KindNotFound ErrorKind = "not_found"
	// KindAuthRejected is HTTP 401.
	KindAuthRejected ErrorKind = "auth_rejected"
	// KindValidationError is any other 4xx carrying a structured message.
	KindValidationError ErrorKind = "validation_error"
	// KindServiceUnavailable is 5xx or any otherwise unclassified non-2xx.
	KindServiceUnavailable ErrorKind = "service_unavailable"
)

// Envelope is the uniform result of one outbound call. Succeeded is true
// exactly when HTTPStatus is in [200, 300); ErrorKind is set exactly when
// Succeeded is false. An Envelope is never mutated after it is returned.
type Envelope struct {
	Succeeded    bool            `json:"succeeded"`
	HTTPStatus   int             `json:"http_status"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Decode unmarshals the envelope's payload into v. Calling Decode on a
// failed envelope is an error.
func (e Envelope) Decode(v any) error {
	if !e.Succeeded {
		return fmt.Errorf("decoding failed call (%s): %s", e.ErrorKind, e.ErrorMessage)
	}
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// successEnvelope builds the envelope for a 2xx response.
func successEnvelope(status int, payload json.RawMessage) Envelope {
	return Envelope{Succeeded: true, HTTPStatus: status, Payload: payload}
}

// failureEnvelope builds the envelope for any failed call. An empty message
// falls back to a generic one so callers always have something to display.
func failureEnvelope(status int, kind ErrorKind, message string) Envelope {
	if message == "" {
		message = genericMessage(status, kind)
	}
	return Envelope{
		Succeeded:    false,
		HTTPStatus:   status,
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}

func genericMessage(status int, kind ErrorKind) string {
	switch kind {
	case KindConnectionError:
		return "could not reach the housing service"
	case KindTimeout:
		return "the housing service did not respond in time"
	default:
		return fmt.Sprintf("request failed with status %d", status)
	}
}

// kindForStatus maps a non-2xx HTTP status to its error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthRejected
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindValidationError
	default:
		return KindServiceUnavailable
	}
}

// statusBlock is the optional status envelope the remote service nests into
// some response bodies.
type statusBlock struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorBody struct {
	Message string       `json:"message"`
	Status  *statusBlock `json:"status"`
}

// extractMessage pulls the upstream error message out of a response body.
// The remote service's error shape differs by endpoint: some put the message
// at the top level, others nest it under status.message. Both are checked,
// in that order. The second return reports whether the body was a JSON
// object that matched neither shape; callers log those so a third shape
// gets noticed instead of silently special-cased.
func extractMessage(body []byte) (msg string, unrecognized bool) {
	if len(body) == 0 {
		return "", false
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", false
	}
	if eb.Message != "" {
		return eb.Message, false
	}
	if eb.Status != nil && eb.Status.Message != "" {
		return eb.Status.Message, false
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err == nil && len(probe) > 0 {
		return "", true
	}
	return "", false
}

package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure from the authoritative service. The
// separation engine branches on it to decide between retry, revert
// and which notification to surface.
type Kind int

const (
	// KindNetwork means the service was unreachable or the transport
	// failed mid-request. Transient, retryable.
	KindNetwork Kind = iota + 1
	// KindNotFound means the order or item does not exist.
	KindNotFound
	// KindUnauthorized means the credentials were rejected. Requires
	// re-login, never retried.
	KindUnauthorized
	// KindForbidden means the caller lacks access to this order.
	KindForbidden
	// KindValidation means the request was rejected by business rules;
	// the server message is surfaced verbatim.
	KindValidation
	// KindServer means the service faulted. Retried only on the item
	// mutation path.
	KindServer
)

// Error is a classified failure from the authoritative service
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("api: request failed (status %d)", e.Status)
}

// Retryable reports whether the failure is worth retrying on the item
// mutation path. Fetches never retry regardless.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// KindOf extracts the failure class from err, defaulting to KindNetwork
// for plain transport errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// IsRetryable reports whether err may succeed on retry
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Plain transport errors are network failures.
	return err != nil
}

func classify(status int, body []byte) *Error {
	e := &Error{Status: status, Message: detailMessage(body)}

	switch {
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = KindValidation
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindValidation
	}
	return e
}

// detailMessage pulls the human-readable detail out of an error body,
// falling back to the raw text.
func detailMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Err     string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Detail != "":
			return payload.Detail
		case payload.Message != "":
			return payload.Message
		case payload.Err != "":
			return payload.Err
		}
	}
	return string(body)
}

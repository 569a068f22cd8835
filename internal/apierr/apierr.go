// Package apierr converts the error taxonomy of SPEC_FULL §7 into the
// Anthropic-shaped error envelope the client expects, modeled on the
// teacher's ErrorResponse/ErrorDetail pair in internal/server/handlers.go.
package apierr

import (
	"fmt"
	"net/http"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// Kind is the error taxonomy from SPEC_FULL §7. It is a classification,
// not a Go error type hierarchy — callers compare with ==.
type Kind int

const (
	ClientInputError Kind = iota
	UpstreamUnavailable
	UpstreamProtocolError
	TimeoutError
	Cancelled
	InternalError
)

// Error is a classified, HTTP-status-bearing error that the edge (C1)
// converts directly into wire.AnthropicError.
type Error struct {
	Kind       Kind
	AnthType   string // Anthropic "type" field, e.g. invalid_request_error
	Message    string
	HTTPStatus int
	Wrapped    error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Envelope renders the error as the Anthropic wire shape.
func (e *Error) Envelope() wire.AnthropicError {
	return wire.AnthropicError{
		Type: "error",
		Error: wire.AnthropicErrorDetail{
			Type:    e.AnthType,
			Message: e.Message,
		},
	}
}

func InvalidRequest(subtype, msg string) *Error {
	t := "invalid_request_error"
	if subtype != "" {
		t = t + "." + subtype
	}
	return &Error{Kind: ClientInputError, AnthType: t, Message: msg, HTTPStatus: http.StatusBadRequest}
}

func UpstreamDown(msg string, err error) *Error {
	return &Error{Kind: UpstreamUnavailable, AnthType: "api_error", Message: msg, HTTPStatus: http.StatusBadGateway, Wrapped: err}
}

func UpstreamProtocol(msg string, err error) *Error {
	return &Error{Kind: UpstreamProtocolError, AnthType: "api_error", Message: msg, HTTPStatus: http.StatusBadGateway, Wrapped: err}
}

func Timeout(msg string) *Error {
	return &Error{Kind: TimeoutError, AnthType: "timeout_error", Message: msg, HTTPStatus: http.StatusGatewayTimeout}
}

func CancelledErr(msg string) *Error {
	return &Error{Kind: Cancelled, AnthType: "cancelled", Message: msg, HTTPStatus: 499}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: InternalError, AnthType: "api_error", Message: msg, HTTPStatus: http.StatusInternalServerError, Wrapped: err}
}

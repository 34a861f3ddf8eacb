package polish

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a stable error code of the form {category}.{error}.
type Kind string

const (
	// Validation: resolved locally, never reaches the network.
	KindTooLong    Kind = "validation.too_long"
	KindEmptyInput Kind = "validation.empty_input"

	// Transport: produced by the request orchestrator.
	KindTimeout             Kind = "transport.timeout"
	KindNetwork             Kind = "transport.network"
	KindRateLimited         Kind = "transport.rate_limited"
	KindUpstreamUnavailable Kind = "transport.upstream_unavailable"
	KindUpstreamError       Kind = "transport.upstream_error"

	// Normalization: the upstream answered but not usefully.
	KindUnrecognizedFormat Kind = "normalization.unrecognized_format"
	KindUpstreamReported   Kind = "normalization.upstream_reported"
	KindEmptyResult        Kind = "normalization.empty_result"

	// Configuration: fatal for the request only.
	KindMissingEndpoint Kind = "configuration.missing_endpoint"

	// Bridge: UI context <-> network context relay.
	KindContextGone    Kind = "bridge.context_gone"
	KindUnknownMessage Kind = "bridge.unknown_message"

	KindUnknown Kind = "error.unknown"
)

// Category returns the part of the code before the dot ("transport", ...).
func (k Kind) Category() string {
	if i := strings.IndexByte(string(k), '.'); i >= 0 {
		return string(k[:i])
	}
	return string(k)
}

// Error is a coded error with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a coded error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a coded error around cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the code from err, or KindUnknown for uncoded errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Kind
	}
	return KindUnknown
}

// MessageOf extracts the human-readable message from err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// ErrorEnvelope turns any error into a type=error envelope.
func ErrorEnvelope(err error) Envelope {
	msg := MessageOf(err)
	if msg == "" {
		msg = "An unexpected error occurred. Please try again."
	}
	return Failure(KindOf(err), msg)
}

package avs

import (
	"context"
	"io"
)

// EventRequest carries one marshalled event to the transport, optionally
// with a streaming audio attachment. The sender owns Attachment once
// SendEvent returns nil and must close it when transmission ends.
type EventRequest struct {
	// Body is the marshalled event envelope (header, payload, context).
	Body []byte

	// AttachmentName names the attachment referenced by the event payload
	// (e.g., "audio"). Empty when Attachment is nil.
	AttachmentName string

	// Attachment streams the binary attachment, or nil when the event has
	// none. For Recognize events this is the live capture audio.
	Attachment io.ReadCloser
}

// EventSender transmits events to the cloud. SendEvent returns once the
// request has been durably handed to the transport; attachment streaming
// continues asynchronously.
type EventSender interface {
	SendEvent(ctx context.Context, req *EventRequest) error
}

// ContextRequester receives the outcome of a context snapshot request.
// Exactly one of the two callbacks fires per GetContext call. Callbacks may
// be invoked from an arbitrary goroutine and must not block.
type ContextRequester interface {
	OnContextAvailable(contextJSON []byte)
	OnContextFailure(err error)
}

// StateRefreshPolicy tells the context manager whether a reported state
// needs refreshing before each snapshot.
type StateRefreshPolicy int

const (
	// RefreshNever marks state that is pushed proactively by its provider.
	RefreshNever StateRefreshPolicy = iota

	// RefreshAlways marks state the context manager must query per snapshot.
	RefreshAlways
)

// ContextManager aggregates component states into context snapshots that
// accompany outbound events.
type ContextManager interface {
	// GetContext requests a snapshot; the result is delivered through r.
	GetContext(r ContextRequester)

	// SetState publishes a component state. token is non-zero when the call
	// answers a provide-state request, zero for proactive updates.
	SetState(key NamespaceAndName, payload []byte, policy StateRefreshPolicy, token uint64) error
}

// ExceptionType classifies a protocol processing failure reported to the
// cloud through the System.ExceptionEncountered event.
type ExceptionType string

const (
	ExceptionUnexpectedInformation ExceptionType = "UNEXPECTED_INFORMATION_RECEIVED"
	ExceptionUnsupportedOperation  ExceptionType = "UNSUPPORTED_OPERATION"
	ExceptionInternalError         ExceptionType = "INTERNAL_ERROR"
)

// ExceptionSender reports directives that could not be processed. The
// collaborator that owns protocol decoding converts these into events.
type ExceptionSender interface {
	SendExceptionEncountered(unparsedDirective string, errType ExceptionType, message string)
}

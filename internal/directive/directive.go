// Package directive implements an in-process directive sequencer: it owns
// the namespace/name → handler registrations, filters directives whose
// dialog request id does not belong to the current turn, drives the
// pre-handle / handle-by-id / cancel-by-id handler lifecycle, and reports
// when all directives of a dialog turn have completed.
//
// Wire transport and JSON framing stay outside; the sequencer consumes
// already-decoded [avs.Directive] values.
package directive

import "github.com/04116/avs-device-sdk/pkg/avs"

// BlockingPolicy declares how a directive type is sequenced relative to
// other directives in the same dialog turn.
type BlockingPolicy int

const (
	// PolicyNonBlocking directives are handled as soon as they arrive.
	PolicyNonBlocking BlockingPolicy = iota

	// PolicyBlocking directives are handled one at a time: a blocking
	// directive is not handled until the previous blocking directive of the
	// same turn has completed.
	PolicyBlocking
)

// String returns the human-readable name of the policy.
func (p BlockingPolicy) String() string {
	switch p {
	case PolicyNonBlocking:
		return "NON_BLOCKING"
	case PolicyBlocking:
		return "BLOCKING"
	default:
		return "UNKNOWN"
	}
}

// Result is the completion handle attached to a directive during
// pre-handling. Exactly one of SetCompleted or SetFailed must eventually be
// called; the sequencer uses it for turn accounting.
type Result interface {
	SetCompleted()
	SetFailed(description string)
}

// Handler processes directives for the namespaces it registered.
//
// Directives arrive through three callbacks: HandleDirectiveImmediately for
// order-independent types, or PreHandleDirective (attach the completion
// handle) followed by HandleDirective (execute using the previously
// attached handle). CancelDirective abandons a pre-handled directive.
// OnDeregistered fires when the handler is removed from the sequencer.
type Handler interface {
	HandleDirectiveImmediately(d *avs.Directive)
	PreHandleDirective(d *avs.Directive, result Result)
	HandleDirective(messageID string) bool
	CancelDirective(messageID string)
	OnDeregistered()
}

// TurnObserver is notified when every directive of a dialog turn has been
// handled or cancelled and the transport has marked the turn's response
// stream as complete.
type TurnObserver interface {
	OnDialogTurnFinished(dialogRequestID string)
}

// Package avs defines the protocol-facing vocabulary shared across the SDK:
// message headers, directives, events, identifier generation, and the
// interfaces of the transport-side collaborators (event sender, context
// manager, exception sender).
//
// Wire framing and HTTP transport live elsewhere; this package only models
// the JSON bodies and the contracts the capability code programs against.
package avs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NamespaceAndName identifies a directive or event type within the protocol.
// It is used as a routing key by the directive sequencer.
type NamespaceAndName struct {
	Namespace string
	Name      string
}

// String returns "Namespace.Name".
func (n NamespaceAndName) String() string {
	return n.Namespace + "." + n.Name
}

// Header is the protocol header carried by every directive and event.
type Header struct {
	Namespace       string `json:"namespace"`
	Name            string `json:"name"`
	MessageID       string `json:"messageId"`
	DialogRequestID string `json:"dialogRequestId,omitempty"`
}

// Directive is a single decoded directive received from the cloud.
type Directive struct {
	Header  Header          `json:"header"`
	Payload json.RawMessage `json:"payload"`

	// Unparsed preserves the raw message for exception reporting.
	Unparsed string `json:"-"`
}

// Key returns the routing key for this directive.
func (d *Directive) Key() NamespaceAndName {
	return NamespaceAndName{Namespace: d.Header.Namespace, Name: d.Header.Name}
}

// ParseDirective decodes a directive from its wire form, keeping the raw
// text for exception reporting.
func ParseDirective(raw []byte) (*Directive, error) {
	var envelope struct {
		Directive Directive `json:"directive"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("avs: decode directive: %w", err)
	}
	if envelope.Directive.Header.Namespace == "" || envelope.Directive.Header.Name == "" {
		return nil, fmt.Errorf("avs: directive missing namespace or name")
	}
	d := envelope.Directive
	d.Unparsed = string(raw)
	return &d, nil
}

// Event is a single protocol event to be sent to the cloud.
type Event struct {
	Header  Header `json:"header"`
	Payload any    `json:"payload"`
}

// NewEvent assembles an event with a fresh message id. dialogRequestID may be
// empty for events outside a dialog turn.
func NewEvent(namespace, name, dialogRequestID string, payload any) Event {
	return Event{
		Header: Header{
			Namespace:       namespace,
			Name:            name,
			MessageID:       NewMessageID(),
			DialogRequestID: dialogRequestID,
		},
		Payload: payload,
	}
}

// Marshal renders the event envelope, embedding the given context snapshot
// verbatim. A nil or empty context yields an empty context array.
func (e Event) Marshal(contextJSON []byte) ([]byte, error) {
	if len(contextJSON) == 0 {
		contextJSON = []byte("[]")
	}
	envelope := struct {
		Context json.RawMessage `json:"context"`
		Event   Event           `json:"event"`
	}{
		Context: contextJSON,
		Event:   e,
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("avs: marshal event %s.%s: %w", e.Header.Namespace, e.Header.Name, err)
	}
	return out, nil
}

// NewDialogRequestID generates a fresh dialog request identifier used to
// correlate an outbound event with the directives it provokes.
func NewDialogRequestID() string {
	return uuid.NewString()
}

// NewMessageID generates a fresh protocol message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

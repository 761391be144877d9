// Package mock provides in-memory mock implementations of the transport
// collaborator interfaces in [avs]: the event sender, context manager, and
// exception sender.
//
// All mocks are safe for concurrent use. They record every call so tests
// can assert on counts and arguments, and expose exported fields that
// control return values and callback behaviour.
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/04116/avs-device-sdk/pkg/avs"
)

// ─── EventSender ──────────────────────────────────────────────────────────────

// SentEvent is one event captured by the [EventSender] mock. The attachment,
// if any, is drained on a background goroutine; use [SentEvent.WaitAttachment]
// to retrieve it once streaming finishes.
type SentEvent struct {
	// Body is the marshalled event envelope.
	Body []byte

	// AttachmentName is the attachment name from the request.
	AttachmentName string

	mu         sync.Mutex
	attachment []byte
	drained    chan struct{}
}

// WaitAttachment blocks until the attachment has been fully drained (the
// producer closed it) or the timeout elapses. The second return value is
// false on timeout.
func (e *SentEvent) WaitAttachment(timeout time.Duration) ([]byte, bool) {
	select {
	case <-e.drained:
	case <-time.After(timeout):
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.attachment...), true
}

// EventSender is a mock implementation of [avs.EventSender].
type EventSender struct {
	mu     sync.Mutex
	events []*SentEvent

	// SendError, when non-nil, is returned by SendEvent and the request is
	// not recorded.
	SendError error
}

// SendEvent implements [avs.EventSender].
func (s *EventSender) SendEvent(_ context.Context, req *avs.EventRequest) error {
	s.mu.Lock()
	if s.SendError != nil {
		err := s.SendError
		s.mu.Unlock()
		return err
	}
	ev := &SentEvent{
		Body:           append([]byte(nil), req.Body...),
		AttachmentName: req.AttachmentName,
		drained:        make(chan struct{}),
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	if req.Attachment == nil {
		close(ev.drained)
		return nil
	}
	go func() {
		data, _ := io.ReadAll(req.Attachment)
		_ = req.Attachment.Close()
		ev.mu.Lock()
		ev.attachment = data
		ev.mu.Unlock()
		close(ev.drained)
	}()
	return nil
}

// Events returns the captured events in send order.
func (s *EventSender) Events() []*SentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*SentEvent(nil), s.events...)
}

// CallCount returns the number of successfully recorded SendEvent calls.
func (s *EventSender) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// ─── ContextManager ───────────────────────────────────────────────────────────

// StateUpdate is one recorded SetState call.
type StateUpdate struct {
	Key     avs.NamespaceAndName
	Payload []byte
	Policy  avs.StateRefreshPolicy
	Token   uint64
}

// ContextManager is a mock implementation of [avs.ContextManager].
//
// By default GetContext responds asynchronously with ContextJSON (or an
// empty snapshot). Set Hold to capture requesters without responding; the
// test then fires them explicitly via [ContextManager.Requesters].
type ContextManager struct {
	mu         sync.Mutex
	requesters []avs.ContextRequester
	states     []StateUpdate

	// ContextJSON is delivered to requesters. Defaults to "[]".
	ContextJSON []byte

	// FailWith, when non-nil, causes OnContextFailure instead.
	FailWith error

	// Hold suppresses automatic responses.
	Hold bool

	// SetStateError is returned by SetState.
	SetStateError error
}

// GetContext implements [avs.ContextManager].
func (m *ContextManager) GetContext(r avs.ContextRequester) {
	m.mu.Lock()
	m.requesters = append(m.requesters, r)
	hold, fail, snapshot := m.Hold, m.FailWith, m.ContextJSON
	m.mu.Unlock()

	if hold {
		return
	}
	if len(snapshot) == 0 {
		snapshot = []byte("[]")
	}
	go func() {
		if fail != nil {
			r.OnContextFailure(fail)
			return
		}
		r.OnContextAvailable(snapshot)
	}()
}

// SetState implements [avs.ContextManager].
func (m *ContextManager) SetState(key avs.NamespaceAndName, payload []byte, policy avs.StateRefreshPolicy, token uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, StateUpdate{
		Key:     key,
		Payload: append([]byte(nil), payload...),
		Policy:  policy,
		Token:   token,
	})
	return m.SetStateError
}

// Requesters returns every requester captured by GetContext.
func (m *ContextManager) Requesters() []avs.ContextRequester {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]avs.ContextRequester(nil), m.requesters...)
}

// States returns every recorded SetState call.
func (m *ContextManager) States() []StateUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StateUpdate(nil), m.states...)
}

// CallCountGetContext returns how many times GetContext was called.
func (m *ContextManager) CallCountGetContext() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requesters)
}

// ─── ExceptionSender ──────────────────────────────────────────────────────────

// Exception is one recorded SendExceptionEncountered call.
type Exception struct {
	Unparsed string
	Type     avs.ExceptionType
	Message  string
}

// ExceptionSender is a mock implementation of [avs.ExceptionSender].
type ExceptionSender struct {
	mu         sync.Mutex
	exceptions []Exception
}

// SendExceptionEncountered implements [avs.ExceptionSender].
func (s *ExceptionSender) SendExceptionEncountered(unparsed string, errType avs.ExceptionType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, Exception{Unparsed: unparsed, Type: errType, Message: message})
}

// Exceptions returns the recorded exceptions in order.
func (s *ExceptionSender) Exceptions() []Exception {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exception(nil), s.exceptions...)
}

// CallCount returns the number of recorded exceptions.
func (s *ExceptionSender) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exceptions)
}

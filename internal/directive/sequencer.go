package directive

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/04116/avs-device-sdk/pkg/avs"
)

// registration pairs a handler with its blocking policy.
type registration struct {
	handler Handler
	policy  BlockingPolicy
}

// pending tracks one directive between pre-handle and completion.
type pending struct {
	directive *avs.Directive
	handler   Handler
	policy    BlockingPolicy
	started   bool
}

// Sequencer routes decoded directives to registered handlers and tracks
// dialog turns. All methods are safe for concurrent use.
type Sequencer struct {
	exceptions avs.ExceptionSender

	mu            sync.Mutex
	handlers      map[avs.NamespaceAndName]registration
	dialogID      string
	pending       map[string]*pending // keyed by message id, current turn only
	order         []string            // message ids in arrival order
	turnEnded     bool
	turnObservers []TurnObserver
}

// NewSequencer creates an empty sequencer. exceptions must not be nil; it
// receives reports for unroutable directives.
func NewSequencer(exceptions avs.ExceptionSender) (*Sequencer, error) {
	if exceptions == nil {
		return nil, fmt.Errorf("directive: exception sender must not be nil")
	}
	return &Sequencer{
		exceptions: exceptions,
		handlers:   make(map[avs.NamespaceAndName]registration),
		pending:    make(map[string]*pending),
	}, nil
}

// AddDirectiveHandler registers h for the given directive type. Registering
// a type twice is an error.
func (s *Sequencer) AddDirectiveHandler(key avs.NamespaceAndName, h Handler, policy BlockingPolicy) error {
	if h == nil {
		return fmt.Errorf("directive: handler for %s must not be nil", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.handlers[key]; dup {
		return fmt.Errorf("directive: handler for %s already registered", key)
	}
	s.handlers[key] = registration{handler: h, policy: policy}
	return nil
}

// RemoveDirectiveHandler deregisters the handler for key, notifying it via
// OnDeregistered. Returns false when no handler was registered.
func (s *Sequencer) RemoveDirectiveHandler(key avs.NamespaceAndName) bool {
	s.mu.Lock()
	reg, ok := s.handlers[key]
	if ok {
		delete(s.handlers, key)
	}
	s.mu.Unlock()

	if ok {
		reg.handler.OnDeregistered()
	}
	return ok
}

// AddTurnObserver registers an observer for dialog-turn completion.
func (s *Sequencer) AddTurnObserver(o TurnObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnObservers = append(s.turnObservers, o)
}

// SetDialogRequestID starts a new dialog turn. Directives still pending
// from the previous turn are cancelled.
func (s *Sequencer) SetDialogRequestID(id string) {
	s.mu.Lock()
	cancelled := make([]*pending, 0, len(s.order))
	for _, msgID := range s.order {
		if p, ok := s.pending[msgID]; ok {
			cancelled = append(cancelled, p)
		}
	}
	s.pending = make(map[string]*pending)
	s.order = nil
	s.dialogID = id
	s.turnEnded = false
	s.mu.Unlock()

	for _, p := range cancelled {
		p.handler.CancelDirective(p.directive.Header.MessageID)
	}
}

// DialogRequestID returns the id of the current dialog turn.
func (s *Sequencer) DialogRequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogID
}

// OnDirective routes one decoded directive.
//
// Directives carrying a dialog request id that does not match the current
// turn are dropped silently. Directives without a registered handler are
// reported through the exception sender.
func (s *Sequencer) OnDirective(d *avs.Directive) error {
	s.mu.Lock()
	if d.Header.DialogRequestID != "" && d.Header.DialogRequestID != s.dialogID {
		s.mu.Unlock()
		slog.Debug("directive: dropping foreign dialog directive",
			"type", d.Key().String(), "dialog_request_id", d.Header.DialogRequestID)
		return nil
	}

	reg, ok := s.handlers[d.Key()]
	if !ok {
		s.mu.Unlock()
		msg := fmt.Sprintf("no handler registered for %s", d.Key())
		s.exceptions.SendExceptionEncountered(d.Unparsed, avs.ExceptionUnexpectedInformation, msg)
		return fmt.Errorf("directive: %s", msg)
	}

	if d.Header.DialogRequestID == "" && reg.policy == PolicyNonBlocking {
		// Order-independent: hand over without turn accounting.
		s.mu.Unlock()
		reg.handler.HandleDirectiveImmediately(d)
		return nil
	}

	p := &pending{directive: d, handler: reg.handler, policy: reg.policy}
	msgID := d.Header.MessageID
	s.pending[msgID] = p
	s.order = append(s.order, msgID)
	s.mu.Unlock()

	reg.handler.PreHandleDirective(d, &result{seq: s, messageID: msgID})

	s.startReady()
	return nil
}

// EndDialogTurn marks the current turn's response stream as complete. Turn
// observers fire once every pending directive has also completed.
func (s *Sequencer) EndDialogTurn(dialogRequestID string) {
	s.mu.Lock()
	if dialogRequestID != s.dialogID {
		s.mu.Unlock()
		return
	}
	s.turnEnded = true
	s.mu.Unlock()

	s.maybeFinishTurn()
}

// startReady hands pending directives to their handlers, honouring blocking
// policies: non-blocking directives start immediately, a blocking directive
// starts only when it is the oldest unfinished blocking directive.
func (s *Sequencer) startReady() {
	var toStart []*pending

	s.mu.Lock()
	blocked := false
	for _, msgID := range s.order {
		p, ok := s.pending[msgID]
		if !ok {
			continue
		}
		switch p.policy {
		case PolicyNonBlocking:
			if !p.started {
				p.started = true
				toStart = append(toStart, p)
			}
		case PolicyBlocking:
			if !blocked && !p.started {
				p.started = true
				toStart = append(toStart, p)
			}
			blocked = true
		}
	}
	s.mu.Unlock()

	for _, p := range toStart {
		if !p.handler.HandleDirective(p.directive.Header.MessageID) {
			slog.Warn("directive: handler rejected directive",
				"type", p.directive.Key().String(), "message_id", p.directive.Header.MessageID)
		}
	}
}

// finish removes a completed or failed directive and advances the queue.
func (s *Sequencer) finish(messageID string) {
	s.mu.Lock()
	if _, ok := s.pending[messageID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, messageID)
	s.mu.Unlock()

	s.startReady()
	s.maybeFinishTurn()
}

// maybeFinishTurn notifies turn observers when the response stream has
// ended and no directives remain pending.
func (s *Sequencer) maybeFinishTurn() {
	s.mu.Lock()
	if !s.turnEnded || len(s.pending) != 0 || s.dialogID == "" {
		s.mu.Unlock()
		return
	}
	s.turnEnded = false
	id := s.dialogID
	observers := append([]TurnObserver(nil), s.turnObservers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.OnDialogTurnFinished(id)
	}
}

// result is the completion handle attached during pre-handling.
type result struct {
	seq       *Sequencer
	messageID string
	once      sync.Once
}

// SetCompleted implements [Result].
func (r *result) SetCompleted() {
	r.once.Do(func() { r.seq.finish(r.messageID) })
}

// SetFailed implements [Result].
func (r *result) SetFailed(description string) {
	r.once.Do(func() {
		slog.Warn("directive: directive failed", "message_id", r.messageID, "reason", description)
		r.seq.finish(r.messageID)
	})
}

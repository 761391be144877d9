package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/04116/avs-device-sdk/pkg/avs"
)

// exceptionPayload is the System.ExceptionEncountered event payload.
type exceptionPayload struct {
	UnparsedDirective string `json:"unparsedDirective"`
	Error             struct {
		Type    avs.ExceptionType `json:"type"`
		Message string            `json:"message"`
	} `json:"error"`
}

// exceptionSender reports directives the sequencer could not process as
// System.ExceptionEncountered events. The sender is bound after construction
// because the transport needs the sequencer as its sink first.
type exceptionSender struct {
	log *slog.Logger

	mu     sync.Mutex
	sender avs.EventSender
}

var _ avs.ExceptionSender = (*exceptionSender)(nil)

func (e *exceptionSender) bind(s avs.EventSender) {
	e.mu.Lock()
	e.sender = s
	e.mu.Unlock()
}

func (e *exceptionSender) SendExceptionEncountered(unparsed string, errType avs.ExceptionType, message string) {
	e.mu.Lock()
	s := e.sender
	e.mu.Unlock()

	e.log.Warn("directive processing exception", "type", errType, "message", message)
	if s == nil {
		return
	}

	var payload exceptionPayload
	payload.UnparsedDirective = unparsed
	payload.Error.Type = errType
	payload.Error.Message = message

	body, err := avs.NewEvent("System", "ExceptionEncountered", "", payload).Marshal(nil)
	if err != nil {
		e.log.Warn("exception event not marshalled", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.SendEvent(ctx, &avs.EventRequest{Body: body}); err != nil {
		e.log.Warn("exception event not sent", "err", err)
	}
}

package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/04116/avs-device-sdk/pkg/audio"
)

// errCaptureAborted is observed by the transport on the attachment when a
// session is torn down before its audio completed.
var errCaptureAborted = errors.New("recognizer: capture aborted")

// pumpChunkBytes is the read granularity of the audio pump: 100 ms of 16-bit
// mono samples at 16 kHz.
const pumpChunkBytes = 3200

// captureSession is the live unit of capture-plus-protocol-turn state. All
// fields except stopTarget are owned by the processor's task goroutine; the
// pump goroutine touches only reader, pipeW, and stopTarget.
type captureSession struct {
	provider  audio.Provider
	initiator Initiator

	// keyword boundaries, rebased to the start of the attachment.
	// InvalidIndex when the trigger carried none.
	keyword      string
	keywordBegin int64
	keywordEnd   int64

	// rawInitiator is the continuation initiator echoed verbatim from an
	// ExpectSpeech directive, nil for locally-triggered sessions.
	rawInitiator json.RawMessage

	dialogID string
	reader   audio.Reader
	pipeR    *io.PipeReader
	pipeW    *io.PipeWriter

	result   chan bool
	resolved bool

	contextRequested bool
	eventSent        bool
	started          time.Time

	// ctx and span trace the session from accepted trigger to retirement.
	// The span ends when the session is aborted or closed.
	ctx  context.Context
	span trace.Span

	// stopTarget is the absolute sample index the pump drains to after a
	// stop, or -1 while capture is live.
	stopTarget atomic.Int64

	pumpDone chan struct{}
}

// pump forwards samples from the session's stream cursor into the attachment
// pipe until capture ends. It runs on its own goroutine; onEnded is invoked
// (with nil for a clean stream end, an error for a read failure) only when
// the stream itself finished — teardown initiated by the processor produces
// no callback.
func (s *captureSession) pump(onEnded func(err error)) {
	defer close(s.pumpDone)

	stride := s.provider.Format.BytesPerSample()
	buf := make([]byte, pumpChunkBytes-pumpChunkBytes%stride)

	for {
		n, err := s.reader.Read(buf)
		if n > 0 {
			if _, werr := s.pipeW.Write(buf[:n]); werr != nil {
				// Attachment torn down underneath us.
				_ = s.reader.Close()
				return
			}
		}

		if target := s.stopTarget.Load(); target >= 0 && s.reader.Position() >= target {
			_ = s.reader.Close()
			_ = s.pipeW.Close()
			return
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Writer closed the stream: capture end.
				_ = s.reader.Close()
				_ = s.pipeW.Close()
				onEnded(nil)
			case errors.Is(err, audio.ErrReaderClosed):
				if s.stopTarget.Load() >= 0 {
					// Stop with nothing left to drain.
					_ = s.pipeW.Close()
				} else {
					s.pipeW.CloseWithError(errCaptureAborted)
				}
			default:
				_ = s.reader.Close()
				s.pipeW.CloseWithError(err)
				onEnded(err)
			}
			return
		}
	}
}

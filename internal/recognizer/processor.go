package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/04116/avs-device-sdk/internal/directive"
	"github.com/04116/avs-device-sdk/internal/executor"
	"github.com/04116/avs-device-sdk/internal/focus"
	"github.com/04116/avs-device-sdk/internal/observe"
	"github.com/04116/avs-device-sdk/pkg/audio"
	"github.com/04116/avs-device-sdk/pkg/avs"
)

// defaultExpectSpeechTimeout bounds EXPECTING_SPEECH when neither the config
// nor the ExpectSpeech payload supplies a timeout.
const defaultExpectSpeechTimeout = 30 * time.Second

// Trigger describes one capture request handed to [Processor.Recognize].
type Trigger struct {
	// Provider supplies the stream to capture from and its policy flags.
	Provider audio.Provider

	// Initiator is the trigger kind.
	Initiator Initiator

	// Keyword is the detected wake word. Required for [InitiatorWakeword].
	Keyword string

	// KeywordBegin and KeywordEnd are the absolute sample indices of the
	// keyword boundaries, or [InvalidIndex] when unknown. Wake-word only.
	KeywordBegin int64
	KeywordEnd   int64
}

// Config assembles a [Processor]'s collaborators.
type Config struct {
	// Focus arbitrates the dialog channel. Required.
	Focus *focus.Manager

	// Channel is the name of the dialog focus channel. Required.
	Channel string

	// Context supplies state snapshots for outbound events. Required.
	Context avs.ContextManager

	// Sender transmits events. Required.
	Sender avs.EventSender

	// Dialog, when set, is told the dialog request id of each new session so
	// stale directives can be filtered. Usually the directive sequencer.
	Dialog DialogIDSetter

	// DefaultProvider is the capture source used for ExpectSpeech
	// continuations when no trigger has supplied one yet. Optional.
	DefaultProvider audio.Provider

	// ExpectSpeechTimeout bounds EXPECTING_SPEECH when the directive payload
	// carries no timeout. Defaults to 30 s.
	ExpectSpeechTimeout time.Duration

	// Wakeword, when non-empty, is published as the RecognizerState context
	// state at construction.
	Wakeword string

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

func (c Config) validate() error {
	var errs []error
	if c.Focus == nil {
		errs = append(errs, errors.New("recognizer: focus manager is required"))
	}
	if c.Channel == "" {
		errs = append(errs, errors.New("recognizer: channel name is required"))
	}
	if c.Context == nil {
		errs = append(errs, errors.New("recognizer: context manager is required"))
	}
	if c.Sender == nil {
		errs = append(errs, errors.New("recognizer: event sender is required"))
	}
	return errors.Join(errs...)
}

// pendingDirective is a pre-handled directive awaiting its handle-by-id call.
type pendingDirective struct {
	d      *avs.Directive
	result directive.Result
}

// Processor is the audio capture state machine. It implements
// [focus.Observer], [directive.Handler], and [directive.TurnObserver]; all
// of those callbacks, like the public trigger methods, run as tasks on one
// ordered queue.
type Processor struct {
	cfg  Config
	log  *slog.Logger
	met  *observe.Metrics
	exec *executor.Executor

	// Actor state. Touched only from exec tasks.
	state         State
	observers     []StateObserver
	session       *captureSession
	lastProvider  audio.Provider
	lastInitiator Initiator
	dialogID      string
	holdsChannel  bool
	focusState    focus.State
	pendingNone   int
	contInitiator json.RawMessage
	timer         *time.Timer
	timerSeq      int

	stateMirror atomic.Int32

	// pending guards the pre-handle/handle-by-id window; the sequencer calls
	// those from its own goroutine.
	pendingMu sync.Mutex
	pending   map[string]pendingDirective
}

// New creates a processor in IDLE. Close must be called on shutdown.
func New(cfg Config) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ExpectSpeechTimeout <= 0 {
		cfg.ExpectSpeechTimeout = defaultExpectSpeechTimeout
	}
	p := &Processor{
		cfg:     cfg,
		log:     cfg.Logger,
		met:     cfg.Metrics,
		exec:    executor.New(),
		pending: make(map[string]pendingDirective),
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.met == nil {
		p.met = observe.DefaultMetrics()
	}
	if cfg.Wakeword != "" {
		p.SetWakeword(cfg.Wakeword)
	}
	return p, nil
}

// State returns the current processor state. The value is a snapshot; use a
// [StateObserver] for transition-accurate tracking.
func (p *Processor) State() State {
	return State(p.stateMirror.Load())
}

// AddObserver registers o for all subsequent state transitions.
func (p *Processor) AddObserver(o StateObserver) {
	if o == nil {
		return
	}
	p.exec.Submit(func() {
		p.observers = append(p.observers, o)
	})
}

// SetWakeword publishes w as the RecognizerState context state.
func (p *Processor) SetWakeword(w string) {
	p.exec.Submit(func() { p.publishWakeword(w) })
}

// RegisterDirectives registers the processor's directive handlers and turn
// observation with seq.
func (p *Processor) RegisterDirectives(seq *directive.Sequencer) error {
	expectSpeech := avs.NamespaceAndName{Namespace: Namespace, Name: nameExpectSpeech}
	if err := seq.AddDirectiveHandler(expectSpeech, p, directive.PolicyBlocking); err != nil {
		return fmt.Errorf("recognizer: register %s: %w", expectSpeech, err)
	}
	stopCapture := avs.NamespaceAndName{Namespace: Namespace, Name: nameStopCapture}
	if err := seq.AddDirectiveHandler(stopCapture, p, directive.PolicyNonBlocking); err != nil {
		return fmt.Errorf("recognizer: register %s: %w", stopCapture, err)
	}
	seq.AddTurnObserver(p)
	return nil
}

// Recognize requests a new capture session. The returned channel resolves
// true once the Recognize event has been handed to the sender, false when
// the trigger is rejected or the session is torn down before the event is
// sent.
func (p *Processor) Recognize(tr Trigger) <-chan bool {
	result := make(chan bool, 1)
	if !p.exec.Submit(func() { p.execRecognize(tr, nil, result) }) {
		result <- false
	}
	return result
}

// StopCapture ends the active capture session. It resolves true only when a
// tap- or hold-initiated session is currently RECOGNIZING; wake-word
// sessions are stopped by the cloud's StopCapture directive.
func (p *Processor) StopCapture() <-chan bool {
	result := make(chan bool, 1)
	if !p.exec.Submit(func() { p.execStopCapture(result) }) {
		result <- false
	}
	return result
}

// ResetState aborts any activity and returns to IDLE: the session (if any)
// is torn down without sending a pending Recognize event, the continuation
// timer is disarmed, and focus is released. Idempotent.
func (p *Processor) ResetState() <-chan struct{} {
	result := make(chan struct{}, 1)
	if !p.exec.Submit(func() { p.execResetState(result) }) {
		result <- struct{}{}
	}
	return result
}

// Close tears down the processor. Pending deferred results resolve false.
func (p *Processor) Close() {
	done := make(chan struct{})
	if p.exec.Submit(func() {
		p.abortSession("shutdown")
		p.cancelTimer()
		p.releaseChannel()
		close(done)
	}) {
		<-done
	}
	p.exec.Close()
}

// ─── focus.Observer ───────────────────────────────────────────────────────────

// OnFocusChanged implements [focus.Observer].
func (p *Processor) OnFocusChanged(state focus.State) {
	p.exec.Submit(func() { p.execFocusChanged(state) })
}

// ─── directive.Handler ────────────────────────────────────────────────────────

// HandleDirectiveImmediately implements [directive.Handler].
func (p *Processor) HandleDirectiveImmediately(d *avs.Directive) {
	if d.Key() == (avs.NamespaceAndName{Namespace: Namespace, Name: nameStopCapture}) {
		p.exec.Submit(func() { p.execStopDirective() })
		return
	}
	p.log.Warn("unexpected immediate directive", "directive", d.Key().String())
}

// PreHandleDirective implements [directive.Handler].
func (p *Processor) PreHandleDirective(d *avs.Directive, result directive.Result) {
	p.pendingMu.Lock()
	p.pending[d.Header.MessageID] = pendingDirective{d: d, result: result}
	p.pendingMu.Unlock()
}

// HandleDirective implements [directive.Handler].
func (p *Processor) HandleDirective(messageID string) bool {
	p.pendingMu.Lock()
	pd, ok := p.pending[messageID]
	delete(p.pending, messageID)
	p.pendingMu.Unlock()
	if !ok {
		return false
	}

	switch pd.d.Header.Name {
	case nameExpectSpeech:
		p.exec.Submit(func() { p.execExpectSpeech(pd.d, pd.result) })
	case nameStopCapture:
		p.exec.Submit(func() { p.execStopDirective() })
		pd.result.SetCompleted()
	default:
		return false
	}
	return true
}

// CancelDirective implements [directive.Handler].
func (p *Processor) CancelDirective(messageID string) {
	p.pendingMu.Lock()
	delete(p.pending, messageID)
	p.pendingMu.Unlock()
}

// OnDeregistered implements [directive.Handler].
func (p *Processor) OnDeregistered() {}

// ─── directive.TurnObserver ───────────────────────────────────────────────────

// OnDialogTurnFinished implements [directive.TurnObserver].
func (p *Processor) OnDialogTurnFinished(dialogRequestID string) {
	p.exec.Submit(func() { p.execTurnFinished(dialogRequestID) })
}

// ─── actor tasks ──────────────────────────────────────────────────────────────

func (p *Processor) execRecognize(tr Trigger, rawInitiator json.RawMessage, result chan bool) {
	bg := context.Background()

	reject := func(reason string) {
		p.log.Warn("recognize rejected",
			"reason", reason, "initiator", string(tr.Initiator), "state", p.state.String())
		p.met.RecordRecognize(bg, string(tr.Initiator), "rejected")
		result <- false
	}

	if !tr.Initiator.IsValid() {
		reject("unknown initiator")
		return
	}
	if !tr.Provider.Valid() {
		reject("provider has no stream")
		return
	}
	if !formatSupported(tr.Provider.Format) {
		reject("unsupported audio format")
		return
	}
	if !tr.Provider.Profile.IsValid() {
		reject("unknown acoustic profile")
		return
	}
	if tr.Initiator == InitiatorWakeword && tr.Keyword == "" {
		reject("wake word trigger without keyword")
		return
	}

	prevState := p.state
	switch prevState {
	case StateBusy:
		reject("barge-in not permitted while busy")
		return
	case StateRecognizing:
		if p.session == nil || !tr.Provider.CanOverride || !p.session.provider.CanBeOverridden {
			reject("override not permitted")
			return
		}
		p.abortSession("superseded by new trigger")
	case StateExpectingSpeech:
		p.cancelTimer()
		p.contInitiator = nil
	}

	// Open the stream cursor. Wake-word triggers with known keyword
	// boundaries start a preroll before the keyword; everything else starts
	// at the live write position.
	var (
		rdr audio.Reader
		err error
	)
	begin, end := InvalidIndex, InvalidIndex
	hasBoundaries := tr.Initiator == InitiatorWakeword &&
		tr.KeywordBegin >= 0 && tr.KeywordEnd >= tr.KeywordBegin
	if hasBoundaries {
		preroll := int64(tr.Provider.Format.SampleRateHz / 2) // 500 ms
		start := tr.KeywordBegin - preroll
		if start < 0 {
			start = 0
		}
		rdr, err = tr.Provider.Stream.OpenReader(start, audio.ReferenceAbsolute)
		begin = tr.KeywordBegin - start
		end = tr.KeywordEnd - start
	} else {
		rdr, err = tr.Provider.Stream.OpenReader(0, audio.ReferenceBeforeWriter)
	}
	if err != nil {
		p.log.Error("recognize: open stream reader", "error", err)
		p.met.RecordRecognize(bg, string(tr.Initiator), "rejected")
		result <- false
		return
	}

	// A continuation keeps the dialog request id of the turn that asked for
	// it; fresh triggers start a new correlation.
	dialogID := p.dialogID
	if prevState != StateExpectingSpeech || dialogID == "" {
		dialogID = avs.NewDialogRequestID()
	}
	p.dialogID = dialogID
	if p.cfg.Dialog != nil {
		p.cfg.Dialog.SetDialogRequestID(dialogID)
	}

	pr, pw := io.Pipe()
	s := &captureSession{
		provider:     tr.Provider,
		initiator:    tr.Initiator,
		keyword:      tr.Keyword,
		keywordBegin: begin,
		keywordEnd:   end,
		rawInitiator: rawInitiator,
		dialogID:     dialogID,
		reader:       rdr,
		pipeR:        pr,
		pipeW:        pw,
		result:       result,
		started:      time.Now(),
		pumpDone:     make(chan struct{}),
	}
	s.stopTarget.Store(-1)
	s.ctx, s.span = observe.StartSpan(bg, "capture.session")
	s.span.SetAttributes(
		observe.Attr("initiator", string(tr.Initiator)),
		observe.Attr("dialogRequestId", dialogID),
	)
	p.session = s
	p.lastProvider = tr.Provider
	p.lastInitiator = tr.Initiator
	p.met.ActiveSessions.Add(s.ctx, 1)
	p.met.RecordRecognize(s.ctx, string(tr.Initiator), "ok")

	go s.pump(func(err error) {
		p.exec.Submit(func() { p.execPumpEnded(s, err) })
	})

	p.setState(StateRecognizing)
	observe.WithTrace(s.ctx, p.log).Info("capture session started",
		"initiator", string(tr.Initiator), "dialogRequestId", dialogID)

	if !p.cfg.Focus.AcquireChannel(p.cfg.Channel, p, dialogID) {
		p.log.Error("recognize: unknown focus channel", "channel", p.cfg.Channel)
		p.abortSession("focus acquisition failed")
		if p.cfg.Dialog != nil {
			p.cfg.Dialog.SetDialogRequestID("")
		}
		p.dialogID = ""
		p.setState(StateIdle)
		return
	}
	p.holdsChannel = true
	p.met.FocusAcquisitions.Add(s.ctx, 1, metric.WithAttributes(observe.Attr("channel", p.cfg.Channel)))
}

func (p *Processor) execStopCapture(result chan bool) {
	s := p.session
	if p.state != StateRecognizing || s == nil ||
		(s.initiator != InitiatorTap && s.initiator != InitiatorPressAndHold) {
		result <- false
		return
	}
	p.stopCapture(s)
	result <- true
}

// execStopDirective is the cloud-driven stop; unlike the public StopCapture
// it applies to any initiator.
func (p *Processor) execStopDirective() {
	if p.state != StateRecognizing || p.session == nil {
		p.log.Debug("stop capture directive ignored", "state", p.state.String())
		return
	}
	p.stopCapture(p.session)
}

// stopCapture ends audio forwarding for s. The pump drains samples already
// written at this instant, then closes the attachment; the processor moves
// to BUSY immediately.
func (p *Processor) stopCapture(s *captureSession) {
	target := s.provider.Stream.WritePosition()
	s.stopTarget.Store(target)
	if s.reader.Position() >= target {
		// Nothing left to drain; unblock a pump waiting for samples.
		_ = s.reader.Close()
	}
	s.span.AddEvent("capture stopped")
	p.met.CaptureDuration.Record(s.ctx, time.Since(s.started).Seconds())
	p.setState(StateBusy)
	observe.WithTrace(s.ctx, p.log).Info("capture stopped",
		"dialogRequestId", s.dialogID, "drainTo", target)
}

func (p *Processor) execResetState(result chan struct{}) {
	p.abortSession("reset")
	p.cancelTimer()
	p.contInitiator = nil
	p.releaseChannel()
	if p.cfg.Dialog != nil {
		p.cfg.Dialog.SetDialogRequestID("")
	}
	p.dialogID = ""
	p.setState(StateIdle)
	result <- struct{}{}
}

func (p *Processor) execFocusChanged(state focus.State) {
	if state == focus.StateNone && p.pendingNone > 0 {
		// Echo of our own release.
		p.pendingNone--
		return
	}
	p.focusState = state
	p.log.Debug("focus changed", "focus", state.String(), "state", p.state.String())

	switch state {
	case focus.StateNone:
		// Preempted or stopped externally.
		p.holdsChannel = false
		if p.state == StateIdle {
			return
		}
		p.abortSession("focus lost")
		p.cancelTimer()
		p.contInitiator = nil
		if p.cfg.Dialog != nil {
			p.cfg.Dialog.SetDialogRequestID("")
		}
		p.dialogID = ""
		p.setState(StateIdle)

	case focus.StateForeground:
		s := p.session
		if s == nil || s.contextRequested || s.eventSent {
			return
		}
		if p.state != StateRecognizing && p.state != StateBusy {
			return
		}
		s.contextRequested = true
		p.cfg.Context.GetContext(&contextRequester{p: p, s: s})

	case focus.StateBackground:
		// Hold the session; the event goes out once foreground is granted.
	}
}

func (p *Processor) execContextAvailable(s *captureSession, contextJSON []byte) {
	if p.session != s || s.eventSent {
		return
	}

	payload := recognizePayload{
		Profile: string(s.provider.Profile),
		Format:  captureFormat,
	}
	if len(s.rawInitiator) > 0 {
		payload.Initiator = s.rawInitiator
	} else {
		init := recognizeInitiator{Type: string(s.initiator)}
		if s.initiator == InitiatorWakeword {
			ip := &initiatorPayload{WakeWord: s.keyword}
			if s.keywordBegin != InvalidIndex {
				ip.WakeWordIndices = &wakeWordIndices{
					StartIndexInSamples: s.keywordBegin,
					EndIndexInSamples:   s.keywordEnd,
				}
			}
			init.Payload = ip
		}
		payload.Initiator = init
	}

	ev := avs.NewEvent(Namespace, nameRecognize, s.dialogID, payload)
	body, err := ev.Marshal(contextJSON)
	if err != nil {
		p.failSession(s, err)
		return
	}
	req := &avs.EventRequest{
		Body:           body,
		AttachmentName: attachmentName,
		Attachment:     s.pipeR,
	}
	if err := p.cfg.Sender.SendEvent(s.ctx, req); err != nil {
		p.failSession(s, fmt.Errorf("recognizer: send recognize event: %w", err))
		return
	}

	s.eventSent = true
	p.resolve(s, true)
	p.met.RecordEventSent(s.ctx, nameRecognize)
	observe.WithTrace(s.ctx, p.log).Info("recognize event sent",
		"dialogRequestId", s.dialogID, "initiator", string(s.initiator))
}

func (p *Processor) execContextFailure(s *captureSession, err error) {
	if p.session != s {
		return
	}
	p.failSession(s, fmt.Errorf("recognizer: context snapshot: %w", err))
}

func (p *Processor) execPumpEnded(s *captureSession, err error) {
	if p.session != s || p.state != StateRecognizing {
		return
	}
	if err != nil {
		p.failSession(s, fmt.Errorf("recognizer: capture stream: %w", err))
		return
	}
	// The writer closed the stream: capture end.
	s.span.AddEvent("capture stopped")
	p.met.CaptureDuration.Record(s.ctx, time.Since(s.started).Seconds())
	p.setState(StateBusy)
	observe.WithTrace(s.ctx, p.log).Info("capture ended at stream close",
		"dialogRequestId", s.dialogID)
}

func (p *Processor) execExpectSpeech(d *avs.Directive, result directive.Result) {
	if p.state != StateIdle && p.state != StateBusy {
		result.SetFailed(fmt.Sprintf("ExpectSpeech not allowed in state %s", p.state))
		return
	}

	var payload expectSpeechPayload
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		result.SetFailed("malformed ExpectSpeech payload: " + err.Error())
		return
	}

	timeout := p.cfg.ExpectSpeechTimeout
	if payload.TimeoutInMilliseconds > 0 {
		timeout = time.Duration(payload.TimeoutInMilliseconds) * time.Millisecond
	}
	if d.Header.DialogRequestID != "" {
		p.dialogID = d.Header.DialogRequestID
	}

	p.closeSession()
	p.contInitiator = payload.Initiator
	p.setState(StateExpectingSpeech)
	p.armTimer(timeout)
	result.SetCompleted()
	p.log.Info("expecting speech", "timeout", timeout, "dialogRequestId", p.dialogID)

	// An always-open microphone continues the dialog without a new local
	// trigger.
	pv := p.lastProvider
	if !pv.Valid() {
		pv = p.cfg.DefaultProvider
	}
	if pv.Valid() && pv.AlwaysReadable {
		init := p.lastInitiator
		if init == "" || init == InitiatorWakeword {
			init = InitiatorTap
		}
		cont := make(chan bool, 1)
		p.execRecognize(Trigger{
			Provider:     pv,
			Initiator:    init,
			KeywordBegin: InvalidIndex,
			KeywordEnd:   InvalidIndex,
		}, p.contInitiator, cont)
	}
}

func (p *Processor) execTimeout(seq int) {
	if seq != p.timerSeq || p.state != StateExpectingSpeech {
		return
	}
	p.timer = nil
	bg := context.Background()

	ev := avs.NewEvent(Namespace, nameExpectSpeechTimedOut, p.dialogID, struct{}{})
	body, err := ev.Marshal(nil)
	if err == nil {
		err = p.cfg.Sender.SendEvent(bg, &avs.EventRequest{Body: body})
	}
	if err != nil {
		p.log.Error("send ExpectSpeechTimedOut", "error", err)
	} else {
		p.met.RecordEventSent(bg, nameExpectSpeechTimedOut)
	}
	p.met.ExpectSpeechTimeouts.Add(bg, 1)

	p.contInitiator = nil
	p.releaseChannel()
	if p.cfg.Dialog != nil {
		p.cfg.Dialog.SetDialogRequestID("")
	}
	p.dialogID = ""
	p.setState(StateIdle)
	p.log.Info("expect speech timed out")
}

func (p *Processor) execTurnFinished(dialogRequestID string) {
	if dialogRequestID != p.dialogID || p.state != StateBusy {
		return
	}
	p.closeSession()
	p.releaseChannel()
	p.dialogID = ""
	p.setState(StateIdle)
	p.log.Info("dialog turn finished", "dialogRequestId", dialogRequestID)
}

// ─── actor helpers ────────────────────────────────────────────────────────────

// setState applies a transition and notifies observers in registration
// order. Runs on the task goroutine, so observers see transitions in the
// exact order they occurred.
func (p *Processor) setState(s State) {
	if p.state == s {
		return
	}
	p.log.Info("state changed", "from", p.state.String(), "to", s.String())
	p.state = s
	p.stateMirror.Store(int32(s))
	for _, o := range p.observers {
		o.OnStateChanged(s)
	}
}

// abortSession tears down the active session without sending a pending
// Recognize event. No-op when no session is active.
func (p *Processor) abortSession(reason string) {
	s := p.session
	if s == nil {
		return
	}
	p.session = nil
	p.resolve(s, false)
	_ = s.reader.Close()
	// Tearing down the read side unblocks a pump stuck writing and tells
	// the sender the attachment is dead.
	s.pipeR.CloseWithError(errCaptureAborted)
	p.met.ActiveSessions.Add(s.ctx, -1)
	s.span.SetStatus(codes.Error, reason)
	s.span.End()
	p.log.Debug("capture session aborted", "reason", reason, "dialogRequestId", s.dialogID)
}

// closeSession retires a session whose capture already ended cleanly.
func (p *Processor) closeSession() {
	s := p.session
	if s == nil {
		return
	}
	p.session = nil
	p.resolve(s, s.eventSent)
	p.met.ActiveSessions.Add(s.ctx, -1)
	s.span.End()
}

// resolve delivers the session's deferred result exactly once.
func (p *Processor) resolve(s *captureSession, ok bool) {
	if s.resolved {
		return
	}
	s.resolved = true
	s.result <- ok
}

// failSession aborts s after an unrecoverable mid-session error and returns
// to IDLE.
func (p *Processor) failSession(s *captureSession, err error) {
	observe.WithTrace(s.ctx, p.log).Error("capture session failed",
		"error", err, "dialogRequestId", s.dialogID)
	s.span.RecordError(err)
	p.abortSession("failure")
	p.releaseChannel()
	if p.cfg.Dialog != nil {
		p.cfg.Dialog.SetDialogRequestID("")
	}
	p.dialogID = ""
	p.setState(StateIdle)
}

// releaseChannel gives up the dialog channel. The voluntary release produces
// exactly one NONE notification, which execFocusChanged swallows.
func (p *Processor) releaseChannel() {
	if !p.holdsChannel {
		return
	}
	p.holdsChannel = false
	if p.cfg.Focus.ReleaseChannel(p.cfg.Channel, p) {
		p.pendingNone++
	}
	p.focusState = focus.StateNone
}

func (p *Processor) armTimer(d time.Duration) {
	p.cancelTimer()
	seq := p.timerSeq
	p.timer = time.AfterFunc(d, func() {
		p.exec.Submit(func() { p.execTimeout(seq) })
	})
}

func (p *Processor) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerSeq++
}

func (p *Processor) publishWakeword(w string) {
	payload, err := json.Marshal(recognizerStatePayload{WakeWord: w})
	if err != nil {
		return
	}
	key := avs.NamespaceAndName{Namespace: Namespace, Name: nameRecognizerState}
	if err := p.cfg.Context.SetState(key, payload, avs.RefreshNever, 0); err != nil {
		p.log.Error("publish recognizer state", "error", err)
	}
}

// formatSupported gates the capture format: LPCM, little-endian, 16-bit,
// 16 kHz, mono.
func formatSupported(f audio.Format) bool {
	return f.Encoding == audio.EncodingLPCM &&
		f.Endianness == audio.EndianLittle &&
		f.SampleSizeBits == 16 &&
		f.SampleRateHz == 16000 &&
		f.Channels == 1
}

// contextRequester routes one session's context snapshot back into the task
// queue; callbacks for a superseded session are discarded there.
type contextRequester struct {
	p *Processor
	s *captureSession
}

func (r *contextRequester) OnContextAvailable(contextJSON []byte) {
	r.p.exec.Submit(func() { r.p.execContextAvailable(r.s, contextJSON) })
}

func (r *contextRequester) OnContextFailure(err error) {
	r.p.exec.Submit(func() { r.p.execContextFailure(r.s, err) })
}

// Package recognizer implements the audio capture state machine: the
// component that turns local triggers (tap, hold, wake word) and cloud
// directives into capture sessions, focus acquisitions, and Recognize events.
//
// The [Processor] is a single-threaded actor: every state-affecting input
// (trigger calls, focus notifications, directive callbacks, timer expiry)
// runs as a task on one ordered queue, so no two transitions race. Audio
// forwarding runs on a per-session pump goroutine that is coordinated back
// into the task queue only at start and stop boundaries.
package recognizer

// State is the processor-wide dialog state. Exactly one state is current at
// any instant; every input has a defined effect in every state.
type State int

const (
	// StateIdle means no capture session and no pending dialog continuation.
	StateIdle State = iota

	// StateExpectingSpeech means the cloud asked for a follow-up utterance
	// and the processor is waiting, time-bounded, for a qualifying trigger.
	StateExpectingSpeech

	// StateRecognizing means a capture session is live and audio is being
	// forwarded to the cloud.
	StateRecognizing

	// StateBusy means capture has ended and the processor is waiting for the
	// cloud's response directives to finish executing.
	StateBusy
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateExpectingSpeech:
		return "EXPECTING_SPEECH"
	case StateRecognizing:
		return "RECOGNIZING"
	case StateBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// Initiator is the trigger kind that began a capture session. It is carried
// verbatim into the outgoing Recognize event payload.
type Initiator string

const (
	// InitiatorTap is a press-and-release trigger; capture ends on cloud
	// StopCapture or an explicit stop.
	InitiatorTap Initiator = "TAP"

	// InitiatorPressAndHold is a hold-to-talk trigger; capture ends when the
	// caller stops it.
	InitiatorPressAndHold Initiator = "PRESS_AND_HOLD"

	// InitiatorWakeword is a wake-word detection; the trigger supplies the
	// keyword and its sample boundaries.
	InitiatorWakeword Initiator = "WAKEWORD"
)

// IsValid reports whether i is a recognised initiator kind.
func (i Initiator) IsValid() bool {
	switch i {
	case InitiatorTap, InitiatorPressAndHold, InitiatorWakeword:
		return true
	}
	return false
}

// InvalidIndex marks an absent keyword sample boundary in a [Trigger].
const InvalidIndex int64 = -1

// StateObserver receives processor state transitions. Each registered
// observer sees every transition exactly once, in transition order; callbacks
// run on the processor's task goroutine and must not block.
type StateObserver interface {
	OnStateChanged(s State)
}

// DialogIDSetter receives the dialog request id of each new capture session
// so inbound directives can be filtered against it. Implemented by the
// directive sequencer.
type DialogIDSetter interface {
	SetDialogRequestID(id string)
}

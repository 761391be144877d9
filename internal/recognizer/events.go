package recognizer

import "encoding/json"

// Namespace is the directive/event namespace owned by the processor.
const Namespace = "SpeechRecognizer"

// Directive and event names within [Namespace].
const (
	nameRecognize            = "Recognize"
	nameExpectSpeech         = "ExpectSpeech"
	nameStopCapture          = "StopCapture"
	nameExpectSpeechTimedOut = "ExpectSpeechTimedOut"
	nameRecognizerState      = "RecognizerState"
)

// captureFormat is the wire name of the only sample format accepted for
// capture: LPCM, 16 kHz, 16-bit, mono.
const captureFormat = "AUDIO_L16_RATE_16000_CHANNELS_1"

// attachmentName is the attachment field name the Recognize payload refers to.
const attachmentName = "audio"

// wakeWordIndices carries the keyword boundaries, in samples, relative to the
// start of the audio attachment.
type wakeWordIndices struct {
	StartIndexInSamples int64 `json:"startIndexInSamples"`
	EndIndexInSamples   int64 `json:"endIndexInSamples"`
}

// initiatorPayload is the type-specific part of a Recognize initiator.
type initiatorPayload struct {
	WakeWordIndices *wakeWordIndices `json:"wakeWordIndices,omitempty"`
	WakeWord        string           `json:"wakeWord,omitempty"`
}

// recognizeInitiator mirrors the initiator object of the Recognize payload.
type recognizeInitiator struct {
	Type    string            `json:"type"`
	Payload *initiatorPayload `json:"payload,omitempty"`
}

// recognizePayload is the Recognize event payload. Initiator is either a
// [recognizeInitiator] or the raw continuation initiator echoed from an
// ExpectSpeech directive.
type recognizePayload struct {
	Profile   string `json:"profile"`
	Format    string `json:"format"`
	Initiator any    `json:"initiator,omitempty"`
}

// expectSpeechPayload is the decoded ExpectSpeech directive payload. The
// initiator, when present, is kept verbatim and echoed into the follow-up
// Recognize event.
type expectSpeechPayload struct {
	TimeoutInMilliseconds int64           `json:"timeoutInMilliseconds"`
	Initiator             json.RawMessage `json:"initiator,omitempty"`
}

// recognizerStatePayload is the context state published under
// SpeechRecognizer.RecognizerState.
type recognizerStatePayload struct {
	WakeWord string `json:"wakeWord"`
}

// Package audio defines the audio capture contract shared by the speech
// recognizer and the application: sample formats, acoustic profiles, the
// [Provider] binding that ties a capture stream to its policy flags, and the
// [Stream]/[Reader] interfaces for the shared sample buffer.
//
// The two primary abstractions are:
//
//   - [Stream] — a single-writer, multi-reader circular sample buffer with
//     monotonically increasing absolute positions.
//   - [Provider] — binds a Stream to a sample format, an acoustic profile,
//     and the override policy flags consulted on every capture trigger.
//
// This package lives under pkg/ because platform adapters (microphone
// drivers, wake-word engines) are expected to write into a [Stream] and hand
// [Provider] values to the recognizer.
package audio

// Encoding identifies the sample encoding of a capture stream.
type Encoding int

const (
	// EncodingLPCM is linear PCM, the only encoding accepted for capture.
	EncodingLPCM Encoding = iota

	// EncodingOpus is Opus-compressed audio. Not accepted for capture;
	// present so platform adapters can describe playback streams uniformly.
	EncodingOpus
)

// String returns the human-readable name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingLPCM:
		return "LPCM"
	case EncodingOpus:
		return "OPUS"
	default:
		return "UNKNOWN"
	}
}

// Endianness identifies the byte order of multi-byte samples.
type Endianness int

const (
	// EndianLittle is little-endian sample byte order.
	EndianLittle Endianness = iota

	// EndianBig is big-endian sample byte order.
	EndianBig
)

// String returns the human-readable name of the endianness.
func (e Endianness) String() string {
	switch e {
	case EndianLittle:
		return "LITTLE"
	case EndianBig:
		return "BIG"
	default:
		return "UNKNOWN"
	}
}

// Format describes the sample format of a capture stream.
type Format struct {
	// SampleRateHz is the sample rate in Hz (e.g., 16000).
	SampleRateHz int

	// SampleSizeBits is the size of a single sample in bits (e.g., 16).
	SampleSizeBits int

	// Channels is the number of interleaved channels (1 = mono).
	Channels int

	// Encoding is the sample encoding.
	Encoding Encoding

	// Endianness is the byte order of multi-byte samples.
	Endianness Endianness
}

// LPCM16kMono is the capture format required by the cloud speech service:
// linear PCM, little-endian, 16-bit samples, 16 kHz, one channel.
var LPCM16kMono = Format{
	SampleRateHz:   16000,
	SampleSizeBits: 16,
	Channels:       1,
	Encoding:       EncodingLPCM,
	Endianness:     EndianLittle,
}

// BytesPerSample returns the size in bytes of one sample across all channels.
func (f Format) BytesPerSample() int {
	return f.SampleSizeBits / 8 * f.Channels
}

// Profile identifies the acoustic profile of a capture source, which tells
// the cloud how far the speaker is expected to be from the microphone.
type Profile string

const (
	// ProfileCloseTalk is for headset-style sources.
	ProfileCloseTalk Profile = "CLOSE_TALK"

	// ProfileNearField is for sources within roughly one metre.
	ProfileNearField Profile = "NEAR_FIELD"

	// ProfileFarField is for room-scale sources.
	ProfileFarField Profile = "FAR_FIELD"
)

// IsValid reports whether p is a recognised acoustic profile.
func (p Profile) IsValid() bool {
	switch p {
	case ProfileCloseTalk, ProfileNearField, ProfileFarField:
		return true
	}
	return false
}

// Provider binds a capture stream to its format, acoustic profile, and the
// policy flags the recognizer consults when arbitrating between competing
// capture triggers.
type Provider struct {
	// Stream is the shared sample buffer this provider captures from.
	Stream Stream

	// Format is the sample format of Stream.
	Format Format

	// Profile is the acoustic profile reported in Recognize events.
	Profile Profile

	// AlwaysReadable indicates the stream can be read at any time without a
	// preceding local trigger (e.g., a microphone that is always open). Only
	// such providers can begin capture from an ExpectSpeech continuation.
	AlwaysReadable bool

	// CanOverride indicates a trigger on this provider may barge in on an
	// active capture session.
	CanOverride bool

	// CanBeOverridden indicates an active capture session on this provider
	// may be barged in on by another provider.
	CanBeOverridden bool
}

// Valid reports whether the provider is usable for capture, i.e. it has a
// stream attached.
func (p Provider) Valid() bool {
	return p.Stream != nil
}

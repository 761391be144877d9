package audio

import "errors"

// Stream contract errors. Implementations must return these sentinel values
// (possibly wrapped) so callers can react with errors.Is.
var (
	// ErrOverrun is returned by [Reader.Read] when the writer has lapped the
	// reader's cursor and the data at the cursor position was overwritten.
	ErrOverrun = errors.New("audio: reader overrun by writer")

	// ErrReaderClosed is returned by [Reader.Read] after [Reader.Close].
	ErrReaderClosed = errors.New("audio: reader closed")

	// ErrStreamClosed is returned by writes to a closed stream and by
	// [Stream.OpenReader] on a closed stream.
	ErrStreamClosed = errors.New("audio: stream closed")

	// ErrInvalidPosition is returned by [Stream.OpenReader] when the
	// requested absolute position is ahead of the writer or has already been
	// overwritten.
	ErrInvalidPosition = errors.New("audio: invalid read position")
)

// Reference selects how the offset passed to [Stream.OpenReader] is
// interpreted.
type Reference int

const (
	// ReferenceBeforeWriter positions the reader offset samples behind the
	// current writer position.
	ReferenceBeforeWriter Reference = iota

	// ReferenceAbsolute positions the reader at the given absolute sample
	// index.
	ReferenceAbsolute
)

// Reader is an independent cursor over a [Stream]. Positions are absolute
// sample indices that increase monotonically for the lifetime of the stream.
//
// Read blocks until at least one sample is available, the stream's writer
// closes (remaining buffered samples are drained, then [io.EOF]), or the
// reader itself is closed. A reader lapped by the writer observes
// [ErrOverrun] exactly once; afterwards the cursor is unusable.
type Reader interface {
	// Read fills p with captured sample bytes and advances the cursor.
	// p should be a multiple of the stream's sample size.
	Read(p []byte) (int, error)

	// Position returns the absolute sample index of the cursor.
	Position() int64

	// Close releases the cursor. Any blocked Read unblocks with
	// [ErrReaderClosed]. Closing an already-closed reader is a no-op.
	Close() error
}

// Stream is the multi-reader view of a shared circular sample buffer. The
// recognizer only ever reads; writing is owned by the platform adapter that
// created the stream.
type Stream interface {
	// OpenReader creates an independent cursor at the position described by
	// offset and ref. Offsets are in samples.
	OpenReader(offset int64, ref Reference) (Reader, error)

	// WritePosition returns the absolute sample index one past the most
	// recently written sample.
	WritePosition() int64
}

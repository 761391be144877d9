// Package sds provides an in-memory implementation of the [audio.Stream]
// contract: a single-writer, multi-reader circular sample buffer with
// absolute positions, independent reader cursors, overrun detection, and a
// choice of blocking or non-blocking write policy.
//
// The wake-word engine writes into a non-blocking buffer continuously so
// that keyword history is available when a detection fires; readers that
// fall too far behind observe [audio.ErrOverrun]. A blocking buffer instead
// throttles the writer to the slowest open reader, which suits push-to-talk
// sources where no sample may be dropped.
package sds

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/04116/avs-device-sdk/pkg/audio"
)

// WritePolicy selects how [Buffer.Write] behaves when the ring is full.
type WritePolicy int

const (
	// WriteNonblocking overwrites the oldest samples. Lapped readers
	// observe [audio.ErrOverrun] on their next read.
	WriteNonblocking WritePolicy = iota

	// WriteBlocking waits until the slowest open reader has consumed enough
	// samples to make room. With no open readers it behaves like
	// WriteNonblocking.
	WriteBlocking
)

// Config describes a new [Buffer].
type Config struct {
	// CapacitySamples is the ring capacity in samples. Must be > 0.
	CapacitySamples int

	// BytesPerSample is the stride of one sample in bytes. Must be > 0.
	BytesPerSample int

	// Policy selects the write policy. Defaults to WriteNonblocking.
	Policy WritePolicy
}

// Buffer is an in-memory shared sample stream. It implements [audio.Stream]
// and [io.WriteCloser]; the writer side belongs to whoever created the
// buffer. All methods are safe for concurrent use.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf     []byte
	cap     int64 // samples
	bps     int64 // bytes per sample
	policy  WritePolicy
	wpos    int64 // absolute samples written
	closed  bool
	readers map[*reader]struct{}
}

// New creates an empty buffer with the given configuration.
func New(cfg Config) (*Buffer, error) {
	if cfg.CapacitySamples <= 0 {
		return nil, fmt.Errorf("sds: capacity must be positive, got %d", cfg.CapacitySamples)
	}
	if cfg.BytesPerSample <= 0 {
		return nil, fmt.Errorf("sds: bytes per sample must be positive, got %d", cfg.BytesPerSample)
	}
	b := &Buffer{
		buf:     make([]byte, cfg.CapacitySamples*cfg.BytesPerSample),
		cap:     int64(cfg.CapacitySamples),
		bps:     int64(cfg.BytesPerSample),
		policy:  cfg.Policy,
		readers: make(map[*reader]struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	return b, nil
}

// Write appends sample bytes to the stream. len(p) must be a multiple of the
// configured sample stride. Returns [audio.ErrStreamClosed] after Close.
func (b *Buffer) Write(p []byte) (int, error) {
	if int64(len(p))%b.bps != 0 {
		return 0, fmt.Errorf("sds: write of %d bytes is not sample-aligned", len(p))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	samples := int64(len(p)) / b.bps
	for samples > 0 {
		if b.closed {
			return written, audio.ErrStreamClosed
		}

		chunk := samples
		if chunk > b.cap {
			chunk = b.cap
		}

		if b.policy == WriteBlocking {
			for !b.closed && b.slowestReader() != -1 && b.wpos+chunk > b.slowestReader()+b.cap {
				b.cond.Wait()
			}
			if b.closed {
				return written, audio.ErrStreamClosed
			}
		}

		b.copyIn(p[:chunk*b.bps])
		p = p[chunk*b.bps:]
		written += int(chunk * b.bps)
		samples -= chunk
		b.cond.Broadcast()
	}
	return written, nil
}

// Close marks the stream as ended. Readers drain remaining samples and then
// observe [io.EOF]. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}

// WritePosition implements [audio.Stream].
func (b *Buffer) WritePosition() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wpos
}

// OpenReader implements [audio.Stream].
func (b *Buffer) OpenReader(offset int64, ref audio.Reference) (audio.Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, audio.ErrStreamClosed
	}

	var pos int64
	switch ref {
	case audio.ReferenceBeforeWriter:
		pos = b.wpos - offset
		if pos < 0 {
			pos = 0
		}
	case audio.ReferenceAbsolute:
		pos = offset
	default:
		return nil, fmt.Errorf("sds: unknown reference %d", ref)
	}

	if pos > b.wpos || pos < b.oldest() {
		return nil, fmt.Errorf("sds: open reader at %d (writer at %d): %w", pos, b.wpos, audio.ErrInvalidPosition)
	}

	r := &reader{b: b, pos: pos}
	b.readers[r] = struct{}{}
	return r, nil
}

// copyIn copies sample-aligned bytes into the ring at the writer position.
// Caller holds b.mu and guarantees len(p) <= capacity in samples.
func (b *Buffer) copyIn(p []byte) {
	start := (b.wpos % b.cap) * b.bps
	n := copy(b.buf[start:], p)
	copy(b.buf, p[n:])
	b.wpos += int64(len(p)) / b.bps
}

// oldest returns the smallest absolute position still held in the ring.
// Caller holds b.mu.
func (b *Buffer) oldest() int64 {
	if b.wpos <= b.cap {
		return 0
	}
	return b.wpos - b.cap
}

// slowestReader returns the smallest open reader position, or -1 when no
// readers are open. Caller holds b.mu.
func (b *Buffer) slowestReader() int64 {
	min := int64(-1)
	for r := range b.readers {
		if min == -1 || r.pos < min {
			min = r.pos
		}
	}
	return min
}

// reader is an independent cursor over a [Buffer].
type reader struct {
	b      *Buffer
	pos    int64
	closed bool
}

// Read implements [audio.Reader].
func (r *reader) Read(p []byte) (int, error) {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if r.closed {
			return 0, audio.ErrReaderClosed
		}
		if r.pos < b.oldest() {
			// The writer lapped this cursor. Resync so a caller that
			// tolerates loss can continue from the oldest valid sample.
			r.pos = b.oldest()
			return 0, audio.ErrOverrun
		}
		if r.pos < b.wpos {
			break
		}
		if b.closed {
			return 0, io.EOF
		}
		b.cond.Wait()
	}

	want := int64(len(p)) / b.bps
	avail := b.wpos - r.pos
	if want > avail {
		want = avail
	}
	if want == 0 {
		return 0, errors.New("sds: read buffer smaller than one sample")
	}

	start := (r.pos % b.cap) * b.bps
	n := copy(p[:want*b.bps], b.buf[start:])
	copy(p[n:want*b.bps], b.buf)
	r.pos += want
	b.cond.Broadcast()
	return int(want * b.bps), nil
}

// Position implements [audio.Reader].
func (r *reader) Position() int64 {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	return r.pos
}

// Close implements [audio.Reader].
func (r *reader) Close() error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	delete(r.b.readers, r)
	r.b.cond.Broadcast()
	return nil
}

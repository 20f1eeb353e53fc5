// Package buffer holds input that has been supplied to a parser but not yet
// consumed into tokens.
package buffer

import (
	"fmt"

	"github.com/dhamidi/streamparse/failure"
)

// Buffer is an append-only window over a byte stream. Bytes before the
// consumption cursor are discarded by Compact; offsets are always absolute
// stream offsets.
//
// Slices returned by Bytes alias the buffer and stay valid until the next
// call to Append, Compact, Reset or Release.
type Buffer struct {
	data    []byte
	base    uint64 // stream offset of data[0]
	pos     int    // consumption cursor within data
	maxSize int
	peak    int
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithMaxSize limits the span a single token, or the undecided input at
// the cursor, may occupy. Zero means no limit.
func WithMaxSize(n int) Option {
	return func(b *Buffer) {
		b.maxSize = n
	}
}

// WithCapacity preallocates n bytes.
func WithCapacity(n int) Option {
	return func(b *Buffer) {
		b.data = make([]byte, 0, n)
	}
}

func New(opts ...Option) *Buffer {
	b := &Buffer{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append adds p after the bytes already held.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	if b.pos > 0 && len(b.data)+len(p) > cap(b.data) {
		b.Compact()
	}
	b.data = append(b.data, p...)
	if len(b.data) > b.peak {
		b.peak = len(b.data)
	}
}

// Hold fails with a resource error when n bytes starting at the cursor
// exceed the configured maximum. Callers check each token and the input
// held back while a token is still undecided.
func (b *Buffer) Hold(n int) error {
	if b.maxSize > 0 && n > b.maxSize {
		return failure.New(failure.KindResource, b.Offset(),
			"buffer limit of %d bytes exceeded by %d bytes of one token", b.maxSize, n)
	}
	return nil
}

// Bytes returns the unconsumed bytes.
func (b *Buffer) Bytes() []byte {
	return b.data[b.pos:]
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.pos
}

// Offset returns the stream offset of the first unconsumed byte.
func (b *Buffer) Offset() uint64 {
	return b.base + uint64(b.pos)
}

// End returns the stream offset just past the last byte held.
func (b *Buffer) End() uint64 {
	return b.base + uint64(len(b.data))
}

// MarkConsumed moves the consumption cursor to stream offset off, which must
// lie between Offset and End.
func (b *Buffer) MarkConsumed(off uint64) error {
	if off < b.Offset() || off > b.End() {
		return failure.New(failure.KindInvalidArgument, off,
			"consume offset outside buffered range [%d, %d]", b.Offset(), b.End())
	}
	b.pos = int(off - b.base)
	return nil
}

// Compact drops consumed bytes. Slices previously returned by Bytes become
// invalid.
func (b *Buffer) Compact() {
	if b.pos == 0 {
		return
	}
	n := copy(b.data, b.data[b.pos:])
	b.data = b.data[:n]
	b.base += uint64(b.pos)
	b.pos = 0
}

// Peak returns the largest number of bytes held at once.
func (b *Buffer) Peak() int {
	return b.peak
}

// Cap returns the allocated capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Reset empties the buffer and rewinds the stream offset to zero, keeping
// the allocation.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.base = 0
	b.pos = 0
	b.peak = 0
}

// Release empties the buffer and frees its memory.
func (b *Buffer) Release() {
	b.Reset()
	b.data = nil
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer[%d:%d] %d pending", b.Offset(), b.End(), b.Len())
}

// Package bytesio defines the byte-source/byte-sink capability the core
// cache consumes instead of typed keys and values. The core never sees
// a key or value type, only these two interfaces, so any caller, typed
// or not, can drive it.
package bytesio

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// BytesSource is a read-only, randomly addressable byte range with a
// stable hash usable as a cache partition/lookup hash.
type BytesSource interface {
	Size() int64
	Get(offset, length int64) []byte
	HashCode() uint32
}

// BytesSink accepts a value's bytes, written in one or more calls that
// must together cover the full length the producer advertises.
type BytesSink interface {
	PutBytes(offset int64, b []byte) error
}

// ByteSlice adapts a plain []byte to BytesSource. HashCode folds
// xxhash's 64-bit sum to 32 bits; partition selection masks the low
// bits, so the fold keeps the high half's entropy in play.
type ByteSlice []byte

func (s ByteSlice) Size() int64 { return int64(len(s)) }

func (s ByteSlice) Get(offset, length int64) []byte {
	return s[offset : offset+length]
}

func (s ByteSlice) HashCode() uint32 {
	sum := xxhash.Sum64(s)
	return uint32(sum) ^ uint32(sum>>32)
}

// BufferSink collects writes into a pre-sized []byte at arbitrary
// offsets, for callers that know the value length up front (e.g. to
// preallocate the destination for an old-value capture on replace).
type BufferSink struct {
	Buf []byte
}

// NewBufferSink allocates a sink of the given size.
func NewBufferSink(size int64) *BufferSink {
	return &BufferSink{Buf: make([]byte, size)}
}

func (s *BufferSink) PutBytes(offset int64, b []byte) error {
	if offset < 0 || offset+int64(len(b)) > int64(len(s.Buf)) {
		return fmt.Errorf("bytesio: write [%d,%d) out of bounds for sink of size %d", offset, offset+int64(len(b)), len(s.Buf))
	}
	copy(s.Buf[offset:], b)
	return nil
}

// WriterSink adapts an io.Writer to BytesSink for callers that don't
// know the value length up front (e.g. streaming straight into an HTTP
// response body). Writes must arrive in increasing, contiguous offset
// order, which is how the core always drives a sink.
type WriterSink struct {
	W   io.Writer
	off int64
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{W: w}
}

func (s *WriterSink) PutBytes(offset int64, b []byte) error {
	if offset != s.off {
		return fmt.Errorf("bytesio: out-of-order write at %d, expected %d", offset, s.off)
	}
	n, err := s.W.Write(b)
	s.off += int64(n)
	return err
}

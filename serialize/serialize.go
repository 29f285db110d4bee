// Package serialize supplies the Serializer capability the typed
// façade layers over the untyped core. The core never imports this
// package; it knows only bytesio.BytesSource/BytesSink.
package serialize

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Serializer converts values of T to and from byte streams.
type Serializer[T any] interface {
	// SerializedSize reports the exact encoded length of v, computed
	// before any bytes are written so the caller can preallocate.
	SerializedSize(v T) int64
	// Serialize writes v's encoding to w.
	Serialize(v T, w io.Writer) error
	// Deserialize reads exactly size bytes from r and decodes them.
	Deserialize(r io.Reader, size int64) (T, error)
}

// StringSerializer is the identity serializer for strings.
type StringSerializer struct{}

func (StringSerializer) SerializedSize(v string) int64 { return int64(len(v)) }

func (StringSerializer) Serialize(v string, w io.Writer) error {
	_, err := io.WriteString(w, v)
	return err
}

func (StringSerializer) Deserialize(r io.Reader, size int64) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// BytesSerializer is the identity serializer for []byte.
type BytesSerializer struct{}

func (BytesSerializer) SerializedSize(v []byte) int64 { return int64(len(v)) }

func (BytesSerializer) Serialize(v []byte, w io.Writer) error {
	_, err := w.Write(v)
	return err
}

func (BytesSerializer) Deserialize(r io.Reader, size int64) ([]byte, error) {
	buf := make([]byte, size)
	_, err := io.ReadFull(r, buf)
	return buf, err
}

// CompressedSerializer decorates an inner Serializer with zstd
// compression. SerializedSize and Serialize each perform a full
// compress pass rather than sharing a cached result: T is an arbitrary
// caller type with no hook for attaching per-call state, and a shared
// mutable cache keyed by value would need its own synchronization.
type CompressedSerializer[T any] struct {
	Inner Serializer[T]
	Level zstd.EncoderLevel
}

// NewCompressedSerializer wraps inner with default-speed zstd.
func NewCompressedSerializer[T any](inner Serializer[T]) *CompressedSerializer[T] {
	return &CompressedSerializer[T]{Inner: inner, Level: zstd.SpeedDefault}
}

func (c *CompressedSerializer[T]) compress(v T) ([]byte, error) {
	var raw bytes.Buffer
	if err := c.Inner.Serialize(v, &raw); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.Level))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw.Bytes(), nil), nil
}

func (c *CompressedSerializer[T]) SerializedSize(v T) int64 {
	compressed, err := c.compress(v)
	if err != nil {
		return 0
	}
	return int64(len(compressed))
}

func (c *CompressedSerializer[T]) Serialize(v T, w io.Writer) error {
	compressed, err := c.compress(v)
	if err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

func (c *CompressedSerializer[T]) Deserialize(r io.Reader, size int64) (T, error) {
	var zero T
	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return zero, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return zero, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return zero, err
	}
	return c.Inner.Deserialize(bytes.NewReader(raw), int64(len(raw)))
}

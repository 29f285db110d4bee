package serialize

import (
	"bytes"
	"strings"
	"testing"
)

func TestStringSerializerRoundTrip(t *testing.T) {
	s := StringSerializer{}
	val := "hello off-heap world"

	if got := s.SerializedSize(val); got != int64(len(val)) {
		t.Errorf("SerializedSize = %d, want %d", got, len(val))
	}

	var buf bytes.Buffer
	if err := s.Serialize(val, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	back, err := s.Deserialize(&buf, int64(buf.Len()))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if back != val {
		t.Errorf("round trip = %q, want %q", back, val)
	}
}

func TestBytesSerializerRoundTrip(t *testing.T) {
	s := BytesSerializer{}
	val := []byte{0, 1, 2, 254, 255}

	var buf bytes.Buffer
	if err := s.Serialize(val, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	back, err := s.Deserialize(&buf, int64(buf.Len()))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !bytes.Equal(back, val) {
		t.Errorf("round trip = %v, want %v", back, val)
	}
}

func TestCompressedSerializerRoundTrip(t *testing.T) {
	c := NewCompressedSerializer[string](StringSerializer{})
	val := strings.Repeat("compressible-payload-", 200)

	size := c.SerializedSize(val)
	if size <= 0 {
		t.Fatalf("SerializedSize = %d, want > 0", size)
	}
	if size >= int64(len(val)) {
		t.Errorf("compressed size %d not smaller than raw %d for a repetitive payload", size, len(val))
	}

	var buf bytes.Buffer
	if err := c.Serialize(val, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if int64(buf.Len()) != size {
		t.Errorf("Serialize wrote %d bytes, SerializedSize reported %d", buf.Len(), size)
	}

	back, err := c.Deserialize(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if back != val {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(back), len(val))
	}
}

func TestCompressedSerializerRejectsGarbage(t *testing.T) {
	c := NewCompressedSerializer[string](StringSerializer{})
	garbage := []byte("this is not a zstd frame")

	if _, err := c.Deserialize(bytes.NewReader(garbage), int64(len(garbage))); err == nil {
		t.Fatalf("expected an error deserializing non-zstd bytes")
	}
}

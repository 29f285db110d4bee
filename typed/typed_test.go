package typed

import (
	"strings"
	"testing"

	"github.com/offheap/ohc"
	"github.com/offheap/ohc/serialize"
)

func newTypedCache(t *testing.T) *Cache[string, string] {
	t.Helper()
	core, err := ohc.NewBuilder().
		WithBlockSize(512).
		WithCapacity(8 * 1024 * 1024).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { core.Close() })
	return New[string, string](core, serialize.StringSerializer{}, serialize.StringSerializer{})
}

func TestTypedPutGetRoundTrip(t *testing.T) {
	c := newTypedCache(t)

	if err := c.Put("greeting", "hello"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := c.Get("greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || got != "hello" {
		t.Errorf("Get = (%q, %v), want (%q, true)", got, found, "hello")
	}
}

func TestTypedGetMiss(t *testing.T) {
	c := newTypedCache(t)

	_, found, err := c.Get("never-stored")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Errorf("Get on absent key reported found")
	}
}

func TestTypedReplaceAndRemove(t *testing.T) {
	c := newTypedCache(t)

	if err := c.Put("k", "v1"); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := c.Put("k", "v2"); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, found, err := c.Get("k")
	if err != nil || !found || got != "v2" {
		t.Fatalf("Get after replace = (%q, %v, %v), want (%q, true, nil)", got, found, err, "v2")
	}
	if c.Size() != 1 {
		t.Errorf("Size after replace = %d, want 1", c.Size())
	}

	removed, err := c.Remove("k")
	if err != nil || !removed {
		t.Fatalf("Remove = (%v, %v), want (true, nil)", removed, err)
	}
	if _, found, _ := c.Get("k"); found {
		t.Errorf("Get after remove reported found")
	}
}

func TestTypedWithCompressedValues(t *testing.T) {
	core, err := ohc.NewBuilder().
		WithBlockSize(512).
		WithCapacity(8 * 1024 * 1024).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer core.Close()

	c := New[string, string](core,
		serialize.StringSerializer{},
		serialize.NewCompressedSerializer[string](serialize.StringSerializer{}))

	val := strings.Repeat("a-long-compressible-value-", 500)
	if err := c.Put("big", val); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := c.Get("big")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || got != val {
		t.Errorf("compressed round trip mismatch: found=%v len=%d want len=%d", found, len(got), len(val))
	}

	// The off-heap footprint reflects the compressed encoding, not the
	// raw value length.
	if used := core.MemUsed(); used >= uint64(len(val)) {
		t.Errorf("mem_used = %d, want less than raw value length %d", used, len(val))
	}
}

// Package typed layers a generic key/value façade over the untyped
// core: the core only ever sees bytesio.BytesSource/BytesSink, computed
// here from a pair of serialize.Serializer values.
package typed

import (
	"bytes"
	"io"

	"github.com/offheap/ohc"
	"github.com/offheap/ohc/bytesio"
	"github.com/offheap/ohc/serialize"
)

// Cache is a typed view over an *ohc.OHCache.
type Cache[K any, V any] struct {
	core  *ohc.OHCache
	keys  serialize.Serializer[K]
	vals  serialize.Serializer[V]
}

// New builds a typed Cache over an already-constructed core cache.
func New[K any, V any](core *ohc.OHCache, keys serialize.Serializer[K], vals serialize.Serializer[V]) *Cache[K, V] {
	return &Cache[K, V]{core: core, keys: keys, vals: vals}
}

func (c *Cache[K, V]) keyBytes(key K) (bytesio.ByteSlice, error) {
	var buf bytes.Buffer
	if err := c.keys.Serialize(key, &buf); err != nil {
		return nil, err
	}
	return bytesio.ByteSlice(buf.Bytes()), nil
}

// Put serializes key and value and stores them, streaming the value
// encoding directly into the off-heap chain via OHCache.PutDeferred.
// If the pool cannot hold the entry, the put is silently dropped.
func (c *Cache[K, V]) Put(key K, value V) error {
	kb, err := c.keyBytes(key)
	if err != nil {
		return err
	}
	hash := kb.HashCode()
	valLen := c.vals.SerializedSize(value)

	_, err = c.core.PutDeferred(hash, kb, valLen, func(w io.Writer) error {
		return c.vals.Serialize(value, w)
	}, nil)
	return err
}

// Get looks up key, deserializing the stored value on a hit.
func (c *Cache[K, V]) Get(key K) (V, bool, error) {
	var zero V
	kb, err := c.keyBytes(key)
	if err != nil {
		return zero, false, err
	}
	hash := kb.HashCode()

	var buf bytes.Buffer
	found, err := c.core.Get(hash, kb, bytesio.NewWriterSink(&buf))
	if err != nil || !found {
		return zero, found, err
	}
	v, err := c.vals.Deserialize(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	return v, true, err
}

// Remove deletes key if present.
func (c *Cache[K, V]) Remove(key K) (bool, error) {
	kb, err := c.keyBytes(key)
	if err != nil {
		return false, err
	}
	return c.core.Remove(kb.HashCode(), kb)
}

// Size, Capacity, MemUsed, and Close delegate directly to the core
// cache; they carry no type-dependent behavior.
func (c *Cache[K, V]) Size() uint64      { return c.core.Size() }
func (c *Cache[K, V]) Capacity() uint64  { return c.core.Capacity() }
func (c *Cache[K, V]) MemUsed() uint64   { return c.core.MemUsed() }
func (c *Cache[K, V]) Close() error      { return c.core.Close() }

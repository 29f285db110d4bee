package ohc

import "sync/atomic"

// Stats is a point-in-time snapshot of the cache's atomic counters.
type Stats struct {
	Hit             uint64
	Miss            uint64
	LoadSuccess     uint64
	LoadException   uint64
	TotalLoadTimeMs uint64
	Eviction        uint64
}

// ExtendedStats adds diagnostic fields only obtainable by walking the
// live structure.
type ExtendedStats struct {
	Stats
	FreeBlockBuckets []int
	LRUListLengths   []int
	Size             uint64
	BlockSize        uint32
	Capacity         uint64
}

// counters holds the raw atomics; writes are elided entirely when
// statistics are disabled.
type counters struct {
	enabled bool

	hit             atomic.Uint64
	miss            atomic.Uint64
	loadSuccess     atomic.Uint64
	loadException   atomic.Uint64
	totalLoadTimeMs atomic.Uint64
	eviction        atomic.Uint64
}

func (c *counters) recordHit() {
	if c.enabled {
		c.hit.Add(1)
	}
}

func (c *counters) recordMiss() {
	if c.enabled {
		c.miss.Add(1)
	}
}

func (c *counters) recordLoadSuccess(elapsedMs uint64) {
	if c.enabled {
		c.loadSuccess.Add(1)
		c.totalLoadTimeMs.Add(elapsedMs)
	}
}

func (c *counters) recordLoadException() {
	if c.enabled {
		c.loadException.Add(1)
	}
}

func (c *counters) recordEviction(n uint64) {
	if c.enabled {
		c.eviction.Add(n)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hit:             c.hit.Load(),
		Miss:            c.miss.Load(),
		LoadSuccess:     c.loadSuccess.Load(),
		LoadException:   c.loadException.Load(),
		TotalLoadTimeMs: c.totalLoadTimeMs.Load(),
		Eviction:        c.eviction.Load(),
	}
}

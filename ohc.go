// Package ohc implements an off-heap, block-allocated key/value cache
// with bounded capacity and approximate per-partition LRU eviction. The
// core deals only in hashes and byte streams (bytesio.BytesSource /
// BytesSink); typed access is layered on top by the typed package.
package ohc

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/offheap/ohc/bytesio"
	"github.com/offheap/ohc/internal/alloc"
	"github.com/offheap/ohc/internal/entry"
	"github.com/offheap/ohc/internal/part"
	"github.com/offheap/ohc/internal/region"
	"github.com/offheap/ohc/internal/scheduler"
)

// OHCache is the public, untyped cache engine. It owns a single backing
// region shared by the partition table and the block pool. Construct
// one via NewBuilder().Build().
type OHCache struct {
	region     *region.Region
	table      *part.Table
	freeBlocks *alloc.FreeBlocks
	entries    *entry.Access
	cfg        Config

	counters counters

	closed         atomic.Bool
	inflight       atomic.Int64
	cleanupRunning atomic.Bool
}

func newOHCache(cfg Config) (*OHCache, error) {
	tableBytes := part.SizeForEntries(cfg.HashTableSize)
	total := tableBytes + cfg.Capacity

	r := region.New(total)
	table := part.New(r, 0, cfg.HashTableSize)
	fb := alloc.New(r, tableBytes, cfg.Capacity, cfg.BlockSize)
	ea := entry.New(r, cfg.BlockSize, cfg.LRUListWarnTrigger)

	c := &OHCache{
		region:     r,
		table:      table,
		freeBlocks: fb,
		entries:    ea,
		cfg:        cfg,
	}
	c.counters.enabled = cfg.StatisticsEnabled
	return c, nil
}

// enter marks one in-flight public operation, failing fast if the
// cache is already closed. Close waits for inflight to drain before
// returning, so callers that raced Close to acquire an entry lock are
// guaranteed to finish before the cache is discarded (the region itself
// is only released to the garbage collector once the OHCache value
// becomes unreachable, so freed blocks are never handed back to the OS
// while a straggling reader holds them).
func (c *OHCache) enter() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.inflight.Add(1)
	if c.closed.Load() {
		c.inflight.Add(-1)
		return ErrClosed
	}
	return nil
}

func (c *OHCache) leave() {
	c.inflight.Add(-1)
}

// Put inserts or replaces the value for hash/key. If an entry already
// existed and old is non-nil, the previous value is streamed into old
// before its chain is freed.
func (c *OHCache) Put(hash uint32, key, value bytesio.BytesSource, old bytesio.BytesSink) (PutResult, error) {
	if err := c.enter(); err != nil {
		return NoMoreSpace, err
	}
	defer c.leave()
	if key == nil || key.Size() < 1 {
		return NoMoreSpace, fmt.Errorf("%w: key must be non-empty", ErrInvalidArgument)
	}
	if value == nil {
		return NoMoreSpace, fmt.Errorf("%w: value must not be nil", ErrInvalidArgument)
	}

	newEntry, ok := c.entries.CreateNewEntryChain(c.freeBlocks, hash, key, value, -1)
	if !ok {
		return NoMoreSpace, nil
	}
	return c.linkNewEntry(hash, key, newEntry, old)
}

// PutDeferred reserves valueLen bytes for hash/key and hands write an
// io.Writer bounded to exactly that length, so a Serializer can encode
// straight into the off-heap chain without an intermediate buffer. Used
// by the typed façade.
func (c *OHCache) PutDeferred(hash uint32, key bytesio.BytesSource, valueLen int64, write func(io.Writer) error, old bytesio.BytesSink) (PutResult, error) {
	if err := c.enter(); err != nil {
		return NoMoreSpace, err
	}
	defer c.leave()
	if key == nil || key.Size() < 1 {
		return NoMoreSpace, fmt.Errorf("%w: key must be non-empty", ErrInvalidArgument)
	}
	if valueLen < 0 {
		return NoMoreSpace, fmt.Errorf("%w: negative value length", ErrInvalidArgument)
	}

	newEntry, ok := c.entries.CreateNewEntryChain(c.freeBlocks, hash, key, nil, valueLen)
	if !ok {
		return NoMoreSpace, nil
	}
	if err := c.entries.ValueToHashEntry(newEntry, write); err != nil {
		c.freeBlocks.FreeChain(newEntry)
		return NoMoreSpace, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return c.linkNewEntry(hash, key, newEntry, old)
}

// linkNewEntry finishes a put: lock the partition, unlink any existing
// entry for hash/key, link the new entry at the LRU head, hand off the
// old entry's lock, then outside the partition lock stream the old
// value (if requested) and free its chain.
func (c *OHCache) linkNewEntry(hash uint32, key bytesio.BytesSource, newEntry uint64, old bytesio.BytesSink) (PutResult, error) {
	partitionAddr := c.table.LockPartitionForHash(hash)
	oldEntry := c.entries.Find(c.table, partitionAddr, hash, key)
	if oldEntry != 0 {
		c.entries.Remove(c.table, partitionAddr, oldEntry)
	}
	c.entries.AddAsHead(c.table, partitionAddr, newEntry)
	if oldEntry != 0 {
		c.entries.LockEntry(oldEntry)
	}
	c.table.UnlockPartition(partitionAddr)

	if oldEntry == 0 {
		return Added, nil
	}
	if old != nil {
		if err := c.entries.WriteValueToSink(oldEntry, old); err != nil {
			c.freeBlocks.FreeChain(oldEntry)
			return Replaced, fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
	}
	c.freeBlocks.FreeChain(oldEntry)
	return Replaced, nil
}

// Get looks up hash/key, promoting it to its partition's LRU head on a
// hit, and streams the value into sink.
func (c *OHCache) Get(hash uint32, key bytesio.BytesSource, sink bytesio.BytesSink) (bool, error) {
	if err := c.enter(); err != nil {
		return false, err
	}
	defer c.leave()

	partitionAddr := c.table.LockPartitionForHash(hash)
	e := c.entries.Find(c.table, partitionAddr, hash, key)
	if e == 0 {
		c.table.UnlockPartition(partitionAddr)
		c.counters.recordMiss()
		return false, nil
	}
	c.entries.Update(c.table, partitionAddr, e)
	c.entries.LockEntry(e)
	c.table.UnlockPartition(partitionAddr)

	err := c.entries.WriteValueToSink(e, sink)
	c.entries.UnlockEntry(e)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	c.counters.recordHit()
	return true, nil
}

// Remove deletes hash/key if present, returning whether it was found.
func (c *OHCache) Remove(hash uint32, key bytesio.BytesSource) (bool, error) {
	if err := c.enter(); err != nil {
		return false, err
	}
	defer c.leave()

	partitionAddr := c.table.LockPartitionForHash(hash)
	e := c.entries.Find(c.table, partitionAddr, hash, key)
	if e == 0 {
		c.table.UnlockPartition(partitionAddr)
		return false, nil
	}
	c.entries.Remove(c.table, partitionAddr, e)
	c.entries.LockEntry(e)
	c.table.UnlockPartition(partitionAddr)

	c.freeBlocks.FreeChain(e)
	return true, nil
}

// Size sums LRU list lengths under each partition lock. Not a
// constant-time counter; strongly consistent per partition, not
// linearizable globally.
func (c *OHCache) Size() uint64 {
	var total uint64
	for i := uint32(0); i < c.table.PartitionCount(); i++ {
		addr := c.table.PartitionAddr(i)
		c.table.LockPartitionAt(addr)
		total += uint64(c.entries.LRULength(c.table, addr))
		c.table.UnlockPartition(addr)
	}
	return total
}

// Capacity returns the configured byte capacity of the block pool.
func (c *OHCache) Capacity() uint64 { return c.cfg.Capacity }

// MemUsed derives used bytes from capacity minus free blocks.
func (c *OHCache) MemUsed() uint64 {
	free := uint64(c.freeBlocks.CalcFreeCount())
	return c.cfg.Capacity - free*uint64(c.cfg.BlockSize)
}

// FreeSpaceFraction is the fraction of pool blocks currently free.
func (c *OHCache) FreeSpaceFraction() float64 {
	free := uint64(c.freeBlocks.CalcFreeCount())
	return float64(free) / float64(c.freeBlocks.BlockCount())
}

// Cleanup evicts a cold suffix of each partition's LRU list if the
// free fraction has fallen to or below CleanupTrigger, sizing the
// per-partition quota from the average blocks-per-entry of the current
// contents. Re-entrant calls (concurrent or nested) return immediately
// via a CAS guard.
func (c *OHCache) Cleanup() {
	if err := c.enter(); err != nil {
		return
	}
	defer c.leave()
	if !c.cleanupRunning.CompareAndSwap(false, true) {
		return
	}
	defer c.cleanupRunning.Store(false)

	totalBlocks := c.freeBlocks.BlockCount()
	if totalBlocks == 0 {
		return
	}
	freeBlocks := uint64(c.freeBlocks.CalcFreeCount())
	freeFrac := float64(freeBlocks) / float64(totalBlocks)
	if freeFrac > c.cfg.CleanupTrigger {
		return
	}

	entries := c.Size()
	if entries == 0 {
		return
	}
	usedBlocks := totalBlocks - freeBlocks
	blocksPerEntry := usedBlocks / entries
	if blocksPerEntry == 0 {
		blocksPerEntry = 1
	}

	expectedFree := uint64(c.cfg.CleanupTrigger * float64(totalBlocks))
	var totalToRemove uint64
	if expectedFree > freeBlocks {
		totalToRemove = (expectedFree - freeBlocks) * blocksPerEntry
	}

	p := uint64(c.table.PartitionCount())
	perPartition := totalToRemove / p
	if perPartition < 1 {
		perPartition = 1
	}

	var evicted uint64
	for i := uint32(0); i < c.table.PartitionCount(); i++ {
		addr := c.table.PartitionAddr(i)
		c.table.LockPartitionAt(addr)
		startAt := c.entries.DetachSuffix(c.table, addr, perPartition)
		c.table.UnlockPartition(addr)

		for e := startAt; e != 0; {
			next := c.entries.GetLRUNext(e)
			c.entries.LockEntry(e)
			c.freeBlocks.FreeChain(e)
			evicted++
			e = next
		}
	}
	c.counters.recordEviction(evicted)
}

// InvalidateAll detaches and frees every partition's entire LRU list.
func (c *OHCache) InvalidateAll() {
	if err := c.enter(); err != nil {
		return
	}
	defer c.leave()

	for i := uint32(0); i < c.table.PartitionCount(); i++ {
		addr := c.table.PartitionAddr(i)
		c.table.LockPartitionAt(addr)
		startAt := c.entries.DetachAll(c.table, addr)
		c.table.UnlockPartition(addr)

		for e := startAt; e != 0; {
			next := c.entries.GetLRUNext(e)
			c.entries.LockEntry(e)
			c.freeBlocks.FreeChain(e)
			e = next
		}
	}
}

// HotN returns the keys of up to n of the hottest (most recently used)
// entries, walking partitions in index order.
func (c *OHCache) HotN(n int) [][]byte {
	if err := c.enter(); err != nil {
		return nil
	}
	defer c.leave()

	keys := make([][]byte, 0, n)
	for i := uint32(0); i < c.table.PartitionCount() && len(keys) < n; i++ {
		addr := c.table.PartitionAddr(i)
		c.table.LockPartitionAt(addr)
		remaining := n - len(keys)
		c.entries.HotN(c.table, addr, remaining, func(e uint64) {
			keys = append(keys, c.entries.ReadKeyFrom(e))
		})
		c.table.UnlockPartition(addr)
	}
	return keys
}

// Stats returns a snapshot of the atomic counters.
func (c *OHCache) Stats() Stats { return c.counters.snapshot() }

// ExtendedStats adds diagnostics that require walking the live
// structure: per-partition LRU lengths, free block count, and the
// configured block size/capacity.
func (c *OHCache) ExtendedStats() ExtendedStats {
	lengths := make([]int, c.table.PartitionCount())
	for i := uint32(0); i < c.table.PartitionCount(); i++ {
		addr := c.table.PartitionAddr(i)
		c.table.LockPartitionAt(addr)
		lengths[i] = c.entries.LRULength(c.table, addr)
		c.table.UnlockPartition(addr)
	}
	return ExtendedStats{
		Stats:            c.counters.snapshot(),
		FreeBlockBuckets: []int{c.freeBlocks.CalcFreeCount()},
		LRUListLengths:   lengths,
		Size:             c.Size(),
		BlockSize:        c.cfg.BlockSize,
		Capacity:         c.cfg.Capacity,
	}
}

// LockSpins and FreeBlockSpins expose the diagnostic CAS retry counters
// of the partition table and free-stack respectively.
func (c *OHCache) LockSpins() uint64      { return c.table.LockSpins() }
func (c *OHCache) FreeBlockSpins() uint64 { return c.freeBlocks.GetFreeBlockSpins() }

// Close marks the cache closed, refusing further operations, then waits
// for in-flight operations to drain before returning. Without the
// drain, an operation that passed its closed-check and acquired an
// entry lock could still be mid-copy when the backing region became
// eligible for collection.
func (c *OHCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	for c.inflight.Load() > 0 {
		runtime.Gosched()
	}
	return nil
}

// StartScheduledCleanup launches a background ticker that invokes
// Cleanup at CleanupCheckIntervalMs. Returns nil if CleanupTrigger is 0
// (cleanup is disabled). Callers own the returned Ticker and must Stop
// it before discarding the cache.
func (c *OHCache) StartScheduledCleanup() *scheduler.Ticker {
	if c.cfg.CleanupTrigger <= 0 {
		return nil
	}
	interval := time.Duration(c.cfg.CleanupCheckIntervalMs) * time.Millisecond
	return scheduler.Start(c, interval)
}

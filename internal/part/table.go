// Package part addresses the partition table: P fixed slots indexed by
// hash & mask, each a spinlock word plus an LRU head offset. The slot
// state lives in the backing region rather than in Go struct fields,
// and the lock is a raw CAS spin rather than a sync.Mutex, since
// partition locks must be held across the per-entry lock handoff and
// never parked on the Go scheduler's mutex slow path.
package part

import (
	"sync/atomic"

	"github.com/offheap/ohc/internal/region"
)

// slotSize is the 16-byte partition slot: lock_word(4) + pad(4) + lru_head(8).
const slotSize = 16

const (
	offLock    = 0
	offLRUHead = 8
)

// Table is the partition table view over a region.
type Table struct {
	region *region.Region
	base   uint64
	count  uint32
	mask   uint32
	spins  atomic.Uint64
}

// SizeForEntries returns the table byte size for P partitions.
func SizeForEntries(p uint32) uint64 { return uint64(p) * slotSize }

// New builds a partition table of p slots starting at base within r. p
// must already be a power of two (the builder is responsible for
// normalizing it).
func New(r *region.Region, base uint64, p uint32) *Table {
	return &Table{region: r, base: base, count: p, mask: p - 1}
}

// PartitionCount returns P.
func (t *Table) PartitionCount() uint32 { return t.count }

// PartitionAddr returns the slot address for partition index idx.
func (t *Table) PartitionAddr(idx uint32) uint64 {
	return t.base + uint64(idx)*slotSize
}

func (t *Table) slotAddr(hash uint32) uint64 {
	return t.PartitionAddr(hash & t.mask)
}

// PartitionIndexOf returns the partition index a hash maps to.
func (t *Table) PartitionIndexOf(hash uint32) uint32 {
	return hash & t.mask
}

// LockPartitionForHash spins until it acquires the lock for hash's
// partition and returns that partition's slot address.
func (t *Table) LockPartitionForHash(hash uint32) uint64 {
	addr := t.slotAddr(hash)
	t.LockPartitionAt(addr)
	return addr
}

// LockPartitionAt spins until it acquires the lock on the slot at addr.
func (t *Table) LockPartitionAt(addr uint64) {
	for !t.region.CASUint32(addr+offLock, 0, 1) {
		t.spins.Add(1)
	}
}

// UnlockPartition releases the lock on the partition at addr.
func (t *Table) UnlockPartition(addr uint64) {
	t.region.StoreUint32(addr+offLock, 0)
}

// GetLRUHead reads the head-of-LRU entry offset for a locked partition.
func (t *Table) GetLRUHead(addr uint64) uint64 {
	return t.region.GetUint64(addr + offLRUHead)
}

// SetLRUHead writes the head-of-LRU entry offset for a locked partition.
func (t *Table) SetLRUHead(addr uint64, entryAddr uint64) {
	t.region.PutUint64(addr+offLRUHead, entryAddr)
}

// LockSpins returns the cumulative CAS retry count across all partition
// lock acquisitions, a contention diagnostic.
func (t *Table) LockSpins() uint64 { return t.spins.Load() }

// Package alloc implements the block-granular allocator over the cache's
// pool region: a lock-free LIFO free-stack of block addresses,
// compare-and-swap on a single atomic top cursor, with the popped or
// pushed block's link rewritten before the CAS to avoid ABA.
package alloc

import (
	"sync/atomic"

	"github.com/offheap/ohc/internal/region"
)

// nextPtrSize is the width of the leading "next block" field carried by
// every block, whether it is linked into an entry chain or sitting on
// the free-stack.
const nextPtrSize = 8

// FreeBlocks manages the fixed-size blocks of one pool range.
type FreeBlocks struct {
	region     *region.Region
	poolBase   uint64
	poolSize   uint64
	blockSize  uint32
	blockCount uint64

	top   atomic.Uint64 // offset of the top free block; 0 = empty
	spins atomic.Uint64
}

// New carves a pool of poolSize bytes starting at poolBase into
// blockSize-byte blocks and threads them onto the initial free-stack.
func New(r *region.Region, poolBase, poolSize uint64, blockSize uint32) *FreeBlocks {
	fb := &FreeBlocks{
		region:    r,
		poolBase:  poolBase,
		poolSize:  poolSize,
		blockSize: blockSize,
	}
	fb.blockCount = poolSize / uint64(blockSize)

	var prev uint64
	for i := int64(fb.blockCount) - 1; i >= 0; i-- {
		addr := poolBase + uint64(i)*uint64(blockSize)
		r.PutUint64(addr, prev) // single-threaded at construction time
		prev = addr
	}
	fb.top.Store(prev)
	return fb
}

// BlockSize returns B.
func (fb *FreeBlocks) BlockSize() uint32 { return fb.blockSize }

// BlockCount returns the total number of blocks in the pool.
func (fb *FreeBlocks) BlockCount() uint64 { return fb.blockCount }

// PayloadPerBlock is the usable bytes per block once the chain-link
// field is excluded.
func (fb *FreeBlocks) PayloadPerBlock() uint64 { return uint64(fb.blockSize) - nextPtrSize }

func (fb *FreeBlocks) popOne() (uint64, bool) {
	for {
		top := fb.top.Load()
		if top == 0 {
			return 0, false
		}
		next := fb.region.LoadUint64(top)
		if fb.top.CompareAndSwap(top, next) {
			return top, true
		}
		fb.spins.Add(1)
	}
}

func (fb *FreeBlocks) pushOne(addr uint64) {
	for {
		top := fb.top.Load()
		fb.region.StoreUint64(addr, top)
		if fb.top.CompareAndSwap(top, addr) {
			return
		}
		fb.spins.Add(1)
	}
}

// AllocateChain pops enough blocks to hold totalBytes, links them into a
// chain, and returns the chain head. On failure (insufficient free
// blocks) any blocks already popped are pushed back before returning 0.
func (fb *FreeBlocks) AllocateChain(totalBytes uint64) (head uint64, ok bool) {
	payload := fb.PayloadPerBlock()
	n := totalBytes / payload
	if totalBytes%payload != 0 || n == 0 {
		n++
	}

	addrs := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		a, popped := fb.popOne()
		if !popped {
			for _, x := range addrs {
				fb.pushOne(x)
			}
			return 0, false
		}
		addrs = append(addrs, a)
	}

	for i := 0; i < len(addrs)-1; i++ {
		fb.region.PutUint64(addrs[i], addrs[i+1])
	}
	fb.region.PutUint64(addrs[len(addrs)-1], 0)

	return addrs[0], true
}

// FreeChain walks the chain starting at head and returns every block to
// the free-stack, reporting how many blocks were freed. The caller must
// own the chain exclusively (it has either never been indexed, or has
// been unlinked from its partition and its entry lock has been
// acquired) before calling this.
func (fb *FreeBlocks) FreeChain(head uint64) int {
	n := 0
	cur := head
	for cur != 0 {
		next := fb.region.GetUint64(cur)
		fb.pushOne(cur)
		n++
		cur = next
	}
	return n
}

// CalcFreeCount walks the free-stack and counts it. O(n); diagnostic
// only.
func (fb *FreeBlocks) CalcFreeCount() int {
	n := 0
	cur := fb.top.Load()
	for cur != 0 {
		n++
		cur = fb.region.LoadUint64(cur)
	}
	return n
}

// GetFreeBlockSpins returns the cumulative CAS retry count across all
// pushes and pops, a diagnostic for lock contention on the free-stack.
func (fb *FreeBlocks) GetFreeBlockSpins() uint64 { return fb.spins.Load() }

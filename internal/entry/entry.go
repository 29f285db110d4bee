// Package entry owns the entry header layout, the per-partition LRU
// list operations, the per-entry handoff lock, and streaming of key and
// value bytes to and from a block chain. Everything here runs either
// under an already-locked partition (LRU ops, Find) or under an
// acquired entry lock (value/key extraction), never both at once held
// across a user callback.
package entry

import (
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/offheap/ohc/bytesio"
	"github.com/offheap/ohc/internal/alloc"
	"github.com/offheap/ohc/internal/part"
	"github.com/offheap/ohc/internal/region"
)

// Entry header layout, within the first block of a chain:
//
//	offset 0  (8B): next_block_addr  — shared with every block, chain link
//	offset 8  (8B): lru_next_addr
//	offset 16 (8B): lru_prev_addr
//	offset 24 (4B): hash
//	offset 28 (4B): lock_word
//	offset 32 (4B): key_len
//	offset 36 (4B): value_len
//	offset 48:      key_bytes, then value_bytes
//
// Key and value bytes are addressed by logical payload offset, counted
// from the end of each block's 8-byte chain link; the key starts at
// logical offset HeaderSize, which is block offset 48, leaving bytes
// 40..47 of the first block unused.
const (
	offNext     = 0
	offLRUNext  = 8
	offLRUPrev  = 16
	offHash     = 24
	offLock     = 28
	offKeyLen   = 32
	offValueLen = 36

	// HeaderSize is the fixed byte size of the entry header.
	HeaderSize = 40
)

// Access provides entry operations over a region, parameterized by the
// pool's block size (needed to walk chains).
type Access struct {
	region          *region.Region
	payloadPerBlock uint64

	warnTrigger int
	warnedOnce  atomic.Bool
}

// New creates an Access for a pool whose blocks are blockSize bytes.
// warnTrigger is the LRU list length above which a single warning is
// logged.
func New(r *region.Region, blockSize uint32, warnTrigger int) *Access {
	return &Access{
		region:          r,
		payloadPerBlock: uint64(blockSize) - 8,
		warnTrigger:     warnTrigger,
	}
}

// ---- raw header accessors -------------------------------------------------

func (a *Access) nextBlock(addr uint64) uint64   { return a.region.GetUint64(addr + offNext) }
func (a *Access) GetLRUNext(addr uint64) uint64  { return a.region.GetUint64(addr + offLRUNext) }
func (a *Access) setLRUNext(addr, v uint64)      { a.region.PutUint64(addr+offLRUNext, v) }
func (a *Access) GetLRUPrev(addr uint64) uint64  { return a.region.GetUint64(addr + offLRUPrev) }
func (a *Access) setLRUPrev(addr, v uint64)      { a.region.PutUint64(addr+offLRUPrev, v) }
func (a *Access) GetHash(addr uint64) uint32     { return a.region.GetUint32(addr + offHash) }
func (a *Access) setHash(addr uint64, h uint32)  { a.region.PutUint32(addr+offHash, h) }
func (a *Access) GetKeyLen(addr uint64) uint32   { return a.region.GetUint32(addr + offKeyLen) }
func (a *Access) setKeyLen(addr uint64, v uint32) { a.region.PutUint32(addr+offKeyLen, v) }
func (a *Access) GetValueLen(addr uint64) uint32 { return a.region.GetUint32(addr + offValueLen) }
func (a *Access) setValueLen(addr uint64, v uint32) {
	a.region.PutUint32(addr+offValueLen, v)
}

// ---- entry lock (reader/destroyer handoff) --------------------------------

// LockEntry CAS-spins the entry's lock word from 0 to 1.
func (a *Access) LockEntry(addr uint64) {
	for !a.region.CASUint32(addr+offLock, 0, 1) {
		// Busy-spin: held only for the duration of a value copy, or
		// forever by a destroyer.
	}
}

// UnlockEntry releases the entry lock. Destroyers must never call this —
// once an entry's blocks are freed the lock word no longer exists.
func (a *Access) UnlockEntry(addr uint64) {
	a.region.StoreUint32(addr+offLock, 0)
}

// ---- LRU list operations (partition lock required) ------------------------

// AddAsHead links entryAddr in as the new LRU head of partitionAddr.
func (a *Access) AddAsHead(table *part.Table, partitionAddr, entryAddr uint64) {
	a.setLRUPrev(entryAddr, 0)
	oldHead := table.GetLRUHead(partitionAddr)
	a.setLRUNext(entryAddr, oldHead)
	if oldHead != 0 {
		a.setLRUPrev(oldHead, entryAddr)
	}
	table.SetLRUHead(partitionAddr, entryAddr)

	if a.warnTrigger > 0 && !a.warnedOnce.Load() {
		if n := a.lruLength(table, partitionAddr); n > a.warnTrigger && a.warnedOnce.CompareAndSwap(false, true) {
			log.Printf("ohc: partition LRU list length %d exceeds warn trigger %d", n, a.warnTrigger)
		}
	}
}

// Remove splices entryAddr out of partitionAddr's LRU list.
func (a *Access) Remove(table *part.Table, partitionAddr, entryAddr uint64) {
	prev := a.GetLRUPrev(entryAddr)
	next := a.GetLRUNext(entryAddr)

	if prev != 0 {
		a.setLRUNext(prev, next)
	} else {
		table.SetLRUHead(partitionAddr, next)
	}
	if next != 0 {
		a.setLRUPrev(next, prev)
	}
}

// Update promotes entryAddr to the LRU head (remove then add-as-head).
func (a *Access) Update(table *part.Table, partitionAddr, entryAddr uint64) {
	a.Remove(table, partitionAddr, entryAddr)
	a.AddAsHead(table, partitionAddr, entryAddr)
}

func (a *Access) lruLength(table *part.Table, partitionAddr uint64) int {
	n := 0
	for cur := table.GetLRUHead(partitionAddr); cur != 0; cur = a.GetLRUNext(cur) {
		n++
	}
	return n
}

// LRULength is the public diagnostic form of lruLength, used by
// extended stats.
func (a *Access) LRULength(table *part.Table, partitionAddr uint64) int {
	return a.lruLength(table, partitionAddr)
}

// ---- lookup ----------------------------------------------------------------

// Find walks partitionAddr's LRU list looking for an entry whose hash,
// key length, and key bytes all match. Returns 0 if none found.
func (a *Access) Find(table *part.Table, partitionAddr uint64, hash uint32, key bytesio.BytesSource) uint64 {
	keyLen := uint64(key.Size())
	for cur := table.GetLRUHead(partitionAddr); cur != 0; cur = a.GetLRUNext(cur) {
		if a.GetHash(cur) != hash {
			continue
		}
		if uint64(a.GetKeyLen(cur)) != keyLen {
			continue
		}
		if a.keyEquals(cur, key) {
			return cur
		}
	}
	return 0
}

func (a *Access) keyEquals(entryAddr uint64, key bytesio.BytesSource) bool {
	size := key.Size()
	const chunk = 4096
	var off int64
	for off < size {
		n := int64(chunk)
		if off+n > size {
			n = size - off
		}
		want := key.Get(off, n)
		got := make([]byte, n)
		a.readChainBytes(entryAddr, HeaderSize+uint64(off), got)
		if !bytesEqual(want, got) {
			return false
		}
		off += n
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---- chain walking ----------------------------------------------------------

// blockAt walks from head to the blkIdx'th block (0-based) of the chain.
func (a *Access) blockAt(head uint64, blkIdx uint64) uint64 {
	cur := head
	for i := uint64(0); i < blkIdx; i++ {
		cur = a.nextBlock(cur)
	}
	return cur
}

// writeChainBytes streams len(src) bytes from src into the chain
// starting at logical payload offset startOff (measured from the start
// of the first block's payload, i.e. header bytes count against it).
func (a *Access) writeChainBytes(head uint64, startOff uint64, src []byte) {
	if len(src) == 0 {
		return
	}
	ppb := a.payloadPerBlock
	blk := a.blockAt(head, startOff/ppb)
	localOff := startOff % ppb

	var written int
	for written < len(src) {
		space := ppb - localOff
		chunk := int(space)
		if chunk > len(src)-written {
			chunk = len(src) - written
		}
		a.region.CopyIn(blk+8+localOff, src[written:written+chunk])
		written += chunk
		localOff += uint64(chunk)
		if localOff >= ppb && written < len(src) {
			blk = a.nextBlock(blk)
			localOff = 0
		}
	}
}

// readChainBytes fills dst from the chain starting at logical payload
// offset startOff.
func (a *Access) readChainBytes(head uint64, startOff uint64, dst []byte) {
	if len(dst) == 0 {
		return
	}
	ppb := a.payloadPerBlock
	blk := a.blockAt(head, startOff/ppb)
	localOff := startOff % ppb

	var read int
	for read < len(dst) {
		space := ppb - localOff
		chunk := int(space)
		if chunk > len(dst)-read {
			chunk = len(dst) - read
		}
		copy(dst[read:read+chunk], a.region.Slice(blk+8+localOff, uint64(chunk)))
		read += chunk
		localOff += uint64(chunk)
		if localOff >= ppb && read < len(dst) {
			blk = a.nextBlock(blk)
			localOff = 0
		}
	}
}

// chainWriter is an io.Writer over a chain's value region, used by
// ValueToHashEntry so a Serializer can encode straight into off-heap
// blocks without an intermediate buffer.
type chainWriter struct {
	a      *Access
	head   uint64
	cursor uint64
	limit  uint64
}

func (w *chainWriter) Write(p []byte) (int, error) {
	if w.cursor+uint64(len(p)) > w.limit {
		return 0, fmt.Errorf("ohc: serializer wrote past preallocated value length (%d bytes over)", w.cursor+uint64(len(p))-w.limit)
	}
	w.a.writeChainBytes(w.head, w.cursor, p)
	w.cursor += uint64(len(p))
	return len(p), nil
}

// chainReader is an io.Reader over a chain's value region, returned by
// ReadValueReader.
type chainReader struct {
	a      *Access
	head   uint64
	cursor uint64
	limit  uint64
}

func (r *chainReader) Read(p []byte) (int, error) {
	if r.cursor >= r.limit {
		return 0, io.EOF
	}
	n := uint64(len(p))
	if r.cursor+n > r.limit {
		n = r.limit - r.cursor
	}
	r.a.readChainBytes(r.head, r.cursor, p[:n])
	r.cursor += n
	return int(n), nil
}

// ---- entry creation ---------------------------------------------------------

// CreateNewEntryChain allocates and fully initializes a new entry chain
// for hash/key, requiring no lock. If value is non-nil its bytes are
// streamed in immediately; otherwise valueLenHint bytes are reserved and
// the caller must follow up with ValueToHashEntry. Returns 0, false on
// allocation failure.
func (a *Access) CreateNewEntryChain(fb *alloc.FreeBlocks, hash uint32, key bytesio.BytesSource, value bytesio.BytesSource, valueLenHint int64) (uint64, bool) {
	keyLen := uint64(key.Size())
	var valLen uint64
	if value != nil {
		valLen = uint64(value.Size())
	} else {
		valLen = uint64(valueLenHint)
	}

	total := HeaderSize + keyLen + valLen
	head, ok := fb.AllocateChain(total)
	if !ok {
		return 0, false
	}

	a.setLRUNext(head, 0)
	a.setLRUPrev(head, 0)
	a.setHash(head, hash)
	a.region.PutUint32(head+offLock, 0)
	a.setKeyLen(head, uint32(keyLen))
	a.setValueLen(head, uint32(valLen))

	a.writeChainBytes(head, HeaderSize, materialize(key))
	if value != nil {
		a.writeChainBytes(head, HeaderSize+keyLen, materialize(value))
	}

	return head, true
}

func materialize(src bytesio.BytesSource) []byte {
	return src.Get(0, src.Size())
}

// ValueToHashEntry streams a deferred value into the value region
// reserved by a prior CreateNewEntryChain(..., nil, valueLenHint) call.
// write is handed an io.Writer bounded to exactly the reserved length.
func (a *Access) ValueToHashEntry(entryAddr uint64, write func(io.Writer) error) error {
	keyLen := uint64(a.GetKeyLen(entryAddr))
	valLen := uint64(a.GetValueLen(entryAddr))
	w := &chainWriter{a: a, head: entryAddr, cursor: HeaderSize + keyLen, limit: HeaderSize + keyLen + valLen}
	return write(w)
}

// ---- extraction -------------------------------------------------------------

// WriteValueToSink streams an entry's value into sink, callable without
// the partition lock (the entry lock must already be held).
func (a *Access) WriteValueToSink(entryAddr uint64, sink bytesio.BytesSink) error {
	keyLen := uint64(a.GetKeyLen(entryAddr))
	valLen := uint64(a.GetValueLen(entryAddr))

	const chunk = 32 * 1024
	var off uint64
	buf := make([]byte, chunk)
	for off < valLen {
		n := uint64(chunk)
		if off+n > valLen {
			n = valLen - off
		}
		a.readChainBytes(entryAddr, HeaderSize+keyLen+off, buf[:n])
		if err := sink.PutBytes(int64(off), buf[:n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// ReadValueReader returns an io.Reader over an entry's value bytes, for
// callers that deserialize via io.Reader directly from the off-heap
// chain. The typed façade does not use it: typed Get copies the value
// out through OHCache.Get and deserializes from that copy.
func (a *Access) ReadValueReader(entryAddr uint64) io.Reader {
	keyLen := uint64(a.GetKeyLen(entryAddr))
	valLen := uint64(a.GetValueLen(entryAddr))
	return &chainReader{a: a, head: entryAddr, cursor: HeaderSize + keyLen, limit: HeaderSize + keyLen + valLen}
}

// ReadKeyFrom materializes an entry's key bytes.
func (a *Access) ReadKeyFrom(entryAddr uint64) []byte {
	keyLen := uint64(a.GetKeyLen(entryAddr))
	dst := make([]byte, keyLen)
	a.readChainBytes(entryAddr, HeaderSize, dst)
	return dst
}

// ReadValueFrom materializes an entry's value bytes.
func (a *Access) ReadValueFrom(entryAddr uint64) []byte {
	keyLen := uint64(a.GetKeyLen(entryAddr))
	valLen := uint64(a.GetValueLen(entryAddr))
	dst := make([]byte, valLen)
	a.readChainBytes(entryAddr, HeaderSize+keyLen, dst)
	return dst
}

// HotN reports up to n LRU-head entries of partitionAddr to callback,
// holding the partition lock for the duration (the caller is
// responsible for locking/unlocking; HotN only walks).
func (a *Access) HotN(table *part.Table, partitionAddr uint64, n int, callback func(entryAddr uint64)) {
	cur := table.GetLRUHead(partitionAddr)
	for i := 0; i < n && cur != 0; i++ {
		callback(cur)
		cur = a.GetLRUNext(cur)
	}
}

// DetachSuffix walks partitionAddr's LRU list to the tail, then
// backward n steps to locate the pivot entry, and unlinks everything
// from just past the pivot to the tail as one suffix of (up to) n
// entries, returning the suffix's head (0 if the partition is empty).
// If the walk reaches the list head before completing n steps, at most
// n entries exist and the entire list is detached, with the
// partition's head reset to 0. The caller must already hold
// partitionAddr's lock; freeing the returned chain of entries is the
// caller's responsibility.
func (a *Access) DetachSuffix(table *part.Table, partitionAddr uint64, n uint64) uint64 {
	head := table.GetLRUHead(partitionAddr)
	if head == 0 || n == 0 {
		return 0
	}

	tail := head
	for next := a.GetLRUNext(tail); next != 0; next = a.GetLRUNext(tail) {
		tail = next
	}

	pivot := tail
	exhausted := false
	for steps := uint64(0); steps < n; steps++ {
		if pivot == head {
			exhausted = true
			break
		}
		pivot = a.GetLRUPrev(pivot)
	}

	if exhausted {
		table.SetLRUHead(partitionAddr, 0)
		return head
	}

	// pivot is the n-th predecessor of tail; it may be the list head
	// itself, in which case the whole list except the head is detached.
	startAt := a.GetLRUNext(pivot)
	a.setLRUNext(pivot, 0)
	a.setLRUPrev(startAt, 0)
	return startAt
}

// DetachAll unlinks partitionAddr's entire LRU list and resets its
// head to 0, returning the old head. The caller must hold
// partitionAddr's lock.
func (a *Access) DetachAll(table *part.Table, partitionAddr uint64) uint64 {
	head := table.GetLRUHead(partitionAddr)
	table.SetLRUHead(partitionAddr, 0)
	return head
}

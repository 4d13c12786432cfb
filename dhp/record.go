// Copyright 2026 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package dhp

import (
	"sync/atomic"
	"unsafe"
)

// cacheLineSize is used only to keep the sync counter on its own cache
// line, away from the active flag and the next-record link that other
// threads spin on during attach/help_scan/scan.
const cacheLineSize = 64

// hazardStorage is a thread's exclusively-owned pool of guard slots: an
// initial array sized by Construct's initialHPCount, plus a forward-only
// chain of extension blocks grown on demand. The free list is plain
// thread-local bookkeeping (only the owner ever allocates or frees a slot
// from it) — a scanning thread only reads slot values from the initial
// array and from the blocks of the extHead chain, never allocating from it.
type hazardStorage struct {
	initial []guardSlot
	extHead unsafe.Pointer // *guardBlock, published with release ordering
	free    []*guardSlot
}

// reinit rebuilds the free list from the initial array. Called when a
// thread record is first created and each time attach_thread reuses one:
// the previous owner's clear() already returned extension blocks to the
// pool and emptied extHead, so only the initial array needs re-linking.
func (hs *hazardStorage) reinit(initialHP int) {
	if hs.initial == nil {
		hs.initial = make([]guardSlot, initialHP)
	}
	hs.free = hs.free[:0]
	for i := range hs.initial {
		hs.initial[i].clear()
		hs.free = append(hs.free, &hs.initial[i])
	}
}

// alloc pops one slot from the free list, growing by one extension block
// if the list is empty.
func (hs *hazardStorage) alloc() *guardSlot {
	if len(hs.free) == 0 {
		hs.growByOne()
	}
	n := len(hs.free) - 1
	s := hs.free[n]
	hs.free = hs.free[:n]
	return s
}

// allocArray pops k slots at once, growing as needed.
func (hs *hazardStorage) allocArray(k int) []*guardSlot {
	out := make([]*guardSlot, k)
	for i := 0; i < k; i++ {
		out[i] = hs.alloc()
	}
	return out
}

// release clears and returns a slot to the free list.
func (hs *hazardStorage) release(s *guardSlot) {
	s.clear()
	hs.free = append(hs.free, s)
}

func (hs *hazardStorage) releaseArray(slots []*guardSlot) {
	for _, s := range slots {
		hs.release(s)
	}
}

// growByOne requests a new extension block from the global guard-block
// pool, links every one of its slots into the free list, and publishes the
// block as the new head of the extension chain with release ordering so a
// concurrent scan's acquire load is guaranteed to see it before it can see
// any hazard published through one of its slots.
func (hs *hazardStorage) growByOne() {
	blk, fresh := global.guardPool.Get()
	if fresh {
		global.statGuardBlocksAllocated.add(1)
	}
	for i := range blk.slots {
		blk.slots[i].clear()
		hs.free = append(hs.free, &blk.slots[i])
	}
	for {
		head := atomic.LoadPointer(&hs.extHead)
		blk.next = head
		if atomic.CompareAndSwapPointer(&hs.extHead, head, unsafe.Pointer(blk)) {
			break
		}
	}
	global.statGuardExtensions.add(1)
}

// clear releases every slot (initial and extension) and returns all
// extension blocks to the global pool. Called on detach.
func (hs *hazardStorage) clear() {
	for i := range hs.initial {
		hs.initial[i].clear()
	}
	blk := (*guardBlock)(atomic.LoadPointer(&hs.extHead))
	for blk != nil {
		next := (*guardBlock)(atomic.LoadPointer(&blk.next))
		global.guardPool.Put(blk)
		blk = next
	}
	atomic.StorePointer(&hs.extHead, nil)
	hs.free = hs.free[:0]
}

// collectInto appends every currently-published (non-nil) hazard in this
// storage to out: the initial array, then each extension block in chain
// order. Called only from a scan walking every active thread record.
func (hs *hazardStorage) collectInto(out *[]unsafe.Pointer) {
	for i := range hs.initial {
		if v := hs.initial[i].get(); v != nil {
			*out = append(*out, v)
		}
	}
	blk := (*guardBlock)(atomic.LoadPointer(&hs.extHead))
	for blk != nil {
		for i := range blk.slots {
			if v := blk.slots[i].get(); v != nil {
				*out = append(*out, v)
			}
		}
		blk = (*guardBlock)(atomic.LoadPointer(&blk.next))
	}
}

// ThreadRecord is the per-thread bookkeeping block described in spec §3/§4.4:
// a hazard storage, a retired array, and the synchronization counter that
// gives scan a happens-before edge over this thread's guard publications.
// Records are linked into one global, append-only list and never unlinked —
// detach only flips active to 0, making the record reusable by a future
// AttachThread.
//
// Callers obtain a *ThreadRecord from AttachThread and pass it explicitly to
// every Guard/container operation for as long as the calling goroutine is
// "attached" (see doc.go for why there is no implicit per-goroutine lookup).
type ThreadRecord struct {
	_pad0       [cacheLineSize]byte
	syncCounter uint64
	_pad1       [cacheLineSize]byte

	hazards hazardStorage
	retired retiredArray

	active uint32
	next   unsafe.Pointer // *ThreadRecord
}

func newThreadRecord(initialHP int) *ThreadRecord {
	rec := &ThreadRecord{}
	rec.hazards.reinit(initialHP)
	rec.retired.init(global.retiredPool)
	return rec
}

// Self returns the receiver. It exists only to give §6.1's tls() entry
// point a named counterpart — Go callers already hold their ThreadRecord
// explicitly, so there is nothing else for it to do.
func (rec *ThreadRecord) Self() *ThreadRecord {
	return rec
}

// bumpSync performs the release-ordered RMW that §4.1/§5 require after
// every guard-slot store: it is what lets scan's acquire walk of the
// thread-record list observe a hazard published before the walk began.
func (rec *ThreadRecord) bumpSync() {
	atomic.AddUint64(&rec.syncCounter, 1)
}

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

import "unsafe"

// retiredBlockSize is the fixed capacity of one retired block.
const retiredBlockSize = 256

// retiredPtr pairs an untyped retired address with the trampoline that
// knows how to destroy it. Keeping the deleter as a plain function value
// (rather than a typed destructor or an interface) keeps each retired cell
// small and avoids forcing every container element through an interface
// box, per spec §9 "Polymorphism over deleters".
type retiredPtr struct {
	p       unsafe.Pointer
	deleter func(unsafe.Pointer)
}

// retiredBlock is one fixed-capacity link in a thread's retired list.
type retiredBlock struct {
	items [retiredBlockSize]retiredPtr
	next  unsafe.Pointer // *retiredBlock
}

// retiredArray is a thread's buffer of retired-but-not-yet-freed pointers:
// a linked chain of retiredBlocks with a current-block/current-cell
// write cursor. Invariant (§3): at most one block is partially full — every
// block before it is full, every block after it (if any, pre-chained by a
// prior extend) is empty.
//
// Mutation is exclusive to the owning thread, except during help_scan,
// which only touches a retiredArray after CAS-claiming its thread record
// while that record is observed inactive (§4.6) — so no field here needs
// its own atomics.
type retiredArray struct {
	head     *retiredBlock
	curBlock *retiredBlock
	curCell  int
}

// init gives the array a single fresh block from pool and resets the
// cursor to its start.
func (ra *retiredArray) init(pool *retiredBlockPool) {
	blk, fresh := pool.Get()
	if fresh {
		global.statRetiredBlocksAllocated.add(1)
	}
	blk.next = nil
	ra.head = blk
	ra.curBlock = blk
	ra.curCell = 0
}

// push writes rp at the cursor and advances it. It returns false without
// writing anything when the current block is already full and has no next
// block chained — the caller (Retire) must then run a scan and push again,
// which is guaranteed to land in room Scan either freed or extended (§4.4).
func (ra *retiredArray) push(rp retiredPtr) bool {
	if ra.curCell == retiredBlockSize {
		if ra.curBlock.next != nil {
			ra.curBlock = (*retiredBlock)(ra.curBlock.next)
			ra.curCell = 0
		} else {
			return false
		}
	}
	ra.curBlock.items[ra.curCell] = rp
	ra.curCell++
	return true
}

// repush re-enqueues a still-hazardous pointer during scan's compaction
// pass. It behaves exactly like push: the rebuild cursor never writes past
// the read cursor, so it cannot fail except possibly on the very last item
// of the very last (full) block — a case scan handles explicitly by calling
// extend afterward.
func (ra *retiredArray) repush(rp retiredPtr) bool {
	return ra.push(rp)
}

// extend chains a fresh block onto the tail and moves the cursor there. It
// is only ever called from within scan, per spec §4.3/§4.5.
func (ra *retiredArray) extend(pool *retiredBlockPool) {
	blk, fresh := pool.Get()
	if fresh {
		global.statRetiredBlocksAllocated.add(1)
	}
	blk.next = nil
	ra.curBlock.next = unsafe.Pointer(blk)
	ra.curBlock = blk
	ra.curCell = 0
}

// partition implements scan's phases 4–5 over this thread's own retired
// array: any retired pointer whose address appears in plist is kept
// (repushed); everything else is freed by invoking its deleter. plist must
// already be sorted ascending by address. Returns the number of pointers
// freed.
func (ra *retiredArray) partition(plist []unsafe.Pointer, pool *retiredBlockPool) int {
	lastBlock, lastCell := ra.curBlock, ra.curCell

	blk := ra.head
	ra.curBlock = ra.head
	ra.curCell = 0

	freed := 0
	for blk != nil {
		limit := retiredBlockSize
		if blk == lastBlock {
			limit = lastCell
		}
		for i := 0; i < limit; i++ {
			rp := blk.items[i]
			if plistContains(plist, rp.p) {
				ra.repush(rp)
			} else {
				rp.deleter(rp.p)
				freed++
			}
		}
		if blk == lastBlock {
			break
		}
		blk = (*retiredBlock)(blk.next)
	}

	// If nothing was freed and the block we just finished rebuilding into
	// was completely full, the cursor has nowhere left to write; extend so
	// the next retire cannot fail (§4.5 step 5).
	if freed == 0 && lastCell == retiredBlockSize {
		ra.extend(pool)
	}
	return freed
}

// drainInto walks every retired pointer currently held (used by help_scan,
// which has exclusively claimed this array from an inactive thread record)
// and pushes each one into dst, growing dst via scan if necessary. It then
// returns this array's own blocks to pool and re-initializes it to a single
// fresh block, so that a future attach_thread adopts a clean array.
func (ra *retiredArray) drainInto(dst *ThreadRecord, pool *retiredBlockPool) int {
	migrated := 0
	blk := ra.head
	for blk != nil {
		limit := retiredBlockSize
		if blk == ra.curBlock {
			limit = ra.curCell
		}
		for i := 0; i < limit; i++ {
			rp := blk.items[i]
			if !dst.retired.push(rp) {
				dst.Scan()
				dst.retired.push(rp)
			}
			migrated++
		}
		if blk == ra.curBlock {
			break
		}
		blk = (*retiredBlock)(blk.next)
	}

	freeBlk := ra.head
	for freeBlk != nil {
		next := (*retiredBlock)(freeBlk.next)
		pool.Put(freeBlk)
		freeBlk = next
	}
	ra.init(pool)
	return migrated
}

// plistContains reports whether p appears in the sorted hazard snapshot.
// nil is never a hazard (§4.5 "membership test must treat null plist
// entries as absent"), and the plist produced by snapshotHazards never
// contains nils in the first place, so this is a plain sorted search.
func plistContains(plist []unsafe.Pointer, p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	lo, hi := 0, len(plist)
	target := uintptr(p)
	for lo < hi {
		mid := (lo + hi) / 2
		if uintptr(plist[mid]) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(plist) && plist[lo] == p
}

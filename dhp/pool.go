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

// guardBlockPool and retiredBlockPool satisfy the §6.4 pool contract: Get
// returns a block with indeterminate content (the caller must
// zero/initialize it), Put accepts a block whose next pointer has been
// cleared. Both are lock-free Treiber free lists: a CAS loop over an
// unsafe.Pointer head, exactly the shape of the LockFreeQueue push/pop in
// this module's grounding material. The open question of DCAS-based vs.
// CAS-based free lists (spec §9) is resolved in favor of the CAS-only
// variant — Go has no portable double-width CAS, and the spec says
// correctness never depends on the choice.

// guardBlockPool is the process-wide free list of guardBlocks.
type guardBlockPool struct {
	head unsafe.Pointer // *guardBlock
}

func newGuardBlockPool() *guardBlockPool {
	return &guardBlockPool{}
}

// Get pops a block from the free list, or mints a fresh one if the list is
// empty. The second return value reports whether the block is newly
// allocated (as opposed to recycled), which callers use to maintain the
// "blocks allocated" statistic.
func (p *guardBlockPool) Get() (*guardBlock, bool) {
	for {
		h := atomic.LoadPointer(&p.head)
		if h == nil {
			return &guardBlock{}, true
		}
		blk := (*guardBlock)(h)
		next := atomic.LoadPointer(&blk.next)
		if atomic.CompareAndSwapPointer(&p.head, h, next) {
			blk.next = nil
			return blk, false
		}
	}
}

// Put clears the block's slots and returns it to the free list.
func (p *guardBlockPool) Put(blk *guardBlock) {
	for i := range blk.slots {
		blk.slots[i].clear()
	}
	for {
		h := atomic.LoadPointer(&p.head)
		blk.next = h
		if atomic.CompareAndSwapPointer(&p.head, h, unsafe.Pointer(blk)) {
			return
		}
	}
}

// retiredBlockPool is the process-wide free list of retiredBlocks.
type retiredBlockPool struct {
	head unsafe.Pointer // *retiredBlock
}

func newRetiredBlockPool() *retiredBlockPool {
	return &retiredBlockPool{}
}

func (p *retiredBlockPool) Get() (*retiredBlock, bool) {
	for {
		h := atomic.LoadPointer(&p.head)
		if h == nil {
			return &retiredBlock{}, true
		}
		blk := (*retiredBlock)(h)
		next := atomic.LoadPointer(&blk.next)
		if atomic.CompareAndSwapPointer(&p.head, h, next) {
			blk.next = nil
			return blk, false
		}
	}
}

func (p *retiredBlockPool) Put(blk *retiredBlock) {
	for i := range blk.items {
		blk.items[i] = retiredPtr{}
	}
	for {
		h := atomic.LoadPointer(&p.head)
		blk.next = h
		if atomic.CompareAndSwapPointer(&p.head, h, unsafe.Pointer(blk)) {
			return
		}
	}
}

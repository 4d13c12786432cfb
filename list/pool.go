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

package list

import (
	"sync/atomic"
	"unsafe"
)

// markedRef is a node's logical successor pointer plus its own deletion
// mark (§4.9, §4.10). The C++ original steals the low bit of the raw next
// pointer for this; a Go port cannot safely do that (the GC does not
// tolerate a pointer-shaped field holding a tagged, non-object address), so
// the mark travels instead as a second field on a small immutable struct
// that a node's next field points to. Mutating "a node's next pointer and
// its mark" atomically together is then just a single CompareAndSwapPointer
// that swaps out this wrapper for a new one — the same single-machine-word
// RMW the original gets from tagging, just one indirection away.
type markedRef[K any, V any] struct {
	next    *node[K, V]
	deleted bool
}

// node is one list element: a key, a value, and the atomic
// pointer-to-markedRef described above.
type node[K any, V any] struct {
	key   K
	value V
	next  unsafe.Pointer // *markedRef[K, V]
}

// nodePool is a lock-free Treiber free list of *node[K, V], the same shape
// as dhp's own block pools and stack's nodePool. As in stack, recycling
// addresses here (rather than just letting the GC collect retired nodes)
// is what gives the hazard-pointer protocol something real to guard
// against, and is the mechanism scenario 6's ABA defense test depends on.
type nodePool[K any, V any] struct {
	head unsafe.Pointer // *node[K, V]
}

func (p *nodePool[K, V]) get() *node[K, V] {
	for {
		h := atomic.LoadPointer(&p.head)
		if h == nil {
			return &node[K, V]{}
		}
		n := (*node[K, V])(h)
		next := atomic.LoadPointer(&n.next)
		if atomic.CompareAndSwapPointer(&p.head, h, next) {
			n.next = nil
			return n
		}
	}
}

func (p *nodePool[K, V]) put(n *node[K, V]) {
	var zeroK K
	var zeroV V
	n.key = zeroK
	n.value = zeroV
	for {
		h := atomic.LoadPointer(&p.head)
		n.next = h
		if atomic.CompareAndSwapPointer(&p.head, h, unsafe.Pointer(n)) {
			return
		}
	}
}

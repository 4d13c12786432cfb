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

package stack

import (
	"sync/atomic"
	"unsafe"
)

// node is one stack element: a payload plus the next-pointer threaded
// through the shared top chain (§4.8 "State").
type node[T any] struct {
	value T
	next  unsafe.Pointer // *node[T]
}

// nodePool is a lock-free Treiber free list of *node[T], the same shape as
// dhp's own guard/retired block pools (§6.4's pool contract). Retired
// nodes are returned here instead of simply being dropped for the GC:
// reusing addresses is what gives the hazard-pointer protocol something to
// actually protect against in a garbage-collected runtime. Without
// recycling, Go's GC alone would never let a concurrent reader observe a
// freed node's memory reused for something else out from under it, which
// would make the whole exercise of guarding pop's load moot.
type nodePool[T any] struct {
	head unsafe.Pointer // *node[T]
}

func (p *nodePool[T]) get() *node[T] {
	for {
		h := atomic.LoadPointer(&p.head)
		if h == nil {
			return &node[T]{}
		}
		n := (*node[T])(h)
		next := atomic.LoadPointer(&n.next)
		if atomic.CompareAndSwapPointer(&p.head, h, next) {
			n.next = nil
			return n
		}
	}
}

func (p *nodePool[T]) put(n *node[T]) {
	var zero T
	n.value = zero
	for {
		h := atomic.LoadPointer(&p.head)
		n.next = h
		if atomic.CompareAndSwapPointer(&p.head, h, unsafe.Pointer(n)) {
			return
		}
	}
}

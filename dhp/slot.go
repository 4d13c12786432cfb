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

// guardBlockSize is the number of slots in one extension block. It is a
// fixed compile-time choice, not the initial per-thread capacity (that is
// set per-process by Construct's initialHPCount).
const guardBlockSize = 32

// guardSlot is a single machine-word hazard-pointer cell. Its value is
// either nil (cleared/unused), or the address a thread is currently
// protecting. The owning thread is the only writer; other threads only ever
// load it, during a reclamation scan.
type guardSlot struct {
	ptr unsafe.Pointer
}

// set stores p into the slot. Callers that need the scan-visibility
// guarantee described in §4.1 additionally bump the owning thread's sync
// counter right after calling set; see Guard.Assign.
func (s *guardSlot) set(p unsafe.Pointer) {
	atomic.StorePointer(&s.ptr, p)
}

// clear releases the hazard, if any.
func (s *guardSlot) clear() {
	atomic.StorePointer(&s.ptr, nil)
}

// get is an acquire-ordered read, used both by the owning thread (to read
// back what it published) and by a scanning thread (to snapshot hazards).
func (s *guardSlot) get() unsafe.Pointer {
	return atomic.LoadPointer(&s.ptr)
}

// guardBlock is a fixed array of guard slots plus a next-block link. Blocks
// chain into a per-thread extension list, forward-only, so a thread's
// hazard-pointer capacity can grow past its initial allocation without
// invalidating slots already handed out to callers.
type guardBlock struct {
	slots [guardBlockSize]guardSlot
	next  unsafe.Pointer // *guardBlock
}

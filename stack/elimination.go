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
	"math/rand"
	"sync/atomic"
	"time"
	"unsafe"
)

// elimOffer is one pusher's value sitting in a slot, waiting for a popper.
// Publishing and claiming are each a single CompareAndSwapPointer on the
// slot itself, so there is no window in which a state flag says "waiting"
// before the value it refers to has actually landed: the offer and its
// value always appear atomically together, or not at all.
type elimOffer struct {
	value unsafe.Pointer
}

// eliminationSlot is one exchange point: a pusher CASes it from nil to a
// freshly-built *elimOffer to publish its node; a popper CASes it from that
// same offer back to nil to claim the value. Neither side ever touches the
// stack's top pointer for a pairing that completes this way (§4.8).
type eliminationSlot struct {
	offer unsafe.Pointer // *elimOffer
}

// eliminationArray is the optional back-off collision layer described in
// §4.8's "Optional elimination back-off". It has no counterpart in
// `other_examples` (none of the retrieved files implement elimination); its
// shape here follows the spec directly: a fixed slot array, a bounded spin
// count, and a random slot pick per attempt to spread collisions.
type eliminationArray struct {
	slots []eliminationSlot
	spins int
}

func newEliminationArray(size, spins int) *eliminationArray {
	if size <= 0 {
		size = 1
	}
	if spins <= 0 {
		spins = 32
	}
	return &eliminationArray{slots: make([]eliminationSlot, size), spins: spins}
}

func (e *eliminationArray) pick() *eliminationSlot {
	return &e.slots[rand.Intn(len(e.slots))]
}

// tryPush publishes p into a random slot and spins a bounded number of
// times waiting for a concurrent pop to claim it. It reports whether a pop
// paired off with this push; on failure the slot is left empty again and
// the caller falls back to retrying the CAS on top.
func (e *eliminationArray) tryPush(p unsafe.Pointer) bool {
	s := e.pick()
	offer := &elimOffer{value: p}
	if !atomic.CompareAndSwapPointer(&s.offer, nil, unsafe.Pointer(offer)) {
		return false
	}

	for spin := 0; spin < e.spins; spin++ {
		if atomic.LoadPointer(&s.offer) != unsafe.Pointer(offer) {
			// A popper swapped our offer out for nil: paired off.
			return true
		}
		time.Sleep(time.Microsecond)
	}

	if atomic.CompareAndSwapPointer(&s.offer, unsafe.Pointer(offer), nil) {
		return false
	}
	// A popper claimed the slot in the window between our last spin check
	// and the CAS just above; honor the pairing rather than report a
	// spurious failure.
	return true
}

// tryPop looks at one random slot for a waiting offer and claims it if
// present. It reports whether a push was paired off with; the caller is
// responsible for treating the returned value exactly as a normal pop
// result — no hazard pointer is needed for it, since the value published
// into an elimination slot never entered the stack's shared node chain.
func (e *eliminationArray) tryPop() (unsafe.Pointer, bool) {
	s := e.pick()
	cur := atomic.LoadPointer(&s.offer)
	if cur == nil {
		return nil, false
	}
	if atomic.CompareAndSwapPointer(&s.offer, cur, nil) {
		return (*elimOffer)(cur).value, true
	}
	return nil, false
}

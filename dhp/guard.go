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

// Guard is a scoped handle on one hazard slot (§4.7). It is obtained from a
// thread record's hazard storage, used to publish the address a container
// is about to dereference, and released back to the free list when the
// caller is done with it.
//
// A Guard is a linear resource, the same way the teacher's Mutex is not
// meant to be copied mid-hold: pass it by pointer, never by value, and only
// ever have one owner. The zero value is not usable; construct one with
// NewGuard (linked) or UnlinkedGuard (explicitly empty, per §6.2's
// Guard::unlinked()).
type Guard struct {
	rec  *ThreadRecord
	slot *guardSlot
}

// NewGuard allocates one hazard slot from rec's hazard storage.
func NewGuard(rec *ThreadRecord) *Guard {
	return &Guard{rec: rec, slot: rec.hazards.alloc()}
}

// UnlinkedGuard returns a Guard holding no slot. Calling Protect, Assign,
// Clear, or Get on it before a Link is a programmer error, matching the
// teacher's habit of not defending against misuse of an already-invalid
// handle.
func UnlinkedGuard(rec *ThreadRecord) *Guard {
	return &Guard{rec: rec}
}

// Link allocates a slot for an unlinked Guard. It is a no-op if the Guard
// already holds one.
func (g *Guard) Link() {
	if g.slot == nil {
		g.slot = g.rec.hazards.alloc()
	}
}

// Unlink releases the held slot, if any, back to the thread's free list,
// leaving the Guard unlinked.
func (g *Guard) Unlink() {
	if g.slot != nil {
		g.rec.hazards.release(g.slot)
		g.slot = nil
	}
}

// Release is a synonym for Unlink (§6.2's release()).
func (g *Guard) Release() { g.Unlink() }

// Assign unconditionally publishes p: a store into the slot followed by
// the release-ordered sync bump that gives a concurrent scan's acquire
// walk of the thread-record list a happens-before edge over this
// publication (§4.1, §5's guard-set ordering contract). Used when the
// caller already holds p by some other means and only needs to protect it
// before handing it elsewhere.
func (g *Guard) Assign(p unsafe.Pointer) {
	g.slot.set(p)
	g.rec.bumpSync()
}

// Clear releases the hazard without returning the slot to the free list —
// the slot stays linked to this Guard, just unpublished.
func (g *Guard) Clear() {
	g.slot.clear()
}

// Get returns the currently-published address, or nil.
func (g *Guard) Get() unsafe.Pointer {
	return g.slot.get()
}

// GetNative is Get under the name §6.2 also lists; both return the same
// untyped address, there being no separate typed/native representation to
// distinguish in a Go port.
func (g *Guard) GetNative() unsafe.Pointer {
	return g.slot.get()
}

// Protect implements the §4.7 load-check-store retry loop: load addr,
// publish it through this Guard, re-load addr, and retry until two
// successive loads agree. Between the first load and the publish a
// concurrent remover may have swung addr away from the value read and
// already retired it; the re-check catches that — if the two loads
// disagree the value we published is stale and must not be used. If they
// agree, any concurrent retire of that value either happened-before our
// publish (a subsequent scan will still see our slot) or happens-after (our
// slot already holds it, so scan cannot free it).
func (g *Guard) Protect(addr *unsafe.Pointer) unsafe.Pointer {
	for {
		p := atomic.LoadPointer(addr)
		g.Assign(p)
		if p2 := atomic.LoadPointer(addr); p == p2 {
			return p
		}
	}
}

// ProtectFunc is Protect, but the slot stores f(loaded) rather than the
// loaded value itself — used when the actual hazard is on a pointer
// derived from the one just read, such as a successor pointer with its
// deletion-mark bit stripped (§4.9's find loop).
func (g *Guard) ProtectFunc(addr *unsafe.Pointer, f func(unsafe.Pointer) unsafe.Pointer) unsafe.Pointer {
	for {
		p := atomic.LoadPointer(addr)
		derived := f(p)
		g.Assign(derived)
		if p2 := atomic.LoadPointer(addr); p == p2 {
			return derived
		}
	}
}

// GuardArray is a group of K guards allocated together (§4.7, §6.2);
// indexed operations mirror Guard's. Unlike the C++ original's
// compile-time K, Go has no const generic array length, so K is a runtime
// argument to NewGuardArray — correctness does not depend on it being
// known at compile time, only on every index staying in range.
type GuardArray struct {
	rec   *ThreadRecord
	slots []*guardSlot
}

// NewGuardArray allocates k slots for rec at once.
func NewGuardArray(rec *ThreadRecord, k int) *GuardArray {
	return &GuardArray{rec: rec, slots: rec.hazards.allocArray(k)}
}

// Assign is Guard.Assign at index i.
func (ga *GuardArray) Assign(i int, p unsafe.Pointer) {
	ga.slots[i].set(p)
	ga.rec.bumpSync()
}

// Protect is Guard.Protect at index i.
func (ga *GuardArray) Protect(i int, addr *unsafe.Pointer) unsafe.Pointer {
	for {
		p := atomic.LoadPointer(addr)
		ga.Assign(i, p)
		if p2 := atomic.LoadPointer(addr); p == p2 {
			return p
		}
	}
}

// ProtectFunc is Guard.ProtectFunc at index i.
func (ga *GuardArray) ProtectFunc(i int, addr *unsafe.Pointer, f func(unsafe.Pointer) unsafe.Pointer) unsafe.Pointer {
	for {
		p := atomic.LoadPointer(addr)
		derived := f(p)
		ga.Assign(i, derived)
		if p2 := atomic.LoadPointer(addr); p == p2 {
			return derived
		}
	}
}

// Clear is Guard.Clear at index i.
func (ga *GuardArray) Clear(i int) {
	ga.slots[i].clear()
}

// Get is Guard.Get at index i.
func (ga *GuardArray) Get(i int) unsafe.Pointer {
	return ga.slots[i].get()
}

// Release returns every slot in the array to the thread's free list.
func (ga *GuardArray) Release() {
	ga.rec.hazards.releaseArray(ga.slots)
	ga.slots = nil
}

// GuardedPtr ties a Guard's lifetime to a typed pointer returned from a
// container operation (§4.7/§6.2): the pointee stays safe to dereference
// for as long as the GuardedPtr has not been released. Go has no
// destructors, so callers are expected to call Release explicitly (or
// defer it) the way they would close any other scoped resource.
type GuardedPtr[T any] struct {
	guard *Guard
	ptr   *T
}

// NewGuardedPtr packages an already-published Guard and the typed address
// it protects. Container packages call this after a successful Protect.
func NewGuardedPtr[T any](g *Guard, p unsafe.Pointer) GuardedPtr[T] {
	return GuardedPtr[T]{guard: g, ptr: (*T)(p)}
}

// Get returns the guarded pointer, or nil if this GuardedPtr is empty
// (e.g. a Pop/Extract that found nothing).
func (gp GuardedPtr[T]) Get() *T {
	return gp.ptr
}

// Valid reports whether this GuardedPtr actually holds a pointer.
func (gp GuardedPtr[T]) Valid() bool {
	return gp.ptr != nil
}

// Release drops the underlying hazard. gp must not be dereferenced again
// afterward — the pointee may be freed by the next scan on any thread.
func (gp *GuardedPtr[T]) Release() {
	if gp.guard != nil {
		gp.guard.Release()
		gp.guard = nil
	}
	gp.ptr = nil
}

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
	"cmp"
	"sync/atomic"
	"unsafe"

	"github.com/dijkstracula/go-dhp/dhp"
)

// OrderedList is a lock-free sorted singly-linked list (§4.9). head is a
// permanent sentinel, never returned to callers and never retired: giving it
// a next field of the same markedRef-wrapped shape as every other node lets
// find treat "the cell before cur" uniformly whether that cell is the
// sentinel or a real node, instead of special-casing the list head.
type OrderedList[K cmp.Ordered, V any] struct {
	head *node[K, V]
	pool nodePool[K, V]
	size int64
}

// New constructs an empty OrderedList.
func New[K cmp.Ordered, V any]() *OrderedList[K, V] {
	ol := &OrderedList[K, V]{head: &node[K, V]{}}
	atomic.StorePointer(&ol.head.next, unsafe.Pointer(&markedRef[K, V]{}))
	return ol
}

// derefSucc extracts the successor *node[K, V] out of a markedRef loaded
// from some node's next field, for use as Guard.ProtectFunc's projection
// (§4.9 step 4: "protect the raw pointer bits... stripping the mark bit").
// There is no mark bit to strip in this port's representation (see
// pool.go's markedRef doc); stripping it just means following the wrapper
// one level to the plain node pointer underneath.
func derefSucc[K cmp.Ordered, V any](p unsafe.Pointer) unsafe.Pointer {
	mr := (*markedRef[K, V])(p)
	if mr == nil {
		return nil
	}
	return unsafe.Pointer(mr.next)
}

// find is the core helper of §4.9: it walks from head looking for key,
// cleaning up logically-deleted nodes it passes over along the way, and
// returns the bracketing position. The two guards it allocates protect
// whichever nodes are currently playing the role of "prev's successor"
// (curG) and "cur's successor" (nextG) at the point find returns; the
// caller must Release both once it is done inspecting or CASing against
// prev/cur.
//
// A node is only ever retired here, inside find, after this call's own CAS
// physically unlinks it (step 6) — not merely after it is marked deleted.
// Retiring on mark alone would hand a still-reachable node to the
// reclaimer while some other thread's find might still be in the middle of
// walking past it.
func (ol *OrderedList[K, V]) find(rec *dhp.ThreadRecord, key K) (prev, cur *node[K, V], curG, nextG *dhp.Guard, found bool) {
	curG = dhp.NewGuard(rec)
	nextG = dhp.NewGuard(rec)

restart:
	prev = ol.head
	curPtr := curG.ProtectFunc(&prev.next, derefSucc[K, V])

	for {
		if curPtr == nil {
			return prev, nil, curG, nextG, false
		}
		cur = (*node[K, V])(curPtr)

		nextPtr := nextG.ProtectFunc(&cur.next, derefSucc[K, V])

		// prev may have been spliced since we read cur out of it; if so,
		// the position we are about to reason about is stale.
		fresh := (*markedRef[K, V])(atomic.LoadPointer(&prev.next))
		if fresh == nil || fresh.next != cur {
			goto restart
		}

		mr := (*markedRef[K, V])(atomic.LoadPointer(&cur.next))
		if mr.deleted {
			unmarked := &markedRef[K, V]{next: mr.next, deleted: fresh.deleted}
			if atomic.CompareAndSwapPointer(&prev.next, unsafe.Pointer(fresh), unsafe.Pointer(unmarked)) {
				_ = rec.Retire(unsafe.Pointer(cur), ol.disposeNode)
			}
			goto restart
		}

		if cur.key < key {
			prev = cur
			curPtr = nextPtr
			curG, nextG = nextG, curG
			continue
		}

		return prev, cur, curG, nextG, cur.key == key
	}
}

// unlink performs the physical-unlink half of erase/extract: CAS prev's
// cell from pointing at cur to pointing at succ, preserving prev's own
// deletion flag. A failed CAS here is not an error — some concurrent find
// or another erase got there first — so a future find simply finishes the
// job when it next walks past cur (§4.9 erase).
func (ol *OrderedList[K, V]) unlink(rec *dhp.ThreadRecord, prev, cur, succ *node[K, V]) {
	pmr := (*markedRef[K, V])(atomic.LoadPointer(&prev.next))
	if pmr == nil || pmr.next != cur {
		return
	}
	replacement := &markedRef[K, V]{next: succ, deleted: pmr.deleted}
	if atomic.CompareAndSwapPointer(&prev.next, unsafe.Pointer(pmr), unsafe.Pointer(replacement)) {
		_ = rec.Retire(unsafe.Pointer(cur), ol.disposeNode)
	}
}

func (ol *OrderedList[K, V]) disposeNode(p unsafe.Pointer) {
	ol.pool.put((*node[K, V])(p))
}

// Contains reports whether key is present (§6.3).
func (ol *OrderedList[K, V]) Contains(rec *dhp.ThreadRecord, key K) bool {
	_, _, curG, nextG, found := ol.find(rec, key)
	curG.Release()
	nextG.Release()
	return found
}

// Find is the read-only variant supplemented from libcds's test_list.h
// (SPEC_FULL.md §4): if key is present, f is invoked with its value while
// the node is still guarded, before the guards are released.
func (ol *OrderedList[K, V]) Find(rec *dhp.ThreadRecord, key K, f func(V)) bool {
	_, cur, curG, nextG, found := ol.find(rec, key)
	if found {
		f(cur.value)
	}
	curG.Release()
	nextG.Release()
	return found
}

// Insert adds (key, value) if key is not already present (§4.9). Returns
// false, leaving the list unchanged, if key was found.
func (ol *OrderedList[K, V]) Insert(rec *dhp.ThreadRecord, key K, value V) bool {
	n := ol.pool.get()
	n.key = key
	n.value = value

	b := dhp.NewBackoff()
	for {
		prev, cur, curG, nextG, found := ol.find(rec, key)
		if found {
			curG.Release()
			nextG.Release()
			ol.pool.put(n)
			return false
		}

		atomic.StorePointer(&n.next, unsafe.Pointer(&markedRef[K, V]{next: cur}))

		mr := (*markedRef[K, V])(atomic.LoadPointer(&prev.next))
		spliced := &markedRef[K, V]{next: n, deleted: mr.deleted}
		ok := mr.next == cur && atomic.CompareAndSwapPointer(&prev.next, unsafe.Pointer(mr), unsafe.Pointer(spliced))
		curG.Release()
		nextG.Release()
		if ok {
			atomic.AddInt64(&ol.size, 1)
			return true
		}
		b.Wait()
	}
}

// Erase removes key if present (§4.9). Returns false if key was not found.
func (ol *OrderedList[K, V]) Erase(rec *dhp.ThreadRecord, key K) bool {
	b := dhp.NewBackoff()
	for {
		prev, cur, curG, nextG, found := ol.find(rec, key)
		if !found {
			curG.Release()
			nextG.Release()
			return false
		}

		mr := (*markedRef[K, V])(atomic.LoadPointer(&cur.next))
		marked := &markedRef[K, V]{next: mr.next, deleted: true}
		if mr.deleted || !atomic.CompareAndSwapPointer(&cur.next, unsafe.Pointer(mr), unsafe.Pointer(marked)) {
			curG.Release()
			nextG.Release()
			b.Wait()
			continue
		}
		atomic.AddInt64(&ol.size, -1)
		ol.unlink(rec, prev, cur, mr.next)
		curG.Release()
		nextG.Release()
		return true
	}
}

// Extract removes key if present and returns a GuardedPtr over its value
// so the caller can read it before the node's eventual reclamation (§4.9,
// §6.3). The guard keeping cur alive is handed to the caller instead of
// being released here; Release on the returned GuardedPtr is what finally
// lets a scan reclaim the node if this call also won the physical unlink.
func (ol *OrderedList[K, V]) Extract(rec *dhp.ThreadRecord, key K) (dhp.GuardedPtr[V], bool) {
	b := dhp.NewBackoff()
	for {
		prev, cur, curG, nextG, found := ol.find(rec, key)
		if !found {
			curG.Release()
			nextG.Release()
			return dhp.GuardedPtr[V]{}, false
		}

		mr := (*markedRef[K, V])(atomic.LoadPointer(&cur.next))
		marked := &markedRef[K, V]{next: mr.next, deleted: true}
		if mr.deleted || !atomic.CompareAndSwapPointer(&cur.next, unsafe.Pointer(mr), unsafe.Pointer(marked)) {
			curG.Release()
			nextG.Release()
			b.Wait()
			continue
		}
		atomic.AddInt64(&ol.size, -1)
		ol.unlink(rec, prev, cur, mr.next)

		gp := dhp.NewGuardedPtr[V](curG, unsafe.Pointer(&cur.value))
		nextG.Release()
		return gp, true
	}
}

// Update finds key and replaces its value via f, or — if allowInsert is set
// and key is absent — inserts a new node built from f's result (§4
// "SUPPLEMENTED FEATURES", grounded in test_list.h's update scenario). f is
// called with a pointer to the existing value and true when key is found,
// or a pointer to V's zero value and false when it is about to be
// inserted. Returns false only when key is absent and allowInsert is false.
//
// f's write to the existing node's value field races with any concurrent
// Find/Contains reader the same way the original C++ list's raw value
// field does: no internal synchronization beyond the hazard pointer that
// keeps the node itself alive, by design (§9 "Container nodes").
func (ol *OrderedList[K, V]) Update(rec *dhp.ThreadRecord, key K, f func(value *V, exists bool) V, allowInsert bool) bool {
	b := dhp.NewBackoff()
	for {
		prev, cur, curG, nextG, found := ol.find(rec, key)
		if found {
			cur.value = f(&cur.value, true)
			curG.Release()
			nextG.Release()
			return true
		}

		if !allowInsert {
			curG.Release()
			nextG.Release()
			return false
		}

		var zero V
		n := ol.pool.get()
		n.key = key
		n.value = f(&zero, false)
		atomic.StorePointer(&n.next, unsafe.Pointer(&markedRef[K, V]{next: cur}))

		mr := (*markedRef[K, V])(atomic.LoadPointer(&prev.next))
		spliced := &markedRef[K, V]{next: n, deleted: mr.deleted}
		ok := mr.next == cur && atomic.CompareAndSwapPointer(&prev.next, unsafe.Pointer(mr), unsafe.Pointer(spliced))
		curG.Release()
		nextG.Release()
		if ok {
			atomic.AddInt64(&ol.size, 1)
			return true
		}
		ol.pool.put(n)
		b.Wait()
	}
}

// Empty reports whether the list currently has no elements.
func (ol *OrderedList[K, V]) Empty() bool {
	return atomic.LoadInt64(&ol.size) == 0
}

// Len returns an approximate element count (§4 "SUPPLEMENTED FEATURES"):
// not linearizable with concurrent Insert/Erase, the same caveat as
// stack.Stack.Len.
func (ol *OrderedList[K, V]) Len() int {
	return int(atomic.LoadInt64(&ol.size))
}

// Statistics returns the shared dhp runtime's reclamation counters (§6.3).
func (ol *OrderedList[K, V]) Statistics() dhp.Statistics {
	return dhp.CurrentStatistics()
}

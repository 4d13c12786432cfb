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
	"sort"
	"sync/atomic"
	"unsafe"
)

// defaultInitialHPCount is used when Construct is called with a
// non-positive count.
const defaultInitialHPCount = 8

// counter is a tiny typed wrapper so the statistics fields below read as
// what they are instead of a wall of raw atomic.Add/LoadUint64 calls.
type counter uint64

func (c *counter) add(n uint64)  { atomic.AddUint64((*uint64)(c), n) }
func (c *counter) load() uint64  { return atomic.LoadUint64((*uint64)(c)) }
func (c *counter) set(n uint64)  { atomic.StoreUint64((*uint64)(c), n) }

// smrState is the process-wide singleton described in spec §3/§4.4. It is
// deliberately a package-level var rather than a constructor-returned
// handle: the SMR runtime is inherently process-global (every attached
// thread must see the same record list and pools), and every example in
// this pack that models a comparable singleton (the access-barrier SMR, the
// GenPool object pool) does the same.
type smrState struct {
	head        unsafe.Pointer // *ThreadRecord
	constructed uint32

	initialHP   int
	guardPool   *guardBlockPool
	retiredPool *retiredBlockPool

	allocFn func(uintptr) unsafe.Pointer
	freeFn  func(unsafe.Pointer)

	lastPlistSize int64 // atomic hint, §9 "not guessed"

	statGuardBlocksAllocated   counter
	statRetiredBlocksAllocated counter
	statRetired                counter
	statFreedByScan            counter
	statMigratedByHelpScan     counter
	statScans                  counter
	statHelpScans              counter
	statGuardExtensions        counter
}

var global smrState

// Statistics is a point-in-time copy of the runtime's reclamation counters
// (§6.1 statistics(out), supplemented per SPEC_FULL.md §4).
type Statistics struct {
	GuardBlocksAllocated   uint64
	RetiredBlocksAllocated uint64
	Retired                uint64
	FreedByScan            uint64
	MigratedByHelpScan     uint64
	ScanCalls              uint64
	HelpScanCalls          uint64
	GuardExtensionsAllocated uint64
}

// SetMemoryAllocator records a process-wide allocator pair on the
// singleton. It must be called before Construct: once constructed, a call
// is ignored, so the pair stays fixed for the lifetime of the constructed
// SMR (§5 "Allocator policy"); Destruct clears it. Nothing in this module
// calls the recorded pair: the runtime's blocks and the stack and list
// nodes are allocated with Go's own allocator.
func SetMemoryAllocator(allocFn func(uintptr) unsafe.Pointer, freeFn func(unsafe.Pointer)) {
	if atomic.LoadUint32(&global.constructed) == 1 {
		return
	}
	global.allocFn = allocFn
	global.freeFn = freeFn
}

// Construct installs the singleton. It is idempotent: a second call while
// already constructed is a no-op, matching §4.4.
func Construct(initialHPCount int) {
	if !atomic.CompareAndSwapUint32(&global.constructed, 0, 1) {
		return
	}
	if initialHPCount <= 0 {
		initialHPCount = defaultInitialHPCount
	}
	global.initialHP = initialHPCount
	global.guardPool = newGuardBlockPool()
	global.retiredPool = newRetiredBlockPool()
	atomic.StorePointer(&global.head, nil)
}

// Destruct runs ForceDispose on every live thread record (and on inactive
// ones as well when detachAll is set), then clears the singleton, dropping
// the record list and both block pools, so a later Construct starts
// pristine (§4.4, testable property
// "construct(); destruct(); construct() is defined and yields a pristine
// SMR").
func Destruct(detachAll bool) {
	if atomic.LoadUint32(&global.constructed) == 0 {
		return
	}
	rec := (*ThreadRecord)(atomic.LoadPointer(&global.head))
	for rec != nil {
		next := (*ThreadRecord)(atomic.LoadPointer(&rec.next))
		if detachAll || atomic.LoadUint32(&rec.active) == 1 {
			rec.ForceDispose()
		}
		rec = next
	}
	global = smrState{}
}

// AttachThread installs a thread record for the calling logical thread:
// it reuses an inactive record from the global list if one is available,
// or allocates and links a fresh one otherwise (§4.4). The returned handle
// must be passed explicitly to every subsequent Guard/container operation
// until Detach is called (see doc.go).
func AttachThread() (*ThreadRecord, error) {
	if atomic.LoadUint32(&global.constructed) == 0 {
		return nil, ErrNotConstructed
	}

	cur := (*ThreadRecord)(atomic.LoadPointer(&global.head))
	for cur != nil {
		if atomic.CompareAndSwapUint32(&cur.active, 0, 1) {
			cur.hazards.reinit(global.initialHP)
			return cur, nil
		}
		cur = (*ThreadRecord)(atomic.LoadPointer(&cur.next))
	}

	rec := newThreadRecord(global.initialHP)
	rec.active = 1
	for {
		head := atomic.LoadPointer(&global.head)
		atomic.StorePointer(&rec.next, head)
		if atomic.CompareAndSwapPointer(&global.head, head, unsafe.Pointer(rec)) {
			break
		}
	}
	return rec, nil
}

// Detach runs help_scan then scan on this record (so nothing it holds is
// stranded), returns its hazard storage's extension blocks to the global
// pool (§3, §4.2's clear(), "called on detach"), then marks it inactive and
// reusable (§4.4). Without the hazards.clear() call here, a record reused
// across many attach/detach cycles would keep growing extHead forever:
// reinit only ever rebuilds the free list from the initial array, so any
// extension block a thread grew into would stay permanently linked (and
// walked by every future Scan) without ever coming back to guardPool.
func (rec *ThreadRecord) Detach() {
	rec.HelpScan()
	rec.Scan()
	rec.hazards.clear()
	atomic.StoreUint32(&rec.active, 0)
}

// Retire enqueues p for deferred reclamation, running a scan first if the
// current retired block is full (§4.4).
func (rec *ThreadRecord) Retire(p unsafe.Pointer, deleter func(unsafe.Pointer)) error {
	if atomic.LoadUint32(&rec.active) == 0 {
		return ErrNotAttached
	}
	rp := retiredPtr{p: p, deleter: deleter}
	if !rec.retired.push(rp) {
		rec.Scan()
		if !rec.retired.push(rp) {
			return ErrOutOfMemory
		}
	}
	global.statRetired.add(1)
	return nil
}

// Scan is the reclamation algorithm of §4.5: snapshot every active
// thread's hazards, partition this thread's retired array against that
// snapshot, and free whatever is not still hazarded.
func (rec *ThreadRecord) Scan() {
	global.statScans.add(1)
	plist := snapshotHazards()
	freed := rec.retired.partition(plist, global.retiredPool)
	global.statFreedByScan.add(uint64(freed))
	atomic.StoreInt64(&global.lastPlistSize, int64(len(plist)))
}

// ForceDispose is Scan plus releasing every now-empty trailing retired
// block back to the pool, rather than keeping one spare chained — the
// §4 "SUPPLEMENTED FEATURES" force_dispose entry point. Destruct runs it
// on the records it disposes (see Destruct).
func (rec *ThreadRecord) ForceDispose() {
	rec.Scan()
	trailing := (*retiredBlock)(rec.retired.curBlock.next)
	rec.retired.curBlock.next = nil
	for trailing != nil {
		next := (*retiredBlock)(trailing.next)
		global.retiredPool.Put(trailing)
		trailing = next
	}
}

// HelpScan drains the retired arrays of inactive thread records into this
// one, so nothing retired by a thread that has since detached is stranded
// forever (§4.6). It claims a record by CASing its active flag from 0 to 1
// (the same transition AttachThread uses, so the two never race for the
// same record), migrates, then releases the claim.
func (rec *ThreadRecord) HelpScan() {
	global.statHelpScans.add(1)
	cur := (*ThreadRecord)(atomic.LoadPointer(&global.head))
	for cur != nil {
		next := (*ThreadRecord)(atomic.LoadPointer(&cur.next))
		if cur != rec && atomic.LoadUint32(&cur.active) == 0 {
			if atomic.CompareAndSwapUint32(&cur.active, 0, 1) {
				migrated := cur.retired.drainInto(rec, global.retiredPool)
				global.statMigratedByHelpScan.add(uint64(migrated))
				atomic.StoreUint32(&cur.active, 0)
			}
		}
		cur = next
	}
}

// snapshotHazards walks the global thread-record list and collects every
// currently-published hazard from every active record, then sorts the
// result so partition's membership test is a binary search (§4.5 phases
// 1–3). Walking the list at all is the acquire-ordered fence described in
// §4.5 phase 1: a new record is linked with release ordering, so this load
// is guaranteed to see every record (and, transitively, every guard slot
// store that happened-before the corresponding retirement).
func snapshotHazards() []unsafe.Pointer {
	hint := atomic.LoadInt64(&global.lastPlistSize)
	if hint < 0 {
		hint = 0
	}
	plist := make([]unsafe.Pointer, 0, hint+guardBlockSize)

	cur := (*ThreadRecord)(atomic.LoadPointer(&global.head))
	for cur != nil {
		if atomic.LoadUint32(&cur.active) == 1 {
			cur.hazards.collectInto(&plist)
		}
		cur = (*ThreadRecord)(atomic.LoadPointer(&cur.next))
	}

	sort.Slice(plist, func(i, j int) bool {
		return uintptr(plist[i]) < uintptr(plist[j])
	})
	return plist
}

// CurrentStatistics returns a point-in-time copy of the runtime's counters.
func CurrentStatistics() Statistics {
	return Statistics{
		GuardBlocksAllocated:     global.statGuardBlocksAllocated.load(),
		RetiredBlocksAllocated:   global.statRetiredBlocksAllocated.load(),
		Retired:                  global.statRetired.load(),
		FreedByScan:              global.statFreedByScan.load(),
		MigratedByHelpScan:       global.statMigratedByHelpScan.load(),
		ScanCalls:                global.statScans.load(),
		HelpScanCalls:            global.statHelpScans.load(),
		GuardExtensionsAllocated: global.statGuardExtensions.load(),
	}
}

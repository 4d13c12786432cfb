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
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetGlobal tears down any prior singleton so each test starts pristine.
// Tests in this package never run t.Parallel() against each other because
// they all share the one process-wide singleton (§3/§4.4's "State: process-
// wide state S").
func resetGlobal(t *testing.T) {
	t.Helper()
	Destruct(true)
}

func TestConstructDestructIsPristine(t *testing.T) {
	resetGlobal(t)
	Construct(8)
	rec, err := AttachThread()
	require.NoError(t, err)
	require.NotNil(t, rec)
	rec.Detach()
	Destruct(false)

	// construct(); destruct(); construct() must be defined and yield a
	// pristine SMR (§8 round-trip law).
	Construct(8)
	defer Destruct(true)
	stats := CurrentStatistics()
	assert.Zero(t, stats.Retired)
	assert.Zero(t, stats.FreedByScan)
	assert.Zero(t, stats.GuardBlocksAllocated)
}

func TestConstructIsIdempotent(t *testing.T) {
	resetGlobal(t)
	Construct(4)
	defer Destruct(true)
	Construct(64) // second call must be a silent no-op, not re-init with 64
	assert.Equal(t, 4, global.initialHP)
}

func TestAttachBeforeConstructFails(t *testing.T) {
	resetGlobal(t)
	rec, err := AttachThread()
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrNotConstructed)
}

func TestAttachDetachAttachReusesRecord(t *testing.T) {
	resetGlobal(t)
	Construct(8)
	defer Destruct(true)

	rec1, err := AttachThread()
	require.NoError(t, err)
	rec1.Detach()

	rec2, err := AttachThread()
	require.NoError(t, err)
	assert.Same(t, rec1, rec2, "a reusable inactive record should be adopted rather than a fresh one allocated")

	// The inner detach must not have leaked retired items: a fresh attach
	// sees a clean retired array.
	assert.Equal(t, 0, int(rec2.retired.curCell))
	rec2.Detach()
}

func TestGuardProtectReleaseRoundTrip(t *testing.T) {
	resetGlobal(t)
	Construct(8)
	defer Destruct(true)

	rec, err := AttachThread()
	require.NoError(t, err)
	defer rec.Detach()

	var target unsafe.Pointer
	val := 42
	target = unsafe.Pointer(&val)

	g := NewGuard(rec)
	got := g.Protect(&target)
	assert.Equal(t, unsafe.Pointer(&val), got)
	assert.Equal(t, unsafe.Pointer(&val), g.Get())

	slot := g.slot
	g.Release()
	assert.Nil(t, slot.get(), "released guard's slot must read back as cleared")

	// The slot must be callable again: allocate another guard and confirm
	// it does not panic or alias a still-published slot.
	g2 := NewGuard(rec)
	g2.Assign(target)
	assert.Equal(t, target, g2.Get())
	g2.Release()
}

// TestGuardExtensionBoundary is scenario 5: allocating the
// (initial_capacity+1)-th guard triggers exactly one extension-block
// allocation, and releasing it and reallocating does not request another.
func TestGuardExtensionBoundary(t *testing.T) {
	resetGlobal(t)
	Construct(2)
	defer Destruct(true)

	rec, err := AttachThread()
	require.NoError(t, err)
	defer rec.Detach()

	before := CurrentStatistics().GuardExtensionsAllocated

	ga := NewGuardArray(rec, 3)
	after := CurrentStatistics().GuardExtensionsAllocated
	assert.Equal(t, before+1, after, "allocating past initial capacity should grow by exactly one extension block")

	ga.Clear(2)
	ga.Release()

	before2 := CurrentStatistics().GuardExtensionsAllocated
	ga2 := NewGuardArray(rec, 3)
	after2 := CurrentStatistics().GuardExtensionsAllocated
	assert.Equal(t, before2, after2, "freeing and reallocating the same count should reuse the earlier extension, not grow again")
	ga2.Release()
}

// TestFirstRetireDoesNotScan is a boundary behavior: the first retire after
// construct must not trigger scan or extend the retired array.
func TestFirstRetireDoesNotScan(t *testing.T) {
	resetGlobal(t)
	Construct(8)
	defer Destruct(true)

	rec, err := AttachThread()
	require.NoError(t, err)
	defer rec.Detach()

	before := CurrentStatistics().ScanCalls
	val := 1
	err = rec.Retire(unsafe.Pointer(&val), func(unsafe.Pointer) {})
	require.NoError(t, err)
	assert.Equal(t, before, CurrentStatistics().ScanCalls)
}

// TestRetireFillsBlockTriggersScan is a boundary behavior: the retire that
// exactly fills the first retired block must make the *next* retire
// trigger a scan rather than silently overflow.
func TestRetireFillsBlockTriggersScan(t *testing.T) {
	resetGlobal(t)
	Construct(8)
	defer Destruct(true)

	rec, err := AttachThread()
	require.NoError(t, err)
	defer rec.Detach()

	vals := make([]int, retiredBlockSize+1)
	for i := 0; i < retiredBlockSize; i++ {
		require.NoError(t, rec.Retire(unsafe.Pointer(&vals[i]), func(unsafe.Pointer) {}))
	}
	before := CurrentStatistics().ScanCalls
	require.NoError(t, rec.Retire(unsafe.Pointer(&vals[retiredBlockSize]), func(unsafe.Pointer) {}))
	assert.Equal(t, before+1, CurrentStatistics().ScanCalls, "the (N+1)th retire into a full block must trigger exactly one scan")
}

// TestDetachStrandedReclaimedByHelpScan is scenario 4: T1 retires items
// without filling its block and detaches; after T2's HelpScan, every one of
// them has been either freed by a scan (Detach runs one on T1 before going
// inactive) or migrated by help_scan, and nothing remains in T1's
// now-inactive record.
func TestDetachStrandedReclaimedByHelpScan(t *testing.T) {
	resetGlobal(t)
	Construct(8)
	defer Destruct(true)

	rec1, err := AttachThread()
	require.NoError(t, err)

	vals := make([]int, 10)
	for i := range vals {
		require.NoError(t, rec1.Retire(unsafe.Pointer(&vals[i]), func(unsafe.Pointer) {}))
	}

	// rec2 must attach while rec1 is still active, so it gets a distinct
	// record rather than reusing rec1 the instant it goes inactive below.
	rec2, err := AttachThread()
	require.NoError(t, err)
	require.NotSame(t, rec1, rec2)

	before := CurrentStatistics()
	rec1.Detach()
	assert.Equal(t, uint32(0), atomic.LoadUint32(&rec1.active))

	rec2.HelpScan()
	after := CurrentStatistics()
	assert.Equal(t, before.FreedByScan+before.MigratedByHelpScan+10, after.FreedByScan+after.MigratedByHelpScan)

	// Nothing remains in rec1's retired array: it was drained and
	// reinitialized to a single empty block.
	assert.Equal(t, rec1.retired.head, rec1.retired.curBlock)
	assert.Equal(t, 0, rec1.retired.curCell)

	rec2.Detach()
}

// TestHazardObservedAcrossRetire is scenario 2: a node guarded by one
// thread must not be freed by another thread's scan while the guard is
// still held.
func TestHazardObservedAcrossRetire(t *testing.T) {
	resetGlobal(t)
	Construct(8)
	defer Destruct(true)

	recA, err := AttachThread()
	require.NoError(t, err)
	recB, err := AttachThread()
	require.NoError(t, err)

	val := 7
	var target unsafe.Pointer = unsafe.Pointer(&val)

	gA := NewGuard(recA)
	gA.Protect(&target)

	var freed int32
	require.NoError(t, recB.Retire(unsafe.Pointer(&val), func(unsafe.Pointer) {
		atomic.StoreInt32(&freed, 1)
	}))
	recB.Scan()
	assert.Zero(t, atomic.LoadInt32(&freed), "scan must not free a node still held by another thread's guard")

	gA.Release()
	recB.Scan()
	assert.Equal(t, int32(1), atomic.LoadInt32(&freed), "once the guard is released, a subsequent scan must free the node")

	recA.Detach()
	recB.Detach()
}

func TestConcurrentAttachDetachIsRaceFree(t *testing.T) {
	resetGlobal(t)
	Construct(4)
	defer Destruct(true)

	const goroutines = 16
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			rec, err := AttachThread()
			if err != nil {
				return
			}
			g := NewGuard(rec)
			val := 1
			var target unsafe.Pointer = unsafe.Pointer(&val)
			g.Protect(&target)
			g.Release()
			require.NoError(t, rec.Retire(unsafe.Pointer(&val), func(unsafe.Pointer) {}))
			rec.Detach()
		}()
	}
	wg.Wait()
}

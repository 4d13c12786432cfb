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
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dijkstracula/go-dhp/dhp"
)

func withRuntime(t *testing.T, initialHP int, fn func()) {
	t.Helper()
	dhp.Destruct(true)
	dhp.Construct(initialHP)
	defer dhp.Destruct(true)
	fn()
}

func TestInsertContainsErase(t *testing.T) {
	withRuntime(t, 16, func() {
		rec, err := dhp.AttachThread()
		require.NoError(t, err)
		defer rec.Detach()

		l := New[int, string]()
		assert.True(t, l.Insert(rec, 5, "five"))
		assert.True(t, l.Insert(rec, 1, "one"))
		assert.True(t, l.Insert(rec, 3, "three"))
		assert.False(t, l.Insert(rec, 3, "three-again"))
		assert.Equal(t, 3, l.Len())

		assert.True(t, l.Contains(rec, 1))
		assert.True(t, l.Contains(rec, 3))
		assert.False(t, l.Contains(rec, 42))

		var got string
		found := l.Find(rec, 5, func(v string) { got = v })
		assert.True(t, found)
		assert.Equal(t, "five", got)

		assert.True(t, l.Erase(rec, 1))
		assert.False(t, l.Erase(rec, 1))
		assert.False(t, l.Contains(rec, 1))
		assert.Equal(t, 2, l.Len())

		rec.Scan()
	})
}

func TestExtractReturnsGuardedValue(t *testing.T) {
	withRuntime(t, 8, func() {
		rec, err := dhp.AttachThread()
		require.NoError(t, err)
		defer rec.Detach()

		l := New[int, string]()
		require.True(t, l.Insert(rec, 7, "seven"))

		gp, ok := l.Extract(rec, 7)
		require.True(t, ok)
		assert.Equal(t, "seven", *gp.Get())
		assert.False(t, l.Contains(rec, 7))

		gp.Release()
		rec.Scan()

		_, ok = l.Extract(rec, 7)
		assert.False(t, ok)
	})
}

func TestUpdateFindOrInsert(t *testing.T) {
	withRuntime(t, 8, func() {
		rec, err := dhp.AttachThread()
		require.NoError(t, err)
		defer rec.Detach()

		l := New[int, int]()

		ok := l.Update(rec, 10, func(v *int, exists bool) int {
			assert.False(t, exists)
			return 100
		}, false)
		assert.False(t, ok)
		assert.False(t, l.Contains(rec, 10))

		ok = l.Update(rec, 10, func(v *int, exists bool) int {
			assert.False(t, exists)
			return 100
		}, true)
		assert.True(t, ok)

		var seen int
		l.Find(rec, 10, func(v int) { seen = v })
		assert.Equal(t, 100, seen)

		ok = l.Update(rec, 10, func(v *int, exists bool) int {
			require.True(t, exists)
			return *v + 1
		}, true)
		assert.True(t, ok)

		l.Find(rec, 10, func(v int) { seen = v })
		assert.Equal(t, 101, seen)
	})
}

// TestConcurrentSortedInsertion is spec §8 scenario 3: several threads each
// insert a disjoint block of keys from the same list concurrently with a
// reader repeatedly looking every key up; afterward the list's keys, read
// out via repeated Extract, must come back strictly sorted with exactly the
// number of distinct keys inserted.
func TestConcurrentSortedInsertion(t *testing.T) {
	withRuntime(t, 8, func() {
		l := New[int, int]()
		const writers = 5
		const perWriter = 100

		var readerWG, writerWG sync.WaitGroup
		readerWG.Add(1)
		writerWG.Add(writers)

		stop := make(chan struct{})
		go func() {
			defer readerWG.Done()
			rec, err := dhp.AttachThread()
			require.NoError(t, err)
			defer rec.Detach()
			for {
				select {
				case <-stop:
					return
				default:
					l.Contains(rec, rand.Intn(writers*perWriter))
				}
			}
		}()

		for w := 0; w < writers; w++ {
			go func(base int) {
				defer writerWG.Done()
				rec, err := dhp.AttachThread()
				require.NoError(t, err)
				defer rec.Detach()
				keys := rand.Perm(perWriter)
				for _, k := range keys {
					l.Insert(rec, base*perWriter+k, base*perWriter+k)
				}
			}(w)
		}

		writerWG.Wait()
		close(stop)
		readerWG.Wait()

		rec, err := dhp.AttachThread()
		require.NoError(t, err)
		defer rec.Detach()

		assert.Equal(t, writers*perWriter, l.Len())

		var out []int
		for k := 0; k < writers*perWriter; k++ {
			if gp, ok := l.Extract(rec, k); ok {
				out = append(out, *gp.Get())
				gp.Release()
			}
		}
		assert.Equal(t, writers*perWriter, len(out))
		assert.True(t, sort.IntsAreSorted(out))
		assert.True(t, l.Empty())
	})
}

// TestDeletedNodeStaysGuardedAcrossEraseOnOtherThread is spec §8 scenario 6
// in spirit: one thread finds and holds a guard on a node via Extract while
// a burst of concurrent Insert/Erase/Scan traffic runs on other threads.
// The held value must still read correctly after the burst, and releasing
// it afterward must not corrupt the node pool (no double-free panics).
func TestDeletedNodeStaysGuardedAcrossEraseOnOtherThread(t *testing.T) {
	withRuntime(t, 8, func() {
		l := New[int, int]()

		rec1, err := dhp.AttachThread()
		require.NoError(t, err)
		require.True(t, l.Insert(rec1, 1, 111))

		held, ok := l.Extract(rec1, 1)
		require.True(t, ok)
		require.Equal(t, 111, *held.Get())

		rec2, err := dhp.AttachThread()
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				l.Insert(rec2, 1000+i, i)
				l.Erase(rec2, 1000+i)
			}
			rec2.Scan()
		}()
		wg.Wait()

		assert.Equal(t, 111, *held.Get())
		held.Release()
		rec1.Scan()

		rec1.Detach()
		rec2.Detach()
	})
}

func BenchmarkInsertErase(b *testing.B) {
	dhp.Destruct(true)
	dhp.Construct(8)
	defer dhp.Destruct(true)

	l := New[int, int]()
	rec, err := dhp.AttachThread()
	if err != nil {
		b.Fatal(err)
	}
	defer rec.Detach()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Insert(rec, i, i)
		l.Erase(rec, i)
	}
}

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

	"github.com/dijkstracula/go-dhp/dhp"
)

// config holds the options a Stack is built with. The teacher's ilock.Mutex
// takes no configuration at all; the elimination knobs here are grounded
// instead in libcds's intrusive_stack_type.h, which parameterizes the
// elimination array's size and per-slot spin bound as compile-time
// template arguments — promoted to runtime options per Go idiom (SPEC_FULL
// §4 "Elimination array sizing").
type config struct {
	eliminationSize  int
	eliminationSpins int
}

// Option configures a Stack at construction time.
type Option func(*config)

// WithElimination turns on the optional elimination back-off array (§4.8)
// with the given slot count and per-attempt spin bound.
func WithElimination(size, spins int) Option {
	return func(c *config) {
		c.eliminationSize = size
		c.eliminationSpins = spins
	}
}

// Stack is a lock-free LIFO (§4.8): push and pop both retry a CAS on top
// until it succeeds, and pop publishes a hazard pointer before
// dereferencing the node it is about to unlink so a concurrent Retire
// elsewhere cannot free it out from under the caller.
type Stack[T any] struct {
	top  unsafe.Pointer // *node[T]
	size int64
	pool nodePool[T]
	elim *eliminationArray
}

// New constructs an empty Stack. Options may enable the optional
// elimination back-off.
func New[T any](opts ...Option) *Stack[T] {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	s := &Stack[T]{}
	if cfg.eliminationSize > 0 {
		s.elim = newEliminationArray(cfg.eliminationSize, cfg.eliminationSpins)
	}
	return s
}

// Push inserts value at the top of the stack. It never blocks: a failed
// CAS either retries directly or, if elimination is enabled, first tries
// to hand the value straight to a waiting Pop.
func (s *Stack[T]) Push(value T) {
	n := s.pool.get()
	n.value = value

	b := dhp.NewBackoff()
	for {
		top := atomic.LoadPointer(&s.top)
		atomic.StorePointer(&n.next, top)
		if atomic.CompareAndSwapPointer(&s.top, top, unsafe.Pointer(n)) {
			atomic.AddInt64(&s.size, 1)
			return
		}
		if s.elim != nil && s.elim.tryPush(unsafe.Pointer(n)) {
			atomic.AddInt64(&s.size, 1)
			return
		}
		b.Wait()
	}
}

// Pop removes and returns the top of the stack, guarded for as long as the
// returned GuardedPtr is not released (§4.8). The second return value is
// false if the stack was empty. rec must be the calling goroutine's
// attached thread record (see dhp's package doc for why there is no
// implicit per-goroutine lookup).
func (s *Stack[T]) Pop(rec *dhp.ThreadRecord) (dhp.GuardedPtr[T], bool) {
	g := dhp.NewGuard(rec)
	b := dhp.NewBackoff()
	for {
		topPtr := g.Protect(&s.top)
		if topPtr == nil {
			g.Release()
			if s.elim != nil {
				if v, ok := s.elim.tryPop(); ok {
					return s.fromEliminatedValue(v), true
				}
			}
			return dhp.GuardedPtr[T]{}, false
		}

		top := (*node[T])(topPtr)
		next := atomic.LoadPointer(&top.next)
		if atomic.CompareAndSwapPointer(&s.top, topPtr, next) {
			atomic.AddInt64(&s.size, -1)
			gp := dhp.NewGuardedPtr[T](g, unsafe.Pointer(&top.value))
			// The container never inspects the error: per §7, if retire
			// cannot enqueue the node, the container leaks it rather than
			// risk corrupting the free list or the hazard bookkeeping.
			_ = rec.Retire(topPtr, func(p unsafe.Pointer) {
				s.pool.put((*node[T])(p))
			})
			return gp, true
		}
		b.Wait()
	}
}

// fromEliminatedValue packages a node traded directly through the
// elimination array. No hazard pointer is needed for it (§4.8): the value
// never entered the shared node chain, so no concurrent Retire could ever
// target it. The node itself is returned to the pool immediately, and the
// value is copied out to a standalone cell so the caller's GuardedPtr does
// not alias memory a subsequent Push may recycle.
func (s *Stack[T]) fromEliminatedValue(p unsafe.Pointer) dhp.GuardedPtr[T] {
	n := (*node[T])(p)
	atomic.AddInt64(&s.size, -1)
	val := n.value
	s.pool.put(n)
	out := new(T)
	*out = val
	return dhp.NewGuardedPtr[T](nil, unsafe.Pointer(out))
}

// Empty reports whether the stack currently has no elements.
func (s *Stack[T]) Empty() bool {
	return atomic.LoadPointer(&s.top) == nil
}

// Len returns an approximate element count (§4 "SUPPLEMENTED FEATURES"):
// it is not linearizable with concurrent Push/Pop, consistent with a
// lock-free container's lack of a single global synchronization point.
func (s *Stack[T]) Len() int {
	return int(atomic.LoadInt64(&s.size))
}

// Statistics returns the shared dhp runtime's reclamation counters (§6.3).
func (s *Stack[T]) Statistics() dhp.Statistics {
	return dhp.CurrentStatistics()
}

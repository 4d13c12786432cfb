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
	"math/rand"
	"time"
)

const (
	startingBackoff = 50 * time.Microsecond
	maxBackoff       = 500 * time.Millisecond
	backoffFactor    = 2
)

// Backoff is a bounded exponential backoff with jitter, used by the
// CAS-retry loops of the container packages (stack's push/pop retries, the
// list's insert/erase/extract/update retries). It has no relation to a
// blocking lock: Wait always returns; callers decide how many times to call
// it before giving up.
type Backoff struct {
	cur time.Duration
}

// NewBackoff returns a Backoff starting at the shortest wait.
func NewBackoff() *Backoff {
	return &Backoff{cur: startingBackoff}
}

// Wait sleeps for a jittered duration and grows the backoff geometrically,
// capped at maxBackoff.
func (b *Backoff) Wait() {
	jitter := time.Duration(rand.Int63n(int64(b.cur) + 1))
	time.Sleep(jitter)
	next := b.cur * backoffFactor
	if next > maxBackoff {
		next = maxBackoff
	}
	b.cur = next
}

// Reset returns the backoff to its initial, shortest wait.
func (b *Backoff) Reset() {
	b.cur = startingBackoff
}

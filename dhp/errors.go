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

import "errors"

// Sentinel errors for the SMR-level programmer-error and resource-exhaustion
// cases. "Not constructed" and "not attached" are programmer errors by
// design (§7): containers never see them because they only touch the
// runtime through an already-attached *ThreadRecord.
var (
	// ErrNotConstructed is returned by AttachThread when Construct has not
	// been called (or has already been torn down by Destruct).
	ErrNotConstructed = errors.New("dhp: smr not constructed")

	// ErrNotAttached is returned when an operation is attempted through a
	// ThreadRecord that has been detached.
	ErrNotAttached = errors.New("dhp: thread record is not attached")

	// ErrOutOfMemory is returned when retire cannot enqueue a pointer
	// because neither the current retired block nor a freshly scanned one
	// has room, and the retired-block pool could not grow.
	ErrOutOfMemory = errors.New("dhp: allocator exhausted")
)

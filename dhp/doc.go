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

// Package dhp implements a dynamic hazard pointer (DHP) safe-memory-reclamation
// runtime: readers publish the addresses they are about to dereference into
// per-thread hazard slots, and a reclaiming thread only frees a retired node
// once no published slot anywhere in the process still names it.
//
// The runtime is organized around a few cooperating pieces:
//
//   - a guard slot is a single atomic pointer cell a reader uses to say "I am
//     looking at this address";
//   - a thread record owns a growable set of guard slots (its "hazard
//     storage") plus a list of retired-but-not-yet-freed pointers;
//   - the package-level singleton links every attached thread's record into
//     one global list, and runs the reclamation scan that intersects
//     retired pointers against every live thread's published hazards.
//
// Goroutines have no stable OS-thread identity, so there is no language-level
// place to hang a "current thread's hazard storage" the way the C/C++ designs
// this runtime is modeled on do. Callers get an explicit *ThreadRecord handle
// back from AttachThread and thread it through every subsequent call for the
// life of the logical "thread" (one handle per goroutine that touches a
// container built on this package) — the same explicit-context convention Go
// already uses for context.Context.
package dhp

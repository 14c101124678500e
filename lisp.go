// Package lisp is a self-contained Lisp interpreter built on a single
// fixed-size cell buffer: a cons-pair pool with a free list, an atom/string
// heap growing upward from the pool, and a value stack growing down from the
// top. Values are NaN-boxed float64s, so numbers carry no tag at all. Pairs
// are reclaimed by a mark-sweep collector (with an optional recursive mark
// phase next to the default pointer-reversal one) and the heap by a
// relink-then-move compactor.
package lisp

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
)

// Value is a NaN-boxed Lisp expression. A genuine number is itself; anything
// else is a quiet NaN whose top 16 bits hold the kind tag and whose low 32
// bits hold an ordinal (a pool index, a heap byte offset, or a primitive
// table index).
type Value float64

const (
	tagPrim = 0x7ff9
	tagAtom = 0x7ffa
	tagStr  = 0x7ffb
	tagCons = 0x7ffc
	tagClos = 0x7ffe
	tagMacr = 0x7fff
	tagNil  = 0xffff
)

// refW is the width of the back-reference field that prefixes every heap
// entry; the compactor threads its relink lists through it.
const refW = 4

// Nil is the empty list, the sole false value.
var Nil = box(tagNil, 0)

func box(t uint64, i uint32) Value {
	return Value(math.Float64frombits(t<<48 | uint64(i)))
}

func bits(x Value) uint64  { return math.Float64bits(float64(x)) }
func tag(x Value) uint64   { return bits(x) >> 48 }
func ordOf(x Value) uint32 { return uint32(bits(x)) }

// equ is value identity: bit equality of the encodings.
func equ(x, y Value) bool { return bits(x) == bits(y) }

// isPair reports whether x is a Cons, Closure or Macro, all of which live in
// the pair pool.
func isPair(x Value) bool { return tag(x)&^(tagCons^tagMacr) == tagCons }

// isAtomStr reports whether x references heap bytes (Atom or String).
func isAtomStr(x Value) bool { return tag(x)&^(tagAtom^tagStr) == tagAtom }

// numeric reports whether x is an actual number (not a tagged NaN).
func numeric(x Value) bool { f := float64(x); return f == f }

// Num boxes a host float64 as a Lisp number.
func Num(f float64) Value { return Value(f) }

// T traces to the global syntax tracer.
func T() tracing.Trace { return gtrace.SyntaxTracer }

// Mode is the evaluation mode of a primitive.
type Mode uint8

const (
	// Normal primitives receive their arguments already evaluated.
	Normal Mode = 0
	// Special primitives receive the raw argument list and may mutate the
	// caller's environment through the slot they are handed.
	Special Mode = 1
	// Tailcall primitives return an expression the evaluator loop keeps
	// evaluating instead of a final value.
	Tailcall Mode = 2
)

// PrimFunc is a builtin: it gets the interpreter, the (possibly evaluated)
// argument list, and a slot holding the current environment.
type PrimFunc func(it *Interp, t Value, e *Value) Value

// Prim is one entry of the primitive table.
type Prim struct {
	Name string
	F    PrimFunc
	M    Mode
}

// Interp is one interpreter instance. Instances are independent and strictly
// single-threaded; Interrupt is the only method safe to call concurrently.
type Interp struct {
	cell []Value  // the single buffer: pool, heap and stack
	heap []byte   // byte view of cell, the heap lives at [h, hp)
	used []uint32 // mark bits, one per pair slot

	p, n uint32 // pool cells, total cells
	h    uint32 // heap base byte offset, 8*p

	fp, hp, sp uint32
	tr         int

	env Value // the global environment
	tru Value // the atom #t

	prims   []Prim
	recMark bool

	out  io.Writer
	in   []source
	see  byte
	buf  []byte
	ps   string
	line func(prompt string) (string, error)
	ln   []byte
	lpos int

	intr int32
}

// DefaultPool and DefaultCells match the reference interpreter sizes: an
// 8192-cell pair pool plus 2048 cells shared by the stack and the heap.
const (
	DefaultPool  = 8192
	DefaultCells = 2048
)

// New builds an interpreter with a pool of pool cells and cells cells shared
// by the stack and heap. Construction failures (sizes too small to hold the
// primitive table and prelude) panic; after New returns, all errors are
// recoverable.
func New(pool, cells uint32) *Interp {
	panicif(pool%2 != 0 || pool < 64, "lisp: pool size must be even and at least 64")
	panicif(cells < 256, "lisp: stack/heap size must be at least 256")
	panicif(pool+cells > 1<<29, "lisp: heap byte offsets must fit 32 bits")
	n := pool + cells
	it := &Interp{
		cell: make([]Value, n),
		used: make([]uint32, (pool+63)/64),
		p:    pool,
		n:    n,
		h:    8 * pool,
		hp:   8 * pool,
		sp:   n,
		out:  os.Stdout,
		see:  '\n',
	}
	it.heap = unsafe.Slice((*byte)(unsafe.Pointer(&it.cell[0])), int(n)*8)
	it.sweep()
	it.env = Nil
	it.tru = it.Atom("#t")
	it.env = it.pair(it.tru, it.tru, Nil)
	it.prims = append([]Prim(nil), builtins...)
	for i := range it.prims {
		it.env = it.pair(it.Atom(it.prims[i].Name), box(tagPrim, uint32(i)), it.env)
	}
	_, err := it.Run(prelude)
	panicif(err != nil, "lisp: prelude failed")
	return it
}

// Install registers an extra primitive under name with evaluation mode m and
// binds it in the global environment.
func (it *Interp) Install(name string, m Mode, f PrimFunc) {
	i := uint32(len(it.prims))
	it.prims = append(it.prims, Prim{name, f, m})
	it.env = it.pair(it.Atom(name), box(tagPrim, i), it.env)
}

// RecursiveMark selects the recursive mark phase instead of the default
// pointer-reversal one. Both compute identical reachable sets.
func (it *Interp) RecursiveMark(on bool) { it.recMark = on }

// Globals returns the global environment list.
func (it *Interp) Globals() Value { return it.env }

// SetOutput redirects print/println/write and the printer.
func (it *Interp) SetOutput(w io.Writer) { it.out = w }

// SetLine installs the interactive line reader used when no file or string
// source is active. The prompt is the one set by SetPrompt for the first
// line of an expression and "?" for continuation lines.
func (it *Interp) SetLine(f func(prompt string) (string, error)) { it.line = f }

// SetPrompt sets the prompt shown for the next expression.
func (it *Interp) SetPrompt(s string) { it.ps = s }

// Interrupt requests a break: the evaluator raises the break error at its
// next iteration. GC and heap compaction are never interrupted; a request
// arriving during either is delivered afterwards. Safe from any goroutine.
func (it *Interp) Interrupt() { atomic.StoreInt32(&it.intr, 1) }

func (it *Interp) pollBreak() {
	if atomic.CompareAndSwapInt32(&it.intr, 1, 0) {
		raise(ErrCodeBreak, "break")
	}
}

/*
 * Stack
 */

// Push protects x from the collector and returns a handle to its stack slot,
// so callers can keep updating the protected value. Everything constructed
// between an allocation that may collect and the moment a value becomes
// reachable from the environment must sit on this stack.
func (it *Interp) Push(x Value) *Value {
	it.sp--
	it.cell[it.sp] = x
	if it.hp > (it.sp-1)<<3 {
		it.gc()
		if it.hp > (it.sp-1)<<3 {
			raise(ErrCodeStackOver, "stack over")
		}
	}
	return &it.cell[it.sp]
}

// Pop removes and returns the top of the stack.
func (it *Interp) Pop() Value {
	v := it.cell[it.sp]
	it.sp++
	return v
}

// Unwind resets the stack to watermark i; Unwind(it.Top()) is a no-op and
// Unwind(0) is invalid. The REPL calls UnwindAll between iterations.
func (it *Interp) Unwind(i uint32) { it.sp = i }

// UnwindAll empties the stack.
func (it *Interp) UnwindAll() { it.sp = it.n }

// Top returns the current stack watermark for a later Unwind.
func (it *Interp) Top() uint32 { return it.sp }

// FreeCells returns the number of cells left between the heap and the stack.
func (it *Interp) FreeCells() uint32 { return it.sp - it.hp/8 }

/*
 * Heap: interned atoms and strings
 */

// alloc reserves n+1 bytes (plus the back-reference field) on the heap and
// returns the byte offset of the usable space. May collect; the caller must
// have protected every value it still needs.
func (it *Interp) alloc(n uint32) uint32 {
	i := it.hp + refW
	n += refW + 1
	if it.hp+n > (it.sp-1)<<3 {
		it.gc()
		if it.hp+n > (it.sp-1)<<3 {
			raise(ErrCodeStackOver, "stack over")
		}
		i = it.hp + refW
	}
	it.hp += n
	return i
}

func (it *Interp) copyStr(s string) uint32 {
	i := it.alloc(uint32(len(s)))
	copy(it.heap[i:], s)
	it.heap[i+uint32(len(s))] = 0
	return i
}

func (it *Interp) strlenAt(i uint32) uint32 {
	return uint32(bytes.IndexByte(it.heap[i:], 0))
}

// str copies the NUL-terminated heap bytes at offset i into a Go string.
func (it *Interp) str(i uint32) string {
	return string(it.heap[i : i+it.strlenAt(i)])
}

// Atom interns s: creating an atom with the bytes of an existing one returns
// the existing heap offset, so atom identity is bit identity.
func (it *Interp) Atom(s string) Value {
	i := it.h + refW
	for i < it.hp {
		n := it.strlenAt(i)
		if n == uint32(len(s)) && string(it.heap[i:i+n]) == s {
			return box(tagAtom, i)
		}
		i += n + refW + 1
	}
	return box(tagAtom, it.copyStr(s))
}

// Str stores s on the heap as a string value. Strings are not interned; two
// equal strings may have distinct offsets.
func (it *Interp) Str(s string) Value {
	return box(tagStr, it.copyStr(s))
}

/*
 * Pool: cons pairs, closures, macros
 */

// Cons allocates (x . y) from the free list. When the list runs dry the new
// pair is pushed and a collection runs; out-of-memory is raised only when
// the collection frees nothing.
func (it *Interp) Cons(x, y Value) Value {
	if it.fp == 0 { // only after an out-of-memory escape left the list empty
		it.Push(x)
		it.Push(y)
		it.gc()
		y = it.Pop()
		x = it.Pop()
	}
	i := it.fp
	it.fp = ordOf(it.cell[i])
	it.cell[i] = x
	it.cell[i+1] = y
	p := box(tagCons, i)
	if it.fp == 0 {
		it.Push(p)
		it.gc()
		it.Pop()
	}
	return p
}

// pair prepends the binding (v . x) to environment e: ((v . x) . e).
func (it *Interp) pair(v, x, e Value) Value {
	return it.Cons(it.Cons(v, x), e)
}

// Pair is the exported pair for embedders extending environments.
func (it *Interp) Pair(v, x, e Value) Value { return it.pair(v, x, e) }

// closure builds a Closure over ((v . x) . scope). A closure created in the
// global environment stores Nil and resolves against the global environment
// at call time, so toplevel recursion works without letrec.
func (it *Interp) closure(v, x, e Value) Value {
	if equ(e, it.env) {
		e = Nil
	}
	return box(tagClos, ordOf(it.pair(v, x, e)))
}

func (it *Interp) macro(v, x Value) Value {
	return box(tagMacr, ordOf(it.Cons(v, x)))
}

// Car returns the head of a pair; raises not-a-pair otherwise.
func (it *Interp) Car(p Value) Value {
	if isPair(p) {
		return it.cell[ordOf(p)]
	}
	return raise(ErrCodeNotAPair, "not a pair")
}

// Cdr returns the tail of a pair; raises not-a-pair otherwise.
func (it *Interp) Cdr(p Value) Value {
	if isPair(p) {
		return it.cell[ordOf(p)+1]
	}
	return raise(ErrCodeNotAPair, "not a pair")
}

// cdrRef gives the address of a pair's cdr cell, used to build lists in
// place while their head sits protected on the stack.
func (it *Interp) cdrRef(p Value) *Value { return &it.cell[ordOf(p)+1] }

// assoc looks v up in environment e, a list of (name . value) pairs; the
// first match wins, which is what makes shadowing work.
func (it *Interp) assoc(v, e Value) Value {
	for tag(e) == tagCons && !equ(v, it.Car(it.Car(e))) {
		e = it.Cdr(e)
	}
	if tag(e) == tagCons {
		return it.Cdr(it.Car(e))
	}
	if tag(v) == tagAtom {
		return raise(ErrCodeUnbound, "unbound %s", it.str(ordOf(v)))
	}
	return raise(ErrCodeUnbound, "unbound symbol")
}

func not(x Value) bool { return tag(x) == tagNil }

// more reports whether list t has at least two elements.
func (it *Interp) more(t Value) bool {
	return tag(t) != tagNil && tag(it.Cdr(t)) != tagNil
}

func getRef(b []byte, i uint32) uint32 { return binary.LittleEndian.Uint32(b[i:]) }
func putRef(b []byte, i, v uint32)     { binary.LittleEndian.PutUint32(b[i:], v) }

func panicif(v bool, t string) {
	if v {
		panic(t)
	}
}

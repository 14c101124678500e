package lisp

import (
	"bytes"
	"fmt"

	"github.com/joomcode/errorx"
)

// builtins is the stock primitive table. New copies it per interpreter so
// Install can extend one instance without touching the others; the ordinal
// of a Primitive value indexes this table.
var builtins = []Prim{
	{"type", fType, Normal},
	{"eval", fIdent, Normal | Tailcall},
	{"quote", fIdent, Special},
	{"cons", fCons, Normal},
	{"car", fCar, Normal},
	{"cdr", fCdr, Normal},
	{"+", fAdd, Normal},
	{"-", fSub, Normal},
	{"*", fMul, Normal},
	{"/", fDiv, Normal},
	{"int", fInt, Normal},
	{"<", fLt, Normal},
	{"eq?", fEq, Normal},
	{"not", fNot, Normal},
	{"or", fOr, Special},
	{"and", fAnd, Special},
	{"begin", fBegin, Special | Tailcall},
	{"while", fWhile, Special},
	{"cond", fCond, Special | Tailcall},
	{"if", fIf, Special | Tailcall},
	{"lambda", fLambda, Special},
	{"macro", fMacro, Special},
	{"define", fDefine, Special},
	{"assoc", fAssoc, Normal},
	{"env", fEnv, Normal},
	{"let", fLet, Special | Tailcall},
	{"let*", fLeta, Special | Tailcall},
	{"letrec", fLetrec, Special | Tailcall},
	{"letrec*", fLetreca, Special | Tailcall},
	{"setq", fSetq, Special},
	{"set-car!", fSetCar, Normal},
	{"set-cdr!", fSetCdr, Normal},
	{"read", fRead, Normal},
	{"print", fPrint, Normal},
	{"println", fPrintln, Normal},
	{"write", fWrite, Normal},
	{"string", fString, Normal},
	{"load", fLoad, Normal},
	{"trace", fTrace, Special},
	{"catch", fCatch, Special},
	{"throw", fThrow, Normal},
	{"quit", fQuit, Normal},
}

// fType returns the kind code of its argument: Nil -1, Number 0, Primitive 1,
// Atom 2, String 3, Cons 4, Closure 6, Macro 7.
func fType(it *Interp, t Value, _ *Value) Value {
	x := it.Car(t)
	switch {
	case tag(x) == tagNil:
		return Num(-1)
	case tag(x) >= tagPrim && tag(x) <= tagMacr:
		return Num(float64(tag(x) - tagPrim + 1))
	}
	return Num(0)
}

func fIdent(it *Interp, t Value, _ *Value) Value {
	return it.Car(t)
}

func fCons(it *Interp, t Value, _ *Value) Value {
	return it.Cons(it.Car(t), it.Car(it.Cdr(t)))
}

func fCar(it *Interp, t Value, _ *Value) Value {
	return it.Car(it.Car(t))
}

func fCdr(it *Interp, t Value, _ *Value) Value {
	return it.Cdr(it.Car(t))
}

func fAdd(it *Interp, t Value, _ *Value) Value {
	n := it.Car(t)
	for t = it.Cdr(t); !not(t); t = it.Cdr(t) {
		n += it.Car(t)
	}
	return n
}

func fSub(it *Interp, t Value, _ *Value) Value {
	n := it.Car(t)
	if not(it.Cdr(t)) {
		return -n
	}
	for t = it.Cdr(t); !not(t); t = it.Cdr(t) {
		n -= it.Car(t)
	}
	return n
}

func fMul(it *Interp, t Value, _ *Value) Value {
	n := it.Car(t)
	for t = it.Cdr(t); !not(t); t = it.Cdr(t) {
		n *= it.Car(t)
	}
	return n
}

func fDiv(it *Interp, t Value, _ *Value) Value {
	n := it.Car(t)
	if not(it.Cdr(t)) {
		return 1 / n
	}
	for t = it.Cdr(t); !not(t); t = it.Cdr(t) {
		n /= it.Car(t)
	}
	return n
}

// fInt truncates toward zero within +-1e16; larger magnitudes (and tagged
// values) pass through unchanged.
func fInt(it *Interp, t Value, _ *Value) Value {
	n := it.Car(t)
	if n < 1e16 && n > -1e16 {
		return Num(float64(int64(n)))
	}
	return n
}

// fLt orders two numbers by IEEE <, two atoms or two strings by their bytes,
// and everything else by the unsigned order of the 64-bit encodings, giving
// a total order over all values.
func fLt(it *Interp, t Value, _ *Value) Value {
	x, y := it.Car(t), it.Car(it.Cdr(t))
	var less bool
	switch {
	case tag(x) == tag(y) && isAtomStr(x):
		less = bytes.Compare(it.heapBytes(x), it.heapBytes(y)) < 0
	case numeric(x) && numeric(y):
		less = x < y
	default:
		less = bits(x) < bits(y)
	}
	if less {
		return it.tru
	}
	return Nil
}

func (it *Interp) heapBytes(x Value) []byte {
	o := ordOf(x)
	return it.heap[o : o+it.strlenAt(o)]
}

// fEq is bit equality of the encodings, except that two strings compare by
// content.
func fEq(it *Interp, t Value, _ *Value) Value {
	x, y := it.Car(t), it.Car(it.Cdr(t))
	eq := equ(x, y)
	if tag(x) == tagStr && tag(y) == tagStr {
		eq = bytes.Equal(it.heapBytes(x), it.heapBytes(y))
	}
	if eq {
		return it.tru
	}
	return Nil
}

func fNot(it *Interp, t Value, _ *Value) Value {
	if not(it.Car(t)) {
		return it.tru
	}
	return Nil
}

func fOr(it *Interp, t Value, e *Value) Value {
	x := Nil
	for tag(t) != tagNil && not(x) {
		x = it.Eval(it.Car(t), *e)
		t = it.Cdr(t)
	}
	return x
}

func fAnd(it *Interp, t Value, e *Value) Value {
	x := Nil
	for tag(t) != tagNil {
		x = it.Eval(it.Car(t), *e)
		if not(x) {
			break
		}
		t = it.Cdr(t)
	}
	return x
}

// fBegin evaluates all but the last expression for effect and returns the
// last one for the evaluator loop to continue with.
func fBegin(it *Interp, t Value, e *Value) Value {
	for ; it.more(t); t = it.Cdr(t) {
		it.Eval(it.Car(t), *e)
	}
	if tag(t) == tagNil {
		return Nil
	}
	return it.Car(t)
}

func fWhile(it *Interp, t Value, e *Value) Value {
	x := Nil
	for !not(it.Eval(it.Car(t), *e)) {
		for s := it.Cdr(t); tag(s) != tagNil; s = it.Cdr(s) {
			x = it.Eval(it.Car(s), *e)
		}
	}
	return x
}

func fCond(it *Interp, t Value, e *Value) Value {
	for tag(t) != tagNil && not(it.Eval(it.Car(it.Car(t)), *e)) {
		t = it.Cdr(t)
	}
	if tag(t) == tagNil {
		return Nil
	}
	return fBegin(it, it.Cdr(it.Car(t)), e)
}

func fIf(it *Interp, t Value, e *Value) Value {
	if not(it.Eval(it.Car(t), *e)) {
		return fBegin(it, it.Cdr(it.Cdr(t)), e)
	}
	return it.Car(it.Cdr(t))
}

func fLambda(it *Interp, t Value, e *Value) Value {
	return it.closure(it.Car(t), it.Car(it.Cdr(t)), *e)
}

func fMacro(it *Interp, t Value, _ *Value) Value {
	return it.macro(it.Car(t), it.Car(it.Cdr(t)))
}

// fDefine prepends the binding to the global environment; an existing
// binding is shadowed, never overwritten.
func fDefine(it *Interp, t Value, e *Value) Value {
	it.env = it.pair(it.Car(t), it.Eval(it.Car(it.Cdr(t)), *e), it.env)
	return it.Car(t)
}

func fAssoc(it *Interp, t Value, _ *Value) Value {
	return it.assoc(it.Car(t), it.Car(it.Cdr(t)))
}

func fEnv(it *Interp, _ Value, e *Value) Value {
	return *e
}

// fLet binds in parallel: every right-hand side is evaluated in the
// environment as it was on entry.
func fLet(it *Interp, t Value, e *Value) Value {
	d := *e
	for ; it.more(t); t = it.Cdr(t) {
		*e = it.pair(it.Car(it.Car(t)), it.Eval(fBegin(it, it.Cdr(it.Car(t)), &d), d), *e)
	}
	if tag(t) == tagNil {
		return Nil
	}
	return it.Car(t)
}

// fLeta is let*: each right-hand side sees the bindings before it.
func fLeta(it *Interp, t Value, e *Value) Value {
	for ; it.more(t); t = it.Cdr(t) {
		*e = it.pair(it.Car(it.Car(t)), it.Eval(fBegin(it, it.Cdr(it.Car(t)), e), *e), *e)
	}
	if tag(t) == tagNil {
		return Nil
	}
	return it.Car(t)
}

// fLetrec pre-binds every name to Nil, then evaluates each right-hand side
// in the extended environment and assigns it to its own binding, so the
// definitions can see themselves and each other.
func fLetrec(it *Interp, t Value, e *Value) Value {
	for s := t; it.more(s); s = it.Cdr(s) {
		*e = it.pair(it.Car(it.Car(s)), Nil, *e)
	}
	for ; it.more(t); t = it.Cdr(t) {
		v := it.Car(it.Car(t))
		x := it.Eval(fBegin(it, it.Cdr(it.Car(t)), e), *e)
		for d := *e; tag(d) == tagCons; d = it.Cdr(d) {
			if equ(it.Car(it.Car(d)), v) {
				it.cell[ordOf(it.Car(d))+1] = x
				break
			}
		}
	}
	if tag(t) == tagNil {
		return Nil
	}
	return it.Car(t)
}

// fLetreca is letrec*: bind and assign one name at a time, in order.
func fLetreca(it *Interp, t Value, e *Value) Value {
	for ; it.more(t); t = it.Cdr(t) {
		*e = it.pair(it.Car(it.Car(t)), Nil, *e)
		it.cell[ordOf(it.Car(*e))+1] = it.Eval(fBegin(it, it.Cdr(it.Car(t)), e), *e)
	}
	if tag(t) == tagNil {
		return Nil
	}
	return it.Car(t)
}

// fSetq evaluates the right-hand side first, then mutates the innermost
// existing binding of the name.
func fSetq(it *Interp, t Value, e *Value) Value {
	x := it.Eval(it.Car(it.Cdr(t)), *e)
	v := it.Car(t)
	d := *e
	for tag(d) == tagCons && !equ(v, it.Car(it.Car(d))) {
		d = it.Cdr(d)
	}
	if tag(d) == tagCons {
		it.cell[ordOf(it.Car(d))+1] = x
		return x
	}
	if tag(v) == tagAtom {
		return raise(ErrCodeUnbound, "unbound %s", it.str(ordOf(v)))
	}
	return raise(ErrCodeUnbound, "unbound symbol")
}

func fSetCar(it *Interp, t Value, _ *Value) Value {
	p := it.Car(t)
	if tag(p) != tagCons {
		raise(ErrCodeNotAPair, "not a pair")
	}
	x := it.Car(it.Cdr(t))
	it.cell[ordOf(p)] = x
	return x
}

func fSetCdr(it *Interp, t Value, _ *Value) Value {
	p := it.Car(t)
	if tag(p) != tagCons {
		raise(ErrCodeNotAPair, "not a pair")
	}
	x := it.Car(it.Cdr(t))
	it.cell[ordOf(p)+1] = x
	return x
}

func fRead(it *Interp, _ Value, _ *Value) Value {
	c := it.see
	it.see = ' '
	x := it.Read()
	it.see = c
	return x
}

func fPrint(it *Interp, t Value, _ *Value) Value {
	for ; tag(t) != tagNil; t = it.Cdr(t) {
		it.Print(it.Car(t))
	}
	return Nil
}

func fPrintln(it *Interp, t Value, e *Value) Value {
	fPrint(it, t, e)
	fmt.Fprintln(it.out)
	return Nil
}

// fWrite prints like fPrint but strings go out raw, without quotes or
// escapes.
func fWrite(it *Interp, t Value, _ *Value) Value {
	for ; tag(t) != tagNil; t = it.Cdr(t) {
		x := it.Car(t)
		if tag(x) == tagStr {
			fmt.Fprint(it.out, it.str(ordOf(x)))
		} else {
			it.Print(x)
		}
	}
	return Nil
}

// fString concatenates its arguments into a fresh string: atoms and strings
// contribute their bytes, numbers their printed form, and a list one byte
// per element, which is how arbitrary byte strings are built.
func fString(it *Interp, t Value, _ *Value) Value {
	var n uint32
	for s := t; tag(s) != tagNil; s = it.Cdr(s) {
		x := it.Car(s)
		switch {
		case isAtomStr(x):
			n += it.strlenAt(ordOf(x))
		case tag(x) == tagCons:
			for ; tag(x) == tagCons; x = it.Cdr(x) {
				n++
			}
		case numeric(x):
			n += uint32(len(fmtNum(float64(x))))
		}
	}
	it.Push(t)
	j := it.alloc(n) // may compact: everything below is re-read through the pool
	it.Pop()
	i := j
	for s := t; tag(s) != tagNil; s = it.Cdr(s) {
		x := it.Car(s)
		switch {
		case isAtomStr(x):
			i += uint32(copy(it.heap[i:], it.heapBytes(x)))
		case tag(x) == tagCons:
			for ; tag(x) == tagCons; x = it.Cdr(x) {
				it.heap[i] = byte(int64(float64(it.Car(x))))
				i++
			}
		case numeric(x):
			i += uint32(copy(it.heap[i:], fmtNum(float64(x))))
		}
	}
	it.heap[i] = 0
	return box(tagStr, j)
}

// fLoad pushes the named file onto the input stack; reading resumes there
// until end of file pops back to the present source.
func fLoad(it *Interp, t Value, e *Value) Value {
	x := fString(it, t, e)
	name := it.str(ordOf(x))
	if err := it.Source(name); err != nil {
		raise(ErrCodeArguments, "cannot read %s", name)
	}
	T().Debugf("load: %s", name)
	p := it.Push(x)
	defer it.Pop()
	return it.Cons(it.Atom("load"), it.Cons(*p, Nil))
}

func fTrace(it *Interp, t Value, e *Value) Value {
	saved := it.tr
	if tag(t) == tagNil {
		it.tr = 1
	} else {
		it.tr = int(float64(it.Car(t)))
	}
	if it.more(t) {
		x := it.Eval(it.Car(it.Cdr(t)), *e)
		it.tr = saved
		return x
	}
	return Num(float64(it.tr))
}

// fCatch evaluates its argument and turns a raised code n into the pair
// (ERR . n), with the stack unwound back to the entry watermark. Quit and
// non-interpreter panics keep propagating.
func fCatch(it *Interp, t Value, e *Value) (x Value) {
	saved := it.sp
	env := *e
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ex, ok := r.(*errorx.Error)
		if !ok || errorx.IsOfType(ex, ErrQuit) {
			panic(r)
		}
		n, ok := Code(ex)
		if !ok {
			panic(r)
		}
		it.Unwind(saved)
		x = it.Cons(it.Atom("ERR"), Num(float64(n)))
	}()
	x = it.Eval(it.Car(t), env)
	it.Unwind(saved)
	return x
}

func fThrow(it *Interp, t Value, _ *Value) Value {
	x := it.Car(t)
	if !numeric(x) {
		raise(ErrCodeArguments, "throw: not a number")
	}
	return raise(int(float64(x)), "thrown")
}

func fQuit(it *Interp, _ Value, _ *Value) Value {
	panic(ErrQuit.NewWithNoMessage())
}

// prelude is the Lisp-level companion library evaluated at construction.
var prelude = `
(define list (lambda args args))
(define append
  (lambda (s t)
    (if s (cons (car s) (append (cdr s) t)) t)))
(define map
  (lambda (f t)
    (if t (cons (f (car t)) (map f (cdr t))) ())))
(define apply
  (lambda (f t)
    (eval (cons f (map (lambda (x) (cons 'quote (cons x ()))) t)))))
(define curry
  (lambda (f . a)
    (lambda b (apply f (append a b)))))
(define cadr (lambda (t) (car (cdr t))))
(define caddr (lambda (t) (car (cdr (cdr t)))))
(define null? (lambda (x) (not x)))
(define length
  (lambda (t) (if t (+ 1 (length (cdr t))) 0)))
(define reverse
  (lambda (t)
    (letrec* (rev (lambda (s r) (if s (rev (cdr s) (cons (car s) r)) r)))
      (rev t ()))))
`

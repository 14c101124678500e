package lisp

import "fmt"

// The evaluator is a loop over one-step reduction. A function application
// never recurses into the callee's body: the loop reassigns the expression
// and environment and goes around again, so arbitrary tail recursion runs in
// constant native and constant Lisp stack. Four slots protect the step's
// temporaries from the collector: the callee, the environment under
// construction, and the substituted expression and environment.

// Eval evaluates x in environment e (usually it.Globals()). Errors escape by
// panic; wrap with Run for an error-returning interface. Per the allocation
// contract, x must be protected (on the stack or reachable from the global
// environment) if evaluation can allocate.
func (it *Interp) Eval(x, e Value) Value {
	if it.tr == 0 {
		return it.step(x, e)
	}
	y := it.step(x, e)
	fmt.Fprintf(it.out, "%4d: %s => %s\n", it.n-it.sp, it.String(x), it.String(y))
	return y
}

func (it *Interp) step(x, e Value) Value {
	k := it.sp
	f := it.Push(Nil)
	d := it.Push(Nil)
	y := it.Push(Nil)
	z := it.Push(Nil)
	for {
		it.pollBreak()
		if tag(x) == tagAtom {
			x = it.assoc(x, e)
			break
		}
		if tag(x) != tagCons {
			break // numbers, strings, closures, () are self-evaluating
		}
		*f = it.Eval(it.Car(x), e)
		x = it.Cdr(x)
		if tag(*f) == tagPrim {
			p := &it.prims[ordOf(*f)]
			if p.M&Special == 0 {
				x = it.evlis(x, e)
			}
			*z = e
			x = p.F(it, x, z)
			*y = x
			e = *z
			if p.M&Tailcall != 0 {
				continue
			}
			break
		}
		if !isPair(*f) || tag(*f) == tagCons {
			raise(ErrCodeCannotApply, "cannot apply %s", it.String(*f))
		}
		if tag(*f) == tagClos {
			*d = it.Cdr(*f)
			if tag(*d) == tagNil {
				*d = it.env // scope Nil means the global environment at call time
			}
			v := it.Car(it.Car(*f))
			for tag(v) == tagCons && tag(x) == tagCons {
				*d = it.pair(it.Car(v), it.Eval(it.Car(x), e), *d)
				v = it.Cdr(v)
				x = it.Cdr(x)
			}
			if tag(v) == tagCons { // arguments continue after a dotted tail
				*y = it.Eval(x, e)
				for tag(v) == tagCons && tag(*y) == tagCons {
					*d = it.pair(it.Car(v), it.Car(*y), *d)
					v = it.Cdr(v)
					*y = it.Cdr(*y)
				}
				if tag(v) == tagCons {
					raise(ErrCodeCannotApply, "too few arguments")
				}
				x = *y
			} else if tag(x) == tagCons {
				x = it.evlis(x, e)
			} else if tag(x) != tagNil {
				x = it.Eval(x, e)
			}
			if tag(v) != tagNil { // rest parameter takes the remaining values
				*d = it.pair(v, x, *d)
			}
			x = it.Cdr(it.Car(*f))
			*y = x
			e = *d
			*z = e
		} else { // macro: bind unevaluated, expand against the global environment
			*d = it.env
			v := it.Car(*f)
			for tag(v) == tagCons && tag(x) == tagCons {
				*d = it.pair(it.Car(v), it.Car(x), *d)
				v = it.Cdr(v)
				x = it.Cdr(x)
			}
			if tag(v) == tagCons {
				raise(ErrCodeCannotApply, "too few arguments")
			}
			if tag(v) != tagNil {
				*d = it.pair(v, x, *d)
			}
			x = it.Eval(it.Cdr(*f), *d)
			*y = x
		}
	}
	it.Unwind(k)
	return x
}

// evlis evaluates list t element-wise into a fresh list; a dotted or atom
// tail is evaluated to supply the remainder of the list.
func (it *Interp) evlis(t, e Value) Value {
	p := it.Push(Nil)
	for ; tag(t) == tagCons; t = it.Cdr(t) {
		*p = it.Cons(it.Eval(it.Car(t), e), Nil)
		p = it.cdrRef(*p)
	}
	if tag(t) == tagAtom {
		*p = it.assoc(t, e)
	}
	return it.Pop()
}

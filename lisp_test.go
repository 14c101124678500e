package lisp

import (
	"io"
	"strings"
	"testing"
)

func testInterp(t *testing.T) *Interp {
	t.Helper()
	it := New(DefaultPool, DefaultCells)
	it.SetOutput(io.Discard)
	return it
}

func run(t *testing.T, it *Interp, src string) string {
	t.Helper()
	v, err := it.Run(src)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	return it.String(v)
}

func runErr(t *testing.T, it *Interp, src string) int {
	t.Helper()
	_, err := it.Run(src)
	if err == nil {
		t.Fatalf("%s: expected error", src)
	}
	code, ok := Code(err)
	if !ok {
		t.Fatalf("%s: foreign error %v", src, err)
	}
	return code
}

func TestScenarios(t *testing.T) {
	it := testInterp(t)
	for _, tc := range []struct{ src, want string }{
		{"(+ 1 2 3)", "6"},
		{"(car '(a b c))", "a"},
		{"(cdr '(a b . c))", "(b . c)"},
		{"((lambda (n) (* n n)) 7)", "49"},
		{"(let* (x 1) (y (+ x 1)) (+ x y))", "3"},
		{"(letrec* (f (lambda (n) (if (eq? n 0) 1 (* n (f (- n 1)))))) (f 5))", "120"},
		{"(catch (throw 42))", "(ERR . 42)"},
		{"(eq? 'foo 'foo)", "#t"},
		{`(< "abc" "abd")`, "#t"},
		{`(string 'hello " " "world")`, `"hello world"`},
		{"(- 5)", "-5"},
		{"(- 10 1 2)", "7"},
		{"(/ 2)", "0.5"},
		{"(* 2 3 4)", "24"},
		{"(int 9.75)", "9"},
		{"(int -9.75)", "-9"},
		{"(< 1 2)", "#t"},
		{"(< 2 1)", "()"},
		{"(not ())", "#t"},
		{"(not 0)", "()"},
		{"(and 1 2 3)", "3"},
		{"(and 1 () 3)", "()"},
		{"(or () 2 3)", "2"},
		{"(or () ())", "()"},
		{"(begin 1 2 3)", "3"},
		{"(cond (() 1) (2 3))", "3"},
		{"(if () 1 2)", "2"},
		{"(if 1 1 2)", "1"},
		{"(cons 1 2)", "(1 . 2)"},
		{"(quote (1 2))", "(1 2)"},
		{"()", "()"},
		{`(eq? "ab" "ab")`, "#t"},
		{"(eq? 0 -0)", "()"},
		{"(eq? 1.0 1)", "#t"},
		{"(let (x 1) (y 2) (+ x y))", "3"},
		{"(while () 1)", "()"},
		{"(list 1 2 3)", "(1 2 3)"},
		{"(append '(1 2) '(3))", "(1 2 3)"},
		{"(reverse '(1 2 3))", "(3 2 1)"},
		{"(length '(a b c))", "3"},
		{"(apply + '(1 2 3))", "6"},
	} {
		if got := run(t, it, tc.src); got != tc.want {
			t.Errorf("%s = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestAccumulator(t *testing.T) {
	it := testInterp(t)
	run(t, it, "(define acc (lambda (n) (lambda (m) (setq n (+ n m)) n)))")
	run(t, it, "(define a (acc 10))")
	if got := run(t, it, "(a 5)"); got != "15" {
		t.Fatal(got)
	}
	if got := run(t, it, "(a 5)"); got != "20" {
		t.Fatal(got)
	}
}

func TestLexicalCapture(t *testing.T) {
	it := testInterp(t)
	if got := run(t, it, "(((lambda (x) (lambda (y) (+ x y))) 3) 4)"); got != "7" {
		t.Fatal(got)
	}
	// a captured environment is live: redefining + later must not change it
	run(t, it, "(define add3 ((lambda (x) (lambda (y) (+ x y))) 3))")
	run(t, it, "(define + -)")
	if got := run(t, it, "(add3 4)"); got != "7" {
		t.Fatal(got)
	}
}

func TestCurry(t *testing.T) {
	it := testInterp(t)
	if got := run(t, it, "((curry + 1) 2 3)"); got != "6" {
		t.Fatal(got)
	}
}

func TestTailCall(t *testing.T) {
	it := testInterp(t)
	run(t, it, "(define loop (lambda (n) (if (eq? n 0) 'done (loop (- n 1)))))")
	sp := it.Top()
	if got := run(t, it, "(loop 100000)"); got != "done" {
		t.Fatal(got)
	}
	if it.Top() != sp {
		t.Fatalf("stack not rebalanced: %d != %d", it.Top(), sp)
	}
}

func TestRestParameters(t *testing.T) {
	it := testInterp(t)
	for _, tc := range []struct{ src, want string }{
		{"((lambda args args) 1 2 3)", "(1 2 3)"},
		{"((lambda (a . r) r) 1 2 3)", "(2 3)"},
		{"((lambda (a . r) a) 1 2 3)", "1"},
		{"((lambda (a b . r) r) 1 2)", "()"},
	} {
		if got := run(t, it, tc.src); got != tc.want {
			t.Errorf("%s = %s, want %s", tc.src, got, tc.want)
		}
	}
	if code := runErr(t, it, "((lambda (a b) a) 1)"); code != ErrCodeCannotApply {
		t.Fatal(code)
	}
}

func TestMacro(t *testing.T) {
	it := testInterp(t)
	// macro arguments are bound unevaluated
	run(t, it, "(define q (macro (x) (cons 'quote (cons x ()))))")
	if got := run(t, it, "(q (+ 1 2))"); got != "(+ 1 2)" {
		t.Fatal(got)
	}
	run(t, it, "(define swap (macro (a b) (list 'cons b (list 'quote a))))")
	if got := run(t, it, "(swap x 3)"); got != "(3 . x)" {
		t.Fatal(got)
	}
}

func TestLetForms(t *testing.T) {
	it := testInterp(t)
	// plain let is parallel: earlier names are invisible to later values
	if code := runErr(t, it, "(let (x 1) (y x) y)"); code != ErrCodeUnbound {
		t.Fatal(code)
	}
	if got := run(t, it, "(letrec (even? (lambda (n) (if (eq? n 0) #t (odd? (- n 1)))))"+
		" (odd? (lambda (n) (if (eq? n 0) () (even? (- n 1)))))"+
		" (even? 10))"); got != "#t" {
		t.Fatal(got)
	}
	if got := run(t, it, "(letrec* (a 1) (b (+ a 1)) (+ a b))"); got != "3" {
		t.Fatal(got)
	}
}

func TestSetqTopLevel(t *testing.T) {
	it := testInterp(t)
	run(t, it, "(define x 1)")
	if got := run(t, it, "(setq x (+ x 41))"); got != "42" {
		t.Fatal(got)
	}
	if got := run(t, it, "x"); got != "42" {
		t.Fatal(got)
	}
	if code := runErr(t, it, "(setq nosuch 1)"); code != ErrCodeUnbound {
		t.Fatal(code)
	}
}

func TestWhileLoop(t *testing.T) {
	it := testInterp(t)
	run(t, it, "(define n 0)")
	if got := run(t, it, "(while (< n 10) (setq n (+ n 1)))"); got != "10" {
		t.Fatal(got)
	}
}

func TestErrorCodes(t *testing.T) {
	it := testInterp(t)
	for _, tc := range []struct {
		src  string
		code int
	}{
		{"(car 1)", ErrCodeNotAPair},
		{"(cdr 'a)", ErrCodeNotAPair},
		{"(set-car! 1 2)", ErrCodeNotAPair},
		{"(set-cdr! 1 2)", ErrCodeNotAPair},
		{"nosuchsymbol", ErrCodeUnbound},
		{"(1 2)", ErrCodeCannotApply},
		{`(throw "x")`, ErrCodeArguments},
		{"(load \"/nonexistent.lisp\")", ErrCodeArguments},
		{")", ErrCodeSyntax},
		{`"unterminated`, ErrCodeSyntax},
		{"(a . b c)", ErrCodeSyntax},
	} {
		if code := runErr(t, it, tc.src); code != tc.code {
			t.Errorf("%s: code %d, want %d", tc.src, code, tc.code)
		}
	}
}

func TestCatchThrow(t *testing.T) {
	it := testInterp(t)
	if got := run(t, it, "(catch (car 1))"); got != "(ERR . 1)" {
		t.Fatal(got)
	}
	if got := run(t, it, "(catch (begin (catch (throw 1)) (throw 2)))"); got != "(ERR . 2)" {
		t.Fatal(got)
	}
	// the caught code is a proper number
	if got := run(t, it, "(+ 1 (cdr (catch (throw 41))))"); got != "42" {
		t.Fatal(got)
	}
	// the stack is restored to the catch watermark
	sp := it.Top()
	run(t, it, "(catch (car (cons 1 (throw 7))))")
	if it.Top() != sp {
		t.Fatalf("stack leaked: %d != %d", it.Top(), sp)
	}
}

func TestBreak(t *testing.T) {
	it := testInterp(t)
	it.Interrupt()
	if code := runErr(t, it, "(+ 1 1)"); code != ErrCodeBreak {
		t.Fatal(code)
	}
	// the flag is consumed: the next run proceeds
	if got := run(t, it, "(+ 1 1)"); got != "2" {
		t.Fatal(got)
	}
}

func TestTypeCodes(t *testing.T) {
	it := testInterp(t)
	for _, tc := range []struct{ src, want string }{
		{"(type ())", "-1"},
		{"(type 1)", "0"},
		{"(type car)", "1"},
		{"(type 'a)", "2"},
		{`(type "s")`, "3"},
		{"(type '(1))", "4"},
		{"(type (lambda (x) x))", "6"},
		{"(type (macro (x) x))", "7"},
	} {
		if got := run(t, it, tc.src); got != tc.want {
			t.Errorf("%s = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestInstall(t *testing.T) {
	it := testInterp(t)
	it.Install("double", Normal, func(it *Interp, t Value, _ *Value) Value {
		return it.Car(t) * 2
	})
	if got := run(t, it, "(double 21)"); got != "42" {
		t.Fatal(got)
	}
	it.Install("unless", Special|Tailcall, func(it *Interp, t Value, e *Value) Value {
		if not(it.Eval(it.Car(t), *e)) {
			return it.Car(it.Cdr(t))
		}
		return Nil
	})
	if got := run(t, it, "(unless () 'yes)"); got != "yes" {
		t.Fatal(got)
	}
}

func TestPrintWrite(t *testing.T) {
	it := New(DefaultPool, DefaultCells)
	var b strings.Builder
	it.SetOutput(&b)
	if _, err := it.Run(`(write "raw" 'atom) (print "quoted") (println)`); err != nil {
		t.Fatal(err)
	}
	if got := b.String(); got != "rawatom\"quoted\"\n" {
		t.Fatalf("%q", got)
	}
}

func TestEnvPrimitives(t *testing.T) {
	it := testInterp(t)
	if got := run(t, it, "(assoc 'x '((x . 1) (y . 2)))"); got != "1" {
		t.Fatal(got)
	}
	// (env) in a closure body includes the parameter bindings
	if got := run(t, it, "(car (car ((lambda (v) (env)) 9)))"); got != "v" {
		t.Fatal(got)
	}
}

func TestStringBytes(t *testing.T) {
	it := testInterp(t)
	if got := run(t, it, "(string '(104 105))"); got != `"hi"` {
		t.Fatal(got)
	}
	if got := run(t, it, "(string 12 '- 13)"); got != `"12-13"` {
		t.Fatal(got)
	}
}

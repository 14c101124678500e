package lisp

import (
	"github.com/joomcode/errorx"
)

// Every recoverable failure carries a small positive code, the same code
// (throw n) raises and (catch ...) hands back as (ERR . n). Codes 1 to 8 are
// the built-in taxonomy; anything else is a user throw.
const (
	ErrCodeNotAPair    = 1
	ErrCodeBreak       = 2
	ErrCodeUnbound     = 3
	ErrCodeCannotApply = 4
	ErrCodeArguments   = 5
	ErrCodeStackOver   = 6
	ErrCodeOutOfMemory = 7
	ErrCodeSyntax      = 8
)

var (
	errNS    = errorx.NewNamespace("lisp")
	propCode = errorx.RegisterProperty("code")

	ErrNotAPair    = errNS.NewType("not_a_pair")
	ErrBreak       = errNS.NewType("break")
	ErrUnbound     = errNS.NewType("unbound_symbol")
	ErrCannotApply = errNS.NewType("cannot_apply")
	ErrArguments   = errNS.NewType("bad_arguments")
	ErrStackOver   = errNS.NewType("stack_overflow")
	ErrOutOfMemory = errNS.NewType("out_of_memory")
	ErrSyntax      = errNS.NewType("syntax")
	ErrThrown      = errNS.NewType("thrown")

	// ErrQuit is the (quit) escape. It is not an error of the taxonomy:
	// catch re-raises it and only the REPL driver stops on it.
	ErrQuit = errNS.NewType("quit")
)

func errType(code int) *errorx.Type {
	switch code {
	case ErrCodeNotAPair:
		return ErrNotAPair
	case ErrCodeBreak:
		return ErrBreak
	case ErrCodeUnbound:
		return ErrUnbound
	case ErrCodeCannotApply:
		return ErrCannotApply
	case ErrCodeArguments:
		return ErrArguments
	case ErrCodeStackOver:
		return ErrStackOver
	case ErrCodeOutOfMemory:
		return ErrOutOfMemory
	case ErrCodeSyntax:
		return ErrSyntax
	}
	return ErrThrown
}

// raise escapes non-locally with the given code. The Value return type lets
// it close expression positions; it never actually returns.
func raise(code int, format string, args ...interface{}) Value {
	panic(errType(code).New(format, args...).WithProperty(propCode, code))
}

// Code extracts the error code of a raised or returned interpreter error;
// ok is false for foreign errors.
func Code(err error) (int, bool) {
	ex := errorx.Cast(err)
	if ex == nil {
		return 0, false
	}
	v, ok := ex.Property(propCode)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// trap converts a raised interpreter error into a returned one. Quit and
// break escape like any other code-carrying error; runtime panics and
// foreign panics keep propagating.
func trap(err *error) {
	if r := recover(); r != nil {
		ex, ok := r.(*errorx.Error)
		if !ok {
			panic(r)
		}
		*err = ex
	}
}

// Package repl drives an interpreter from a terminal: line editing and
// history, a prompt showing the free-space gauges, error recovery, and the
// implicit init file load.
package repl

import (
	"fmt"
	"io"
	"os"

	"github.com/joomcode/errorx"
	"github.com/peterh/liner"

	lisp "github.com/Robert-van-Engelen/lisp"
)

// Run reads, evaluates and prints expressions until (quit) or end of input.
// initFile, if non-empty, is loaded before the first prompt; a missing init
// file is not an error. Ctrl-C at the prompt or during evaluation raises the
// break error and returns to the prompt.
func Run(it *lisp.Interp, initFile string) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	it.SetLine(func(prompt string) (string, error) {
		s, err := line.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			return "", err
		}
		if err != nil {
			return "", io.EOF
		}
		if s != "" {
			line.AppendHistory(s)
		}
		return s, nil
	})

	if initFile != "" {
		it.Source(initFile)
	}

	for {
		fmt.Println()
		err := Step(it)
		if err == nil {
			continue
		}
		if errorx.IsOfType(err, lisp.ErrQuit) {
			fmt.Println("Bye!")
			return
		}
		code, _ := lisp.Code(err)
		fmt.Printf("ERR %d %s", code, errorx.Cast(err).Message())
		it.CloseInputs()
	}
}

// Step runs a single iteration: unwind the stack, collect, show the gauges
// in the prompt, then read, evaluate and print one expression.
func Step(it *lisp.Interp) (err error) {
	defer trap(&err)
	it.UnwindAll()
	free := it.GC()
	it.SetPrompt(fmt.Sprintf("%d+%d>", free, it.FreeCells()))
	it.Print(it.Eval(*it.Push(it.Read()), it.Globals()))
	return nil
}

func trap(err *error) {
	if r := recover(); r != nil {
		ex, ok := r.(*errorx.Error)
		if !ok {
			panic(r)
		}
		*err = ex
	}
}

// Interactive reports whether stdin is a terminal; callers fall back to
// RunFile-style batch evaluation otherwise.
func Interactive() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/xyproto/env/v2"

	lisp "github.com/Robert-van-Engelen/lisp"
	"github.com/Robert-van-Engelen/lisp/repl"
)

var (
	pool     = flag.Int("pool", env.Int("LISP_POOL", lisp.DefaultPool), "cons pool size in cells")
	cells    = flag.Int("cells", env.Int("LISP_CELLS", lisp.DefaultCells), "shared stack/heap size in cells")
	expr     = flag.String("e", "", "evaluate expression and exit")
	initFile = flag.String("init", "init.lisp", "file loaded before the first prompt")
	recMark  = flag.Bool("recursive-mark", false, "use the recursive GC mark phase")
)

func main() {
	flag.Parse()

	it := lisp.New(uint32(*pool), uint32(*cells))
	it.RecursiveMark(*recMark)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		for range ch {
			it.Interrupt()
		}
	}()

	if *expr != "" {
		v, err := it.Run(*expr)
		if err != nil {
			code, _ := lisp.Code(err)
			fmt.Fprintf(os.Stderr, "ERR %d %v\n", code, err)
			os.Exit(1)
		}
		fmt.Println(it.String(v))
		return
	}

	if f := flag.Arg(0); f != "" {
		if _, err := it.RunFile(f); err != nil {
			code, _ := lisp.Code(err)
			fmt.Fprintf(os.Stderr, "ERR %d %v\n", code, err)
			os.Exit(1)
		}
		return
	}

	repl.Run(it, *initFile)
}

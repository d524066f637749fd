// Command reactorctl is a small diagnostic tool for the reactor core:
// it opens a loop, checks whether a given file descriptor is valid,
// and optionally runs the loop until stdin becomes readable, printing
// the accumulated idle time on exit.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/axiomhq/uvreactor/reactor"
)

func main() {
	checkFD := flag.Int("check-fd", -1, "report whether this fd is valid and exit")
	watchStdin := flag.Bool("watch-stdin", false, "register stdin for one readable event, with idle-time accounting")
	flag.Parse()

	l, err := reactor.NewLoop(reactor.WithFlags(reactor.IdleTime))
	if err != nil {
		fmt.Fprintf(os.Stderr, "reactorctl: loop init: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	if *checkFD >= 0 {
		if err := l.CheckFD(*checkFD); err != nil {
			fmt.Printf("fd %d: invalid\n", *checkFD)
			os.Exit(1)
		}
		fmt.Printf("fd %d: valid\n", *checkFD)
		return
	}

	if *watchStdin {
		fired := false
		w := reactor.NewWatcher(int(os.Stdin.Fd()), func(l *reactor.Loop, w *reactor.Watcher, events reactor.EventMask) {
			fired = true
			l.IOStop(w, reactor.Readable)
		})
		if err := l.IOStart(w, reactor.Readable); err != nil {
			fmt.Fprintf(os.Stderr, "reactorctl: io_start: %v\n", err)
			os.Exit(1)
		}
		if _, err := l.Run(reactor.Default); err != nil {
			fmt.Fprintf(os.Stderr, "reactorctl: run: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("stdin fired=%v idle_time_ns=%d\n", fired, l.IdleTime())
		return
	}

	flag.Usage()
}

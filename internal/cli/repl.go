package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with
// a stub.
var printlnFn = func(args ...any) { fmt.Println(args...) }

// execIface defines the minimal command surface the REPL needs. The real App
// type satisfies it; tests can provide a lightweight stub.
type execIface interface {
	NewEntry(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context) error
	Edit(ctx context.Context) error
	Remove(ctx context.Context) error
	Sync(ctx context.Context) error
}

// Root runs the interactive loop until EOF or an exit command.
func (a *App) Root(ctx context.Context) {
	printlnFn("Trace journal (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, func() string { return string(a.Mode) }, scanner)
}

// runREPL reads a line, parses the first token as the command and dispatches
// to methods on a. Handler errors are reported inline; the loop itself never
// fails.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("trace (%s)> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		var err error
		switch cmd := parts[0]; cmd {
		case "help":
			printlnFn("Available commands: (n)ew, (l)ist, show, edit, rm, sync, exit")

		case "n", "new":
			err = a.NewEntry(ctx)

		case "l", "list":
			err = a.List(ctx)

		case "show":
			err = a.Show(ctx)

		case "edit":
			err = a.Edit(ctx)

		case "rm":
			err = a.Remove(ctx)

		case "sync":
			err = a.Sync(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}

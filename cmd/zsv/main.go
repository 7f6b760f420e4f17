// Command zsv is the CLI entry point: a thin dispatcher over
// internal/commands.Table, adapted from the teacher's
// src/go/main.go switch-on-os.Args[1] dispatch, per spec.md §9's
// design note against extension/plugin loading ("implement commands
// as statically linked strategies selected by a dispatch table").
// Blank-importing each subcommand package registers it into the table
// via that package's init().
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/csvtoolkit/zsv/internal/commands"
	_ "github.com/csvtoolkit/zsv/internal/commands/countcmd"
	_ "github.com/csvtoolkit/zsv/internal/commands/selectcmd"
)

const version = "0.1.0"

// aborted is set once the signal handler has asked the running
// command's parser(s) to cancel; main uses it to report the
// conventional 130 exit code even though the command's own Func
// return value reflects whatever partial result it managed to emit.
var aborted atomic.Bool

func main() {
	setupSignalHandler()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "version":
		fmt.Printf("zsv v%s\n", version)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	}

	fn, ok := commands.Table[command]
	if !ok {
		fmt.Fprintf(os.Stderr, "zsv: unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
	code := fn(os.Args[2:], os.Stdout, os.Stderr)
	if aborted.Load() {
		code = 130
	}
	os.Exit(code)
}

// setupSignalHandler wires SIGINT/SIGTERM into spec.md §5's
// cooperative-cancellation model: the first signal calls
// commands.BroadcastAbort, which reaches (*parser.Parser).Abort on
// whatever parser(s) the running command registered, letting it finish
// its current row and return StatusCancelled instead of being killed
// mid-row. A second signal means the process isn't responding to that
// (blocked in I/O, or running a command that never registered a
// parser) and falls back to exiting directly.
func setupSignalHandler() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		aborted.Store(true)
		commands.BroadcastAbort()
		<-sigs
		os.Exit(130)
	}()
}

func printUsage() {
	fmt.Println(`zsv - streaming CSV/TSV/fixed-width toolkit

Usage:
    zsv <command> [arguments]

Commands:
    select   Project, filter, clean, and reorder columns
    count    Count data rows
    version  Show version
    help     Show this help

Commands accepted but not implemented in this core (see DESIGN.md):
    desc, sql, 2db, 2json, 2tsv, flatten, stack, compare, paste,
    pretty, sheet, prop, rm, mv, overwrite, check, merge, jq

Use "zsv <command> -h" for command-specific options.`)
}

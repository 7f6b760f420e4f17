// Package commands implements the static command-dispatch table
// spec.md §9's design note calls for in place of the original's
// .so/.dll extension loading: every built-in command is a statically
// linked function selected from a map by name, grounded on the
// teacher's src/go/main.go switch-dispatch (command name -> runXxx),
// generalized here to a table so embedders can register their own
// commands without touching this package.
package commands

import (
	"io"
	"sync"

	"github.com/csvtoolkit/zsv/internal/parser"
)

// Func is the shape every built-in command implements: spec.md §4.5's
// "function of (argc, argv, ParseOptions, PropertyHandler) returning
// an exit code". argv excludes the command name itself. stdout/stderr
// are passed explicitly rather than assumed to be os.Stdout/os.Stderr
// so commands are testable without capturing process-global streams.
type Func func(args []string, stdout, stderr io.Writer) int

// PropertyHandler mirrors parser.PropertyHandler; commands that read
// or write persisted FileProperties (e.g. a future `prop` command)
// accept one of these instead of reaching into internal/propstore
// directly, keeping the dispatch contract's shape documented even for
// stub commands.
type PropertyHandler = parser.PropertyHandler

// Table maps a command name to its implementation. Populated by
// Register calls in this package's init() and by each subcommand
// package's own init().
var Table = map[string]Func{}

// Register adds name to the dispatch table. Built-in subcommand
// packages call this from their own init().
func Register(name string, fn Func) {
	Table[name] = fn
}

// Stub returns a Func that reports a command as not implemented in
// this core, documenting the interface contract (Options,
// PropertyHandler) an embedder would need to fill in. Used for every
// command spec.md §1 lists but explicitly scopes out of this
// specification's core (desc, sql, 2db, 2json, 2tsv, flatten, stack,
// compare, paste, pretty, sheet, prop, rm, mv, overwrite, check,
// merge, jq).
func Stub(name string) Func {
	return func(args []string, stdout, stderr io.Writer) int {
		io.WriteString(stderr, "zsv "+name+": not implemented in this core\n")
		io.WriteString(stderr, "(accepts a parser.Options and a parser.PropertyHandler; see DESIGN.md)\n")
		return 1
	}
}

func init() {
	for _, name := range []string{
		"desc", "sql", "2db", "2json", "2tsv", "flatten", "stack",
		"compare", "paste", "pretty", "sheet", "prop", "rm", "mv",
		"overwrite", "check", "merge", "jq",
	} {
		Register(name, Stub(name))
	}
}

// abortMu guards abortFuncs, the registry cmd/zsv's SIGINT/SIGTERM
// handler uses to reach whichever parser(s) a running command built
// (see spec.md §5's cooperative-cancellation model: (*parser.Parser).
// Abort is polled between rows, not a hard kill). A command's Func
// signature carries no cancellation channel of its own, and there is
// exactly one process-wide signal to deliver it from, so this is the
// one process-lifetime global this package keeps, as opposed to the
// cross-command mutable state spec.md §9's design note warns against.
var (
	abortMu     sync.Mutex
	abortFuncs  = map[int]func(){}
	abortNextID int
)

// RegisterAbortable adds fn to the set BroadcastAbort invokes, and
// returns a function that removes it again. Commands call this once
// per *parser.Parser they build, typically deferring the returned
// unregister immediately after.
func RegisterAbortable(fn func()) (unregister func()) {
	abortMu.Lock()
	id := abortNextID
	abortNextID++
	abortFuncs[id] = fn
	abortMu.Unlock()
	return func() {
		abortMu.Lock()
		delete(abortFuncs, id)
		abortMu.Unlock()
	}
}

// BroadcastAbort calls every currently registered abort function.
// cmd/zsv's signal handler calls this instead of exiting the process
// directly, so an in-flight parser gets a chance to finish its current
// row and return StatusCancelled.
func BroadcastAbort() {
	abortMu.Lock()
	fns := make([]func(), 0, len(abortFuncs))
	for _, fn := range abortFuncs {
		fns = append(fns, fn)
	}
	abortMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

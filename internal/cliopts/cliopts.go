// Package cliopts implements the common argument vocabulary spec.md
// §4.3 shares across every built-in command: -d -R -c -r -B -t -O -q
// -u -0 -S -v, merged with persisted FileProperties and built-in
// defaults into a parser.Options, plus the opaque opts_used encoding
// used to rebuild identical options in a chunker worker goroutine.
// Flag registration follows the teacher's main.go: stdlib flag.FlagSet
// per command, not a third-party CLI framework (see DESIGN.md).
package cliopts

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/csvtoolkit/zsv/internal/overwrite"
	"github.com/csvtoolkit/zsv/internal/parser"
	"github.com/csvtoolkit/zsv/internal/propstore"
)

// Flags holds the values of the common flag vocabulary after
// fs.Parse, plus which of them the user explicitly set (flag.Visit
// only reports flags actually passed on the command line, which is
// exactly the "explicitly set" signal the three-layer merge needs).
type Flags struct {
	HeaderSpan    uint
	SkipHead      uint
	MaxColumns    uint
	MaxRowSize    uint
	BufferSize    uint
	Tab           bool
	OtherDelim    string
	NoQuotes      bool
	MalformedUTF8 string
	HeaderRow     string
	KeepBlankHdr  bool
	Verbose       bool

	explicit map[string]bool
}

// Register adds the common flag vocabulary to fs and returns a Flags
// whose fields are populated once fs.Parse has run.
func Register(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.UintVar(&f.HeaderSpan, "d", 0, "header row span")
	fs.UintVar(&f.SkipHead, "R", 0, "rows to skip before the header")
	fs.UintVar(&f.MaxColumns, "c", 0, "maximum columns per row")
	fs.UintVar(&f.MaxRowSize, "r", 0, "maximum row size in bytes")
	fs.UintVar(&f.BufferSize, "B", 0, "read buffer size in bytes")
	fs.BoolVar(&f.Tab, "t", false, "use tab as the delimiter")
	fs.StringVar(&f.OtherDelim, "O", "", "use this single byte as the delimiter")
	fs.BoolVar(&f.NoQuotes, "q", false, "disable quote handling")
	fs.StringVar(&f.MalformedUTF8, "u", "", "replacement for malformed UTF-8 bytes")
	fs.StringVar(&f.HeaderRow, "0", "", "synthetic CSV-encoded header row to prepend")
	fs.BoolVar(&f.KeepBlankHdr, "S", false, "keep blank rows inside the header span")
	fs.BoolVar(&f.Verbose, "v", false, "set the verbose option (no extra diagnostics are printed)")
	return f
}

// captureExplicit records which flags were actually passed, via
// fs.Visit (as opposed to fs.VisitAll, which reports every registered
// flag regardless of whether the user set it).
func (f *Flags) captureExplicit(fs *flag.FlagSet) {
	f.explicit = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		f.explicit[fl.Name] = true
	})
}

func (f *Flags) isSet(name string) bool {
	return f.explicit != nil && f.explicit[name]
}

// Build merges built-in defaults, the input file's persisted
// FileProperties (header-row-span/skip-head only, per spec.md §4.3),
// and this command's explicit CLI flags into a parser.Options, then
// attaches the input's overwrite sidecar (if any; see
// internal/overwrite.Open) as Options.Overwrites. fs must already have
// had Parse called on it.
func Build(fs *flag.FlagSet, flags *Flags, inputPath string) (parser.Options, error) {
	flags.captureExplicit(fs)

	opts := parser.DefaultOptions()

	store, err := propstore.Load(inputPath)
	if err != nil {
		return parser.Options{}, fmt.Errorf("cliopts: loading properties for %s: %w", inputPath, err)
	}
	persisted := store.Properties()
	if persisted.HasHeaderSpan {
		opts.HeaderSpan = int32(persisted.HeaderRowSpan)
	}
	if persisted.HasSkipHead {
		opts.SkipHead = persisted.SkipHead
	}

	if flags.isSet("d") {
		opts.HeaderSpan = int32(flags.HeaderSpan)
	}
	if flags.isSet("R") {
		opts.SkipHead = uint32(flags.SkipHead)
	}
	if flags.isSet("c") {
		opts.MaxColumns = int(flags.MaxColumns)
	}
	if flags.isSet("r") {
		opts.MaxRowSize = int(flags.MaxRowSize)
	}
	if flags.isSet("B") {
		opts.BufferSize = int(flags.BufferSize)
	}
	if flags.isSet("t") && flags.Tab {
		opts.Delimiter = '\t'
	}
	if flags.isSet("O") && flags.OtherDelim != "" {
		opts.Delimiter = flags.OtherDelim[0]
	}
	if flags.isSet("q") && flags.NoQuotes {
		opts.QuotesEnabled = false
	}
	if flags.isSet("u") {
		if len(flags.MalformedUTF8) > 0 {
			b := flags.MalformedUTF8[0]
			opts.MalformedUTF8Replace = &b
		}
	}
	if flags.isSet("0") {
		opts.InsertHeaderRow = []byte(flags.HeaderRow)
	}
	if flags.isSet("S") && flags.KeepBlankHdr {
		opts.KeepBlankHeaderRows = true
	}
	if flags.isSet("v") && flags.Verbose {
		opts.Verbose = true
	}

	iter, err := overwrite.Open(inputPath)
	if err != nil {
		return parser.Options{}, fmt.Errorf("cliopts: loading overwrites for %s: %w", inputPath, err)
	}
	opts.Overwrites = iter

	if err := opts.Validate(); err != nil {
		return parser.Options{}, err
	}
	return opts, nil
}

// Encode produces the "opts_used" string spec.md §4.3 describes: an
// opaque, stable encoding a worker goroutine or subprocess can decode
// to rebuild an identical parser.Options (minus Stream/handlers, which
// are per-worker). The format is a simple key=value list; opaque to
// callers, not to us.
func Encode(opts parser.Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "delim=%d;", opts.Delimiter)
	fmt.Fprintf(&b, "quotes=%t;", opts.QuotesEnabled)
	fmt.Fprintf(&b, "strict=%t;", opts.StrictQuotes)
	fmt.Fprintf(&b, "maxcols=%d;", opts.MaxColumns)
	fmt.Fprintf(&b, "maxrow=%d;", opts.MaxRowSize)
	fmt.Fprintf(&b, "buf=%d;", opts.BufferSize)
	fmt.Fprintf(&b, "span=%d;", opts.HeaderSpan)
	fmt.Fprintf(&b, "skip=%d;", opts.SkipHead)
	fmt.Fprintf(&b, "blankhdr=%t;", opts.KeepBlankHeaderRows)
	if opts.MalformedUTF8Replace != nil {
		fmt.Fprintf(&b, "utf8repl=%d;", *opts.MalformedUTF8Replace)
	}
	fmt.Fprintf(&b, "verbose=%t;", opts.Verbose)
	fmt.Fprintf(&b, "fixedauto=%d;", opts.FixedAutoDetectBytes)
	return b.String()
}

// Decode parses an Encode-produced string back into a parser.Options
// (Stream, RowHandler, CellHandler, Context, Overwrites, Progress,
// ProgressEvery and InsertHeaderRow are not encoded and are left zero;
// the caller supplies those per-worker). Unrecognized or
// malformed keys are ignored rather than erroring, since opts_used is
// meant to be forward-compatible with future fields.
func Decode(s string) parser.Options {
	opts := parser.DefaultOptions()
	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		switch key {
		case "delim":
			if n, err := strconv.Atoi(val); err == nil {
				opts.Delimiter = byte(n)
			}
		case "quotes":
			opts.QuotesEnabled = val == "true"
		case "strict":
			opts.StrictQuotes = val == "true"
		case "maxcols":
			if n, err := strconv.Atoi(val); err == nil {
				opts.MaxColumns = n
			}
		case "maxrow":
			if n, err := strconv.Atoi(val); err == nil {
				opts.MaxRowSize = n
			}
		case "buf":
			if n, err := strconv.Atoi(val); err == nil {
				opts.BufferSize = n
			}
		case "span":
			if n, err := strconv.ParseInt(val, 10, 32); err == nil {
				opts.HeaderSpan = int32(n)
			}
		case "skip":
			if n, err := strconv.ParseUint(val, 10, 32); err == nil {
				opts.SkipHead = uint32(n)
			}
		case "blankhdr":
			opts.KeepBlankHeaderRows = val == "true"
		case "utf8repl":
			if n, err := strconv.Atoi(val); err == nil {
				b := byte(n)
				opts.MalformedUTF8Replace = &b
			}
		case "verbose":
			opts.Verbose = val == "true"
		case "fixedauto":
			if n, err := strconv.Atoi(val); err == nil {
				opts.FixedAutoDetectBytes = n
			}
		}
	}
	return opts
}

// ForWorkerChunk returns a copy of opts adjusted the way spec.md §4.4
// requires for every chunk but the first: header folding disabled,
// since only the chunk containing the real file header should apply
// HeaderSpan/SkipHead. HeaderSpan is set to parser.HeaderSpanDisabled
// rather than 0: Validate treats 0 as "unset" and replaces it with
// DefaultHeaderSpan, which would silently fold each worker's first row
// into a one-row header again (and lose that row's Quoted flags through
// emitMergedHeader's Cell rebuild), producing output that diverges from
// the serial parse at every chunk boundary but the first.
func ForWorkerChunk(opts parser.Options, chunkIndex int) parser.Options {
	if chunkIndex == 0 {
		return opts
	}
	out := opts
	out.HeaderSpan = parser.HeaderSpanDisabled
	out.SkipHead = 0
	out.InsertHeaderRow = nil
	return out
}

// Package countcmd implements the `count` command: the simplest
// consumer of the parser, used by spec.md §8 scenario 6 to pin down
// the chunker's correctness property ("serial and N-way parallel count
// produce the same u64, for any file of >=10 MiB with quoted embedded
// newlines"). Both the serial and --jobs/--parallel paths are built
// here so that property has somewhere to hold.
package countcmd

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/csvtoolkit/zsv/internal/chunker"
	"github.com/csvtoolkit/zsv/internal/cliopts"
	"github.com/csvtoolkit/zsv/internal/commands"
	"github.com/csvtoolkit/zsv/internal/parser"
)

func init() {
	commands.Register("count", Run)
}

// Run implements commands.Func for "count": prints the number of data
// rows (excluding header rows) in the input file.
func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := cliopts.Register(fs)

	var jobs int
	fs.IntVar(&jobs, "jobs", 1, "number of parallel chunks to scan")
	fs.IntVar(&jobs, "parallel", 1, "alias for -jobs")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "zsv count: missing input file")
		return 2
	}
	inputPath := rest[0]

	opts, err := cliopts.Build(fs, common, inputPath)
	if err != nil {
		fmt.Fprintln(stderr, "zsv count:", err)
		return 1
	}

	var n uint64
	if jobs > 1 {
		if opts.Overwrites != nil {
			// Sharing one forward-only iterator across concurrent chunk
			// workers would race; count never reads cell values anyway,
			// so there is nothing gained by keeping it attached here.
			opts.Overwrites = nil
		}
		n, err = countParallel(inputPath, opts, jobs)
	} else {
		n, err = countSerial(inputPath, opts)
	}
	if err != nil {
		fmt.Fprintln(stderr, "zsv count:", err)
		return 1
	}

	fmt.Fprintf(stdout, "%d\n", n)
	return 0
}

// countSerial scans the whole file through a single Parser, counting
// data rows via NextRow (the pull API spec.md §9's design note
// describes as "just a caller-driven loop over the push API").
func countSerial(inputPath string, opts parser.Options) (uint64, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	opts.Stream = f

	p, err := parser.New(opts)
	if err != nil {
		return 0, err
	}
	defer commands.RegisterAbortable(p.Abort)()

	var n uint64
	headerSeen := false
	for {
		status, err := p.NextRow()
		if err != nil {
			return 0, err
		}
		if status == parser.StatusNoMoreInput || status == parser.StatusCancelled {
			break
		}
		if status != parser.StatusRow {
			continue
		}
		if !headerSeen {
			headerSeen = true
			continue
		}
		n++
	}
	return n, nil
}

// countParallel implements spec.md §4.4's chunked scan: compute
// boundary-safe chunks, count data rows in each independently (chunk
// 0 skips its header row; every other chunk has header folding
// disabled and SkipHead zeroed by cliopts.ForWorkerChunk, so every row
// it sees is data), and sum.
func countParallel(inputPath string, opts parser.Options, jobs int) (uint64, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return 0, err
	}
	chunks := chunker.ComputeChunks(data, jobs)

	worker := func(index int, chunk chunker.FileChunk) (interface{}, error) {
		chunkOpts := cliopts.ForWorkerChunk(opts, index)
		chunkOpts.Stream = bytes.NewReader(data[chunk.Start:chunk.End])

		p, err := parser.New(chunkOpts)
		if err != nil {
			return nil, err
		}
		defer commands.RegisterAbortable(p.Abort)()

		var n uint64
		headerSeen := index != 0
		for {
			status, err := p.NextRow()
			if err != nil {
				return nil, err
			}
			if status == parser.StatusNoMoreInput || status == parser.StatusCancelled {
				break
			}
			if status != parser.StatusRow {
				continue
			}
			if !headerSeen {
				headerSeen = true
				continue
			}
			n++
		}
		return n, nil
	}

	results, errs := chunker.RunParallel(chunks, worker)
	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}
	var total uint64
	for _, res := range results {
		if res == nil {
			continue
		}
		total += res.(uint64)
	}
	return total, nil
}

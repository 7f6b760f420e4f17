package chunker

import (
	"sync"
)

// WorkerFunc processes one chunk, identified by its index in the
// slice ComputeChunks returned (0 is always the chunk containing the
// real file header). Implementations typically build a private
// parser.Parser over bytes.NewReader(data[chunk.Start:chunk.End]),
// using cliopts.ForWorkerChunk to disable header folding (via
// parser.HeaderSpanDisabled) and zero SkipHead for every chunk but 0,
// since only the first chunk's stream actually contains header rows.
type WorkerFunc func(index int, chunk FileChunk) (interface{}, error)

// RunParallel runs fn over every chunk concurrently (one goroutine
// per chunk, grounded on Scanner.Scan's per-chunk
// `go s.processChunk(...)` + sync.WaitGroup fan-out) and returns each
// chunk's result/error in chunk order. A panic inside fn is not
// recovered; callers that need worker isolation should recover inside
// their own WorkerFunc.
func RunParallel(chunks []FileChunk, fn WorkerFunc) ([]interface{}, []error) {
	results := make([]interface{}, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for i, c := range chunks {
		wg.Add(1)
		go func(idx int, chunk FileChunk) {
			defer wg.Done()
			res, err := fn(idx, chunk)
			results[idx] = res
			errs[idx] = err
		}(i, c)
	}
	wg.Wait()
	return results, errs
}

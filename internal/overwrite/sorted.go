package overwrite

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"

	"github.com/csvtoolkit/zsv/internal/parser"
)

// Pools mirror indexer/sorter.go's bufWriterPool/bufReaderPool: sized
// buffers reused across chunk flushes and merge reads instead of
// allocating fresh ones per chunk.
var (
	sortedBufWriterPool = sync.Pool{
		New: func() interface{} { return bufio.NewWriterSize(nil, 256*1024) },
	}
	sortedBufReaderPool = sync.Pool{
		New: func() interface{} { return bufio.NewReaderSize(nil, 64*1024) },
	}
)

// sortedState tracks SortedStore's external-merge progress, matching
// indexer/sorter.go's StateCollecting/StateMerging/StateDone machine.
type sortedState int32

const (
	stateCollecting sortedState = iota
	stateMerging
	stateDone
)

// SortedStore is the overwrite backend for sets too large to hold in
// memory: records are buffered in chunkSize batches, sorted and
// spilled to lz4-compressed temp files, then combined with a k-way
// merge into one sorted output file. Grounded on
// indexer/sorter.go's Sorter, adapted from its 80-byte fixed
// IndexRecord to overwrite.Record's variable-length value.
//
// A presenceFilter, populated during the merge with every merged
// record's row, answers "no overwrite exists for this row" without a
// seek.
type SortedStore struct {
	outputPath string
	tempDir    string
	chunkSize  int

	mu         sync.Mutex
	memBuffer  []Record
	chunkFiles []string

	totalRecords int64
	state        int32

	filter *presenceFilter
}

// NewSortedStore creates a sorted overwrite store. memoryLimit bounds
// the in-memory buffer per spill chunk (same chunkSize heuristic as
// Sorter: memoryLimit/recordOverheadEstimate, floor 1000).
func NewSortedStore(outputPath, tempDir string, memoryLimit int) *SortedStore {
	const recordOverheadEstimate = 128
	chunkSize := memoryLimit / recordOverheadEstimate
	if chunkSize < 1000 {
		chunkSize = 1000
	}
	return &SortedStore{
		outputPath: outputPath,
		tempDir:    tempDir,
		chunkSize:  chunkSize,
		memBuffer:  make([]Record, 0, chunkSize),
	}
}

// Set buffers one overwrite, spilling the buffer to a sorted,
// lz4-compressed chunk file once it reaches chunkSize records.
func (s *SortedStore) Set(row uint64, col uint32, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memBuffer = append(s.memBuffer, Record{Row: row, Col: col, Value: value})
	atomic.AddInt64(&s.totalRecords, 1)
	if len(s.memBuffer) >= s.chunkSize {
		_ = s.flushChunkLocked()
	}
}

func (s *SortedStore) flushChunkLocked() error {
	if len(s.memBuffer) == 0 {
		return nil
	}
	sort.Slice(s.memBuffer, func(i, j int) bool { return s.memBuffer[i].Less(s.memBuffer[j]) })

	chunkPath := filepath.Join(s.tempDir, fmt.Sprintf("overwrite_chunk_%d.tmp", len(s.chunkFiles)))
	file, err := os.Create(chunkPath)
	if err != nil {
		return fmt.Errorf("overwrite: creating chunk file: %w", err)
	}

	lzWriter := lz4.NewWriter(file)
	bufferedWriter := sortedBufWriterPool.Get().(*bufio.Writer)
	bufferedWriter.Reset(lzWriter)
	defer func() {
		bufferedWriter.Reset(nil)
		sortedBufWriterPool.Put(bufferedWriter)
	}()

	for _, rec := range s.memBuffer {
		if err := WriteRecord(bufferedWriter, rec); err != nil {
			bufferedWriter.Flush()
			lzWriter.Close()
			file.Close()
			return err
		}
	}
	if err := bufferedWriter.Flush(); err != nil {
		lzWriter.Close()
		file.Close()
		return err
	}
	if err := lzWriter.Close(); err != nil {
		file.Close()
		return err
	}
	file.Close()

	s.chunkFiles = append(s.chunkFiles, chunkPath)
	s.memBuffer = s.memBuffer[:0]
	return nil
}

// Finalize flushes any remaining buffer and performs the k-way merge,
// writing the combined sorted output and populating the presence
// filter. Must be called once, after all Sets, before Iterator/Save.
func (s *SortedStore) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushChunkLocked(); err != nil {
		return err
	}
	atomic.StoreInt32(&s.state, int32(stateMerging))

	if len(s.chunkFiles) == 0 {
		f, err := os.Create(s.outputPath)
		if err != nil {
			return err
		}
		f.Close()
		s.filter = newPresenceFilter(1)
		atomic.StoreInt32(&s.state, int32(stateDone))
		return nil
	}

	if err := s.kWayMergeLocked(); err != nil {
		return err
	}
	atomic.StoreInt32(&s.state, int32(stateDone))
	return nil
}

// mergeSource is one open chunk file plus its most recently read, not
// yet consumed record — the manual min-heap item shape from
// indexer/sorter.go's mergeItem, minus container/heap's interface
// boxing.
type mergeSource struct {
	reader *bufio.Reader
	file   *os.File
	rec    Record
	ok     bool
}

func (s *SortedStore) kWayMergeLocked() error {
	sources := make([]*mergeSource, 0, len(s.chunkFiles))
	for _, path := range s.chunkFiles {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("overwrite: opening chunk: %w", err)
		}
		lzReader := lz4.NewReader(f)
		bufReader := sortedBufReaderPool.Get().(*bufio.Reader)
		bufReader.Reset(lzReader)
		src := &mergeSource{reader: bufReader, file: f}
		src.advance()
		sources = append(sources, src)
	}
	defer func() {
		for _, src := range sources {
			src.reader.Reset(nil)
			sortedBufReaderPool.Put(src.reader)
			src.file.Close()
		}
	}()

	outFile, err := os.Create(s.outputPath)
	if err != nil {
		return fmt.Errorf("overwrite: creating output: %w", err)
	}
	defer outFile.Close()
	out := bufio.NewWriterSize(outFile, 256*1024)

	s.filter = newPresenceFilter(int(atomic.LoadInt64(&s.totalRecords)))

	for {
		minIdx := -1
		for i, src := range sources {
			if !src.ok {
				continue
			}
			if minIdx == -1 || src.rec.Less(sources[minIdx].rec) {
				minIdx = i
			}
		}
		if minIdx == -1 {
			break
		}
		rec := sources[minIdx].rec
		if err := WriteRecord(out, rec); err != nil {
			return err
		}
		s.filter.add(rec.Row)
		sources[minIdx].advance()
	}

	return out.Flush()
}

func (m *mergeSource) advance() {
	rec, err := ReadRecord(m.reader)
	if err != nil {
		m.ok = false
		return
	}
	m.rec = rec
	m.ok = true
}

// Save is a no-op for SortedStore: persistence happens incrementally
// via the chunk spills and Finalize's merged output file, not a
// single in-memory snapshot.
func (s *SortedStore) Save() error {
	return nil
}

// MayContainRow reports whether the merged output might contain an
// overwrite for row. False is a definite no. Must be called after
// Finalize.
func (s *SortedStore) MayContainRow(row uint64) bool {
	if s.filter == nil {
		return true
	}
	return s.filter.mightContain(row)
}

// Iterator opens the merged output file and walks it sequentially;
// the file is already in (row, col) order by construction of the
// k-way merge. Must be called after Finalize.
func (s *SortedStore) Iterator() parser.OverwriteIterator {
	f, err := os.Open(s.outputPath)
	if err != nil {
		return &streamIterator{done: true}
	}
	return &streamIterator{r: bufio.NewReaderSize(f, 64*1024), closer: f}
}

// sortedSidecarPath mirrors sidecarPath's sibling-file naming
// convention for the sorted backend's merged output.
func sortedSidecarPath(csvPath string) string {
	abs, err := filepath.Abs(csvPath)
	if err != nil {
		abs = csvPath
	}
	return abs + "_updates.sorted"
}

// OpenSortedStore opens an already-finalized sorted-store output file
// for csvPath, if one exists on disk. ok is false (not an error) when
// no such sidecar is present, mirroring LoadMapStore's convention. The
// returned store is read-only: Set/Finalize must not be called on it.
func OpenSortedStore(csvPath string) (store *SortedStore, ok bool, err error) {
	path := sortedSidecarPath(csvPath)
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil, false, nil
	} else if statErr != nil {
		return nil, false, fmt.Errorf("overwrite: stat %s: %w", path, statErr)
	}
	return &SortedStore{outputPath: path, state: int32(stateDone)}, true, nil
}

//go:build unix

package chunker

import (
	"os"

	"golang.org/x/sys/unix"
)

// MmapFile memory-maps f read-only for zero-copy access, the way
// entreya-csvquery/go/internal/indexer.Scanner wants
// common.MmapFile to behave — except the teacher's go/ tree only ever
// declares this for windows (a plain io.ReadAll fallback) and never
// supplies a unix body, so this is that missing implementation,
// grounded on the x/sys/unix mmap the teacher's go.mod already
// depends on.
func MmapFile(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return []byte{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// MunmapFile releases memory obtained from MmapFile.
func MunmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}

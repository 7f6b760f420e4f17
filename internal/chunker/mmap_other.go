//go:build !unix && !windows

package chunker

import (
	"io"
	"os"
)

// MmapFile falls back to a full read on platforms with neither a unix
// mmap syscall nor the windows ReadAll shim above.
func MmapFile(f *os.File) ([]byte, error) {
	return io.ReadAll(f)
}

func MunmapFile(data []byte) error {
	return nil
}

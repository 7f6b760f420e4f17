//go:build unix

package writer

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive advisory lock on file. The teacher's
// go/internal/writer only ever declared this for windows (see
// lock_windows.go's comment trail) and left unix unimplemented; this
// supplies that body using the x/sys/unix flock the module already
// depends on for the chunker's mmap.
func lockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_EX)
}

// unlockFile releases the lock taken by lockFile.
func unlockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}

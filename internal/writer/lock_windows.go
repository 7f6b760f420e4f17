//go:build windows

package writer

import "os"

// lockFile is a no-op on windows, matching
// entreya-csvquery/src/go/internal/writer/lock_windows.go's stub:
// proper Windows locking needs syscall.LockFileEx, punted on there too.
func lockFile(file *os.File) error {
	return nil
}

// unlockFile is a no-op on windows.
func unlockFile(file *os.File) error {
	return nil
}

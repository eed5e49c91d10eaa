//go:build !windows

package core

import "os"

// tryAcquireFastExtendPrivilege is a no-op on non-Windows platforms: on
// Unix-like systems, extending a regular file via ftruncate already
// produces a sparse hole rather than zero-filled bytes, which is exactly
// the "fast extend" property Windows needs a privilege for. There is
// nothing to acquire.
func tryAcquireFastExtendPrivilege() bool {
	return true
}

// fastExtendFile is a no-op here: Registry.AttachForWriteFromFile has
// already truncated f to size, which is the fast path on this platform.
func fastExtendFile(f *os.File, size int64) error {
	return nil
}

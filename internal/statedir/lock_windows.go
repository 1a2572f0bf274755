//go:build windows

package statedir

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// lockedBytes is the range held on the lock file; one byte is enough.
const lockedBytes = 1

func acquire(fd uintptr) error {
	var ol windows.Overlapped
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	err := windows.LockFileEx(windows.Handle(fd), flags, 0, lockedBytes, 0, &ol)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, windows.ERROR_LOCK_VIOLATION):
		return ErrAlreadyLocked
	default:
		return fmt.Errorf("LockFileEx: %w", err)
	}
}

func release(fd uintptr) error {
	var ol windows.Overlapped
	if err := windows.UnlockFileEx(windows.Handle(fd), 0, lockedBytes, 0, &ol); err != nil {
		return fmt.Errorf("UnlockFileEx: %w", err)
	}
	return nil
}

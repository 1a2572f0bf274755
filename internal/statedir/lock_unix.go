//go:build !windows

package statedir

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// acquire takes a non-blocking flock on fd. The descriptor is marked
// close-on-exec so child processes never inherit it.
func acquire(fd uintptr) error {
	if flags, err := unix.FcntlInt(fd, unix.F_GETFD, 0); err == nil {
		_, _ = unix.FcntlInt(fd, unix.F_SETFD, flags|unix.FD_CLOEXEC)
	}
	err := unix.Flock(int(fd), unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EWOULDBLOCK):
		return ErrAlreadyLocked
	default:
		return fmt.Errorf("flock: %w", err)
	}
}

func release(fd uintptr) error {
	if err := unix.Flock(int(fd), unix.LOCK_UN); err != nil {
		return fmt.Errorf("flock unlock: %w", err)
	}
	return nil
}

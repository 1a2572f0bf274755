// Package statedir owns the bot state directory and the lock that keeps two
// judgebot processes from sharing it.
package statedir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrAlreadyLocked indicates the state directory is held by another process.
	ErrAlreadyLocked = errors.New("state directory already in use")
)

const (
	lockName  = "judgebot.lock"
	cacheName = "cards.sqlite"
)

// Dir is an opened, locked state directory.
type Dir struct {
	root string
	f    *os.File
}

// Open creates root if needed and takes an exclusive, non-blocking lock on it.
func Open(root string) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("state dir is empty")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}

	path := filepath.Join(root, lockName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := acquire(f.Fd()); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrAlreadyLocked) {
			return nil, fmt.Errorf("%s: %w", root, err)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	writeOwner(f)

	return &Dir{root: root, f: f}, nil
}

func (d *Dir) Root() string {
	if d == nil {
		return ""
	}
	return d.root
}

// LockPath is the file holding the lock.
func (d *Dir) LockPath() string {
	if d == nil {
		return ""
	}
	return filepath.Join(d.root, lockName)
}

// CardCachePath is the sqlite card cache.
func (d *Dir) CardCachePath() string {
	if d == nil {
		return ""
	}
	return filepath.Join(d.root, cacheName)
}

func (d *Dir) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	// Unlock first; close always.
	unlockErr := release(d.f.Fd())
	closeErr := d.f.Close()
	d.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

// writeOwner records the holder's pid in the lock file. Failures are ignored;
// the content is only read by people debugging a stuck lock.
func writeOwner(f *os.File) {
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()
}

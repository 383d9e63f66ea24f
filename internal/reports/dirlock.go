package reports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const (
	lockFileName = ".upload.lock"

	// DefaultLockTimeout bounds the wait for another upload into the same command directory.
	DefaultLockTimeout = 5 * time.Second
)

// ErrLockTimeout indicates the directory lock was not acquired in time
var ErrLockTimeout = errors.New("report directory lock timed out")

// dirLock serializes version resolution and writes inside one command
// directory. flock(2) makes it hold across processes sharing a reports dir.
type dirLock struct {
	path string
	file *os.File
}

func newDirLock(dir string) *dirLock {
	return &dirLock{path: filepath.Join(dir, lockFileName)}
}

// lock blocks until the lock is held, timeout expires or ctx is done.
func (l *dirLock) lock(ctx context.Context, timeout time.Duration) error {
	if l.file != nil {
		return nil
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	poll := 5 * time.Millisecond
	const maxPoll = 200 * time.Millisecond

	for {
		err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			l.file = file
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			_ = file.Close()
			return fmt.Errorf("flock failed: %w", err)
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			_ = file.Close()
			return ctx.Err()
		case <-time.After(poll):
			poll = min(poll*2, maxPoll)
		}
	}
}

// unlock releases the lock. It is a no-op when the lock is not held.
func (l *dirLock) unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return closeErr
}

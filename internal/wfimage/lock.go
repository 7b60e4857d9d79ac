package wfimage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/utils"
)

// lockPollInterval is how often CacheLock retries O_CREAT|O_EXCL while the
// lock file is held by another writer.
const lockPollInterval = 50 * time.Millisecond

// defaultLockDeadline sits inside the spec's documented 10-30s band (spec
// §4.A "Acquire the index lock (bounded poll with a ~10-30s deadline").
const defaultLockDeadline = 20 * time.Second

// CacheLock is the single-writer lock guarding an ImageCache's index.json
// (spec §3 "ImageCache", §5 "Image-cache concurrency"). Unlike the
// teacher's flock(2)-based Lock, acquisition is create-exclusive and
// release is unlink-based — the two are not interchangeable, which is why
// this is new code rather than an adaptation of lock/flock (see
// DESIGN.md).
type CacheLock struct {
	path     string
	deadline time.Duration
}

// NewCacheLock creates a lock for the given lock-file path. A zero
// deadline falls back to defaultLockDeadline.
func NewCacheLock(path string, deadline time.Duration) *CacheLock {
	if deadline <= 0 {
		deadline = defaultLockDeadline
	}
	return &CacheLock{path: path, deadline: deadline}
}

// Lock polls for create-exclusive acquisition of the lock file, returning
// wferr.ErrCacheLockTimeout if the deadline elapses first.
func (l *CacheLock) Lock(ctx context.Context) error {
	var openErr, fatalErr error
	check := func() (bool, error) {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			openErr = f.Close()
			return true, nil
		}
		if !os.IsExist(err) {
			fatalErr = fmt.Errorf("create cache lock %s: %w", l.path, err)
			return false, fatalErr
		}
		return false, nil
	}
	err := utils.WaitFor(ctx, l.deadline, lockPollInterval, check)
	switch {
	case fatalErr != nil:
		return fatalErr
	case err == nil:
		return openErr
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return wferr.ErrCacheLockTimeout
	}
}

// Unlock releases the lock by deleting the lock file.
func (l *CacheLock) Unlock() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release cache lock %s: %w", l.path, err)
	}
	return nil
}

// WithLock acquires the lock, runs fn, and always releases the lock
// afterward, even if fn panics or errors.
func WithLock(ctx context.Context, l *CacheLock, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock() //nolint:errcheck
	return fn()
}

// Package lockfile wraps advisory file locks used to serialize pipeline runs
// and to keep mart rebuilds from interleaving with lake loads.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"medwarehouse/internal/services"
)

// PollInterval is how often blocking acquisitions retry.
const PollInterval = 50 * time.Millisecond

// Lock is an advisory lock on a file path.
type Lock struct {
	path string
	fl   *flock.Flock
}

// New prepares a lock at path. The parent directory is created on first use.
func New(path string) *Lock {
	return &Lock{path: path, fl: flock.New(path)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// TryExclusive attempts an exclusive lock without waiting.
func (l *Lock) TryExclusive() (bool, error) {
	if err := l.ensureDir(); err != nil {
		return false, err
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "lock", "acquire", l.path, err)
	}
	return ok, nil
}

// Exclusive waits for an exclusive lock until ctx is done.
func (l *Lock) Exclusive(ctx context.Context) error {
	return l.acquire(ctx, "exclusive", l.fl.TryLockContext)
}

// Shared waits for a shared lock until ctx is done.
func (l *Lock) Shared(ctx context.Context) error {
	return l.acquire(ctx, "shared", l.fl.TryRLockContext)
}

func (l *Lock) acquire(ctx context.Context, mode string, try func(context.Context, time.Duration) (bool, error)) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	ok, err := try(ctx, PollInterval)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "lock", mode, l.path, err)
	case err != nil:
		return services.Wrap(services.ErrTransient, "lock", mode, l.path, err)
	case !ok:
		return services.Wrap(services.ErrTransient, "lock", mode, fmt.Sprintf("%s not acquired", l.path), nil)
	}
	return nil
}

// Unlock releases whatever lock is held. It is safe to call when unlocked.
func (l *Lock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return services.Wrap(services.ErrTransient, "lock", "release", l.path, err)
	}
	return nil
}

func (l *Lock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "lock", "create directory", l.path, err)
	}
	return nil
}

package foroutines

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"
)

// Mutex is a cross-process mutual exclusion primitive: acquired with a
// bounded polling loop, released on every exit path. It is backed by an
// OS file lock (gofrs/flock) rather than a semaphore or shared-cache
// CAS, grounded the way the rest of the pack's manifests
// (gravitational-teleport, ethereum-go-ethereum) pull in gofrs/flock
// for the same purpose.
type Mutex struct {
	name string
	fl   *flock.Flock
}

// NewMutex returns a named cross-process Mutex. Processes that pass
// the same name contend on the same OS-level lock file.
func NewMutex(name string) *Mutex {
	sum := sha1.Sum([]byte(name))
	path := filepath.Join(os.TempDir(), "foroutines-mutex-"+hex.EncodeToString(sum[:])+".lock")
	return &Mutex{name: name, fl: flock.New(path)}
}

// backoffPolicy bounds the polling interval used while waiting for a
// contended lock, grounded on the exponential backoff loop
// jkilzi-assisted-migration-agent's console service uses to avoid
// hammering a contended resource.
func backoffPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	return b
}

// Acquire blocks until the lock is held or timeout elapses (timeout
// <= 0 means wait indefinitely), raising ErrTimeout on expiry.
func (m *Mutex) Acquire(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	b := backoffPolicy()
	for {
		ok, err := m.fl.TryLock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIoFailure, err)
		}
		if ok {
			return nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		time.Sleep(b.NextBackOff())
	}
}

// TryAcquire makes one non-blocking attempt to take the lock.
func (m *Mutex) TryAcquire() (bool, error) {
	ok, err := m.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	return ok, nil
}

// Release unlocks the Mutex. Safe to call even if not currently held.
func (m *Mutex) Release() error {
	return m.fl.Unlock()
}

// WithLock acquires the Mutex, runs fn, and releases on every exit path:
// normal return, panic, or error.
func (m *Mutex) WithLock(timeout time.Duration, fn func() error) (err error) {
	if err = m.Acquire(timeout); err != nil {
		return err
	}
	defer func() {
		if releaseErr := m.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}

package foroutines

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func uniqueMutexName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("foroutines-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestMutexAcquireReleaseRoundTrip(t *testing.T) {
	m := NewMutex(uniqueMutexName(t))
	require.NoError(t, m.Acquire(time.Second))
	require.NoError(t, m.Release())
}

func TestMutexTryAcquireFailsWhileHeld(t *testing.T) {
	name := uniqueMutexName(t)
	m1 := NewMutex(name)
	m2 := NewMutex(name)

	require.NoError(t, m1.Acquire(time.Second))
	defer m1.Release()

	ok, err := m2.TryAcquire()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMutexAcquireTimesOutWhileContended(t *testing.T) {
	name := uniqueMutexName(t)
	m1 := NewMutex(name)
	m2 := NewMutex(name)

	require.NoError(t, m1.Acquire(time.Second))
	defer m1.Release()

	err := m2.Acquire(20 * time.Millisecond)
	require.True(t, errors.Is(err, ErrTimeout))
}

func TestMutexWithLockReleasesOnPanic(t *testing.T) {
	name := uniqueMutexName(t)
	m := NewMutex(name)

	func() {
		defer func() { _ = recover() }()
		_ = m.WithLock(time.Second, func() error {
			panic("boom")
		})
	}()

	ok, err := m.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok, "WithLock must release the lock even when fn panics")
	require.NoError(t, m.Release())
}

func TestMutexWithLockSerializesConcurrentCallers(t *testing.T) {
	name := uniqueMutexName(t)
	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := NewMutex(name)
			err := m.WithLock(2*time.Second, func() error {
				mu.Lock()
				counter++
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 8, counter)
}

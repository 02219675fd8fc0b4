package foroutines

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLaunchRunsConcurrentlyWithDelays(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	var order []string
	j := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		a := Launch(c, DEFAULT, func(cc *Ctx) (any, error) {
			if err := Delay(cc, 20*time.Millisecond); err != nil {
				return nil, err
			}
			order = append(order, "slow")
			return nil, nil
		})
		b := Launch(c, DEFAULT, func(cc *Ctx) (any, error) {
			if err := Delay(cc, 5*time.Millisecond); err != nil {
				return nil, err
			}
			order = append(order, "fast")
			return nil, nil
		})
		if err := a.Join(c); err != nil {
			return nil, err
		}
		return nil, b.Join(c)
	})
	sched.RunUntilIdle()

	require.True(t, j.IsCompleted())
	require.Equal(t, []string{"fast", "slow"}, order)
}

func TestAsyncAwaitComposesTypedResults(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	var sum int
	j := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		da := Async(c, DEFAULT, func(cc *Ctx) (int, error) { return 2, nil })
		db := Async(c, DEFAULT, func(cc *Ctx) (int, error) { return 3, nil })
		va, err := da.Await(c)
		if err != nil {
			return nil, err
		}
		vb, err := db.Await(c)
		if err != nil {
			return nil, err
		}
		sum = va + vb
		return nil, nil
	})
	sched.RunUntilIdle()

	require.True(t, j.IsCompleted())
	require.Equal(t, 5, sum)
}

func TestAsyncAwaitPropagatesFailure(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	sentinel := errors.New("async broke")
	j := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		d := Async(c, DEFAULT, func(cc *Ctx) (int, error) { return 0, sentinel })
		_, err := d.Await(c)
		return nil, err
	})
	sched.RunUntilIdle()

	require.Equal(t, StatusFailed, j.GetStatus())
	_, err := j.Result()
	require.True(t, errors.Is(err, sentinel))
}

func TestCancelPropagatesThroughDeepAsyncChain(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	var leaf *Job
	root := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		mid := Launch(c, DEFAULT, func(cc *Ctx) (any, error) {
			leaf = Launch(cc, DEFAULT, func(ccc *Ctx) (any, error) {
				return nil, Delay(ccc, time.Hour)
			})
			return nil, leaf.Join(cc)
		})
		return nil, mid.Join(c)
	})

	for i := 0; i < 10 && leaf == nil; i++ {
		sched.Tick()
	}
	for i := 0; i < 10; i++ {
		sched.Tick()
	}

	root.Cancel()
	sched.RunUntilIdle()

	require.True(t, root.IsCancelled())
	require.True(t, leaf.IsCancelled())
}

func TestRunBlockingReturnsBlockResult(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	v, err := RunBlocking(sched, func(c *Ctx) (int, error) {
		return 21, nil
	})
	require.NoError(t, err)
	require.Equal(t, 21, v)
}

func TestRepeatStopsEarlyOnError(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	sentinel := errors.New("iteration failed")
	var ran []int
	j := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		return nil, Repeat(c, 5, func(cc *Ctx, i int) error {
			ran = append(ran, i)
			if i == 2 {
				return sentinel
			}
			return nil
		})
	})
	sched.RunUntilIdle()

	require.True(t, errors.Is(func() error { _, err := j.Result(); return err }(), sentinel))
	require.Equal(t, []int{0, 1, 2}, ran)
}

func TestWithTimeoutExpiresAndCancelsChild(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	entered := false
	j := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		_, err := WithTimeout(c, 10*time.Millisecond, func(cc *Ctx) (int, error) {
			entered = true
			return 0, Delay(cc, time.Hour)
		})
		return nil, err
	})
	sched.RunUntilIdle()

	require.True(t, entered)
	require.Equal(t, StatusFailed, j.GetStatus())
	_, err := j.Result()
	require.True(t, errors.Is(err, ErrTimeout))
}

func TestWithTimeoutOrNullReturnsNotOkOnExpiry(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	var ok bool
	j := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		_, gotOk, err := WithTimeoutOrNull(c, 10*time.Millisecond, func(cc *Ctx) (int, error) {
			return 0, Delay(cc, time.Hour)
		})
		ok = gotOk
		return nil, err
	})
	sched.RunUntilIdle()

	require.True(t, j.IsCompleted())
	require.False(t, ok)
}

func TestWithTimeoutOrNullReturnsValueWhenFastEnough(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	var value int
	var ok bool
	j := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		v, gotOk, err := WithTimeoutOrNull(c, time.Hour, func(cc *Ctx) (int, error) {
			return 11, nil
		})
		value, ok = v, gotOk
		return nil, err
	})
	sched.RunUntilIdle()

	require.True(t, j.IsCompleted())
	require.True(t, ok)
	require.Equal(t, 11, value)
}

package foroutines

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelRendezvousSendReceive(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	ch := NewChannel[int](0)
	var received int
	recvDone := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		v, err := ch.Receive(c)
		received = v
		return nil, err
	})
	sendDone := LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		return nil, ch.Send(c, 5)
	})

	sched.RunUntilIdle()

	require.True(t, recvDone.IsCompleted())
	require.True(t, sendDone.IsCompleted())
	require.Equal(t, 5, received)
}

func TestChannelBufferCapacityBound(t *testing.T) {
	ch := NewChannel[int](2)
	require.True(t, ch.TrySend(1))
	require.True(t, ch.TrySend(2))
	require.False(t, ch.TrySend(3), "send beyond capacity must fail without a parked receiver")
	require.True(t, ch.IsFull())
	require.Equal(t, 2, ch.Size())
}

func TestChannelFIFOReceiverOrder(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	ch := NewChannel[int](0)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
			v, err := ch.Receive(c)
			if err != nil {
				return nil, err
			}
			order = append(order, v)
			_ = i
			return nil, nil
		})
	}
	// Drive all three receivers to parked state before any sends.
	for i := 0; i < 6; i++ {
		sched.Tick()
	}

	LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		for _, v := range []int{10, 20, 30} {
			if err := ch.Send(c, v); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	sched.RunUntilIdle()

	require.Equal(t, []int{10, 20, 30}, order, "receivers must be served in FIFO registration order")
}

func TestChannelFIFOSenderOrder(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	ch := NewChannel[int](0)
	for _, v := range []int{1, 2, 3} {
		v := v
		LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
			return nil, ch.Send(c, v)
		})
	}
	for i := 0; i < 6; i++ {
		sched.Tick()
	}

	var order []int
	LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		for i := 0; i < 3; i++ {
			v, err := ch.Receive(c)
			if err != nil {
				return nil, err
			}
			order = append(order, v)
		}
		return nil, nil
	})
	sched.RunUntilIdle()

	require.Equal(t, []int{1, 2, 3}, order, "senders must be drained in FIFO registration order")
}

func TestChannelCloseIsIdempotentAndFailsWaiters(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	ch := NewChannel[int](0)
	recvErr := make(chan error, 1)
	LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		_, err := ch.Receive(c)
		recvErr <- err
		return nil, err
	})
	for i := 0; i < 4; i++ {
		sched.Tick()
	}

	ch.Close()
	ch.Close() // idempotent: must not panic or double-fail waiters
	sched.RunUntilIdle()

	require.True(t, errors.Is(<-recvErr, ErrChannelClosed))
	require.True(t, ch.IsClosed())

	_, ok := ch.TryReceive()
	require.False(t, ok)
	require.False(t, ch.TrySend(1))
}

func TestChannelTrySendTryReceiveNeverBlock(t *testing.T) {
	ch := NewChannel[string](1)
	require.True(t, ch.TrySend("a"))
	v, ok := ch.TryReceive()
	require.True(t, ok)
	require.Equal(t, "a", v)

	_, ok = ch.TryReceive()
	require.False(t, ok, "TryReceive on an empty buffered channel must not block")
}

func TestChannelIterateStopsOnCloseAndDrain(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	ch := NewChannel[int](4)
	ch.TrySend(1)
	ch.TrySend(2)
	ch.Close()

	var got []int
	LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		it := ch.Iterate(c)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			got = append(got, v)
		}
		return nil, nil
	})
	sched.RunUntilIdle()

	require.Equal(t, []int{1, 2}, got)
}

func TestChannelIteratorErrDistinguishesCleanCloseFromExhaustion(t *testing.T) {
	sched := NewScheduler()
	defer sched.Shutdown()

	ch := NewChannel[int](1)
	ch.TrySend(1)
	ch.Close()

	LaunchOn(sched, DEFAULT, func(c *Ctx) (any, error) {
		it := ch.Iterate(c)

		v, ok := it.Next()
		require.Equal(t, 1, v)
		require.True(t, ok)
		require.NoError(t, it.Err())

		_, ok = it.Next()
		require.False(t, ok)
		require.NoError(t, it.Err(), "a clean close must not report an error")

		_, ok = it.Next()
		require.False(t, ok)
		require.ErrorIs(t, it.Err(), ErrIteratorExhausted, "calling Next again after exhaustion must be reported")

		return nil, nil
	})
	sched.RunUntilIdle()
}

func TestChannelIsEmptyAndSize(t *testing.T) {
	ch := NewChannel[int](3)
	require.True(t, ch.IsEmpty())
	ch.TrySend(1)
	require.False(t, ch.IsEmpty())
	require.Equal(t, 1, ch.Size())
}

package foroutines

import (
	"time"

	"github.com/vosaka-php/foroutines/asyncio"
)

// WaitReadable suspends the current fiber until fd is readable, or
// returns ErrTimeout if timeout elapses first (timeout <= 0 means no
// deadline). It is component E's waitReadable, exposed for user code
// that drives raw file/socket descriptors from within a fiber.
func WaitReadable(c *Ctx, fd int, timeout time.Duration) error {
	return waitFor(c, fd, asyncio.Read, timeout)
}

// WaitWritable is WaitReadable for write-readiness.
func WaitWritable(c *Ctx, fd int, timeout time.Duration) error {
	return waitFor(c, fd, asyncio.Write, timeout)
}

func waitFor(c *Ctx, fd int, dir asyncio.Direction, timeout time.Duration) error {
	job := c.job
	sched := c.scheduler

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := sched.io.Register(fd, dir, job, deadline); err != nil {
		return wrapIOError(err)
	}
	job.setParkedCancel(func(signal error) {
		sched.io.Deregister(fd, dir)
		sched.resumeWithError(job, signal)
	})
	_, err := c.Suspend(nil)
	job.clearParkedCancel()
	return err
}

func wrapIOError(err error) error {
	if err == asyncio.ErrConflict {
		return ErrIoFailure
	}
	return err
}

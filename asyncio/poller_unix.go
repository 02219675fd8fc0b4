//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package asyncio

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// fdWaiters holds the at-most-one read waiter and at-most-one write
// waiter for a single fd.
type fdWaiters struct {
	read, write *armedWaiter
}

type armedWaiter struct {
	waiter   any
	deadline time.Time // zero means no deadline
}

// unixPoller multiplexes registered fds with unix.Poll, grounded on
// gaio's watcher (9c88e704_socket515-gaio__watcher.go.go) but reshaped
// into a pull API: one Register/PollOnce pair replaces gaio's
// push-driven WaitIO loop so only the scheduler goroutine ever
// observes readiness.
type unixPoller struct {
	mu      sync.Mutex
	fds     map[int]*fdWaiters
	order   []int // registration order, for deterministic scans
	closed  bool
}

// NewPoller constructs the platform AsyncIO poller.
func NewPoller() Poller {
	return &unixPoller{fds: make(map[int]*fdWaiters)}
}

func (p *unixPoller) entry(fd int) *fdWaiters {
	w, ok := p.fds[fd]
	if !ok {
		w = &fdWaiters{}
		p.fds[fd] = w
		p.order = append(p.order, fd)
	}
	return w
}

func (p *unixPoller) Register(fd int, dir Direction, waiter any, deadline time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrConflict
	}
	w := p.entry(fd)
	armed := &armedWaiter{waiter: waiter, deadline: deadline}
	switch dir {
	case Read:
		w.read = armed
	case Write:
		w.write = armed
	}
	return nil
}

func (p *unixPoller) Deregister(fd int, dir Direction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.fds[fd]
	if !ok {
		return
	}
	switch dir {
	case Read:
		w.read = nil
	case Write:
		w.write = nil
	}
	p.pruneLocked(fd, w)
}

func (p *unixPoller) pruneLocked(fd int, w *fdWaiters) {
	if w.read == nil && w.write == nil {
		delete(p.fds, fd)
		for i, f := range p.order {
			if f == fd {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
}

// PollOnce builds a unix.Poll set from current registrations, blocks
// up to timeoutMs, and delivers the first ready (fd, direction) it
// finds, deregistering only that direction.
func (p *unixPoller) PollOnce(timeoutMs int) (Event, bool) {
	p.mu.Lock()
	if len(p.order) == 0 {
		p.mu.Unlock()
		if timeoutMs > 0 {
			time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
		}
		return Event{}, false
	}

	now := time.Now()
	fds := make([]unix.PollFd, 0, len(p.order))
	fdList := make([]int, 0, len(p.order))
	for _, fd := range p.order {
		w := p.fds[fd]
		var events int16
		if w.read != nil {
			events |= unix.POLLIN
		}
		if w.write != nil {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		fdList = append(fdList, fd)
	}
	p.mu.Unlock()

	if ev, ok := p.expireTimeouts(now); ok {
		return ev, true
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return Event{}, false
		}
		return Event{}, false
	}
	if n == 0 {
		ev, ok := p.expireTimeouts(time.Now())
		return ev, ok
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		fd := fdList[i]
		w, ok := p.fds[fd]
		if !ok {
			continue
		}
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 && w.read != nil {
			waiter := w.read.waiter
			w.read = nil
			p.pruneLocked(fd, w)
			return Event{Waiter: waiter, Value: fd}, true
		}
		if pfd.Revents&(unix.POLLOUT|unix.POLLERR) != 0 && w.write != nil {
			waiter := w.write.waiter
			w.write = nil
			p.pruneLocked(fd, w)
			return Event{Waiter: waiter, Value: fd}, true
		}
	}
	return Event{}, false
}

// expireTimeouts fails the first waiter whose deadline has passed.
func (p *unixPoller) expireTimeouts(now time.Time) (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fd := range p.order {
		w := p.fds[fd]
		if w.read != nil && !w.read.deadline.IsZero() && !now.Before(w.read.deadline) {
			waiter := w.read.waiter
			w.read = nil
			p.pruneLocked(fd, w)
			return Event{Waiter: waiter, Err: ErrTimeout}, true
		}
		if w.write != nil && !w.write.deadline.IsZero() && !now.Before(w.write.deadline) {
			waiter := w.write.waiter
			w.write = nil
			p.pruneLocked(fd, w)
			return Event{Waiter: waiter, Err: ErrTimeout}, true
		}
	}
	return Event{}, false
}

func (p *unixPoller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.fds {
		if w.read != nil {
			n++
		}
		if w.write != nil {
			n++
		}
	}
	return n
}

func (p *unixPoller) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fds = make(map[int]*fdWaiters)
	p.order = nil
	p.closed = true
}

func (p *unixPoller) Close() error {
	return nil
}

package asyncio

import (
	"os"
	"testing"
	"time"
)

func TestPollerRegisterTimesOutWhenNeverReady(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	p := NewPoller()
	defer p.Close()

	waiter := "waiter-1"
	deadline := time.Now().Add(20 * time.Millisecond)
	if err := p.Register(int(r.Fd()), Read, waiter, deadline); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ev, ok := p.PollOnce(200)
	if !ok {
		t.Fatal("expected a timeout event")
	}
	if ev.Waiter != waiter {
		t.Fatalf("Waiter = %v, want %v", ev.Waiter, waiter)
	}
	if ev.Err != ErrTimeout {
		t.Fatalf("Err = %v, want ErrTimeout", ev.Err)
	}
}

func TestPollerDeregisterRemovesWaiterWithoutEvent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	p := NewPoller()
	defer p.Close()

	if err := p.Register(int(r.Fd()), Read, "waiter", time.Time{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := p.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	p.Deregister(int(r.Fd()), Read)
	if got := p.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0 after Deregister", got)
	}
}

func TestPollerDeliversEventOnReadableFd(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	p := NewPoller()
	defer p.Close()

	if err := p.Register(int(r.Fd()), Read, "reader", time.Time{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ev, ok := p.PollOnce(50)
		if ok {
			if ev.Err != nil {
				t.Fatalf("Err = %v, want nil", ev.Err)
			}
			if ev.Waiter != "reader" {
				t.Fatalf("Waiter = %v, want reader", ev.Waiter)
			}
			return
		}
	}
	t.Fatal("never observed readiness on the pipe")
}

func TestPollerCancelAllReleasesRegistrations(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	p := NewPoller()
	defer p.Close()

	if err := p.Register(int(r.Fd()), Read, "waiter", time.Time{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p.CancelAll()
	if got := p.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0 after CancelAll", got)
	}
}

func TestDirectionString(t *testing.T) {
	if Read.String() != "read" {
		t.Errorf("Read.String() = %q, want read", Read.String())
	}
	if Write.String() != "write" {
		t.Errorf("Write.String() = %q, want write", Write.String())
	}
}

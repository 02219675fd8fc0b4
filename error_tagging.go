package foroutines

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// JobMetaError exposes correlation metadata for a job failure, tagging
// it the way a TaskMetaError tags an individual task error with its
// submission index. Here the unit of work is a Job, identified by a
// uuid rather than a slice index.
type JobMetaError interface {
	error
	Unwrap() error
	JobID() (uuid.UUID, bool)
	Dispatcher() (Dispatcher, bool)
}

type jobTaggedError struct {
	err        error
	id         uuid.UUID
	dispatcher Dispatcher
	hasID      bool
}

func newJobTaggedError(err error, id uuid.UUID, d Dispatcher) error {
	if err == nil {
		return nil
	}
	return &jobTaggedError{err: err, id: id, dispatcher: d, hasID: true}
}

func (e *jobTaggedError) Error() string { return e.err.Error() }
func (e *jobTaggedError) Unwrap() error { return e.err }

func (e *jobTaggedError) JobID() (uuid.UUID, bool) {
	if !e.hasID {
		return uuid.Nil, false
	}
	return e.id, true
}

func (e *jobTaggedError) Dispatcher() (Dispatcher, bool) { return e.dispatcher, true }

func (e *jobTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "job(id=%s,dispatcher=%s): %+v", e.id, e.dispatcher, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractJobID returns the job ID from err if present.
func ExtractJobID(err error) (uuid.UUID, bool) {
	var jme JobMetaError
	if errors.As(err, &jme) {
		return jme.JobID()
	}
	return uuid.Nil, false
}

// ExtractJobDispatcher returns the dispatcher a failed job ran on, if present.
func ExtractJobDispatcher(err error) (Dispatcher, bool) {
	var jme JobMetaError
	if errors.As(err, &jme) {
		return jme.Dispatcher()
	}
	return DEFAULT, false
}

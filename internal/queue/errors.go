package queue

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("queue not found")
	ErrDuplicateName   = errors.New("queue name already registered")
	ErrInvalidName     = errors.New("invalid queue name")
	ErrAlreadyLaunched = errors.New("queue already launched")
	ErrNotLaunched     = errors.New("queue not launched")
	ErrChannelClosed   = errors.New("control channel closed")
	ErrInvalidSuspend  = errors.New("suspend duration must be > 0")
	ErrInvalidExecType = errors.New("invalid exec type")
	ErrNilAction       = errors.New("task has no action")
	ErrRunning         = errors.New("queue is running")
)

// ActionError is the failure that ended a queue: the Action returned an
// error or panicked on the given run (1-based).
type ActionError struct {
	Task string
	Run  int
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("task %s: run %d: %v", e.Task, e.Run, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// PanicError carries a recovered Action panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

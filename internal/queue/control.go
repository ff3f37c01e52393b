package queue

import (
	"fmt"
	"time"
)

type ControlKind int

const (
	ControlSuspend ControlKind = iota + 1
	ControlTerminate
)

// Control is a message steering a running queue.
// The only values are Suspend(d) and Terminate().
type Control struct {
	kind ControlKind
	d    time.Duration
}

// Suspend pauses the queue for d before its next evaluation.
func Suspend(d time.Duration) Control { return Control{kind: ControlSuspend, d: d} }

// Terminate ends the queue at its next control check.
func Terminate() Control { return Control{kind: ControlTerminate} }

// ControlFromMillis maps the integer command form: 0 terminates, a positive
// value suspends for that many milliseconds.
func ControlFromMillis(ms int64) (Control, error) {
	switch {
	case ms == 0:
		return Terminate(), nil
	case ms < 0:
		return Control{}, fmt.Errorf("%w: %dms", ErrInvalidSuspend, ms)
	default:
		return Suspend(time.Duration(ms) * time.Millisecond), nil
	}
}

func (c Control) Kind() ControlKind       { return c.kind }
func (c Control) Duration() time.Duration { return c.d }

func (c Control) String() string {
	switch c.kind {
	case ControlSuspend:
		return "suspend(" + c.d.String() + ")"
	case ControlTerminate:
		return "terminate"
	default:
		return "invalid"
	}
}

package queue

import (
	"fmt"
	"strconv"
	"strings"
)

type execKind int

const (
	execOnce execKind = iota + 1
	execMultiple
	execForever
)

// ExecType is how many times a task executes: once, n times, or until terminated.
// The zero value is invalid.
type ExecType struct {
	kind  execKind
	count int
}

func Once() ExecType          { return ExecType{kind: execOnce, count: 1} }
func Multiple(n int) ExecType { return ExecType{kind: execMultiple, count: n} }
func Forever() ExecType       { return ExecType{kind: execForever} }

func (e ExecType) IsForever() bool { return e.kind == execForever }

// Count is the execution limit; 0 for Forever.
func (e ExecType) Count() int { return e.count }

func (e ExecType) Validate() error {
	switch e.kind {
	case execOnce, execForever:
		return nil
	case execMultiple:
		if e.count > 0 {
			return nil
		}
		return fmt.Errorf("%w: multiple count must be > 0, got %d", ErrInvalidExecType, e.count)
	default:
		return ErrInvalidExecType
	}
}

// done reports whether ran executions exhaust the exec type.
func (e ExecType) done(ran int) bool {
	switch e.kind {
	case execOnce:
		return ran >= 1
	case execMultiple:
		return ran >= e.count
	default:
		return false
	}
}

func (e ExecType) String() string {
	switch e.kind {
	case execOnce:
		return "once"
	case execMultiple:
		return "multiple:" + strconv.Itoa(e.count)
	case execForever:
		return "forever"
	default:
		return "invalid"
	}
}

// ParseExecType accepts "once", "forever" and "multiple:N" (or just "N").
// An empty string means once.
func ParseExecType(s string) (ExecType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "once":
		return Once(), nil
	case "forever":
		return Forever(), nil
	}
	v = strings.TrimPrefix(v, "multiple:")
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return ExecType{}, fmt.Errorf("%w: %q", ErrInvalidExecType, s)
	}
	e := Multiple(n)
	if err := e.Validate(); err != nil {
		return ExecType{}, err
	}
	return e, nil
}

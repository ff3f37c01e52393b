package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Recurrence yields the next due time after an execution finished at t.
type Recurrence interface {
	Next(t time.Time) time.Time
}

type interval time.Duration

func (i interval) Next(t time.Time) time.Time { return t.Add(time.Duration(i)) }

// Task is an Action bound to a first execution time and an ExecType.
// It is immutable after NewTask; run state lives in the run-loop.
type Task struct {
	at     time.Time
	action Action
	exec   ExecType
	recur  Recurrence
	now    func() time.Time
}

type TaskOption func(*Task)

// WithRecurrence spaces repeated executions. Without it a repeating task
// executes again as soon as its previous run completes.
func WithRecurrence(r Recurrence) TaskOption { return func(t *Task) { t.recur = r } }

// WithInterval keeps at least d between the end of one execution and the next.
func WithInterval(d time.Duration) TaskOption {
	return func(t *Task) {
		if d > 0 {
			t.recur = interval(d)
		}
	}
}

func WithClock(now func() time.Time) TaskOption {
	return func(t *Task) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTask(at time.Time, action Action, exec ExecType, opts ...TaskOption) (*Task, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	t := &Task{at: at.UTC(), action: action, exec: exec, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

func (t *Task) ExecTime() time.Time { return t.at }
func (t *Task) Exec() ExecType      { return t.exec }
func (t *Task) Action() Action      { return t.action }

// run is the queue loop. It returns nil on Terminate or when the ExecType is
// exhausted, ctx.Err() on cancellation, and *ActionError when an execution fails.
func (t *Task) run(ctx context.Context, res *Resources, ch *Channel, name string, onRun func(run int, took time.Duration)) error {
	due := t.at
	ran := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, got := ch.TryRecv()
		if got {
			switch msg.Kind() {
			case ControlTerminate:
				return nil
			case ControlSuspend:
				if err := sleep(ctx, msg.Duration()); err != nil {
					return err
				}
			}
		}

		now := t.now()
		if now.Before(due) {
			if got {
				// Drain the rest of the queue before waiting.
				continue
			}
			timer := time.NewTimer(due.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-ch.Ready():
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		run := ran + 1
		took, err := t.execute(ctx, res)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ActionError{Task: name, Run: run, Err: err}
		}
		ran = run
		if onRun != nil {
			onRun(ran, took)
		}
		if t.exec.done(ran) {
			return nil
		}
		if t.recur != nil {
			due = t.recur.Next(t.now())
		}
	}
}

func (t *Task) execute(ctx context.Context, res *Resources) (took time.Duration, err error) {
	env, release, err := res.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
		took = time.Since(start)
	}()

	if err := t.action.Execute(ctx, env); err != nil {
		return 0, fmt.Errorf("%s: %w", t.action.Kind(), err)
	}
	return 0, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

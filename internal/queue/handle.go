package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"swarmbot/internal/runtime/supervisor"
	logx "swarmbot/pkg/logx"
)

type State int

const (
	StateRegistered State = iota
	StateRunning
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle is a registered queue: a task plus its control channel.
type Handle struct {
	name string
	task *Task
	ch   *Channel
	log  logx.Logger
	emit func(typ string, ev TaskEvent)

	mu         sync.Mutex
	state      State
	runs       int
	launchedAt time.Time
	endedAt    time.Time
	err        error
	done       chan struct{}
}

// Info is a point-in-time view of a Handle.
type Info struct {
	Name       string    `json:"name"`
	Queue      string    `json:"queue"`
	Action     string    `json:"action"`
	Exec       string    `json:"exec"`
	ExecTime   time.Time `json:"exec_time"`
	State      string    `json:"state"`
	Runs       int       `json:"runs"`
	Pending    int       `json:"pending"`
	LaunchedAt time.Time `json:"launched_at,omitempty"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func newHandle(name string, task *Task, log logx.Logger, emit func(string, TaskEvent)) *Handle {
	h := &Handle{
		name: name,
		task: task,
		ch:   NewChannel(),
		emit: emit,
		done: make(chan struct{}),
	}
	h.log = log.With(logx.String("task", name), logx.String("queue", h.QueueName()))
	return h
}

func (h *Handle) Name() string { return h.name }

// QueueName is the derived name used for the run-loop goroutine and logs.
func (h *Handle) QueueName() string { return DerivedName(h.name) }

// DerivedName is the queue name a registered name maps to.
func DerivedName(name string) string { return name + "-queue" }

func (h *Handle) Task() *Task { return h.task }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed when the run-loop has ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) launch(sup *supervisor.Supervisor, res *Resources) error {
	h.mu.Lock()
	if h.state != StateRegistered {
		st := h.state
		h.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyLaunched, h.name, st)
	}
	h.state = StateRunning
	h.launchedAt = time.Now()
	h.mu.Unlock()

	sup.Go(h.QueueName(), func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("run-loop panic: %v", r)
			}
			h.finish(err)
		}()
		return h.task.run(ctx, res, h.ch, h.name, h.executed)
	})
	return nil
}

func (h *Handle) executed(run int, took time.Duration) {
	h.mu.Lock()
	h.runs = run
	h.mu.Unlock()
	h.log.Debug("task executed", logx.Int("run", run), logx.Duration("took", took))
	h.emit(EventExecuted, TaskEvent{Name: h.name, Queue: h.QueueName(), Action: h.task.action.Kind(), Run: run, Took: took})
}

func (h *Handle) finish(err error) {
	h.ch.Close()

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	h.mu.Lock()
	h.endedAt = time.Now()
	if err != nil {
		h.state = StateFailed
		h.err = err
	} else {
		h.state = StateTerminated
	}
	runs := h.runs
	h.mu.Unlock()
	close(h.done)

	ev := TaskEvent{Name: h.name, Queue: h.QueueName(), Action: h.task.action.Kind(), Run: runs}
	if err != nil {
		var pe *PanicError
		if errors.As(err, &pe) {
			h.log.Error("task panicked", logx.Err(err), logx.String("stack", pe.Stack))
		} else {
			h.log.Error("task failed", logx.Err(err), logx.Int("runs", runs))
		}
		ev.Err = err.Error()
		h.emit(EventFailed, ev)
		return
	}
	h.log.Info("task terminated", logx.Int("runs", runs))
	h.emit(EventTerminated, ev)
}

// Suspend asks the run-loop to pause for d before its next evaluation.
func (h *Handle) Suspend(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSuspend, d)
	}
	if err := h.ch.Send(Suspend(d)); err != nil {
		return fmt.Errorf("suspend %s: %w", h.name, err)
	}
	return nil
}

// Terminate asks the run-loop to stop at its next control check.
func (h *Handle) Terminate() error {
	if err := h.ch.Send(Terminate()); err != nil {
		return fmt.Errorf("terminate %s: %w", h.name, err)
	}
	return nil
}

// Wait blocks until the run-loop ends and returns its error, if any.
func (h *Handle) Wait(ctx context.Context) error {
	if h.State() == StateRegistered {
		return fmt.Errorf("%w: %s", ErrNotLaunched, h.name)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := Info{
		Name:       h.name,
		Queue:      h.QueueName(),
		Action:     h.task.action.Kind(),
		Exec:       h.task.exec.String(),
		ExecTime:   h.task.at,
		State:      h.state.String(),
		Runs:       h.runs,
		Pending:    h.ch.Len(),
		LaunchedAt: h.launchedAt,
		EndedAt:    h.endedAt,
	}
	if h.err != nil {
		info.Error = h.err.Error()
	}
	return info
}

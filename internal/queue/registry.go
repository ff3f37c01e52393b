package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"swarmbot/internal/eventbus"
	"swarmbot/internal/runtime/supervisor"
	logx "swarmbot/pkg/logx"
)

// Event types published on the bus. Data is a TaskEvent.
const (
	EventRegistered = "task.registered"
	EventLaunched   = "task.launched"
	EventSuspended  = "task.suspended"
	EventExecuted   = "task.executed"
	EventFailed     = "task.failed"
	EventTerminated = "task.terminated"
)

type TaskEvent struct {
	Name    string
	Queue   string
	Action  string
	Run     int
	Took    time.Duration
	Suspend time.Duration
	Err     string
}

// Registry holds queues in registration order. Lookups by name act on the
// first match; the "latest" variants act on the last registered queue.
type Registry struct {
	mu      sync.RWMutex
	handles []*Handle
	// issued holds every name and derived queue name handed out so far.
	// Remove does not release them.
	issued map[string]struct{}

	res *Resources
	sup *supervisor.Supervisor
	log logx.Logger
	bus eventbus.Bus
}

type Option func(*Registry)

func WithLogger(log logx.Logger) Option { return func(r *Registry) { r.log = log } }
func WithBus(b eventbus.Bus) Option     { return func(r *Registry) { r.bus = b } }

// NewRegistry creates a registry whose run-loops live until ctx is canceled
// or Shutdown is called.
func NewRegistry(ctx context.Context, res *Resources, opts ...Option) *Registry {
	r := &Registry{res: res, issued: make(map[string]struct{})}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.log = r.log.With(logx.String("comp", "queue"))
	r.sup = supervisor.New(ctx, supervisor.WithLogger(r.log), supervisor.WithCancelOnError(false))
	return r
}

func (r *Registry) publish(typ string, ev TaskEvent) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// ReservedName addresses the most recently registered queue on control
// surfaces, so no queue may be registered under it.
const ReservedName = "latest"

// ValidateName reports whether name can be registered, ignoring uniqueness.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if strings.EqualFold(name, ReservedName) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

// Register adds a queue under a unique, non-empty name. It is not launched.
// Neither the name nor its derived queue name may match any name issued
// earlier by this registry, including queues that were since removed.
func (r *Registry) Register(name string, task *Task) (*Handle, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrNilAction
	}

	r.mu.Lock()
	derived := DerivedName(name)
	_, usedName := r.issued[name]
	_, usedDerived := r.issued[derived]
	if usedName || usedDerived {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	h := newHandle(name, task, r.log, r.publish)
	r.handles = append(r.handles, h)
	r.issued[name] = struct{}{}
	r.issued[derived] = struct{}{}
	r.mu.Unlock()

	h.log.Info("task registered", logx.String("exec", task.exec.String()), logx.Time("exec_time", task.at))
	r.publish(EventRegistered, TaskEvent{Name: name, Queue: h.QueueName(), Action: task.action.Kind()})
	return h, nil
}

func (r *Registry) Get(name string) (*Handle, error) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if h.name == name {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (r *Registry) Latest() (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.handles) == 0 {
		return nil, fmt.Errorf("%w: registry is empty", ErrNotFound)
	}
	return r.handles[len(r.handles)-1], nil
}

// List returns a view of every queue in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	hs := append([]*Handle(nil), r.handles...)
	r.mu.RUnlock()

	out := make([]Info, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Info())
	}
	return out
}

func (r *Registry) Launch(name string) error {
	h, err := r.Get(name)
	if err != nil {
		return err
	}
	return r.launch(h)
}

func (r *Registry) LaunchLatest() error {
	h, err := r.Latest()
	if err != nil {
		return err
	}
	return r.launch(h)
}

func (r *Registry) launch(h *Handle) error {
	if err := h.launch(r.sup, r.res); err != nil {
		return err
	}
	h.log.Info("task launched")
	r.publish(EventLaunched, TaskEvent{Name: h.name, Queue: h.QueueName(), Action: h.task.action.Kind()})
	return nil
}

func (r *Registry) Suspend(name string, d time.Duration) error {
	h, err := r.Get(name)
	if err != nil {
		return err
	}
	return r.suspend(h, d)
}

func (r *Registry) SuspendLatest(d time.Duration) error {
	h, err := r.Latest()
	if err != nil {
		return err
	}
	return r.suspend(h, d)
}

func (r *Registry) suspend(h *Handle, d time.Duration) error {
	if err := h.Suspend(d); err != nil {
		return err
	}
	h.log.Info("task suspend requested", logx.Duration("for", d))
	r.publish(EventSuspended, TaskEvent{Name: h.name, Queue: h.QueueName(), Action: h.task.action.Kind(), Suspend: d})
	return nil
}

func (r *Registry) Terminate(name string) error {
	h, err := r.Get(name)
	if err != nil {
		return err
	}
	return r.terminate(h)
}

func (r *Registry) TerminateLatest() error {
	h, err := r.Latest()
	if err != nil {
		return err
	}
	return r.terminate(h)
}

func (r *Registry) terminate(h *Handle) error {
	if err := h.Terminate(); err != nil {
		return err
	}
	h.log.Info("task terminate requested")
	return nil
}

// Remove drops a queue that is not running.
func (r *Registry) Remove(name string) error {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handles {
		if h.name != name {
			continue
		}
		if h.State() == StateRunning {
			return fmt.Errorf("%w: %s", ErrRunning, name)
		}
		h.ch.Close()
		r.handles = append(r.handles[:i], r.handles[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Wait joins every launched queue and returns their failures joined.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.RLock()
	hs := append([]*Handle(nil), r.handles...)
	r.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		err := h.Wait(ctx)
		switch {
		case err == nil, errors.Is(err, ErrNotLaunched):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown terminates running queues and waits for them. When ctx expires
// first, the run-loops' context is canceled and ctx.Err() is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	hs := append([]*Handle(nil), r.handles...)
	r.mu.RUnlock()

	for _, h := range hs {
		if h.State() == StateRunning {
			_ = h.Terminate()
		}
	}
	defer r.sup.Cancel()
	for _, h := range hs {
		if h.State() == StateRegistered {
			continue
		}
		select {
		case <-h.Done():
		case <-ctx.Done():
			r.sup.Cancel()
			r.log.Warn("shutdown deadline reached, canceling run-loops", logx.Err(ctx.Err()))
			return ctx.Err()
		}
	}
	return nil
}

// Supervisor exposes goroutine stats of the run-loops.
func (r *Registry) Supervisor() *supervisor.Supervisor { return r.sup }

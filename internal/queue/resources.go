package queue

import (
	"context"

	"swarmbot/internal/behavior"
	"swarmbot/internal/session"
	"swarmbot/internal/storage"
)

// Env is what one Action invocation may use. The caller holds every
// resource exclusively for the duration of Execute. Store may be nil.
type Env struct {
	Session  session.Session
	Behavior *behavior.Profile
	Store    storage.Store
}

// Action is one re-invocable unit of work.
type Action interface {
	Kind() string
	Execute(ctx context.Context, env Env) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, env Env) error

func (f ActionFunc) Kind() string                               { return "func" }
func (f ActionFunc) Execute(ctx context.Context, env Env) error { return f(ctx, env) }

// guard is a context-aware mutex.
type guard chan struct{}

func newGuard() guard { return make(guard, 1) }

func (g guard) lock(ctx context.Context) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g guard) unlock() { <-g }

// Resources is the shared set every queue executes against.
// Locks are always taken session, behavior, store and released in reverse.
type Resources struct {
	session  session.Session
	behavior *behavior.Profile
	store    storage.Store

	sessionMu  guard
	behaviorMu guard
	storeMu    guard
}

func NewResources(sess session.Session, profile *behavior.Profile, store storage.Store) *Resources {
	if profile == nil {
		profile = behavior.New(behavior.Config{})
	}
	return &Resources{
		session:    sess,
		behavior:   profile,
		store:      store,
		sessionMu:  newGuard(),
		behaviorMu: newGuard(),
		storeMu:    newGuard(),
	}
}

// Acquire locks all resources for one invocation. release must be called exactly once.
func (r *Resources) Acquire(ctx context.Context) (Env, func(), error) {
	if err := r.sessionMu.lock(ctx); err != nil {
		return Env{}, nil, err
	}
	if err := r.behaviorMu.lock(ctx); err != nil {
		r.sessionMu.unlock()
		return Env{}, nil, err
	}
	if err := r.storeMu.lock(ctx); err != nil {
		r.behaviorMu.unlock()
		r.sessionMu.unlock()
		return Env{}, nil, err
	}
	release := func() {
		r.storeMu.unlock()
		r.behaviorMu.unlock()
		r.sessionMu.unlock()
	}
	return Env{Session: r.session, Behavior: r.behavior, Store: r.store}, release, nil
}

// WithSession runs fn while holding only the session lock. It is a no-op without a session.
func (r *Resources) WithSession(ctx context.Context, fn func(s session.Session)) error {
	if r.session == nil {
		return nil
	}
	if err := r.sessionMu.lock(ctx); err != nil {
		return err
	}
	defer r.sessionMu.unlock()
	fn(r.session)
	return nil
}

// WithBehavior runs fn while holding only the behavior lock. Config reloads use it.
func (r *Resources) WithBehavior(ctx context.Context, fn func(p *behavior.Profile)) error {
	if err := r.behaviorMu.lock(ctx); err != nil {
		return err
	}
	defer r.behaviorMu.unlock()
	fn(r.behavior)
	return nil
}

// WithStore runs fn while holding only the store lock. It is a no-op without a store.
func (r *Resources) WithStore(ctx context.Context, fn func(st storage.Store) error) error {
	if r.store == nil {
		return nil
	}
	if err := r.storeMu.lock(ctx); err != nil {
		return err
	}
	defer r.storeMu.unlock()
	return fn(r.store)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"swarmbot/internal/behavior"
	"swarmbot/internal/config"
	"swarmbot/internal/control"
	"swarmbot/internal/control/httpapi"
	"swarmbot/internal/control/telegram"
	"swarmbot/internal/eventbus"
	"swarmbot/internal/queue"
	"swarmbot/internal/runtime/supervisor"
	"swarmbot/internal/session"
	"swarmbot/internal/storage"
	logx "swarmbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	res   *queue.Resources
	reg   *queue.Registry
	disp  *control.Dispatcher

	launch []string
	now    func() time.Time
}

type Option func(*options)

type options struct {
	sess session.Session
	now  func() time.Time
}

// WithSession replaces the configured session. Tests use it to observe interactions.
func WithSession(s session.Session) Option { return func(o *options) { o.sess = s } }

// WithClock sets the clock used to resolve task schedules.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	a := &App{bus: eventbus.New(), now: o.now}
	a.cfgm = config.NewManager(cfgPath, config.WithValidator(func(ctx context.Context, c *config.Config) error {
		return validateTasks(c, a.now())
	}))
	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateTasks(cfg, a.now()); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogConfig())
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	if a.store, err = storage.Open(sc, log); err != nil {
		return nil, err
	}
	if a.store != nil {
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	bc, err := cfg.BehaviorProfile()
	if err != nil {
		a.closeStore()
		return nil, err
	}

	sess := o.sess
	if sess == nil {
		if sess, err = openSession(cfg.Session, bc, log); err != nil {
			a.closeStore()
			return nil, err
		}
	}

	a.res = queue.NewResources(sess, behavior.New(bc), a.store)
	a.reg = queue.NewRegistry(context.Background(), a.res, queue.WithLogger(log), queue.WithBus(a.bus))
	a.disp = control.New(a.reg, log)

	if a.launch, err = a.registerTasks(cfg); err != nil {
		a.closeStore()
		return nil, err
	}
	return a, nil
}

func openSession(sc config.SessionConfig, bc behavior.Config, log logx.Logger) (session.Session, error) {
	setup := pacing(bc)
	if p := strings.TrimSpace(sc.CookiesFile); p != "" {
		cookies, err := session.LoadCookies(p)
		if err != nil {
			return nil, fmt.Errorf("session.cookies_file: %w", err)
		}
		setup.Cookies = cookies
	}
	return session.NewDryRun(log, sc.DryRunLinks, setup), nil
}

// pacing derives the session scroll and reload intervals from the behavior erracies.
func pacing(bc behavior.Config) session.Setup {
	return session.Setup{ScrollEvery: bc.ScrollInterval(), ReloadEvery: bc.ReloadInterval()}
}

func (a *App) Registry() *queue.Registry       { return a.reg }
func (a *App) Dispatcher() *control.Dispatcher { return a.disp }
func (a *App) Bus() eventbus.Bus               { return a.bus }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Subscribe before launching so the first executions reach the journal.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(256)
		a.sup.Go0("runs.recorder", func(c context.Context) {
			defer unsub()
			a.recordRuns(c, events)
		})
	}

	for _, name := range a.launch {
		if err := a.reg.Launch(name); err != nil {
			return fmt.Errorf("launch %s: %w", name, err)
		}
		a.log.Info("task launched", logx.String("task", name))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.applyReloads(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	cfg := a.cfgm.Get()
	if tg := cfg.Control.Telegram; tg != nil {
		poll, err := config.ParseDurationOrDefault("control.telegram.poll_timeout", tg.PollTimeout, 10*time.Second)
		if err != nil {
			return err
		}
		tcfg := telegram.Config{Token: tg.Token, OwnerUserIDs: tg.OwnerUserIDs, PollTimeout: poll}
		// NewBot reaches the Bot API, so construction is retried with the poll loop.
		a.sup.GoRestart("control.telegram", func(c context.Context) error {
			bot, err := telegram.New(tcfg, a.disp, a.log)
			if err != nil {
				return err
			}
			return bot.Run(c)
		}, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}
	if h := cfg.Control.HTTP; h != nil {
		var runs httpapi.RunLister
		if a.store != nil {
			runs = guardedRuns{res: a.res}
		}
		srv := httpapi.NewServer(h.Addr, httpapi.NewRouter(a.disp, runs, a.log,
			httpapi.WithProfiler(h.Pprof),
			httpapi.WithRunLoops(a.reg.Supervisor().Snapshot),
		), a.log)
		a.sup.GoRestart("control.http", srv.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	a.log.Info("app started", logx.Int("tasks", len(a.reg.List())), logx.Int("launched", len(a.launch)))
	return nil
}

// guardedRuns reads the journal under the store lock so it never races an action.
type guardedRuns struct{ res *queue.Resources }

func (g guardedRuns) ListRuns(ctx context.Context, task string, limit int) ([]storage.RunEntry, error) {
	var out []storage.RunEntry
	err := g.res.WithStore(ctx, func(st storage.Store) error {
		var err error
		out, err = st.ListRuns(ctx, task, limit)
		return err
	})
	return out, err
}

// recordRuns appends one journal entry per executed or failed event.
func (a *App) recordRuns(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			// Flush what Shutdown already published.
			dctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return
					}
					a.recordRun(dctx, e)
				default:
					return
				}
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			a.recordRun(ctx, e)
		}
	}
}

func (a *App) recordRun(ctx context.Context, e eventbus.Event) {
	ev, ok := e.Data.(queue.TaskEvent)
	if !ok || (e.Type != queue.EventExecuted && e.Type != queue.EventFailed) {
		return
	}
	entry := storage.RunEntry{
		ID:     "run_" + uuid.NewString(),
		Task:   ev.Name,
		Queue:  ev.Queue,
		Action: ev.Action,
		Run:    ev.Run,
		At:     e.Time.UTC(),
		TookMS: ev.Took.Milliseconds(),
		OK:     e.Type == queue.EventExecuted,
		Error:  ev.Err,
	}
	err := a.res.WithStore(ctx, func(st storage.Store) error {
		return st.AppendRun(ctx, entry)
	})
	if err != nil && ctx.Err() == nil {
		a.log.Warn("run journal append failed", logx.String("task", ev.Name), logx.Err(err))
	}
}

func (a *App) applyReloads(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

// apply hot-applies logging and behavior. Other sections take effect on restart.
func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	ch := config.SummarizeConfigChange(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(next.LogConfig())

	if bc, err := next.BehaviorProfile(); err != nil {
		a.log.Warn("invalid behavior config; keeping previous", logx.Err(err))
	} else {
		if err := a.res.WithBehavior(ctx, func(p *behavior.Profile) { p.Apply(bc) }); err != nil && ctx.Err() == nil {
			a.log.Warn("behavior reload failed", logx.Err(err))
		}
		err := a.res.WithSession(ctx, func(s session.Session) {
			if c, ok := s.(session.Configurer); ok {
				c.Configure(pacing(bc))
			}
		})
		if err != nil && ctx.Err() == nil {
			a.log.Warn("session reload failed", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
	if !ch.HotApplicable() {
		a.log.Warn("config sections changed that need a restart",
			logx.String("sections", strings.Join(ch.Sections, ",")),
			logx.Any("tasks", ch.Tasks),
		)
	}
}

func (a *App) closeStore() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// Stop terminates the queues, then unwinds background loops and closes storage.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("queues", 4*time.Second, a.reg.Shutdown)
	if a.sup != nil {
		a.sup.Cancel()
		step("supervisor", 2*time.Second, a.sup.Wait)
	}
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

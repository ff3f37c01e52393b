// Package httpapi exposes the control dispatcher over HTTP.
//
// Routes:
//
//	GET  /health          (run-loop stats with WithRunLoops)
//	GET  /tasks
//	POST /tasks/{name}/launch
//	POST /tasks/{name}/suspend?ms=1500 | ?for=90s
//	POST /tasks/{name}/terminate
//	GET  /runs?task=<name>&limit=<n>
//	GET  /debug/pprof/*   (WithProfiler)
//
// {name} may be "latest".
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"swarmbot/internal/control"
	"swarmbot/internal/queue"
	"swarmbot/internal/runtime/supervisor"
	"swarmbot/internal/storage"
	logx "swarmbot/pkg/logx"
)

// RunLister reads the run journal. It may be nil.
type RunLister interface {
	ListRuns(ctx context.Context, task string, limit int) ([]storage.RunEntry, error)
}

type api struct {
	d     *control.Dispatcher
	runs  RunLister
	loops func() supervisor.Snapshot
	log   logx.Logger
}

type RouterOption func(*routerOpts)

type routerOpts struct {
	profiler bool
	loops    func() supervisor.Snapshot
}

// WithProfiler mounts net/http/pprof under /debug. Bind the server to loopback when enabled.
func WithProfiler(enabled bool) RouterOption { return func(o *routerOpts) { o.profiler = enabled } }

// WithRunLoops adds the queue run-loop goroutine stats to GET /health.
func WithRunLoops(snapshot func() supervisor.Snapshot) RouterOption {
	return func(o *routerOpts) { o.loops = snapshot }
}

func NewRouter(d *control.Dispatcher, runs RunLister, log logx.Logger, opts ...RouterOption) http.Handler {
	var o routerOpts
	for _, fn := range opts {
		fn(&o)
	}
	a := &api{d: d, runs: runs, loops: o.loops, log: log.With(logx.String("comp", "httpapi"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, a.accessLog, middleware.Recoverer)

	r.Get("/health", a.health)
	r.Get("/tasks", a.listTasks)
	r.Post("/tasks/{name}/launch", a.launch)
	r.Post("/tasks/{name}/suspend", a.suspend)
	r.Post("/tasks/{name}/terminate", a.terminate)
	r.Get("/runs", a.listRuns)
	if o.profiler {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func (a *api) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "tasks": len(a.d.Tasks())}
	if a.loops != nil {
		body["run_loops"] = a.loops()
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.d.Tasks())
}

func (a *api) launch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.d.Launch(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "result": "launched"})
}

func (a *api) suspend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	arg := r.URL.Query().Get("ms")
	if arg == "" {
		arg = r.URL.Query().Get("for")
	}
	if arg == "" {
		http.Error(w, "ms or for is required", http.StatusBadRequest)
		return
	}
	c, err := control.ParseSuspend(arg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.d.Send(name, c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "result": c.String()})
}

func (a *api) terminate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.d.Send(name, queue.Terminate()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "result": "terminate"})
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		http.Error(w, "storage disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := a.runs.ListRuns(r.Context(), r.URL.Query().Get("task"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.RunEntry{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrAlreadyLaunched), errors.Is(err, queue.ErrChannelClosed), errors.Is(err, queue.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, queue.ErrInvalidSuspend), errors.Is(err, queue.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs the router until its context is canceled.
type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(addr string, h http.Handler, log logx.Logger) *Server {
	return &Server{
		srv: &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second},
		log: log.With(logx.String("comp", "httpapi")),
	}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", logx.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
		<-errCh
		return nil
	}
}

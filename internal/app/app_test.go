package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"swarmbot/internal/config"
	"swarmbot/internal/queue"
	"swarmbot/internal/session"
	"swarmbot/internal/storage"
	logx "swarmbot/pkg/logx"
)

const appConfig = `{
  "logging": {"level": "error"},
  "behavior": {"wait_min": "1ms", "wait_max": "2ms", "keystroke_delay": "1ms"},
  "storage": {"driver": "file", "path": "%STORE%"},
  "tasks": [
    {"name": "likes", "exec": "multiple:2", "launch": true,
     "action": {"kind": "like", "params": {"url": "https://twitter.com/a/status/1"}}},
    {"name": "later", "at": "+1h",
     "action": {"kind": "post_text", "params": {"text": "hi"}}}
  ]
}`

type recordingSession struct {
	mu    sync.Mutex
	kinds []session.Kind
}

func (r *recordingSession) Do(ctx context.Context, in session.Interaction) (session.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, in.Kind)
	return session.Result{}, nil
}

func (r *recordingSession) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kinds)
}

func writeConfig(t *testing.T, body string) (cfgPath, storePath string) {
	t.Helper()
	dir := t.TempDir()
	storePath = filepath.Join(dir, "swarmbot.store")
	cfgPath = filepath.Join(dir, "swarmbot.json")
	body = strings.ReplaceAll(body, "%STORE%", filepath.ToSlash(storePath))
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, storePath
}

func waitState(t *testing.T, reg *queue.Registry, name string, want queue.State) {
	t.Helper()
	h, err := reg.Get(name)
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("%s state = %v, want %v", name, h.State(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAppRunsConfiguredTasksAndJournals(t *testing.T) {
	cfgPath, storePath := writeConfig(t, appConfig)
	sess := &recordingSession{}

	a, err := New(cfgPath, WithSession(sess))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := len(a.Registry().List()); got != 2 {
		t.Fatalf("registered = %d, want 2", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitState(t, a.Registry(), "likes", queue.StateTerminated)
	later, _ := a.Registry().Get("later")
	if later.State() != queue.StateRegistered {
		t.Fatalf("later state = %v, want registered", later.State())
	}
	if got := sess.count(); got != 2 {
		t.Fatalf("interactions = %d, want 2", got)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	st, err := storage.Open(storage.Config{Driver: "file", Path: storePath}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	runs, err := st.ListRuns(context.Background(), "likes", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if !r.OK || r.Action != "like" || !strings.HasPrefix(r.ID, "run_") {
			t.Fatalf("unexpected entry %+v", r)
		}
	}
}

func TestNewRejectsBadTask(t *testing.T) {
	cases := []struct {
		name string
		task string
		want string
	}{
		{"unknown kind", `{"name":"x","action":{"kind":"dance"}}`, "tasks[0].action"},
		{"bad exec", `{"name":"x","exec":"twice","action":{"kind":"like","params":{"url":"u"}}}`, "tasks[0].exec"},
		{"bad at", `{"name":"x","at":"someday","action":{"kind":"like","params":{"url":"u"}}}`, "tasks[0].at"},
		{"bad every", `{"name":"x","every":"often","action":{"kind":"like","params":{"url":"u"}}}`, "tasks[0].every"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfgPath, _ := writeConfig(t, `{"logging":{"level":"error"},"tasks":[`+tc.task+`]}`)
			_, err := New(cfgPath, WithSession(&recordingSession{}))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestApplyReloadUpdatesBehavior(t *testing.T) {
	cfgPath, _ := writeConfig(t, `{"logging":{"level":"error"},"behavior":{"wait_min":"1ms","wait_max":"2ms"}}`)
	a, err := New(cfgPath, WithSession(&recordingSession{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	prev := a.cfgm.Get()
	next := *prev
	next.Behavior = config.BehaviorConfig{WaitMin: "3ms", WaitMax: "4ms", ActionsPerMinute: 30}
	a.apply(context.Background(), prev, &next)

	env, release, err := a.res.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()
	got := env.Behavior.Config()
	if got.WaitMin != 3*time.Millisecond || got.WaitMax != 4*time.Millisecond || got.ActionsPerMinute != 30 {
		t.Fatalf("behavior after reload = %+v", got)
	}
}

func TestSessionReceivesCookiesAndPacing(t *testing.T) {
	dir := t.TempDir()
	cookiesPath := filepath.Join(dir, "cookies.json")
	if err := os.WriteFile(cookiesPath, []byte(`[{"name":"auth_token","value":"abc"},{"name":"ct0","value":"def"}]`), 0o644); err != nil {
		t.Fatalf("write cookies: %v", err)
	}
	body := `{"logging":{"level":"error"},
  "session":{"cookies_file":"` + filepath.ToSlash(cookiesPath) + `"},
  "behavior":{"erratic_scroll":"erratic","erratic_reload":"super_erratic","wait_min":"1ms","wait_max":"2ms"}}`
	cfgPath, _ := writeConfig(t, body)

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	setup := func() session.Setup {
		t.Helper()
		var got session.Setup
		err := a.res.WithSession(context.Background(), func(s session.Session) {
			d, ok := s.(*session.DryRun)
			if !ok {
				t.Fatalf("session = %T, want *session.DryRun", s)
			}
			got = d.Setup()
		})
		if err != nil {
			t.Fatalf("WithSession: %v", err)
		}
		return got
	}

	got := setup()
	if len(got.Cookies) != 2 || got.Cookies[0].Name != "auth_token" || got.Cookies[1].Value != "def" {
		t.Fatalf("cookies = %+v", got.Cookies)
	}
	if got.ScrollEvery != 40*time.Second || got.ReloadEvery != 60*time.Second {
		t.Fatalf("pacing = scroll %v reload %v", got.ScrollEvery, got.ReloadEvery)
	}

	prev := a.cfgm.Get()
	next := *prev
	next.Behavior = config.BehaviorConfig{ErraticScroll: "super_erratic", WaitMin: "1ms", WaitMax: "2ms"}
	a.apply(context.Background(), prev, &next)

	got = setup()
	if got.ScrollEvery != 10*time.Second || got.ReloadEvery != 220*time.Second {
		t.Fatalf("pacing after reload = scroll %v reload %v", got.ScrollEvery, got.ReloadEvery)
	}
	if len(got.Cookies) != 2 {
		t.Fatalf("reload dropped cookies: %+v", got.Cookies)
	}
}

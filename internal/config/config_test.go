package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swarmbot/internal/behavior"
)

const sampleYAML = `
logging:
  level: debug
  console: true
session:
  driver: dryrun
  dry_run_links: 5
behavior:
  erratic_wait: super_erratic
  wait_min: 1s
  wait_max: 3s
  actions_per_minute: 6
storage:
  driver: sqlite
  path: ./swarmbot.db
  busy_timeout: 2s
scheduler:
  timezone: UTC
control:
  http:
    addr: 127.0.0.1:8080
tasks:
  - name: morning-post
    at: "09:30"
    exec: once
    launch: true
    action:
      kind: post_text
      params:
        text: hello
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "swarmbot.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].Action.Kind != "post_text" {
		t.Fatalf("tasks = %+v", cfg.Tasks)
	}
	var params struct{ Text string }
	if err := json.Unmarshal(cfg.Tasks[0].Action.Params, &params); err != nil || params.Text != "hello" {
		t.Fatalf("params = %s (%v)", cfg.Tasks[0].Action.Params, err)
	}

	bc, err := cfg.BehaviorProfile()
	if err != nil {
		t.Fatalf("BehaviorProfile: %v", err)
	}
	if bc.Wait != behavior.SuperErratic || bc.WaitMin != time.Second || bc.WaitMax != 3*time.Second || bc.ActionsPerMinute != 6 {
		t.Fatalf("behavior = %+v", bc)
	}
	if bc.KeystrokeDelay <= 0 {
		t.Fatalf("keystroke delay should default, got %v", bc.KeystrokeDelay)
	}

	sc, err := cfg.StoreConfig()
	if err != nil {
		t.Fatalf("StoreConfig: %v", err)
	}
	if sc.Driver != "sqlite" || sc.BusyTimeout != 2*time.Second {
		t.Fatalf("storage = %+v", sc)
	}
}

func TestDecodeJSONStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown top-level key", `{"logging":{},"pprof":{}}`, "unknown field"},
		{"unknown nested key", `{"behavior":{"wait":"1s"}}`, "unknown field"},
		{"trailing data", `{} {}`, "trailing data"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode("swarmbot.json", []byte(tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestValidateReportsFieldPath(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bad erracy", Config{Behavior: BehaviorConfig{ErraticScroll: "wild"}}, "behavior.erratic_scroll"},
		{"bad duration", Config{Behavior: BehaviorConfig{WaitMax: "soon"}}, "behavior.wait_max"},
		{"negative duration", Config{Behavior: BehaviorConfig{WaitMin: "-1s"}}, "behavior.wait_min"},
		{"bad timezone", Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, "scheduler.timezone"},
		{"bad session driver", Config{Session: SessionConfig{Driver: "chrome"}}, "session.driver"},
		{"telegram without token", Config{Control: ControlConfig{Telegram: &TelegramConfig{}}}, "control.telegram.token"},
		{"http without addr", Config{Control: ControlConfig{HTTP: &HTTPConfig{}}}, "control.http.addr"},
		{"task without name", Config{Tasks: []TaskConfig{{Action: ActionConfig{Kind: "like"}}}}, "tasks[0].name"},
		{"duplicate task", Config{Tasks: []TaskConfig{
			{Name: "a", Action: ActionConfig{Kind: "like"}},
			{Name: "a", Action: ActionConfig{Kind: "like"}},
		}}, "tasks[1].name"},
		{"task without kind", Config{Tasks: []TaskConfig{{Name: "a"}}}, "tasks[0].action.kind"},
		{"reserved task name", Config{Tasks: []TaskConfig{{Name: "Latest", Action: ActionConfig{Kind: "like"}}}}, "tasks[0].name: invalid queue name"},
		{"derived name collision", Config{Tasks: []TaskConfig{
			{Name: "a", Action: ActionConfig{Kind: "like"}},
			{Name: "a-queue", Action: ActionConfig{Kind: "like"}},
		}}, "tasks[1].name: duplicate"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLocationDefaultsToUTC(t *testing.T) {
	t.Parallel()
	loc, err := (&Config{}).Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("Location = %v, %v", loc, err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("empty: %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "1m", 5*time.Second)
	if err != nil || d != time.Minute {
		t.Fatalf("1m: %v, %v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Logging: LoggingConfig{Level: "info"},
		Control: ControlConfig{Telegram: &TelegramConfig{Token: "secret-a"}},
		Tasks: []TaskConfig{
			{Name: "keep", Action: ActionConfig{Kind: "like", Params: json.RawMessage(`{"url":"u","x":1}`)}},
			{Name: "drop", Action: ActionConfig{Kind: "like"}},
		},
	}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Control: ControlConfig{Telegram: &TelegramConfig{Token: "secret-b"}},
		Tasks: []TaskConfig{
			{Name: "keep", Action: ActionConfig{Kind: "like", Params: json.RawMessage(`{ "x": 1, "url": "u" }`)}},
			{Name: "add", Action: ActionConfig{Kind: "like"}},
		},
	}

	ch := SummarizeConfigChange(oldCfg, newCfg)
	if got := strings.Join(ch.Sections, ","); got != "logging,control,tasks" {
		t.Fatalf("sections = %q", got)
	}
	if got := strings.Join(ch.Tasks, ","); got != "add,drop" {
		t.Fatalf("tasks = %q", got)
	}
	if ch.HotApplicable() {
		t.Fatal("control and task changes need a restart")
	}

	onlyLogging := SummarizeConfigChange(oldCfg, &Config{Logging: newCfg.Logging, Control: oldCfg.Control, Tasks: oldCfg.Tasks})
	if !onlyLogging.HotApplicable() {
		t.Fatalf("logging-only change should be hot: %v", onlyLogging.Sections)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "swarmbot.json", `{"logging":{"level":"info"}}`)
	var validated int
	m := NewManager(path, WithValidator(func(ctx context.Context, cfg *Config) error {
		validated++
		if cfg.Logging.Level == "reject" {
			return errors.New("rejected")
		}
		return nil
	}))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ok, err := m.Reload(context.Background())
	if err != nil || ok {
		t.Fatalf("unchanged reload = %v, %v", ok, err)
	}

	if err := os.WriteFile(path, []byte(`{"logging":{"level":"reject"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := m.Reload(context.Background()); err == nil || ok {
		t.Fatalf("rejected reload = %v, %v", ok, err)
	}
	if m.Get().Logging.Level != "info" {
		t.Fatal("rejected config must not be committed")
	}

	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := m.Reload(context.Background()); err != nil || !ok {
		t.Fatalf("changed reload = %v, %v", ok, err)
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatal("no config published")
	}
	if validated != 2 {
		t.Fatalf("validator calls = %d, want 2", validated)
	}
}

func TestWatchPicksUpEdits(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "swarmbot.json", `{"logging":{"level":"info"}}`)
	m := NewManager(path, WithDebounce(20*time.Millisecond))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level != "warn" {
				t.Fatalf("level = %q", cfg.Logging.Level)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep rewriting until an event lands.
			_ = os.WriteFile(path, []byte(`{"logging":{"level":"warn"}}`), 0o644)
		case <-deadline:
			t.Fatal("watch never published the edit")
		}
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"swarmbot/internal/behavior"
	"swarmbot/internal/queue"
	"swarmbot/internal/storage"
	logx "swarmbot/pkg/logx"
)

// Config is the on-disk configuration. Unknown keys are rejected at every level.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Session   SessionConfig   `json:"session"`
	Behavior  BehaviorConfig  `json:"behavior"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Control   ControlConfig   `json:"control"`
	Tasks     []TaskConfig    `json:"tasks"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SessionConfig selects the automation session.
//
// Only "dryrun" ships in this repo; it logs interactions instead of driving a browser.
type SessionConfig struct {
	Driver      string `json:"driver,omitempty"`
	CookiesFile string `json:"cookies_file,omitempty"`
	// DryRunLinks is how many synthetic links a dry-run collect returns.
	DryRunLinks int `json:"dry_run_links,omitempty"`
}

// BehaviorConfig mirrors behavior.Config with duration strings.
//
// Erracy values: "normal", "erratic", "super_erratic".
type BehaviorConfig struct {
	ErraticScroll    string `json:"erratic_scroll,omitempty"`
	ErraticWait      string `json:"erratic_wait,omitempty"`
	ErraticReload    string `json:"erratic_reload,omitempty"`
	WaitMin          string `json:"wait_min,omitempty"`
	WaitMax          string `json:"wait_max,omitempty"`
	KeystrokeDelay   string `json:"keystroke_delay,omitempty"`
	ActionsPerMinute int    `json:"actions_per_minute,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./swarmbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SchedulerConfig struct {
	// Timezone used for HH:MM and cron schedules. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`
}

type ControlConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
	// Pprof mounts /debug/pprof on the control server.
	Pprof bool `json:"pprof,omitempty"`
}

// TaskConfig declares one queued task.
//
//	at:    "", "now", "+10m", "in:1h", "09:30", RFC3339, or a cron expression
//	exec:  "once" (default), "forever", "multiple:N" or "N"
//	every: optional Go duration or cron expression between runs
type TaskConfig struct {
	Name   string       `json:"name"`
	At     string       `json:"at,omitempty"`
	Exec   string       `json:"exec,omitempty"`
	Every  string       `json:"every,omitempty"`
	Launch bool         `json:"launch,omitempty"`
	Action ActionConfig `json:"action"`
}

type ActionConfig struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// LogConfig maps the logging section to logx.Config.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// BehaviorProfile maps the behavior section to behavior.Config.
// The result is normalized.
func (c *Config) BehaviorProfile() (behavior.Config, error) {
	b := c.Behavior
	var out behavior.Config
	var err error

	erracies := []struct {
		path string
		raw  string
		dst  *behavior.Erracy
	}{
		{"behavior.erratic_scroll", b.ErraticScroll, &out.Scroll},
		{"behavior.erratic_wait", b.ErraticWait, &out.Wait},
		{"behavior.erratic_reload", b.ErraticReload, &out.Reload},
	}
	for _, e := range erracies {
		if *e.dst, err = behavior.ParseErracy(e.raw); err != nil {
			return behavior.Config{}, fmt.Errorf("%s: %w", e.path, err)
		}
	}

	if out.WaitMin, err = ParseDurationField("behavior.wait_min", b.WaitMin); err != nil {
		return behavior.Config{}, err
	}
	if out.WaitMax, err = ParseDurationField("behavior.wait_max", b.WaitMax); err != nil {
		return behavior.Config{}, err
	}
	if out.KeystrokeDelay, err = ParseDurationField("behavior.keystroke_delay", b.KeystrokeDelay); err != nil {
		return behavior.Config{}, err
	}
	if b.ActionsPerMinute < 0 {
		return behavior.Config{}, fmt.Errorf("behavior.actions_per_minute: must be >= 0")
	}
	out.ActionsPerMinute = b.ActionsPerMinute
	return out.Normalize(), nil
}

// StoreConfig maps the storage section. A missing section disables persistence.
func (c *Config) StoreConfig() (storage.Config, error) {
	if c.Storage == nil {
		return storage.Config{}, nil
	}
	bt, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(c.Storage.Driver),
		Path:        strings.TrimSpace(c.Storage.Path),
		BusyTimeout: bt,
	}, nil
}

// Location resolves scheduler.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// Validate checks the parts of the config that can be checked without building anything.
// Task actions and schedules are validated by the app when tasks are registered.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := c.BehaviorProfile(); err != nil {
		return err
	}
	if _, err := c.StoreConfig(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Session.Driver)) {
	case "", "dryrun":
	default:
		return fmt.Errorf("session.driver: unknown driver %q", c.Session.Driver)
	}
	if c.Session.DryRunLinks < 0 {
		return fmt.Errorf("session.dry_run_links: must be >= 0")
	}
	if tg := c.Control.Telegram; tg != nil {
		if strings.TrimSpace(tg.Token) == "" {
			return fmt.Errorf("control.telegram.token: required")
		}
		if _, err := ParseDurationField("control.telegram.poll_timeout", tg.PollTimeout); err != nil {
			return err
		}
	}
	if h := c.Control.HTTP; h != nil && strings.TrimSpace(h.Addr) == "" {
		return fmt.Errorf("control.http.addr: required")
	}

	// seen holds names and derived queue names; "a" and "a-queue" collide.
	seen := make(map[string]struct{}, 2*len(c.Tasks))
	for i, t := range c.Tasks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("tasks[%d].name: required", i)
		}
		if err := queue.ValidateName(name); err != nil {
			return fmt.Errorf("tasks[%d].name: %w", i, err)
		}
		_, dupName := seen[name]
		_, dupDerived := seen[queue.DerivedName(name)]
		if dupName || dupDerived {
			return fmt.Errorf("tasks[%d].name: duplicate %q", i, name)
		}
		seen[name] = struct{}{}
		seen[queue.DerivedName(name)] = struct{}{}
		if strings.TrimSpace(t.Action.Kind) == "" {
			return fmt.Errorf("tasks[%d].action.kind: required", i)
		}
	}
	return nil
}

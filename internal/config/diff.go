package config

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	logx "swarmbot/pkg/logx"
)

// Change summarizes a reload. Attrs never include secrets like tokens.
type Change struct {
	Sections []string
	Attrs    []logx.Field
	// Tasks lists task names that were added, removed or edited.
	Tasks []string
}

// HotApplicable reports whether every changed section can be applied without a restart.
func (c Change) HotApplicable() bool {
	for _, s := range c.Sections {
		if s != "logging" && s != "behavior" {
			return false
		}
	}
	return true
}

func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var out Change
	mark := func(section string, attrs ...logx.Field) {
		out.Sections = append(out.Sections, section)
		out.Attrs = append(out.Attrs, attrs...)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Session != newCfg.Session {
		mark("session",
			logx.String("session.driver", newCfg.Session.Driver),
			logx.Bool("session.cookies_set", strings.TrimSpace(newCfg.Session.CookiesFile) != ""),
		)
	}
	if oldCfg.Behavior != newCfg.Behavior {
		mark("behavior",
			logx.String("behavior.wait_min", newCfg.Behavior.WaitMin),
			logx.String("behavior.wait_max", newCfg.Behavior.WaitMax),
			logx.Int("behavior.actions_per_minute", newCfg.Behavior.ActionsPerMinute),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		mark("storage", logx.String("storage.driver", driver))
	}
	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		mark("scheduler", logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if telegramChanged(oldCfg.Control.Telegram, newCfg.Control.Telegram) ||
		!reflect.DeepEqual(oldCfg.Control.HTTP, newCfg.Control.HTTP) {
		tg := newCfg.Control.Telegram
		owners := 0
		if tg != nil {
			owners = len(tg.OwnerUserIDs)
		}
		mark("control",
			logx.Bool("control.telegram", tg != nil),
			logx.Int("control.telegram.owner_count", owners),
			logx.Bool("control.http", newCfg.Control.HTTP != nil),
		)
	}

	out.Tasks = diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if len(out.Tasks) > 0 {
		mark("tasks", logx.Any("tasks.changed", out.Tasks))
	}
	return out
}

func telegramChanged(a, b *TelegramConfig) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	if a == nil {
		return false
	}
	return a.Token != b.Token ||
		strings.TrimSpace(a.PollTimeout) != strings.TrimSpace(b.PollTimeout) ||
		!reflect.DeepEqual(a.OwnerUserIDs, b.OwnerUserIDs)
}

func diffTasks(oldTasks, newTasks []TaskConfig) []string {
	index := func(ts []TaskConfig) map[string]TaskConfig {
		m := make(map[string]TaskConfig, len(ts))
		for _, t := range ts {
			m[strings.TrimSpace(t.Name)] = t
		}
		return m
	}
	om, nm := index(oldTasks), index(newTasks)

	var changed []string
	for name, o := range om {
		n, ok := nm[name]
		if !ok || !sameTask(o, n) {
			changed = append(changed, name)
		}
	}
	for name := range nm {
		if _, ok := om[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func sameTask(a, b TaskConfig) bool {
	if a.At != b.At || a.Exec != b.Exec || a.Every != b.Every || a.Launch != b.Launch || a.Action.Kind != b.Action.Kind {
		return false
	}
	return bytes.Equal(canonicalJSON(a.Action.Params), canonicalJSON(b.Action.Params))
}

// canonicalJSON makes whitespace and key order irrelevant. Invalid JSON is returned as-is.
func canonicalJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return b
}

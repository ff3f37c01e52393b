package app

import (
	"fmt"
	"strings"
	"time"

	"swarmbot/internal/action"
	"swarmbot/internal/config"
	"swarmbot/internal/queue"
	"swarmbot/internal/schedule"
)

// buildTask turns one tasks[] entry into a queue.Task. Errors carry the entry index.
func buildTask(i int, tc config.TaskConfig, now time.Time, loc *time.Location) (*queue.Task, error) {
	field := func(name string, err error) error {
		return fmt.Errorf("tasks[%d].%s: %w", i, name, err)
	}

	at, err := schedule.Parse(tc.At, now, loc)
	if err != nil {
		return nil, field("at", err)
	}
	exec, err := queue.ParseExecType(tc.Exec)
	if err != nil {
		return nil, field("exec", err)
	}
	act, err := action.Decode(tc.Action.Kind, tc.Action.Params)
	if err != nil {
		return nil, field("action", err)
	}
	every, err := schedule.ParseEvery(tc.Every, loc)
	if err != nil {
		return nil, field("every", err)
	}

	var opts []queue.TaskOption
	if every != nil {
		opts = append(opts, queue.WithRecurrence(every))
	}
	t, err := queue.NewTask(at, act, exec, opts...)
	if err != nil {
		return nil, fmt.Errorf("tasks[%d]: %w", i, err)
	}
	return t, nil
}

// validateTasks checks that every task in cfg would build. It is the hot-reload validator.
func validateTasks(cfg *config.Config, now time.Time) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	for i, tc := range cfg.Tasks {
		if _, err := buildTask(i, tc, now, loc); err != nil {
			return err
		}
	}
	return nil
}

// registerTasks registers every configured task and returns the names flagged for launch.
func (a *App) registerTasks(cfg *config.Config) ([]string, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	now := a.now()
	var launch []string
	for i, tc := range cfg.Tasks {
		t, err := buildTask(i, tc, now, loc)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(tc.Name)
		if _, err := a.reg.Register(name, t); err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		if tc.Launch {
			launch = append(launch, name)
		}
	}
	return launch, nil
}

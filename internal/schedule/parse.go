// Package schedule turns the "at" and "every" strings of task definitions
// into an absolute first execution time and an optional recurrence.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Parse resolves raw into the first execution time, relative to now.
//
// Supported forms:
//   - "" or "now": now
//   - RFC3339 timestamp: "2024-05-01T09:30:00Z"
//   - relative duration: "+5m", "in:90s"
//   - wall clock "HH:MM": the next occurrence in loc (today or tomorrow)
//   - cron: "cron:*/5 * * * *", "30 9 * * 1-5", "@hourly"; the next activation after now
//
// The result is always in UTC.
func Parse(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)

	switch {
	case s == "" || low == "now":
		return now.UTC(), nil
	case strings.HasPrefix(s, "+"):
		return relative(s[1:], now)
	case strings.HasPrefix(low, "in:"):
		return relative(s[len("in:"):], now)
	case strings.HasPrefix(low, "cron:"):
		return nextCron(strings.TrimSpace(s[len("cron:"):]), now, loc)
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return nextCron(s, now, loc)
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return time.Time{}, fmt.Errorf("invalid wall clock %q", raw)
		}
		local := now.In(loc)
		t := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
		if !t.After(local) {
			t = t.AddDate(0, 0, 1)
		}
		return t.UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf(
		"invalid at %q (use RFC3339, '+5m', 'HH:MM' or cron like '*/5 * * * *')", raw)
}

func relative(v string, now time.Time) (time.Time, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid relative time %q: %w", v, err)
	}
	if d < 0 {
		return time.Time{}, fmt.Errorf("relative time must be >= 0")
	}
	return now.Add(d).UTC(), nil
}

func nextCron(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	sched, err := parseCron(expr, loc)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now).UTC(), nil
}

func parseCron(expr string, loc *time.Location) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression required")
	}
	// Without a TZ prefix robfig evaluates in time.Local.
	if !strings.HasPrefix(expr, "TZ=") && !strings.HasPrefix(expr, "CRON_TZ=") {
		expr = "CRON_TZ=" + loc.String() + " " + expr
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return sched, nil
}

// Interval is a fixed gap between executions.
type Interval time.Duration

func (i Interval) Next(t time.Time) time.Time { return t.Add(time.Duration(i)) }

// Recurrence yields the next execution time after t.
type Recurrence interface {
	Next(t time.Time) time.Time
}

// ParseEvery parses the recurrence of a repeating task.
//
// Supported forms:
//   - "": no recurrence (nil, nil)
//   - Go duration: "90s", "2h30m"
//   - cron (prefixed "cron:", containing spaces, or "@..."): next activation after the last run
func ParseEvery(raw string, loc *time.Location) (Recurrence, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		return parseCron(strings.TrimSpace(s[len("cron:"):]), loc)
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s, loc)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid every %q (use a duration like '55m' or a cron expression)", raw)
	}
	if d <= 0 {
		return nil, fmt.Errorf("every must be > 0")
	}
	return Interval(d), nil
}

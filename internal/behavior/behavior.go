// Package behavior models how human-like the automation acts: how long it
// waits between steps, how often it scrolls and reloads, how fast it types,
// and how many actions it may start per minute.
package behavior

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Erracy is how irregular a cadence is.
type Erracy int

const (
	Normal Erracy = iota
	Erratic
	SuperErratic
)

func (e Erracy) String() string {
	switch e {
	case Erratic:
		return "erratic"
	case SuperErratic:
		return "super_erratic"
	default:
		return "normal"
	}
}

func ParseErracy(s string) (Erracy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return Normal, nil
	case "erratic":
		return Erratic, nil
	case "super_erratic", "super-erratic", "supererratic":
		return SuperErratic, nil
	default:
		return Normal, fmt.Errorf("unknown erracy %q", s)
	}
}

func (e *Erracy) UnmarshalText(b []byte) error {
	v, err := ParseErracy(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func (e Erracy) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

type Config struct {
	Scroll Erracy
	Wait   Erracy
	Reload Erracy

	WaitMin        time.Duration
	WaitMax        time.Duration
	KeystrokeDelay time.Duration
	// ActionsPerMinute <= 0 disables pacing.
	ActionsPerMinute int
}

const (
	DefaultWaitMin        = 2 * time.Second
	DefaultWaitMax        = 6 * time.Second
	DefaultKeystrokeDelay = 100 * time.Millisecond
)

// Normalize fills zero values with defaults and orders the wait bounds.
func (c Config) Normalize() Config {
	if c.WaitMin <= 0 && c.WaitMax <= 0 {
		c.WaitMin, c.WaitMax = DefaultWaitMin, DefaultWaitMax
	}
	if c.WaitMin < 0 {
		c.WaitMin = 0
	}
	if c.WaitMax < c.WaitMin {
		c.WaitMin, c.WaitMax = c.WaitMax, c.WaitMin
	}
	if c.KeystrokeDelay <= 0 {
		c.KeystrokeDelay = DefaultKeystrokeDelay
	}
	return c
}

// Profile is the shared behavior handle. It is not safe for concurrent use;
// the queue resource guard serializes access to it.
type Profile struct {
	cfg     Config
	rng     *rand.Rand
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Profile)

// WithSeed makes WaitDuration deterministic.
func WithSeed(seed int64) Option {
	return func(p *Profile) { p.rng = rand.New(rand.NewSource(seed)) }
}

// WithSleeper replaces the context-aware sleep used by Pause. Tests use it.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Profile) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

func New(cfg Config, opts ...Option) *Profile {
	p := &Profile{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: Sleep,
	}
	for _, o := range opts {
		o(p)
	}
	p.Apply(cfg)
	return p
}

// Apply replaces the profile config. The limiter keeps its token state when
// only the rate changes.
func (p *Profile) Apply(cfg Config) {
	p.cfg = cfg.Normalize()
	limit, burst := limitFor(p.cfg.ActionsPerMinute)
	if p.limiter == nil {
		p.limiter = rate.NewLimiter(limit, burst)
		return
	}
	p.limiter.SetLimit(limit)
	p.limiter.SetBurst(burst)
}

func limitFor(perMinute int) (rate.Limit, int) {
	if perMinute <= 0 {
		return rate.Inf, 1
	}
	return rate.Every(time.Minute / time.Duration(perMinute)), 1
}

func (p *Profile) Config() Config { return p.cfg }

// WaitDuration draws a random wait in [WaitMin, WaitMax). Erratic widens the
// range by a quarter of WaitMax on both sides, SuperErratic by a half.
func (p *Profile) WaitDuration() time.Duration {
	lo, hi := p.cfg.WaitMin, p.cfg.WaitMax
	var spread time.Duration
	switch p.cfg.Wait {
	case Erratic:
		spread = hi / 4
	case SuperErratic:
		spread = hi / 2
	}
	lo -= spread
	hi += spread
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)))
}

// Pause sleeps one WaitDuration.
func (p *Profile) Pause(ctx context.Context) error {
	return p.sleep(ctx, p.WaitDuration())
}

// Pace blocks until the per-minute action budget allows another action.
func (p *Profile) Pace(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// ScrollInterval is how often a collect scrolls the feed.
func (c Config) ScrollInterval() time.Duration {
	switch c.Scroll {
	case SuperErratic:
		return 10 * time.Second
	case Erratic:
		return 40 * time.Second
	default:
		return 80 * time.Second
	}
}

// ReloadInterval is how often a long collect reloads the page.
func (c Config) ReloadInterval() time.Duration {
	switch c.Reload {
	case SuperErratic:
		return 60 * time.Second
	case Erratic:
		return 120 * time.Second
	default:
		return 220 * time.Second
	}
}

func (p *Profile) KeystrokeDelay() time.Duration { return p.cfg.KeystrokeDelay }

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package behavior

import (
	"context"
	"testing"
	"time"
)

func TestParseErracy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    Erracy
		wantErr bool
	}{
		{"", Normal, false},
		{"normal", Normal, false},
		{"Erratic", Erratic, false},
		{"super_erratic", SuperErratic, false},
		{"super-erratic", SuperErratic, false},
		{"wild", Normal, true},
	}
	for _, tc := range cases {
		got, err := ParseErracy(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseErracy(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseErracy(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestWaitDurationBounds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		wait   Erracy
		lo, hi time.Duration
	}{
		{"normal", Normal, 4 * time.Second, 8 * time.Second},
		{"erratic", Erratic, 2 * time.Second, 10 * time.Second},
		{"super", SuperErratic, 0, 12 * time.Second},
	}
	for _, tc := range cases {
		p := New(Config{Wait: tc.wait, WaitMin: 4 * time.Second, WaitMax: 8 * time.Second}, WithSeed(7))
		for i := 0; i < 500; i++ {
			d := p.WaitDuration()
			if d < tc.lo || d >= tc.hi {
				t.Fatalf("%s: WaitDuration = %v, want in [%v, %v)", tc.name, d, tc.lo, tc.hi)
			}
		}
	}
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()
	c := Config{}.Normalize()
	if c.WaitMin != DefaultWaitMin || c.WaitMax != DefaultWaitMax {
		t.Fatalf("wait = [%v, %v)", c.WaitMin, c.WaitMax)
	}
	if c.KeystrokeDelay != DefaultKeystrokeDelay {
		t.Fatalf("keystroke = %v", c.KeystrokeDelay)
	}

	swapped := Config{WaitMin: 9 * time.Second, WaitMax: 3 * time.Second}.Normalize()
	if swapped.WaitMin != 3*time.Second || swapped.WaitMax != 9*time.Second {
		t.Fatalf("swapped = [%v, %v)", swapped.WaitMin, swapped.WaitMax)
	}
}

func TestIntervals(t *testing.T) {
	t.Parallel()
	cases := []struct {
		e              Erracy
		scroll, reload time.Duration
	}{
		{Normal, 80 * time.Second, 220 * time.Second},
		{Erratic, 40 * time.Second, 120 * time.Second},
		{SuperErratic, 10 * time.Second, 60 * time.Second},
	}
	for _, tc := range cases {
		c := Config{Scroll: tc.e, Reload: tc.e}
		if got := c.ScrollInterval(); got != tc.scroll {
			t.Fatalf("%v scroll = %v, want %v", tc.e, got, tc.scroll)
		}
		if got := c.ReloadInterval(); got != tc.reload {
			t.Fatalf("%v reload = %v, want %v", tc.e, got, tc.reload)
		}
	}
}

func TestPauseUsesSleeper(t *testing.T) {
	t.Parallel()
	var slept time.Duration
	p := New(Config{WaitMin: time.Second, WaitMax: 2 * time.Second},
		WithSeed(1),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			slept = d
			return nil
		}))
	if err := p.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if slept < time.Second || slept >= 2*time.Second {
		t.Fatalf("slept = %v", slept)
	}
}

func TestPaceUnlimitedAndCanceled(t *testing.T) {
	t.Parallel()
	p := New(Config{})
	for i := 0; i < 10; i++ {
		if err := p.Pace(context.Background()); err != nil {
			t.Fatalf("Pace unlimited: %v", err)
		}
	}

	limited := New(Config{ActionsPerMinute: 1})
	if err := limited.Pace(context.Background()); err != nil {
		t.Fatalf("first Pace: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limited.Pace(ctx); err == nil {
		t.Fatal("Pace on canceled ctx should fail")
	}
}

func TestSleepCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatal("Sleep should return ctx error")
	}
}

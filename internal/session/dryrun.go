package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	logx "swarmbot/pkg/logx"
)

// DryRun logs every interaction and never touches the network.
// Collect and search return synthetic post links so recorders have data.
type DryRun struct {
	log   logx.Logger
	links int

	mu      sync.Mutex
	setup   Setup
	history []Interaction
	seq     int
}

func NewDryRun(log logx.Logger, links int, setup Setup) *DryRun {
	if links <= 0 {
		links = 3
	}
	d := &DryRun{log: log.With(logx.String("comp", "session.dryrun")), links: links, setup: setup}
	d.log.Info("session opened",
		logx.Int("cookies", len(setup.Cookies)),
		logx.Duration("scroll_every", setup.ScrollEvery),
		logx.Duration("reload_every", setup.ReloadEvery),
	)
	return d
}

// Setup returns the state the session currently runs with.
func (d *DryRun) Setup() Setup {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.setup
	s.Cookies = append([]Cookie(nil), s.Cookies...)
	return s
}

// Configure replaces the scroll and reload pacing. Cookies are kept unless s carries some.
func (d *DryRun) Configure(s Setup) {
	d.mu.Lock()
	if s.Cookies == nil {
		s.Cookies = d.setup.Cookies
	}
	d.setup = s
	d.mu.Unlock()
	d.log.Info("session reconfigured",
		logx.Duration("scroll_every", s.ScrollEvery),
		logx.Duration("reload_every", s.ReloadEvery),
	)
}

func (d *DryRun) Do(ctx context.Context, in Interaction) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	d.mu.Lock()
	d.history = append(d.history, in)
	setup := d.setup
	base := d.seq
	n := d.links
	if in.Limit > 0 && in.Limit < n {
		n = in.Limit
	}
	if in.Kind == KindCollect || in.Kind == KindSearch {
		d.seq += n
	}
	d.mu.Unlock()

	d.log.Info("interaction",
		logx.String("kind", string(in.Kind)),
		logx.String("url", in.URL),
		logx.Int("text_len", len(in.Text)),
		logx.String("media", in.MediaPath),
	)

	var res Result
	if in.Kind == KindCollect || in.Kind == KindSearch {
		d.log.Debug("collect pacing",
			logx.Duration("scroll_every", setup.ScrollEvery),
			logx.Duration("reload_every", setup.ReloadEvery),
		)
		owner := profileOwner(in.URL)
		for i := 1; i <= n; i++ {
			res.Links = append(res.Links, fmt.Sprintf("https://twitter.com/%s/status/%d", owner, base+i))
		}
	}
	return res, nil
}

// History returns the interactions seen so far.
func (d *DryRun) History() []Interaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Interaction(nil), d.history...)
}

func profileOwner(u string) string {
	s := u
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	parts := strings.Split(s, "/")
	if len(parts) > 1 && parts[1] != "" && !strings.HasPrefix(parts[1], "search") {
		return parts[1]
	}
	return "dryrun"
}

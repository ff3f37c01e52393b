// Package session is the boundary to the remote automation session.
//
// Actions describe one step as an Interaction; a Session carries it out.
// Element lookup, page navigation and the wire protocol live behind the
// implementation.
package session

import (
	"context"
	"fmt"
	"time"
)

type Kind string

const (
	KindPostText     Kind = "post_text"
	KindPostImage    Kind = "post_image"
	KindLike         Kind = "like"
	KindReshare      Kind = "reshare"
	KindQuoteReshare Kind = "quote_reshare"
	KindCommentText  Kind = "comment_text"
	KindCommentImage Kind = "comment_image"
	KindSearch       Kind = "search"
	KindCollect      Kind = "collect"
)

// Interaction is one opaque step handed to the session.
type Interaction struct {
	Kind Kind
	// URL is the target page (a post for like/comment, a search or profile URL for collect).
	URL       string
	Text      string
	MediaPath string
	// KeystrokeDelay is the pause between typed characters.
	KeystrokeDelay time.Duration
	// Limit caps how many links a collect returns; 0 means all found.
	Limit int
}

// Result is what the session observed while carrying out an Interaction.
type Result struct {
	// Links are post URLs in page order.
	Links []string
	// Pinned reports that the first link is a pinned post.
	Pinned bool
}

type Session interface {
	Do(ctx context.Context, in Interaction) (Result, error)
}

// Setup is the driver-level state a session is opened with.
type Setup struct {
	// Cookies are injected before the first page load.
	Cookies []Cookie
	// ScrollEvery is how often a collect scrolls the feed.
	ScrollEvery time.Duration
	// ReloadEvery is how often a long collect reloads the page.
	ReloadEvery time.Duration
}

// Configurer is implemented by sessions that accept new pacing on reload.
type Configurer interface {
	Configure(s Setup)
}

// Func adapts a function to Session.
type Func func(ctx context.Context, in Interaction) (Result, error)

func (f Func) Do(ctx context.Context, in Interaction) (Result, error) { return f(ctx, in) }

func (in Interaction) Validate() error {
	switch in.Kind {
	case KindPostText:
		if in.Text == "" {
			return fmt.Errorf("%s: empty text", in.Kind)
		}
	case KindPostImage:
		if in.MediaPath == "" {
			return fmt.Errorf("%s: empty media path", in.Kind)
		}
	case KindLike, KindReshare, KindQuoteReshare, KindCollect, KindSearch:
		if in.URL == "" {
			return fmt.Errorf("%s: empty url", in.Kind)
		}
	case KindCommentText:
		if in.URL == "" || in.Text == "" {
			return fmt.Errorf("%s: url and text are required", in.Kind)
		}
	case KindCommentImage:
		if in.URL == "" || in.MediaPath == "" {
			return fmt.Errorf("%s: url and media path are required", in.Kind)
		}
	default:
		return fmt.Errorf("unknown interaction kind %q", in.Kind)
	}
	return nil
}

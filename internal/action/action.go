// Package action implements the queue.Action values tasks execute.
//
// Every action paces itself against the behavior profile, waits a
// human-like pause, then hands one session.Interaction to the session.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"swarmbot/internal/queue"
	"swarmbot/internal/session"
)

var ErrNoSession = errors.New("no session available")

// interact runs the shared pacing sequence and performs in.
func interact(ctx context.Context, env queue.Env, in session.Interaction) (session.Result, error) {
	if env.Session == nil {
		return session.Result{}, ErrNoSession
	}
	if env.Behavior != nil {
		if err := env.Behavior.Pace(ctx); err != nil {
			return session.Result{}, err
		}
		if err := env.Behavior.Pause(ctx); err != nil {
			return session.Result{}, err
		}
		if in.Text != "" {
			in.KeystrokeDelay = env.Behavior.KeystrokeDelay()
		}
	}
	return env.Session.Do(ctx, in)
}

type PostText struct {
	Text string `json:"text"`
}

func (a PostText) Kind() string { return string(session.KindPostText) }

func (a PostText) Execute(ctx context.Context, env queue.Env) error {
	_, err := interact(ctx, env, session.Interaction{Kind: session.KindPostText, Text: a.Text})
	return err
}

type PostImage struct {
	Path string `json:"path"`
	Text string `json:"text,omitempty"`
}

func (a PostImage) Kind() string { return string(session.KindPostImage) }

func (a PostImage) Execute(ctx context.Context, env queue.Env) error {
	_, err := interact(ctx, env, session.Interaction{Kind: session.KindPostImage, MediaPath: a.Path, Text: a.Text})
	return err
}

type Like struct {
	URL string `json:"url"`
}

func (a Like) Kind() string { return string(session.KindLike) }

func (a Like) Execute(ctx context.Context, env queue.Env) error {
	_, err := interact(ctx, env, session.Interaction{Kind: session.KindLike, URL: a.URL})
	return err
}

type Reshare struct {
	URL string `json:"url"`
}

func (a Reshare) Kind() string { return string(session.KindReshare) }

func (a Reshare) Execute(ctx context.Context, env queue.Env) error {
	_, err := interact(ctx, env, session.Interaction{Kind: session.KindReshare, URL: a.URL})
	return err
}

type QuoteReshare struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

func (a QuoteReshare) Kind() string { return string(session.KindQuoteReshare) }

func (a QuoteReshare) Execute(ctx context.Context, env queue.Env) error {
	_, err := interact(ctx, env, session.Interaction{Kind: session.KindQuoteReshare, URL: a.URL, Text: a.Text})
	return err
}

type CommentText struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

func (a CommentText) Kind() string { return string(session.KindCommentText) }

func (a CommentText) Execute(ctx context.Context, env queue.Env) error {
	_, err := interact(ctx, env, session.Interaction{Kind: session.KindCommentText, URL: a.URL, Text: a.Text})
	return err
}

type CommentImage struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Text string `json:"text,omitempty"`
}

func (a CommentImage) Kind() string { return string(session.KindCommentImage) }

func (a CommentImage) Execute(ctx context.Context, env queue.Env) error {
	_, err := interact(ctx, env, session.Interaction{Kind: session.KindCommentImage, URL: a.URL, MediaPath: a.Path, Text: a.Text})
	return err
}

// Decode builds an action from its config kind and JSON params.
// Unknown fields are rejected.
func Decode(kind string, params json.RawMessage) (queue.Action, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	var (
		a   queue.Action
		err error
	)
	switch k {
	case "post_text":
		var v PostText
		err = decodeStrict(params, &v)
		a = v
	case "post_image":
		var v PostImage
		err = decodeStrict(params, &v)
		a = v
	case "like":
		var v Like
		err = decodeStrict(params, &v)
		a = v
	case "reshare", "retweet":
		var v Reshare
		err = decodeStrict(params, &v)
		a = v
	case "quote_reshare", "quote_retweet":
		var v QuoteReshare
		err = decodeStrict(params, &v)
		a = v
	case "comment_text":
		var v CommentText
		err = decodeStrict(params, &v)
		a = v
	case "comment_image":
		var v CommentImage
		err = decodeStrict(params, &v)
		a = v
	case "search":
		var v Search
		err = decodeStrict(params, &v)
		a = v
	case "record_posts":
		var v RecordPosts
		err = decodeStrict(params, &v)
		a = v
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s params: %w", k, err)
	}
	if err := Validate(a); err != nil {
		return nil, fmt.Errorf("%s params: %w", k, err)
	}
	return a, nil
}

func decodeStrict(params json.RawMessage, v any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after params")
	}
	return nil
}

// Validate checks the fields an action needs before it is scheduled.
func Validate(a queue.Action) error {
	switch v := a.(type) {
	case PostText:
		return required("text", v.Text)
	case PostImage:
		return required("path", v.Path)
	case Like:
		return required("url", v.URL)
	case Reshare:
		return required("url", v.URL)
	case QuoteReshare:
		return required("url", v.URL)
	case CommentText:
		if err := required("url", v.URL); err != nil {
			return err
		}
		return required("text", v.Text)
	case CommentImage:
		if err := required("url", v.URL); err != nil {
			return err
		}
		return required("path", v.Path)
	case Search:
		if v.Query() == "" {
			return errors.New("search needs at least one term")
		}
		return nil
	case RecordPosts:
		return v.validate()
	default:
		return nil
	}
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

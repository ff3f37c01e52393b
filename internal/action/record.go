package action

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"swarmbot/internal/queue"
	"swarmbot/internal/session"
	"swarmbot/internal/storage"
)

var (
	ErrNoPosts       = errors.New("no posts found")
	ErrNotEnough     = errors.New("not enough posts")
	ErrStoreRequired = errors.New("record_posts needs a store")
)

// now picks the day collection.
var now = time.Now

type RecordMode string

const (
	RecordLast     RecordMode = "last"
	RecordLastFive RecordMode = "last_five"
	RecordLastTen  RecordMode = "last_ten"
	RecordAllFound RecordMode = "all_found"
)

// count is how many posts the mode records; 0 means all found.
func (m RecordMode) count() (int, error) {
	switch m {
	case RecordLast, "":
		return 1, nil
	case RecordLastFive:
		return 5, nil
	case RecordLastTen:
		return 10, nil
	case RecordAllFound:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown record mode %q", m)
	}
}

type Tab string

const (
	TabPosts   Tab = "posts"
	TabReplies Tab = "replies"
	TabMedia   Tab = "media"
	TabLikes   Tab = "likes"
)

func (t Tab) path(user string) (string, error) {
	switch t {
	case TabPosts, "":
		return "/" + user, nil
	case TabReplies:
		return "/" + user + "/with_replies", nil
	case TabMedia:
		return "/" + user + "/media", nil
	case TabLikes:
		return "/" + user + "/likes", nil
	default:
		return "", fmt.Errorf("unknown tab %q", t)
	}
}

// RecordPosts collects the newest posts of a profile tab and stores them in
// today's collection. A pinned post is skipped.
type RecordPosts struct {
	ProfileURL string     `json:"profile_url"`
	Mode       RecordMode `json:"mode,omitempty"`
	Tab        Tab        `json:"tab,omitempty"`
}

func (r RecordPosts) Kind() string { return "record_posts" }

func (r RecordPosts) validate() error {
	if err := required("profile_url", r.ProfileURL); err != nil {
		return err
	}
	if _, err := r.Mode.count(); err != nil {
		return err
	}
	if _, err := r.target(); err != nil {
		return err
	}
	return nil
}

func (r RecordPosts) username() string {
	u := strings.TrimRight(r.ProfileURL, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	return strings.TrimPrefix(u, "@")
}

// target is the tab URL on the profile's host.
func (r RecordPosts) target() (string, error) {
	pu, err := url.Parse(strings.TrimSpace(r.ProfileURL))
	if err != nil || pu.Host == "" {
		return "", fmt.Errorf("invalid profile_url %q", r.ProfileURL)
	}
	user := r.username()
	if user == "" {
		return "", fmt.Errorf("profile_url %q has no username", r.ProfileURL)
	}
	p, err := r.Tab.path(user)
	if err != nil {
		return "", err
	}
	return pu.Scheme + "://" + pu.Host + p, nil
}

func (r RecordPosts) Execute(ctx context.Context, env queue.Env) error {
	if env.Store == nil {
		return ErrStoreRequired
	}
	n, err := r.Mode.count()
	if err != nil {
		return err
	}
	target, err := r.target()
	if err != nil {
		return err
	}

	limit := 0
	if n > 0 {
		limit = n + 1 // room for a pinned post
	}
	res, err := interact(ctx, env, session.Interaction{Kind: session.KindCollect, URL: target, Limit: limit})
	if err != nil {
		return err
	}

	links := res.Links
	if res.Pinned && len(links) > 0 {
		links = links[1:]
	}
	if len(links) == 0 {
		return ErrNoPosts
	}
	if n > 0 {
		if len(links) < n {
			return fmt.Errorf("%w: want %d, found %d", ErrNotEnough, n, len(links))
		}
		links = links[:n]
	}

	_, err = env.Store.InsertPosts(ctx, storage.DayCollection(now().UTC()), postsFromLinks(r.username(), links))
	return err
}

// postsFromLinks maps post URLs to records. An empty user is taken from each link.
func postsFromLinks(user string, links []string) []storage.Post {
	at := now().UTC()
	out := make([]storage.Post, 0, len(links))
	for _, l := range links {
		id, owner := postRef(l)
		if id == "" {
			continue
		}
		u := user
		if u == "" {
			u = owner
		}
		out = append(out, storage.Post{Username: u, PostID: id, At: at})
	}
	return out
}

// postRef returns the last path segment and the first one (the owner).
func postRef(link string) (id, owner string) {
	p := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		p = u.Path
	}
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) == 0 || segs[len(segs)-1] == "" {
		return "", ""
	}
	return segs[len(segs)-1], segs[0]
}

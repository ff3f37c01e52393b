package action

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"swarmbot/internal/queue"
	"swarmbot/internal/session"
	"swarmbot/internal/storage"
)

const searchBase = "https://twitter.com/search"

// Search is an advanced search. Empty fields are left out of the query.
type Search struct {
	AllWords           []string `json:"all_words,omitempty"`
	ExactPhrase        []string `json:"exact_phrase,omitempty"`
	AnyWords           []string `json:"any_words,omitempty"`
	NoneWords          []string `json:"none_words,omitempty"`
	Hashtags           []string `json:"hashtags,omitempty"`
	Language           string   `json:"language,omitempty"`
	FromAccounts       []string `json:"from_accounts,omitempty"`
	ToAccounts         []string `json:"to_accounts,omitempty"`
	MentioningAccounts []string `json:"mentioning_accounts,omitempty"`
	MinReplies         int      `json:"min_replies,omitempty"`
	MinLikes           int      `json:"min_likes,omitempty"`
	MinReshares        int      `json:"min_reshares,omitempty"`
	Since              string   `json:"since,omitempty"` // YYYY-MM-DD
	Until              string   `json:"until,omitempty"` // YYYY-MM-DD

	// Record stores found posts in the day collection.
	Record bool `json:"record,omitempty"`
}

func (s Search) Kind() string { return string(session.KindSearch) }

// Query renders the search operators, space separated.
func (s Search) Query() string {
	var parts []string
	add := func(p string) {
		if p != "" {
			parts = append(parts, p)
		}
	}

	add(strings.Join(clean(s.AllWords), " "))
	if words := clean(s.ExactPhrase); len(words) > 0 {
		add(`"` + strings.Join(words, " ") + `"`)
	}
	add(orGroup(clean(s.AnyWords), ""))
	for _, w := range clean(s.NoneWords) {
		add("-" + w)
	}
	add(orGroup(prefixed(s.Hashtags, "#"), ""))
	add(orGroup(trimmed(s.FromAccounts, "@"), "from:"))
	add(orGroup(trimmed(s.ToAccounts, "@"), "to:"))
	add(orGroup(prefixed(s.MentioningAccounts, "@"), ""))
	if s.MinReplies > 0 {
		add(fmt.Sprintf("min_replies:%d", s.MinReplies))
	}
	if s.MinLikes > 0 {
		add(fmt.Sprintf("min_faves:%d", s.MinLikes))
	}
	if s.MinReshares > 0 {
		add(fmt.Sprintf("min_retweets:%d", s.MinReshares))
	}
	if l := strings.TrimSpace(s.Language); l != "" {
		add("lang:" + l)
	}
	if u := strings.TrimSpace(s.Until); u != "" {
		add("until:" + u)
	}
	if v := strings.TrimSpace(s.Since); v != "" {
		add("since:" + v)
	}
	return strings.Join(parts, " ")
}

// URL is the search results page for Query.
func (s Search) URL() string {
	v := url.Values{}
	v.Set("lang", "en")
	v.Set("q", s.Query())
	v.Set("src", "typed_query")
	return searchBase + "?" + v.Encode()
}

func (s Search) Execute(ctx context.Context, env queue.Env) error {
	res, err := interact(ctx, env, session.Interaction{Kind: session.KindSearch, URL: s.URL()})
	if err != nil {
		return err
	}
	if !s.Record || env.Store == nil || len(res.Links) == 0 {
		return nil
	}
	_, err = env.Store.InsertPosts(ctx, storage.DayCollection(now().UTC()), postsFromLinks("", res.Links))
	return err
}

func orGroup(items []string, prefix string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return prefix + items[0]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = prefix + it
	}
	return "(" + strings.Join(out, " OR ") + ")"
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func prefixed(in []string, p string) []string {
	out := clean(in)
	for i, s := range out {
		if !strings.HasPrefix(s, p) {
			out[i] = p + s
		}
	}
	return out
}

func trimmed(in []string, p string) []string {
	out := clean(in)
	for i, s := range out {
		out[i] = strings.TrimPrefix(s, p)
	}
	return out
}

package action

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swarmbot/internal/behavior"
	"swarmbot/internal/queue"
	"swarmbot/internal/session"
	"swarmbot/internal/storage"
	logx "swarmbot/pkg/logx"
)

func quickProfile() *behavior.Profile {
	return behavior.New(behavior.Config{WaitMin: time.Microsecond, WaitMax: 2 * time.Microsecond})
}

type recorder struct {
	seen []session.Interaction
	res  session.Result
	err  error
}

func (r *recorder) Do(ctx context.Context, in session.Interaction) (session.Result, error) {
	r.seen = append(r.seen, in)
	return r.res, r.err
}

func TestSearchQuery(t *testing.T) {
	t.Parallel()
	s := Search{
		AllWords:           []string{"go", "queue"},
		ExactPhrase:        []string{"task", "runner"},
		AnyWords:           []string{"cron", "timer"},
		NoneWords:          []string{"spam", "ads"},
		Hashtags:           []string{"golang", "#dev"},
		FromAccounts:       []string{"@alice"},
		ToAccounts:         []string{"bob", "carol"},
		MentioningAccounts: []string{"dave"},
		MinReplies:         1,
		MinLikes:           2,
		MinReshares:        3,
		Language:           "en",
		Since:              "2024-01-01",
		Until:              "2024-02-01",
	}
	want := `go queue "task runner" (cron OR timer) -spam -ads (#golang OR #dev) from:alice (to:bob OR to:carol) @dave min_replies:1 min_faves:2 min_retweets:3 lang:en until:2024-02-01 since:2024-01-01`
	if got := s.Query(); got != want {
		t.Fatalf("Query =\n%s\nwant\n%s", got, want)
	}

	u := s.URL()
	if !strings.HasPrefix(u, "https://twitter.com/search?lang=en&q=") || !strings.HasSuffix(u, "&src=typed_query") {
		t.Fatalf("URL = %s", u)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatal(err)
	}
	if q := parsed.Query().Get("q"); q != want {
		t.Fatalf("round-tripped q = %s", q)
	}
}

func TestSearchEmptyIsInvalid(t *testing.T) {
	t.Parallel()
	if _, err := Decode("search", json.RawMessage(`{"record": true}`)); err == nil {
		t.Fatal("expected error for empty search")
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		kind    string
		params  string
		want    string
		wantErr bool
	}{
		{"post_text", `{"text":"hello"}`, "post_text", false},
		{"post_text", `{}`, "", true},
		{"post_text", `{"text":"hi","extra":1}`, "", true},
		{"post_image", `{"path":"/tmp/a.png"}`, "post_image", false},
		{"like", `{"url":"https://twitter.com/a/status/1"}`, "like", false},
		{"retweet", `{"url":"https://twitter.com/a/status/1"}`, "reshare", false},
		{"quote_reshare", `{"url":"https://twitter.com/a/status/1"}`, "quote_reshare", false},
		{"comment_text", `{"url":"https://twitter.com/a/status/1"}`, "", true},
		{"comment_image", `{"url":"u","path":"p"}`, "comment_image", false},
		{"search", `{"all_words":["go"]}`, "search", false},
		{"record_posts", `{"profile_url":"https://twitter.com/gopher","mode":"last_five","tab":"media"}`, "record_posts", false},
		{"record_posts", `{"profile_url":"https://twitter.com/gopher","mode":"some"}`, "", true},
		{"record_posts", `{"profile_url":"gopher"}`, "", true},
		{"dance", `{}`, "", true},
	}
	for _, tc := range cases {
		a, err := Decode(tc.kind, json.RawMessage(tc.params))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Decode(%s, %s) expected error", tc.kind, tc.params)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Decode(%s, %s): %v", tc.kind, tc.params, err)
		}
		if a.Kind() != tc.want {
			t.Fatalf("Decode(%s) kind = %s, want %s", tc.kind, a.Kind(), tc.want)
		}
	}
}

func TestActionsHandInteraction(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	env := queue.Env{Session: rec, Behavior: quickProfile()}
	acts := []queue.Action{
		PostText{Text: "hi"},
		Like{URL: "https://twitter.com/a/status/1"},
		CommentText{URL: "https://twitter.com/a/status/1", Text: "nice"},
	}
	for _, a := range acts {
		if err := a.Execute(context.Background(), env); err != nil {
			t.Fatalf("%s: %v", a.Kind(), err)
		}
	}
	if len(rec.seen) != 3 {
		t.Fatalf("seen = %d", len(rec.seen))
	}
	if rec.seen[0].Kind != session.KindPostText || rec.seen[0].KeystrokeDelay != behavior.DefaultKeystrokeDelay {
		t.Fatalf("post = %+v", rec.seen[0])
	}
	if rec.seen[2].URL == "" || rec.seen[2].Text != "nice" {
		t.Fatalf("comment = %+v", rec.seen[2])
	}
}

func TestNoSession(t *testing.T) {
	t.Parallel()
	err := Like{URL: "u"}.Execute(context.Background(), queue.Env{})
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v", err)
	}
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "s.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRecordPosts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	rec := &recorder{res: session.Result{
		Pinned: true,
		Links: []string{
			"https://twitter.com/gopher/status/100",
			"https://twitter.com/gopher/status/7",
			"https://twitter.com/gopher/status/6?s=20",
			"https://twitter.com/gopher/status/5",
		},
	}}
	env := queue.Env{Session: rec, Behavior: quickProfile(), Store: st}

	r := RecordPosts{ProfileURL: "https://twitter.com/gopher/", Mode: RecordLast, Tab: TabReplies}
	if err := r.Execute(ctx, env); err != nil {
		t.Fatal(err)
	}
	if got := rec.seen[0]; got.URL != "https://twitter.com/gopher/with_replies" || got.Limit != 2 {
		t.Fatalf("interaction = %+v", got)
	}
	posts, _ := st.ListPosts(ctx, storage.DayCollection(time.Now().UTC()))
	if len(posts) != 1 || posts[0].PostID != "7" || posts[0].Username != "gopher" {
		t.Fatalf("posts = %+v", posts)
	}

	all := RecordPosts{ProfileURL: "https://twitter.com/gopher", Mode: RecordAllFound}
	if err := all.Execute(ctx, env); err != nil {
		t.Fatal(err)
	}
	posts, _ = st.ListPosts(ctx, storage.DayCollection(time.Now().UTC()))
	if len(posts) != 3 || posts[1].PostID != "6" {
		t.Fatalf("posts = %+v", posts)
	}

	five := RecordPosts{ProfileURL: "https://twitter.com/gopher", Mode: RecordLastFive}
	if err := five.Execute(ctx, env); !errors.Is(err, ErrNotEnough) {
		t.Fatalf("last_five err = %v", err)
	}
}

func TestRecordPostsErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := RecordPosts{ProfileURL: "https://twitter.com/gopher"}

	if err := r.Execute(ctx, queue.Env{Session: &recorder{}}); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("no store err = %v", err)
	}
	env := queue.Env{Session: &recorder{}, Behavior: quickProfile(), Store: openStore(t)}
	if err := r.Execute(ctx, env); !errors.Is(err, ErrNoPosts) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestSearchRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	rec := &recorder{res: session.Result{Links: []string{"https://twitter.com/ann/status/1", "https://twitter.com/ben/status/2"}}}
	s := Search{AllWords: []string{"go"}, Record: true}
	if err := s.Execute(ctx, queue.Env{Session: rec, Behavior: quickProfile(), Store: st}); err != nil {
		t.Fatal(err)
	}
	if rec.seen[0].Kind != session.KindSearch || rec.seen[0].URL != s.URL() {
		t.Fatalf("interaction = %+v", rec.seen[0])
	}
	posts, _ := st.ListPosts(ctx, storage.DayCollection(time.Now().UTC()))
	if len(posts) != 2 || posts[0].Username != "ann" || posts[1].Username != "ben" {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestPostRef(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, id, owner string }{
		{"https://twitter.com/gopher/status/123", "123", "gopher"},
		{"https://twitter.com/gopher/status/123?s=20", "123", "gopher"},
		{"/gopher/status/9/", "9", "gopher"},
		{"", "", ""},
	}
	for _, tc := range cases {
		id, owner := postRef(tc.in)
		if id != tc.id || owner != tc.owner {
			t.Fatalf("postRef(%q) = %q, %q", tc.in, id, owner)
		}
	}
}

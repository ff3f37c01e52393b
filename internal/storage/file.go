package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "swarmbot/pkg/logx"
)

// fileStore keeps two append-only JSON Lines files next to cfg.Path:
//   - <prefix>.posts.jsonl
//   - <prefix>.runs.jsonl
//
// Both are replayed into memory on open; reads never touch disk.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	postsFile *os.File
	runsFile  *os.File

	posts map[string][]Post
	seen  map[string]struct{} // collection/username/post
	runs  []RunEntry
}

type postRecord struct {
	Collection string `json:"collection"`
	Post
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:   log,
		posts: map[string][]Post{},
		seen:  map[string]struct{}{},
	}

	postsPath := prefix + ".posts.jsonl"
	runsPath := prefix + ".runs.jsonl"

	if err := replay(postsPath, func(line []byte) error {
		var r postRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		s.addPost(r.Collection, r.Post)
		return nil
	}); err != nil {
		log.Warn("posts journal replay stopped early", logx.Err(err))
	}
	if err := replay(runsPath, func(line []byte) error {
		var e RunEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		s.runs = append(s.runs, e)
		return nil
	}); err != nil {
		log.Warn("runs journal replay stopped early", logx.Err(err))
	}

	pf, err := os.OpenFile(postsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = pf.Close()
		return nil, err
	}
	s.postsFile = pf
	s.runsFile = rf
	return s, nil
}

func replay(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func postKey(collection string, p Post) string {
	return collection + "/" + p.Username + "/" + p.PostID
}

// addPost reports whether p was new. Caller holds mu (or owns s exclusively).
func (s *fileStore) addPost(collection string, p Post) bool {
	k := postKey(collection, p)
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	s.posts[collection] = append(s.posts[collection], p)
	return true
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.postsFile != nil {
		err1 = s.postsFile.Close()
		s.postsFile = nil
	}
	if s.runsFile != nil {
		err2 = s.runsFile.Close()
		s.runsFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) InsertPosts(ctx context.Context, collection string, posts []Post) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postsFile == nil {
		return 0, ErrClosed
	}
	enc := json.NewEncoder(s.postsFile)
	n := 0
	for _, p := range posts {
		if !s.addPost(collection, p) {
			continue
		}
		if err := enc.Encode(postRecord{Collection: collection, Post: p}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *fileStore) ListPosts(ctx context.Context, collection string) ([]Post, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Post(nil), s.posts[collection]...), nil
}

func (s *fileStore) AppendRun(ctx context.Context, e RunEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.runsFile).Encode(e); err != nil {
		return err
	}
	s.runs = append(s.runs, e)
	return nil
}

func (s *fileStore) ListRuns(ctx context.Context, task string, limit int) ([]RunEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RunEntry
	for i := len(s.runs) - 1; i >= 0; i-- {
		e := s.runs[i]
		if task != "" && e.Task != task {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

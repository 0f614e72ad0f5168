package postlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"postpilot/internal/post"
	logx "postpilot/pkg/logx"
)

// fileStore keeps the whole log as one JSON document: {"<post_id>": {...}}.
//
// Every mutation rewrites the document (tmp + rename), serialized through a
// single mutex. This process is assumed to be the only writer.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	records map[string]post.Record
	closed  bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	records := loadRecords(path, log)

	return &fileStore{
		log:     log,
		path:    path,
		records: records,
	}, nil
}

// loadRecords reads the document, tolerating damage: a missing file is an
// empty log, a malformed document is logged and treated as empty, and an
// individually undecodable record is skipped so the rest still load.
func loadRecords(path string, log logx.Logger) map[string]post.Record {
	records := map[string]post.Record{}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("post log unreadable; starting empty", logx.String("path", path), logx.Err(err))
		}
		return records
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		log.Warn("post log malformed; starting empty", logx.String("path", path), logx.Err(err))
		return records
	}

	for id, msg := range raw {
		var rec post.Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			log.Warn("skipping undecodable post record", logx.String("post_id", id), logx.Err(err))
			continue
		}
		if rec.PostID == "" {
			rec.PostID = id
		}
		records[id] = rec
	}
	return records
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Get(ctx context.Context, id string) (post.Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return post.Record{}, false, ErrClosed
	}
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *fileStore) Put(ctx context.Context, rec post.Record) error {
	_ = ctx
	if rec.PostID == "" {
		return fmt.Errorf("postlog: record without post_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records[rec.PostID] = rec
	return s.persistLocked()
}

func (s *fileStore) Update(ctx context.Context, id string, fn func(*post.Record) error) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := fn(&rec); err != nil {
		return err
	}
	rec.PostID = id
	s.records[id] = rec
	return s.persistLocked()
}

func (s *fileStore) List(ctx context.Context) ([]post.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]post.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fileStore) persistLocked() error {
	b, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

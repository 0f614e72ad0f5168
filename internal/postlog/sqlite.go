//go:build sqlite
// +build sqlite

package postlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"postpilot/internal/post"
	logx "postpilot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps one row per post; the record itself is stored as JSON
// text so the file and sqlite drivers share a single codec.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("postlog: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, id string) (post.Record, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM posts WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return post.Record{}, false, nil
	}
	if err != nil {
		return post.Record{}, false, err
	}
	var rec post.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return post.Record{}, false, fmt.Errorf("postlog: decode record %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, rec post.Record) error {
	if rec.PostID == "" {
		return fmt.Errorf("postlog: record without post_id")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts(id, record, updated_at) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET record=excluded.record, updated_at=excluded.updated_at`,
		rec.PostID, string(raw), time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) Update(ctx context.Context, id string, fn func(*post.Record) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT record FROM posts WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	var rec post.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("postlog: decode record %s: %w", id, err)
	}
	if err := fn(&rec); err != nil {
		return err
	}
	rec.PostID = id

	out, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET record = ?, updated_at = ? WHERE id = ?`,
		string(out), time.Now().UnixMilli(), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) List(ctx context.Context) ([]post.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM posts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []post.Record
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var rec post.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.log.Warn("skipping undecodable post record", logx.String("post_id", id), logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

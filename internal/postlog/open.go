package postlog

import (
	"context"
	"errors"
	"strings"

	"postpilot/internal/post"
	logx "postpilot/pkg/logx"
)

// Store is the durable post_id -> Record map behind the engine.
//
// Update runs fn on the stored record under the store lock and persists the
// result; returning an error from fn leaves the record untouched.
type Store interface {
	Get(ctx context.Context, id string) (post.Record, bool, error)
	Put(ctx context.Context, rec post.Record) error
	Update(ctx context.Context, id string, fn func(*post.Record) error) error
	List(ctx context.Context) ([]post.Record, error)
	Close() error
}

// Open initializes the configured store. An empty driver means "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown postlog driver: " + driver)
	}
}

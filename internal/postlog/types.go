package postlog

import (
	"errors"
	"time"
)

var (
	ErrClosed   = errors.New("post log closed")
	ErrNotFound = errors.New("post not found")
)

// Config configures the post log.
//
// Driver values:
//   - "file": dependency-free single JSON document (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const defaultPath = "post_log.json"

//go:build !sqlite
// +build !sqlite

package postlog

import (
	"errors"

	logx "postpilot/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite postlog not built: build with -tags sqlite")
}

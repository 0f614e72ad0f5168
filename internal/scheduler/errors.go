package scheduler

import "errors"

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrStopping       = errors.New("scheduler still stopping")

	// ErrStopTimeout means the poll loop did not confirm shutdown within
	// Config.StopTimeout. It still exits in the background; a subsequent
	// Start returns ErrStopping until it has.
	ErrStopTimeout = errors.New("scheduler stop timed out")
)

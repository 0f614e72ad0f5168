package scheduler

import (
	"time"

	"postpilot/internal/dispatch"
	"postpilot/internal/eventbus"
	"postpilot/internal/post"
	"postpilot/internal/postlog"
	"postpilot/internal/timetable"
	logx "postpilot/pkg/logx"
)

// Config controls the posting engine.
//
// The app layer maps config.engine into this struct; zero durations get
// defaults here. AutoRetry has no default on purpose: false means failures
// go straight to failed, and the config layer decides the shipped default.
type Config struct {
	PollInterval time.Duration // queue poll cadence
	ErrorBackoff time.Duration // sleep after a failed poll pass

	AutoRetry  bool
	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration

	// DispatchTimeout bounds a single dispatcher call, rate-limiter wait
	// included.
	DispatchTimeout time.Duration

	// StopTimeout bounds how long Stop waits for the poll loop to confirm
	// shutdown. In-flight dispatches are never waited on.
	StopTimeout time.Duration

	Stagger time.Duration // multi-platform spacing between consecutive posts
	Lead    time.Duration // multi-platform delay before the first post
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Minute
	}
	if c.RetryCap <= 0 {
		c.RetryCap = time.Hour
	}
	if c.RetryCap < c.RetryBase {
		c.RetryCap = c.RetryBase
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 2 * time.Minute
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.Stagger <= 0 {
		c.Stagger = 15 * time.Minute
	}
	if c.Lead <= 0 {
		c.Lead = 5 * time.Minute
	}
	return c
}

// Deps are the engine's collaborators. Store, Table, and Registry are
// required; Bus is optional and Clock defaults to time.Now.
type Deps struct {
	Store    postlog.Store
	Table    *timetable.TimeTable
	Registry *dispatch.Registry
	Bus      eventbus.Bus
	Log      logx.Logger
	Clock    func() time.Time
}

// ScheduleOptions tweaks SchedulePost. The zero value means "next timetable
// slot, generated ID".
type ScheduleOptions struct {
	At     time.Time // explicit dispatch time; past times dispatch on the next poll
	PostID string    // caller-supplied ID; empty = generated
}

// NowOptions tweaks PostNow.
type NowOptions struct {
	PostID string
}

// PlatformContent pairs a platform name with the content to publish there.
type PlatformContent struct {
	Platform string
	Content  post.Content
}

// MultiOptions tweaks ScheduleMultiPlatform.
type MultiOptions struct {
	// Times maps platforms to explicit dispatch times. When nil, posts are
	// spread from now+Lead in Stagger steps. Platforms absent from a
	// non-nil map fall back to the timetable's next slot.
	Times map[post.Platform]time.Time

	// Stagger overrides Config.Stagger when > 0. Only used when Times is nil.
	Stagger time.Duration
}

// MultiResult is one per-platform outcome of ScheduleMultiPlatform, in
// input order. Record is only meaningful when Err is nil.
type MultiResult struct {
	Platform string
	Record   post.Record
	Err      error
}

// HistoryFilter narrows History results. Zero fields match everything.
type HistoryFilter struct {
	Platform post.Platform // empty = any
	Status   post.Status   // empty = any
	From     time.Time     // inclusive lower bound on ScheduledTime
	To       time.Time     // inclusive upper bound on ScheduledTime
	Limit    int           // max records returned; 0 = all
}

// Stats is a point-in-time snapshot for /api/v1/stats and logs.
type Stats struct {
	Running    bool                `json:"running"`
	QueueLen   int                 `json:"queue_len"`
	InFlight   int                 `json:"in_flight"`
	Dispatched uint64              `json:"dispatched"`
	LoopErrors uint64              `json:"loop_errors"`
	ByStatus   map[post.Status]int `json:"by_status"`
}

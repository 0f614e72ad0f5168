package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"postpilot/internal/dispatch"
	"postpilot/internal/eventbus"
	"postpilot/internal/post"
	"postpilot/internal/postlog"
	"postpilot/internal/queue"
	"postpilot/internal/timetable"
	logx "postpilot/pkg/logx"
)

// Service owns the queue and the poll loop. Scheduling works as soon as New
// returns; nothing dispatches until Start.
type Service struct {
	mu  sync.Mutex
	cfg Config

	store    postlog.Store
	table    *timetable.TimeTable
	registry *dispatch.Registry
	bus      eventbus.Bus
	log      logx.Logger
	clock    func() time.Time

	queue *queue.Queue

	stopCh   chan struct{}
	loopDone chan struct{}

	workers  sync.WaitGroup
	inFlight int32

	dispatched uint64
	loopErrors uint64
}

func New(cfg Config, deps Deps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		store:    deps.Store,
		table:    deps.Table,
		registry: deps.Registry,
		bus:      deps.Bus,
		log:      log,
		clock:    clock,
		queue:    queue.New(),
	}
}

// Start launches the poll loop. At most one loop ever runs: a second Start
// returns ErrAlreadyRunning, and ErrStopping while a timed-out stop is
// still draining.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return ErrAlreadyRunning
	}
	if s.loopDone != nil {
		select {
		case <-s.loopDone:
		default:
			return ErrStopping
		}
	}
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.run(s.stopCh, s.loopDone)
	s.log.Info("scheduler started",
		logx.Duration("poll_interval", s.cfg.PollInterval),
		logx.Bool("auto_retry", s.cfg.AutoRetry),
		logx.Int("max_retries", s.cfg.MaxRetries),
	)
	return nil
}

// Stop signals the poll loop and waits up to Config.StopTimeout for it to
// exit. In-flight dispatch workers finish in the background either way;
// pending queue items stay queued until the next Start.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	close(s.stopCh)
	s.stopCh = nil
	done := s.loopDone
	timeout := s.cfg.StopTimeout
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		s.log.Warn("scheduler stop timed out", logx.Duration("timeout", timeout))
		return ErrStopTimeout
	}
}

// Running reports whether the poll loop is live.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// QueueLen returns the number of pending queue items.
func (s *Service) QueueLen() int { return s.queue.Len() }

// Stats snapshots engine counters and per-status record counts.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		Running:    s.Running(),
		QueueLen:   s.queue.Len(),
		InFlight:   int(atomic.LoadInt32(&s.inFlight)),
		Dispatched: atomic.LoadUint64(&s.dispatched),
		LoopErrors: atomic.LoadUint64(&s.loopErrors),
		ByStatus:   make(map[post.Status]int),
	}
	recs, err := s.store.List(ctx)
	if err != nil {
		s.log.Warn("stats: listing post log failed", logx.Err(err))
		return st
	}
	for _, r := range recs {
		st.ByStatus[r.Status]++
	}
	return st
}

func (s *Service) publish(t eventbus.Type, rec post.Record) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type:     t,
		Time:     s.clock(),
		PostID:   rec.PostID,
		Platform: rec.Platform,
		Status:   rec.Status,
		Err:      rec.Error,
	})
}

package scheduler

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	logx "postpilot/pkg/logx"
)

// run is the poll loop. Each pass drains every due item, then sleeps
// PollInterval (ErrorBackoff after a failed pass). It exits only when
// stopCh closes.
func (s *Service) run(stopCh <-chan struct{}, loopDone chan<- struct{}) {
	defer close(loopDone)

	for {
		sleep := s.cfg.PollInterval
		if err := s.pollOnce(stopCh); err != nil {
			atomic.AddUint64(&s.loopErrors, 1)
			s.log.Error("poll pass failed", logx.Err(err))
			sleep = s.cfg.ErrorBackoff
		}

		tmr := time.NewTimer(sleep)
		select {
		case <-stopCh:
			if !tmr.Stop() {
				<-tmr.C
			}
			return
		case <-tmr.C:
		}
	}
}

// pollOnce pops every item whose time has come and hands each one to its
// own dispatch worker. A panic is converted to an error so the loop
// survives anything a pass throws at it.
func (s *Service) pollOnce(stopCh <-chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("poll panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	for {
		select {
		case <-stopCh:
			return nil
		default:
		}
		it, ok := s.queue.PopDue(s.clock())
		if !ok {
			return nil
		}
		s.workers.Add(1)
		go s.dispatchWorker(it)
	}
}

package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"postpilot/internal/eventbus"
	"postpilot/internal/post"
	"postpilot/internal/queue"
	logx "postpilot/pkg/logx"
)

// dispatchWorker runs one queue item through its platform dispatcher and
// walks the record posting -> posted / scheduled_retry / failed. Workers
// use their own contexts: a stopping engine lets in-flight posts finish.
func (s *Service) dispatchWorker(it queue.Item) {
	defer s.workers.Done()
	atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)

	var rec post.Record

	// A panicking dispatcher must not take the process down; the record
	// lands in error and stays out of the retry cycle.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dispatch panic",
				logx.String("post_id", it.PostID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			msg := fmt.Sprintf("panic: %v", r)
			rec.PostID = it.PostID
			rec.Platform = it.Platform
			s.updateRecord(it.PostID, &rec, func(r *post.Record) {
				r.Status = post.StatusError
				r.Error = msg
			})
			s.publish(eventbus.TypeError, rec)
		}
	}()

	rec, ok, err := s.store.Get(context.Background(), it.PostID)
	if err != nil {
		s.log.Error("loading queued post failed", logx.String("post_id", it.PostID), logx.Err(err))
		return
	}
	if !ok {
		// Deleted or never persisted; nothing to dispatch against.
		s.log.Warn("queued post missing from log", logx.String("post_id", it.PostID))
		return
	}

	s.updateRecord(it.PostID, &rec, func(r *post.Record) {
		r.Status = post.StatusPosting
	})
	s.publish(eventbus.TypePosting, rec)
	s.log.Info("dispatching post",
		logx.String("post_id", it.PostID),
		logx.String("platform", string(it.Platform)),
		logx.Int("retry", rec.RetryCount),
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchTimeout)
	res, derr := s.registry.Dispatch(ctx, rec.Platform, rec.PostID, rec.Content)
	cancel()
	atomic.AddUint64(&s.dispatched, 1)

	if derr == nil {
		now := s.clock()
		s.updateRecord(it.PostID, &rec, func(r *post.Record) {
			r.Status = post.StatusPosted
			r.Result = res
			r.PostedAt = now
			r.Error = ""
		})
		s.publish(eventbus.TypePosted, rec)
		s.log.Info("post delivered",
			logx.String("post_id", it.PostID),
			logx.String("platform", string(it.Platform)),
		)
		return
	}

	if s.cfg.AutoRetry && rec.RetryCount < s.cfg.MaxRetries {
		delay := backoffDelay(s.cfg.RetryBase, s.cfg.RetryCap, rec.RetryCount)
		nextAt := s.clock().Add(delay)
		s.updateRecord(it.PostID, &rec, func(r *post.Record) {
			r.RetryCount++
			r.Status = post.StatusScheduledRetry
			r.ScheduledTime = nextAt
			r.Error = derr.Error()
		})
		s.queue.Push(queue.Item{At: nextAt, PostID: it.PostID, Platform: it.Platform})
		s.publish(eventbus.TypeRetry, rec)
		s.log.Warn("dispatch failed, retry scheduled",
			logx.String("post_id", it.PostID),
			logx.String("platform", string(it.Platform)),
			logx.Int("retry", rec.RetryCount),
			logx.Duration("delay", delay),
			logx.Err(derr),
		)
		return
	}

	s.updateRecord(it.PostID, &rec, func(r *post.Record) {
		r.Status = post.StatusFailed
		r.Error = derr.Error()
	})
	s.publish(eventbus.TypeFailed, rec)
	s.log.Warn("dispatch failed, giving up",
		logx.String("post_id", it.PostID),
		logx.String("platform", string(it.Platform)),
		logx.Int("retries", rec.RetryCount),
		logx.Err(derr),
	)
}

// updateRecord applies mut through the store's read-modify-write and
// mirrors the stored result into rec. On persist failure the mutation
// still lands on the in-memory copy so events and logs stay truthful.
func (s *Service) updateRecord(postID string, rec *post.Record, mut func(*post.Record)) {
	err := s.store.Update(context.Background(), postID, func(r *post.Record) error {
		mut(r)
		*rec = *r
		return nil
	})
	if err != nil {
		mut(rec)
		s.log.Error("post log update failed", logx.String("post_id", postID), logx.Err(err))
	}
}

// backoffDelay doubles base once per prior retry, clamped at maxD. No
// jitter: consecutive delays for one post must never shrink.
func backoffDelay(base, maxD time.Duration, retry int) time.Duration {
	d := base
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= maxD {
			return maxD
		}
	}
	if d > maxD {
		d = maxD
	}
	return d
}

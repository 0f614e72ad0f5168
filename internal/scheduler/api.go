package scheduler

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"postpilot/internal/eventbus"
	"postpilot/internal/post"
	"postpilot/internal/queue"
	logx "postpilot/pkg/logx"
)

// SchedulePost validates the platform, persists a scheduled record, and
// enqueues it for the poll loop. A zero opts.At means the next timetable
// slot strictly after now.
//
// An unknown platform returns post.ErrUnknownPlatform and writes nothing.
// A persist failure is logged and swallowed: the post still dispatches
// this run, it just won't survive a restart.
func (s *Service) SchedulePost(ctx context.Context, platform string, content post.Content, opts ScheduleOptions) (post.Record, error) {
	p, err := post.ParsePlatform(platform)
	if err != nil {
		return post.Record{}, err
	}

	now := s.clock()
	id := opts.PostID
	if id == "" {
		id = post.NewPostID(p, now)
	}
	at := opts.At
	if at.IsZero() {
		at = s.table.Next(now)
	}

	rec := post.Record{
		PostID:        id,
		Platform:      p,
		Content:       content,
		ScheduledTime: at,
		Status:        post.StatusScheduled,
		CreatedAt:     now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		s.log.Error("persisting scheduled post failed", logx.String("post_id", id), logx.Err(err))
	}
	s.queue.Push(queue.Item{At: at, PostID: id, Platform: p})
	s.publish(eventbus.TypeScheduled, rec)
	s.log.Info("post scheduled",
		logx.String("post_id", id),
		logx.String("platform", string(p)),
		logx.Time("at", at),
	)
	return rec, nil
}

// ScheduleMultiPlatform schedules one post per platform and returns one
// result per input, in input order. Entries fail independently; a bad
// platform never aborts the rest.
//
// With no explicit Times the first post goes out Lead after now (truncated
// to the minute) and each later one Stagger further, so a burst never hits
// every network at the same instant.
func (s *Service) ScheduleMultiPlatform(ctx context.Context, posts []PlatformContent, opts MultiOptions) []MultiResult {
	stagger := opts.Stagger
	if stagger <= 0 {
		stagger = s.cfg.Stagger
	}

	var base time.Time
	if opts.Times == nil {
		base = s.clock().Truncate(time.Minute).Add(s.cfg.Lead)
	}

	results := make([]MultiResult, 0, len(posts))
	for i, pc := range posts {
		var at time.Time
		if opts.Times == nil {
			at = base.Add(time.Duration(i) * stagger)
		} else if p, perr := post.ParsePlatform(pc.Platform); perr == nil {
			// Absent platforms leave at zero; SchedulePost falls back to
			// the timetable.
			at = opts.Times[p]
		}
		rec, err := s.SchedulePost(ctx, pc.Platform, pc.Content, ScheduleOptions{At: at})
		results = append(results, MultiResult{Platform: pc.Platform, Record: rec, Err: err})
	}
	return results
}

// PostNow dispatches synchronously, bypassing the queue. No retries: the
// dispatcher's error comes straight back. The record is persisted once,
// with the final outcome.
func (s *Service) PostNow(ctx context.Context, platform string, content post.Content, opts NowOptions) (post.Record, post.Result, error) {
	p, err := post.ParsePlatform(platform)
	if err != nil {
		return post.Record{}, nil, err
	}

	now := s.clock()
	id := opts.PostID
	if id == "" {
		id = post.NewPostID(p, now)
	}
	rec := post.Record{
		PostID:        id,
		Platform:      p,
		Content:       content,
		ScheduledTime: now,
		Status:        post.StatusPosting,
		CreatedAt:     now,
	}
	s.publish(eventbus.TypePosting, rec)

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	res, derr := s.registry.Dispatch(dctx, p, id, content)
	cancel()
	atomic.AddUint64(&s.dispatched, 1)

	if derr != nil {
		rec.Status = post.StatusFailed
		rec.Error = derr.Error()
	} else {
		rec.Status = post.StatusPosted
		rec.Result = res
		rec.PostedAt = s.clock()
	}
	// Record the outcome even if the caller has gone away.
	if perr := s.store.Put(context.Background(), rec); perr != nil {
		s.log.Error("persisting immediate post failed", logx.String("post_id", id), logx.Err(perr))
	}

	if derr != nil {
		s.publish(eventbus.TypeFailed, rec)
		s.log.Warn("immediate post failed",
			logx.String("post_id", id),
			logx.String("platform", string(p)),
			logx.Err(derr),
		)
	} else {
		s.publish(eventbus.TypePosted, rec)
		s.log.Info("immediate post delivered",
			logx.String("post_id", id),
			logx.String("platform", string(p)),
		)
	}
	return rec, res, derr
}

// Get looks up one record in the post log.
func (s *Service) Get(ctx context.Context, postID string) (post.Record, bool, error) {
	return s.store.Get(ctx, postID)
}

// History returns records matching the filter, newest scheduled first.
// Time bounds are inclusive on ScheduledTime.
func (s *Service) History(ctx context.Context, f HistoryFilter) ([]post.Record, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]post.Record, 0, len(recs))
	for _, r := range recs {
		if f.Platform != "" && r.Platform != f.Platform {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && r.ScheduledTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && r.ScheduledTime.After(f.To) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledTime.After(out[j].ScheduledTime)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

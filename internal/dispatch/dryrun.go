package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"postpilot/internal/post"
	logx "postpilot/pkg/logx"
)

// DryRun simulates a platform API. It never touches the network and
// fabricates the same result shapes the real integrations produce, so the
// rest of the pipeline can be exercised end to end.
type DryRun struct {
	platform  post.Platform
	latency   time.Duration
	failEvery int
	log       logx.Logger

	calls atomic.Uint64
	now   func() time.Time
}

// DryRunOptions tunes the simulation.
type DryRunOptions struct {
	Latency   time.Duration // simulated API call time; 0 returns immediately
	FailEvery int           // every Nth Post fails, for rehearsing retries; 0 never fails
}

func NewDryRun(p post.Platform, opt DryRunOptions, log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{
		platform:  p,
		latency:   opt.Latency,
		failEvery: opt.FailEvery,
		log:       log,
		now:       time.Now,
	}
}

func (d *DryRun) Platform() post.Platform { return d.platform }

func (d *DryRun) Post(ctx context.Context, postID string, content post.Content) (post.Result, error) {
	n := d.calls.Add(1)

	if d.latency > 0 {
		t := time.NewTimer(d.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if d.failEvery > 0 && n%uint64(d.failEvery) == 0 {
		return nil, fmt.Errorf("simulated %s API failure (call %d)", d.platform, n)
	}

	d.log.Info("dry-run dispatch",
		logx.String("platform", string(d.platform)),
		logx.String("post_id", postID),
		logx.String("content", preview(content)),
	)

	ts := d.now().Unix()
	sim := fmt.Sprintf("simulated_%d_%s", ts, idSuffix(postID))

	res := post.Result{"post_id": postID, "simulated": true}
	switch d.platform {
	case post.Twitter:
		res["tweet_id"] = sim
		res["tweet_url"] = "https://twitter.com/user/status/" + sim
	case post.Instagram:
		code := fmt.Sprintf("ABC%d", ts%10000)
		res["instagram_post_id"] = sim
		res["instagram_code"] = code
		res["instagram_url"] = "https://www.instagram.com/p/" + code
	case post.LinkedIn:
		res["linkedin_post_id"] = sim
	case post.Facebook:
		res["facebook_post_id"] = fmt.Sprintf("page_%d_%s", ts, idSuffix(postID))
		res["post_url"] = fmt.Sprintf("https://www.facebook.com/page/posts/%d", ts)
	default:
		res["remote_id"] = sim
	}
	return res, nil
}

func idSuffix(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// preview picks the human-readable part of the payload for logs.
func preview(content post.Content) string {
	text, _ := content["text"].(string)
	if text == "" {
		text, _ = content["caption"].(string)
	}
	if len(text) > 50 {
		return text[:50] + "..."
	}
	return text
}

// Package scheduler is the posting engine: it owns the pending queue, the
// poll loop that drains it, and the per-post dispatch state machine.
//
// Records move scheduled -> posting -> posted, or on dispatch failure
// posting -> scheduled_retry (bounded exponential backoff, re-enqueued)
// until retries run out and the record lands in failed. A panicking
// dispatcher lands it in error. The poll loop itself never dies: a failed
// pass is logged, counted, and retried after a short backoff.
package scheduler

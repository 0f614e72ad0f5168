package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"postpilot/internal/dispatch"
	"postpilot/internal/post"
	"postpilot/internal/postlog"
	"postpilot/internal/timetable"
	logx "postpilot/pkg/logx"
)

// fakeDispatcher counts calls and fails, stalls, or panics on demand.
type fakeDispatcher struct {
	platform post.Platform
	failN    int // fail the first N calls
	failAll  bool
	panics   bool
	delay    time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeDispatcher) Platform() post.Platform { return f.platform }

func (f *fakeDispatcher) Post(_ context.Context, postID string, _ post.Content) (post.Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.panics {
		panic("dispatcher exploded")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failAll || n <= f.failN {
		return nil, fmt.Errorf("api rejected call %d", n)
	}
	return post.Result{"remote_id": fmt.Sprintf("%s-%d", postID, n)}, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// newTestEngine wires a Service onto a file store in a temp dir, a UTC
// 08:15 timetable, and the given dispatchers. A nil clock means wall time.
func newTestEngine(t *testing.T, cfg Config, clock func() time.Time, ds ...dispatch.Dispatcher) (*Service, postlog.Store) {
	t.Helper()
	log := logx.Nop()

	store, err := postlog.Open(postlog.Config{Path: filepath.Join(t.TempDir(), "post_log.json")}, log)
	if err != nil {
		t.Fatalf("open post log: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	table, err := timetable.New(timetable.Config{Slot: "08:15", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("timetable: %v", err)
	}

	reg := dispatch.NewRegistry(log)
	for _, d := range ds {
		reg.Register(d, dispatch.RateConfig{})
	}

	return New(cfg, Deps{Store: store, Table: table, Registry: reg, Log: log, Clock: clock}), store
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

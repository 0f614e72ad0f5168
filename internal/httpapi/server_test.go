package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postpilot/internal/dispatch"
	"postpilot/internal/post"
	"postpilot/internal/postlog"
	"postpilot/internal/scheduler"
	"postpilot/internal/timetable"
	logx "postpilot/pkg/logx"
)

// newTestServer builds the API on top of a real engine with dry-run
// dispatchers for every platform and a file store in a temp dir.
func newTestServer(t *testing.T, clock func() time.Time) (*Server, *scheduler.Service) {
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
	for _, p := range []post.Platform{post.Twitter, post.Instagram, post.LinkedIn, post.Facebook} {
		reg.Register(dispatch.NewDryRun(p, dispatch.DryRunOptions{}, log), dispatch.RateConfig{})
	}

	engine := scheduler.New(scheduler.Config{}, scheduler.Deps{
		Store:    store,
		Table:    table,
		Registry: reg,
		Log:      log,
		Clock:    clock,
	})
	return New(Config{}, engine, log), engine
}

func doRequest(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	rr := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body struct {
		Status  string `json:"status"`
		Running bool   `json:"running"`
	}
	decodeResponse(t, rr, &body)
	if body.Status != "ok" {
		t.Fatalf("status field = %q, want %q", body.Status, "ok")
	}
	if body.Running {
		t.Fatal("engine reported running before Start")
	}
}

func TestSchedulePostEndpoint(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, func() time.Time { return now })

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts", map[string]any{
		"platform": "Twitter",
		"content":  map[string]any{"text": "hello world"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var rec post.Record
	decodeResponse(t, rr, &rec)
	if !strings.HasPrefix(rec.PostID, "twitter_") {
		t.Fatalf("post id = %q, want twitter_ prefix", rec.PostID)
	}
	if rec.Status != post.StatusScheduled {
		t.Fatalf("status = %q, want %q", rec.Status, post.StatusScheduled)
	}
	want := time.Date(2026, 3, 4, 8, 15, 0, 0, time.UTC)
	if !rec.ScheduledTime.Equal(want) {
		t.Fatalf("scheduled time = %v, want %v", rec.ScheduledTime, want)
	}
}

func TestSchedulePostEndpointExplicitTime(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	at := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts", map[string]any{
		"platform":       "linkedin",
		"content":        map[string]any{"text": "launch day"},
		"scheduled_time": at.Format(time.RFC3339),
		"post_id":        "linkedin_launch_1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var rec post.Record
	decodeResponse(t, rr, &rec)
	if rec.PostID != "linkedin_launch_1" {
		t.Fatalf("post id = %q, want %q", rec.PostID, "linkedin_launch_1")
	}
	if !rec.ScheduledTime.Equal(at) {
		t.Fatalf("scheduled time = %v, want %v", rec.ScheduledTime, at)
	}
}

func TestSchedulePostEndpointRejections(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
		raw  string
	}{
		{name: "unknown platform", body: map[string]any{"platform": "myspace", "content": map[string]any{"text": "x"}}},
		{name: "bad scheduled_time", body: map[string]any{"platform": "twitter", "content": map[string]any{"text": "x"}, "scheduled_time": "tomorrow"}},
		{name: "bad json", raw: "{not json"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var rr *httptest.ResponseRecorder
			if tt.raw != "" {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(tt.raw))
				rr = httptest.NewRecorder()
				srv.Handler().ServeHTTP(rr, req)
			} else {
				rr = doRequest(t, srv, http.MethodPost, "/api/v1/posts", tt.body)
			}
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
			var body struct {
				Error string `json:"error"`
			}
			decodeResponse(t, rr, &body)
			if body.Error == "" {
				t.Fatal("error field empty")
			}
		})
	}
}

func TestScheduleMultiEndpoint(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 3, 10, 0, 30, 0, time.UTC)
	srv, engine := newTestServer(t, func() time.Time { return now })

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts/multi", map[string]any{
		"posts": []map[string]any{
			{"platform": "twitter", "content": map[string]any{"text": "one"}},
			{"platform": "myspace", "content": map[string]any{"text": "two"}},
			{"platform": "facebook", "content": map[string]any{"text": "three"}},
		},
		"stagger": "15m",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var body struct {
		Results []multiResponseItem `json:"results"`
	}
	decodeResponse(t, rr, &body)
	if len(body.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(body.Results))
	}
	if body.Results[0].Platform != "twitter" || body.Results[2].Platform != "facebook" {
		t.Fatalf("result order not preserved: %+v", body.Results)
	}
	if body.Results[1].Error == "" {
		t.Fatal("bad platform entry did not report an error")
	}
	if body.Results[1].Record != nil {
		t.Fatal("bad platform entry carries a record")
	}
	if body.Results[0].Record == nil || body.Results[2].Record == nil {
		t.Fatal("good entries missing records")
	}

	// Lead plus stagger from the minute-truncated base.
	first := body.Results[0].Record.ScheduledTime
	third := body.Results[2].Record.ScheduledTime
	if got, want := third.Sub(first), 30*time.Minute; got != want {
		t.Fatalf("stagger between first and third = %v, want %v", got, want)
	}
	if engine.QueueLen() != 2 {
		t.Fatalf("queue length = %d, want 2", engine.QueueLen())
	}
}

func TestScheduleMultiEndpointExplicitTimes(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, func() time.Time { return now })

	at := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts/multi", map[string]any{
		"posts": []map[string]any{
			{"platform": "twitter", "content": map[string]any{"text": "pinned"}},
			{"platform": "facebook", "content": map[string]any{"text": "default slot"}},
		},
		"times": map[string]string{"twitter": at.Format(time.RFC3339)},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var body struct {
		Results []multiResponseItem `json:"results"`
	}
	decodeResponse(t, rr, &body)
	if !body.Results[0].Record.ScheduledTime.Equal(at) {
		t.Fatalf("twitter time = %v, want %v", body.Results[0].Record.ScheduledTime, at)
	}
	slot := time.Date(2026, 3, 4, 8, 15, 0, 0, time.UTC)
	if !body.Results[1].Record.ScheduledTime.Equal(slot) {
		t.Fatalf("facebook time = %v, want timetable slot %v", body.Results[1].Record.ScheduledTime, slot)
	}
}

func TestScheduleMultiEndpointRejections(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "empty posts", body: map[string]any{"posts": []map[string]any{}}},
		{name: "bad stagger", body: map[string]any{
			"posts":   []map[string]any{{"platform": "twitter", "content": map[string]any{"text": "x"}}},
			"stagger": "soon",
		}},
		{name: "bad times platform", body: map[string]any{
			"posts": []map[string]any{{"platform": "twitter", "content": map[string]any{"text": "x"}}},
			"times": map[string]string{"myspace": "2026-03-05T09:00:00Z"},
		}},
		{name: "bad times value", body: map[string]any{
			"posts": []map[string]any{{"platform": "twitter", "content": map[string]any{"text": "x"}}},
			"times": map[string]string{"twitter": "wednesday"},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts/multi", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestPostNowEndpoint(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts/now", map[string]any{
		"platform": "twitter",
		"content":  map[string]any{"text": "breaking"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var body struct {
		Record post.Record `json:"record"`
		Result post.Result `json:"result"`
	}
	decodeResponse(t, rr, &body)
	if body.Record.Status != post.StatusPosted {
		t.Fatalf("status = %q, want %q", body.Record.Status, post.StatusPosted)
	}
	if _, ok := body.Result["tweet_id"]; !ok {
		t.Fatalf("result missing tweet_id: %v", body.Result)
	}
}

func TestPostNowEndpointDispatchFailure(t *testing.T) {
	t.Parallel()
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

	// FailEvery 1 makes every dispatch fail.
	reg := dispatch.NewRegistry(log)
	reg.Register(dispatch.NewDryRun(post.Twitter, dispatch.DryRunOptions{FailEvery: 1}, log), dispatch.RateConfig{})

	engine := scheduler.New(scheduler.Config{}, scheduler.Deps{Store: store, Table: table, Registry: reg, Log: log})
	srv := New(Config{}, engine, log)

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts/now", map[string]any{
		"platform": "twitter",
		"content":  map[string]any{"text": "doomed"},
	})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusBadGateway, rr.Body.String())
	}

	var body struct {
		Record post.Record `json:"record"`
		Error  string      `json:"error"`
	}
	decodeResponse(t, rr, &body)
	if body.Record.Status != post.StatusFailed {
		t.Fatalf("status = %q, want %q", body.Record.Status, post.StatusFailed)
	}
	if body.Error == "" {
		t.Fatal("error field empty")
	}
}

func TestPostNowEndpointUnknownPlatform(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/posts/now", map[string]any{
		"platform": "myspace",
		"content":  map[string]any{"text": "x"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	srv, engine := newTestServer(t, func() time.Time { return now })

	day := func(d int) time.Time { return time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC) }
	seed := []struct {
		id, platform string
		at           time.Time
	}{
		{"twitter_1_aaaaaaaa", "twitter", day(1)},
		{"facebook_2_bbbbbbbb", "facebook", day(2)},
		{"twitter_3_cccccccc", "twitter", day(3)},
	}
	for _, sp := range seed {
		_, err := engine.SchedulePost(context.Background(), sp.platform, post.Content{"text": sp.id},
			scheduler.ScheduleOptions{At: sp.at, PostID: sp.id})
		if err != nil {
			t.Fatalf("seed %s: %v", sp.id, err)
		}
	}

	rr := doRequest(t, srv, http.MethodGet, "/api/v1/posts?platform=twitter", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var body struct {
		Posts []post.Record `json:"posts"`
		Count int           `json:"count"`
	}
	decodeResponse(t, rr, &body)
	if body.Count != 2 || len(body.Posts) != 2 {
		t.Fatalf("count = %d (len %d), want 2", body.Count, len(body.Posts))
	}
	// Most recent scheduled time first.
	if body.Posts[0].PostID != "twitter_3_cccccccc" {
		t.Fatalf("first post = %q, want twitter_3_cccccccc", body.Posts[0].PostID)
	}

	rr = doRequest(t, srv, http.MethodGet,
		"/api/v1/posts?from=2026-03-02T00:00:00Z&to=2026-03-02T23:59:59Z", nil)
	decodeResponse(t, rr, &body)
	if body.Count != 1 || body.Posts[0].PostID != "facebook_2_bbbbbbbb" {
		t.Fatalf("window filter got %+v, want just facebook_2_bbbbbbbb", body.Posts)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/v1/posts?limit=1", nil)
	decodeResponse(t, rr, &body)
	if body.Count != 1 || body.Posts[0].PostID != "twitter_3_cccccccc" {
		t.Fatalf("limit filter got %+v, want just twitter_3_cccccccc", body.Posts)
	}

	for _, target := range []string{
		"/api/v1/posts?platform=myspace",
		"/api/v1/posts?status=pending",
		"/api/v1/posts?from=yesterday",
		"/api/v1/posts?limit=-1",
	} {
		rr := doRequest(t, srv, http.MethodGet, target, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want %d", target, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestGetPostEndpoint(t *testing.T) {
	t.Parallel()
	srv, engine := newTestServer(t, nil)

	rec, err := engine.SchedulePost(context.Background(), "instagram", post.Content{"caption": "sunset"}, scheduler.ScheduleOptions{})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rr := doRequest(t, srv, http.MethodGet, "/api/v1/posts/"+rec.PostID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var got post.Record
	decodeResponse(t, rr, &got)
	if got.PostID != rec.PostID {
		t.Fatalf("post id = %q, want %q", got.PostID, rec.PostID)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/v1/posts/instagram_missing_1", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	srv, engine := newTestServer(t, nil)

	if _, err := engine.SchedulePost(context.Background(), "twitter", post.Content{"text": "x"}, scheduler.ScheduleOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rr := doRequest(t, srv, http.MethodGet, "/api/v1/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var stats scheduler.Stats
	decodeResponse(t, rr, &stats)
	if stats.Running {
		t.Fatal("engine reported running before Start")
	}
	if stats.QueueLen != 1 {
		t.Fatalf("queue length = %d, want 1", stats.QueueLen)
	}
	if stats.ByStatus[post.StatusScheduled] != 1 {
		t.Fatalf("scheduled count = %d, want 1", stats.ByStatus[post.StatusScheduled])
	}
}

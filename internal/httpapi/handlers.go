package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"postpilot/internal/post"
	"postpilot/internal/scheduler"
)

type schedulePostRequest struct {
	Platform string       `json:"platform"`
	Content  post.Content `json:"content"`
	// ScheduledTime is RFC3339. Omit it to take the next timetable slot.
	ScheduledTime string `json:"scheduled_time,omitempty"`
	PostID        string `json:"post_id,omitempty"`
}

type multiRequest struct {
	Posts []multiItem `json:"posts"`
	// Times maps platform name to an RFC3339 time. Platforms absent from
	// a non-empty map fall back to the timetable.
	Times   map[string]string `json:"times,omitempty"`
	Stagger string            `json:"stagger,omitempty"`
}

type multiItem struct {
	Platform string       `json:"platform"`
	Content  post.Content `json:"content"`
}

type multiResponseItem struct {
	Platform string       `json:"platform"`
	Record   *post.Record `json:"record,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type postNowRequest struct {
	Platform string       `json:"platform"`
	Content  post.Content `json:"content"`
	PostID   string       `json:"post_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.engine.Running(),
	})
}

func (s *Server) handleSchedulePost(w http.ResponseWriter, r *http.Request) {
	var req schedulePostRequest
	if !decode(w, r, &req) {
		return
	}
	opts := scheduler.ScheduleOptions{PostID: req.PostID}
	if req.ScheduledTime != "" {
		at, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "scheduled_time: not RFC3339: "+err.Error())
			return
		}
		opts.At = at
	}
	rec, err := s.engine.SchedulePost(r.Context(), req.Platform, req.Content, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, post.ErrUnknownPlatform) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleScheduleMulti(w http.ResponseWriter, r *http.Request) {
	var req multiRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Posts) == 0 {
		writeError(w, http.StatusBadRequest, "posts: at least one entry required")
		return
	}

	var opts scheduler.MultiOptions
	if req.Stagger != "" {
		d, err := time.ParseDuration(req.Stagger)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "stagger: not a valid duration")
			return
		}
		opts.Stagger = d
	}
	if req.Times != nil {
		opts.Times = make(map[post.Platform]time.Time, len(req.Times))
		for name, raw := range req.Times {
			p, err := post.ParsePlatform(name)
			if err != nil {
				writeError(w, http.StatusBadRequest, "times: "+err.Error())
				return
			}
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "times."+name+": not RFC3339: "+err.Error())
				return
			}
			opts.Times[p] = at
		}
	}

	items := make([]scheduler.PlatformContent, 0, len(req.Posts))
	for _, it := range req.Posts {
		items = append(items, scheduler.PlatformContent{Platform: it.Platform, Content: it.Content})
	}

	results := s.engine.ScheduleMultiPlatform(r.Context(), items, opts)
	out := make([]multiResponseItem, 0, len(results))
	for _, res := range results {
		item := multiResponseItem{Platform: res.Platform}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else {
			rec := res.Record
			item.Record = &rec
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handlePostNow(w http.ResponseWriter, r *http.Request) {
	var req postNowRequest
	if !decode(w, r, &req) {
		return
	}
	rec, res, err := s.engine.PostNow(r.Context(), req.Platform, req.Content, scheduler.NowOptions{PostID: req.PostID})
	if err != nil {
		if errors.Is(err, post.ErrUnknownPlatform) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// The record carries the failure detail for the caller.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"record": rec,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record": rec,
		"result": res,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f scheduler.HistoryFilter
	if v := q.Get("platform"); v != "" {
		p, err := post.ParsePlatform(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Platform = p
	}
	if v := q.Get("status"); v != "" {
		st, err := post.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from: not RFC3339: "+err.Error())
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to: not RFC3339: "+err.Error())
			return
		}
		f.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit: must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	recs, err := s.engine.History(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": recs,
		"count": len(recs),
	})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postID")
	rec, ok, err := s.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "post not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats(r.Context()))
}

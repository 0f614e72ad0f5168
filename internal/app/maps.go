package app

import (
	"fmt"
	"strings"
	"time"

	"postpilot/internal/dispatch"
	"postpilot/internal/httpapi"
	"postpilot/internal/post"
	"postpilot/internal/postlog"
	"postpilot/internal/scheduler"
	"postpilot/internal/timetable"
	logx "postpilot/pkg/logx"
)

// The map* helpers translate the string-typed config file into the concrete
// component configs. They double as the deep half of the reload validator,
// so a bad hot-reload is rejected before anything commits.

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapPostLogConfig(cfg *Config) (postlog.Config, error) {
	pl := cfg.PostLog
	driver := strings.ToLower(strings.TrimSpace(pl.Driver))
	switch driver {
	case "", "file":
		return postlog.Config{Driver: "file", Path: strings.TrimSpace(pl.Path)}, nil
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(pl.Path)
		if path == "" {
			return postlog.Config{}, fmt.Errorf("post_log.path is required when post_log.driver=%s", driver)
		}
		busy, err := parseDurationOrDefault("post_log.busy_timeout", pl.BusyTimeout, time.Second)
		if err != nil {
			return postlog.Config{}, err
		}
		return postlog.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return postlog.Config{}, fmt.Errorf("unknown post_log.driver: %s", pl.Driver)
	}
}

func mapTimetableConfig(cfg *Config) timetable.Config {
	return timetable.Config{
		Slot:     cfg.Timetable.Slot,
		Timezone: cfg.Timetable.Timezone,
	}
}

func mapEngineConfig(cfg *Config) (scheduler.Config, error) {
	eng := cfg.Engine

	out := scheduler.Config{AutoRetry: true, MaxRetries: eng.MaxRetries}
	if eng.AutoRetry != nil {
		out.AutoRetry = *eng.AutoRetry
	}
	if out.MaxRetries < 0 {
		return scheduler.Config{}, fmt.Errorf("engine.max_retries must be >= 0")
	}
	// 0 means omitted; turning retries off is auto_retry=false.
	if out.MaxRetries == 0 {
		out.MaxRetries = 3
	}

	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"engine.poll_interval", eng.PollInterval, &out.PollInterval},
		{"engine.error_backoff", eng.ErrorBackoff, &out.ErrorBackoff},
		{"engine.retry_base", eng.RetryBase, &out.RetryBase},
		{"engine.retry_cap", eng.RetryCap, &out.RetryCap},
		{"engine.dispatch_timeout", eng.DispatchTimeout, &out.DispatchTimeout},
		{"engine.stop_timeout", eng.StopTimeout, &out.StopTimeout},
		{"engine.stagger", eng.Stagger, &out.Stagger},
		{"engine.lead", eng.Lead, &out.Lead},
	}
	for _, f := range fields {
		d, err := parseDurationField(f.path, f.raw)
		if err != nil {
			return scheduler.Config{}, err
		}
		*f.dst = d
	}
	// Zero durations fall to the engine defaults.
	return out, nil
}

func mapServerConfig(cfg *Config) (httpapi.Config, error) {
	srv := cfg.Server

	out := httpapi.Config{Addr: strings.TrimSpace(srv.Addr)}
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_timeout", srv.ReadTimeout, &out.ReadTimeout},
		{"server.write_timeout", srv.WriteTimeout, &out.WriteTimeout},
		{"server.idle_timeout", srv.IdleTimeout, &out.IdleTimeout},
		{"server.shutdown_timeout", srv.ShutdownTimeout, &out.ShutdownTimeout},
	}
	for _, f := range fields {
		d, err := parseDurationField(f.path, f.raw)
		if err != nil {
			return httpapi.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

func mapDryRunOptions(cfg *Config) (dispatch.DryRunOptions, error) {
	latency, err := parseDurationOrDefault("dispatch.latency", cfg.Dispatch.Latency, 100*time.Millisecond)
	if err != nil {
		return dispatch.DryRunOptions{}, err
	}
	if cfg.Dispatch.FailEvery < 0 {
		return dispatch.DryRunOptions{}, fmt.Errorf("dispatch.fail_every must be >= 0")
	}
	return dispatch.DryRunOptions{Latency: latency, FailEvery: cfg.Dispatch.FailEvery}, nil
}

// rateConfigs parses dispatch.rates keyed by platform name.
func rateConfigs(cfg *Config) (map[post.Platform]dispatch.RateConfig, error) {
	out := make(map[post.Platform]dispatch.RateConfig, len(cfg.Dispatch.Rates))
	for name, rc := range cfg.Dispatch.Rates {
		p, err := post.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("dispatch.rates.%s: %w", name, err)
		}
		every, err := parseDurationField("dispatch.rates."+name+".every", rc.Every)
		if err != nil {
			return nil, err
		}
		if rc.Burst < 0 {
			return nil, fmt.Errorf("dispatch.rates.%s.burst must be >= 0", name)
		}
		out[p] = dispatch.RateConfig{Every: every, Burst: rc.Burst}
	}
	return out, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the full on-disk configuration. JSON and YAML are both
// accepted; unknown keys are rejected so typos fail loudly instead of
// silently falling back to defaults.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server    ServerConfig    `json:"server"`
	Engine    EngineConfig    `json:"engine"`
	Timetable TimetableConfig `json:"timetable"`
	PostLog   PostLogConfig   `json:"post_log"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8284"

	ReadTimeout     string `json:"read_timeout,omitempty"`     // default "10s"
	WriteTimeout    string `json:"write_timeout,omitempty"`    // default "30s"
	IdleTimeout     string `json:"idle_timeout,omitempty"`     // default "60s"
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"` // default "10s"
}

// EngineConfig controls the posting engine's polling and retry behavior.
//
// AutoRetry is a pointer so an omitted field defaults to true while an
// explicit false still turns retries off.
type EngineConfig struct {
	PollInterval string `json:"poll_interval,omitempty"` // default "1s"
	ErrorBackoff string `json:"error_backoff,omitempty"` // default "5s"

	AutoRetry  *bool  `json:"auto_retry,omitempty"`  // default true
	MaxRetries int    `json:"max_retries,omitempty"` // default 3
	RetryBase  string `json:"retry_base,omitempty"`  // default "5m"
	RetryCap   string `json:"retry_cap,omitempty"`   // default "60m"

	DispatchTimeout string `json:"dispatch_timeout,omitempty"` // default "2m"
	StopTimeout     string `json:"stop_timeout,omitempty"`     // default "5s"

	Stagger string `json:"stagger,omitempty"` // multi-platform spacing, default "15m"
	Lead    string `json:"lead,omitempty"`    // multi-platform lead-in, default "5m"
}

// TimetableConfig selects the recurring daily posting slot.
type TimetableConfig struct {
	Slot     string `json:"slot,omitempty"`     // "HH:MM" or a 5-field cron spec, default "08:15"
	Timezone string `json:"timezone,omitempty"` // IANA zone, default "America/New_York"
}

// PostLogConfig controls the durable post log.
type PostLogConfig struct {
	Driver      string `json:"driver,omitempty"`       // "file" (default) or "sqlite"
	Path        string `json:"path,omitempty"`         // default "post_log.json"
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DispatchConfig controls the platform dispatchers.
//
// DryRun is a pointer so an omitted field defaults to true: simulated
// dispatch stays the safe default until real credentials exist.
type DispatchConfig struct {
	DryRun    *bool  `json:"dry_run,omitempty"`
	Latency   string `json:"latency,omitempty"`    // simulated API latency, default "100ms"
	FailEvery int    `json:"fail_every,omitempty"` // simulate a failure on every Nth call; 0 disables

	// Rates paces dispatches per platform:
	//
	//	"rates": { "twitter": {"every": "2s", "burst": 1} }
	//
	// Platforms without an entry dispatch unpaced.
	Rates map[string]RateLimitConfig `json:"rates,omitempty"`
}

type RateLimitConfig struct {
	Every string `json:"every"` // minimum gap between dispatches to this platform
	Burst int    `json:"burst,omitempty"`
}

type LoggingConfig struct {
	Level  string      `json:"level,omitempty"`  // trace|debug|info|warn|error, default "info"
	Format string      `json:"format,omitempty"` // "console" (default) or "json"
	File   LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // default "./postpilot.log"
}

// Default is the configuration used when no file exists: dry-run
// dispatchers, file post log, API on localhost.
func Default() *Config {
	on := true
	return &Config{
		Server:    ServerConfig{Enabled: true, Addr: "127.0.0.1:8284"},
		Engine:    EngineConfig{AutoRetry: &on, MaxRetries: 3},
		Timetable: TimetableConfig{Slot: "08:15", Timezone: "America/New_York"},
		PostLog:   PostLogConfig{Driver: "file", Path: "post_log.json"},
		Dispatch:  DispatchConfig{DryRun: &on, Latency: "100ms"},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
	}
}

// Validate rejects configs that would fail later at apply time: bad
// duration strings, unknown enum values, negative counts. Deeper checks
// (slot spec, timezone, platform names) belong to the app's validator
// hook, which can reach the packages that own those rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []string
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err.Error())
		}
	}

	dur("server.read_timeout", cfg.Server.ReadTimeout)
	dur("server.write_timeout", cfg.Server.WriteTimeout)
	dur("server.idle_timeout", cfg.Server.IdleTimeout)
	dur("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	dur("engine.poll_interval", cfg.Engine.PollInterval)
	dur("engine.error_backoff", cfg.Engine.ErrorBackoff)
	dur("engine.retry_base", cfg.Engine.RetryBase)
	dur("engine.retry_cap", cfg.Engine.RetryCap)
	dur("engine.dispatch_timeout", cfg.Engine.DispatchTimeout)
	dur("engine.stop_timeout", cfg.Engine.StopTimeout)
	dur("engine.stagger", cfg.Engine.Stagger)
	dur("engine.lead", cfg.Engine.Lead)
	if cfg.Engine.MaxRetries < 0 {
		errs = append(errs, "engine.max_retries: must be >= 0")
	}

	dur("post_log.busy_timeout", cfg.PostLog.BusyTimeout)
	switch strings.ToLower(strings.TrimSpace(cfg.PostLog.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Sprintf("post_log.driver: unknown driver %q", cfg.PostLog.Driver))
	}

	dur("dispatch.latency", cfg.Dispatch.Latency)
	if cfg.Dispatch.FailEvery < 0 {
		errs = append(errs, "dispatch.fail_every: must be >= 0")
	}
	for name, rl := range cfg.Dispatch.Rates {
		dur("dispatch.rates."+name+".every", rl.Every)
		if rl.Burst < 0 {
			errs = append(errs, fmt.Sprintf("dispatch.rates.%s.burst: must be >= 0", name))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format: unknown format %q", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

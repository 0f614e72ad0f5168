package config

import (
	"reflect"
	"sort"
	"strings"

	logx "postpilot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging the reload. Values that could carry
// credentials one day (none today) must stay out of attrs.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		autoRetry := true
		autoRetrySet := false
		if newCfg.Engine.AutoRetry != nil {
			autoRetrySet = true
			autoRetry = *newCfg.Engine.AutoRetry
		}
		attrs = append(attrs,
			logx.String("engine.poll_interval", strings.TrimSpace(newCfg.Engine.PollInterval)),
			logx.Bool("engine.auto_retry", autoRetry),
			logx.Bool("engine.auto_retry_set", autoRetrySet),
			logx.Int("engine.max_retries", newCfg.Engine.MaxRetries),
			logx.String("engine.retry_base", strings.TrimSpace(newCfg.Engine.RetryBase)),
			logx.String("engine.retry_cap", strings.TrimSpace(newCfg.Engine.RetryCap)),
		)
	}

	if oldCfg.Timetable != newCfg.Timetable {
		changed = append(changed, "timetable")
		attrs = append(attrs,
			logx.String("timetable.slot", strings.TrimSpace(newCfg.Timetable.Slot)),
			logx.String("timetable.timezone", strings.TrimSpace(newCfg.Timetable.Timezone)),
		)
	}

	if oldCfg.PostLog != newCfg.PostLog {
		changed = append(changed, "post_log")
		attrs = append(attrs,
			logx.String("post_log.driver", strings.TrimSpace(newCfg.PostLog.Driver)),
			logx.Bool("post_log.path_set", strings.TrimSpace(newCfg.PostLog.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		dryRun := true
		if newCfg.Dispatch.DryRun != nil {
			dryRun = *newCfg.Dispatch.DryRun
		}
		attrs = append(attrs,
			logx.Bool("dispatch.dry_run", dryRun),
			logx.String("dispatch.latency", strings.TrimSpace(newCfg.Dispatch.Latency)),
			logx.Int("dispatch.fail_every", newCfg.Dispatch.FailEvery),
			logx.Int("dispatch.rate_count", len(newCfg.Dispatch.Rates)),
		)
		if names := ratedPlatforms(newCfg.Dispatch.Rates); len(names) > 0 {
			attrs = append(attrs, logx.String("dispatch.rated", strings.Join(names, ",")))
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", strings.TrimSpace(newCfg.Logging.Level)),
			logx.String("logging.format", strings.TrimSpace(newCfg.Logging.Format)),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	return changed, attrs
}

func ratedPlatforms(rates map[string]RateLimitConfig) []string {
	if len(rates) == 0 {
		return nil
	}
	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package app assembles the daemon: config, logging, the post log, the
// timetable, dispatchers, the scheduling engine, and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"postpilot/internal/config"
	"postpilot/internal/dispatch"
	"postpilot/internal/eventbus"
	"postpilot/internal/httpapi"
	"postpilot/internal/post"
	"postpilot/internal/postlog"
	"postpilot/internal/scheduler"
	"postpilot/internal/timetable"
	logx "postpilot/pkg/logx"
)

// Options adjust construction beyond the config file.
type Options struct {
	Version string
	// ForceDryRun pins dispatchers to simulation regardless of config.
	ForceDryRun bool
}

type App struct {
	cfgPath string
	opts    Options

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store postlog.Store
	table *timetable.TimeTable
	reg   *dispatch.Registry

	engine *scheduler.Service
	api    *httpapi.Server
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	table, err := timetable.New(mapTimetableConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("timetable: %w", err)
	}

	plCfg, err := mapPostLogConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := postlog.Open(plCfg, logSvc.Logger().With(logx.String("comp", "postlog")))
	if err != nil {
		return nil, fmt.Errorf("open post log: %w", err)
	}

	// Dispatchers stay simulated: live platform integrations plug in
	// through the same Dispatcher interface.
	dryOpts, err := mapDryRunOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Dispatch.DryRun != nil && !*cfg.Dispatch.DryRun && !opts.ForceDryRun {
		log.Warn("dispatch.dry_run=false but no live integrations are bundled; dispatch stays simulated")
	}
	rates, err := rateConfigs(cfg)
	if err != nil {
		return nil, err
	}
	dispatchLog := logSvc.Logger().With(logx.String("comp", "dispatch"))
	reg := dispatch.NewRegistry(dispatchLog)
	for _, p := range post.Platforms() {
		reg.Register(dispatch.NewDryRun(p, dryOpts, dispatchLog), rates[p])
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()
	engine := scheduler.New(engCfg, scheduler.Deps{
		Store:    store,
		Table:    table,
		Registry: reg,
		Bus:      bus,
		Log:      logSvc.Logger().With(logx.String("comp", "engine")),
	})

	var api *httpapi.Server
	if cfg.Server.Enabled {
		srvCfg, err := mapServerConfig(cfg)
		if err != nil {
			return nil, err
		}
		api = httpapi.New(srvCfg, engine, logSvc.Logger().With(logx.String("comp", "http")))
	}

	return &App{
		cfgPath: cfgPath,
		opts:    opts,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		table:   table,
		reg:     reg,
		engine:  engine,
		api:     api,
	}, nil
}

// Engine exposes the scheduling engine for the API and tests.
func (a *App) Engine() *scheduler.Service { return a.engine }

// Config returns the current committed config snapshot.
func (a *App) Config() *Config { return a.cfgm.Get() }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		// Deep checks the syntactic validator can't do.
		if _, err := timetable.New(mapTimetableConfig(cfg)); err != nil {
			return err
		}
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapServerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPostLogConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDryRunOptions(cfg); err != nil {
			return err
		}
		_, err := rateConfigs(cfg)
		return err
	})

	if err := a.engine.Start(); err != nil {
		return err
	}

	if a.api != nil {
		a.sup.Go("http.serve", func(context.Context) error {
			return a.api.Start()
		})
	}

	// Lifecycle events surface in the logs at debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event",
					logx.String("type", string(e.Type)),
					logx.String("post_id", e.PostID),
					logx.String("platform", string(e.Platform)),
					logx.String("status", string(e.Status)),
				)
			}
		}
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest snapshot.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg, last)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("version", a.opts.Version))
	return nil
}

// applyConfig hot-applies what can change at runtime (log level/format,
// dispatch rates) and flags the sections that need a restart.
func (a *App) applyConfig(newCfg, last *Config) {
	sections, attrs := SummarizeConfigChange(last, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Debug("config change summary",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	a.logs.Apply(mapLogConfig(newCfg))

	if rates, err := rateConfigs(newCfg); err != nil {
		a.log.Warn("invalid dispatch rates; keeping previous", logx.Err(err))
	} else {
		for _, p := range a.reg.Platforms() {
			a.reg.SetRate(p, rates[p]) // zero value clears pacing
		}
	}

	if last != nil && (last.Dispatch.Latency != newCfg.Dispatch.Latency ||
		last.Dispatch.FailEvery != newCfg.Dispatch.FailEvery ||
		!eqBoolPtr(last.Dispatch.DryRun, newCfg.Dispatch.DryRun)) {
		a.log.Warn("dispatcher simulation settings apply on restart")
	}
	for _, s := range sections {
		switch s {
		case "server", "post_log", "timetable", "engine":
			a.log.Warn("config section needs a restart to take effect", logx.String("section", s))
		}
	}

	a.log.Info("config reloaded",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run one shutdown step with an upper bound so a single component
	// can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	if a.api != nil {
		step("http", 5*time.Second, a.api.Shutdown)
	}
	step("engine", 10*time.Second, func(context.Context) error {
		err := a.engine.Stop()
		if errors.Is(err, scheduler.ErrNotRunning) {
			return nil
		}
		return err
	})
	step("postlog", 2*time.Second, func(context.Context) error {
		return a.store.Close()
	})
	step("supervisor", 3*time.Second, func(c context.Context) error {
		return a.sup.Wait(c)
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func eqBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

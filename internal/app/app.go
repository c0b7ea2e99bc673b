package app

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/observe"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/systemd"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Options tune NewApp.
type Options struct {
	// AllowMissingConfig runs from defaults and the environment when the
	// config file does not exist.
	AllowMissingConfig bool
	// TestMode forces the log channel, as TEST_MODE=true does.
	TestMode bool
	// Lookup replaces os.LookupEnv.
	Lookup config.LookupFunc
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	reg     *prometheus.Registry
	metrics *observe.Metrics
	server  *observe.Server
	sched   *scheduler.Service

	mu     sync.Mutex
	runner *Runner

	stopObserve func()
}

func NewApp(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.AllowMissing(opts.AllowMissingConfig)
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if opts.TestMode {
		base := lookup
		lookup = func(k string) (string, bool) {
			if k == config.EnvTestMode {
				return "true", true
			}
			return base(k)
		}
	}
	cfgm.SetLookup(lookup)

	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := openStore(cfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		store:   store,
		reg:     reg,
		metrics: observe.MustNewMetrics(reg),
	}
	runner, err := a.buildRunner(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = runner
	return a, nil
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	return st, nil
}

func (a *App) buildRunner(cfg *config.Config) (*Runner, error) {
	ncfg, timeout, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	loc := cfg.Location()
	ch, err := notifier.Open(ncfg, loc, a.log.With(logx.String("comp", "notifier")))
	if err != nil {
		return nil, err
	}
	if cfg.Notifier.TestMode {
		a.log.Warn("test mode: reminders are logged, not delivered")
	}
	return &Runner{
		Store:       a.store,
		Channel:     ch,
		Loc:         loc,
		Bus:         a.bus,
		Metrics:     a.metrics,
		Log:         a.log.With(logx.String("comp", "run")),
		SendTimeout: timeout,
		Probe:       cfg.Notifier.Probe,
		Backup:      BackupConfig{Enabled: cfg.Backup.Enabled, Dir: cfg.Backup.Dir},
	}, nil
}

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Store() storage.Store { return a.store }

func (a *App) Logger() logx.Logger { return a.log }

// Runner returns the runner built from the current config.
func (a *App) Runner() *Runner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runner
}

// RunOnce performs one run with the current config.
func (a *App) RunOnce(ctx context.Context) (Summary, error) {
	return a.Runner().RunOnce(ctx)
}

// Start launches the daemon: scheduler, config watcher, metrics endpoint.
func (a *App) Start(ctx context.Context, runNow bool) error {
	cfg := a.cfgm.Get()
	spec, err := scheduler.ParseSchedule(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(validateReload)
	a.stopObserve = observe.Attach(a.sup.Context(), a.bus, a.metrics, a.log)

	a.sched = scheduler.New(spec, cfg.Location(), a.scheduledRun, a.log)
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.server = observe.NewServer(mapServerConfig(cfg), a.reg, a.log)
	a.server.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.GoRestart("systemd.watchdog", systemd.Watchdog, rtsup.WithMaxRestarts(3))

	if runNow {
		a.sup.Go("run.initial", func(c context.Context) error {
			a.sched.RunNow()
			return nil
		})
	}

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("daemon started", logx.String("schedule", spec.Cron), logx.Time("next", a.sched.Next()))
	return nil
}

func (a *App) scheduledRun(ctx context.Context) error {
	sum, err := a.RunOnce(ctx)
	if err != nil {
		return err
	}
	_, _ = systemd.Status(fmt.Sprintf("last run %s: %d due, %d sent, %d failed",
		sum.Today.Format("2006-01-02"), sum.Due, sum.Sent, sum.Failed))
	return nil
}

// Done is closed when the daemon context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error of the daemon, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			_, _ = systemd.Reloading()
			a.applyConfig(ctx, newCfg, sections)
			lastApplied = newCfg
			_, _ = systemd.Ready()

			fields := append([]logx.Field{logx.Strs("changed", sections)}, attrs...)
			a.log.Info("config applied", fields...)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, newCfg *config.Config, sections []string) {
	changed := func(name string) bool { return slices.Contains(sections, name) }

	if changed("logging") {
		a.logs.Apply(mapLogConfig(newCfg))
	}
	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if changed("schedule") || changed("timezone") {
		spec, err := scheduler.ParseSchedule(newCfg.Schedule)
		if err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
		} else if err := a.sched.Apply(spec, newCfg.Location()); err != nil {
			a.log.Warn("schedule not applied", logx.Err(err))
		}
	}
	if changed("notifier") || changed("timezone") || changed("backup") {
		r, err := a.buildRunner(newCfg)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			a.mu.Lock()
			a.runner = r
			a.mu.Unlock()
		}
	}
	if changed("metrics") {
		a.server.Reconfigure(ctx, mapServerConfig(newCfg))
	}
}

// Stop shuts the daemon down. Each step is bounded so one component cannot
// stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.Close()
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(stepCtx)
		}()
		select {
		case <-done:
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	if a.sched != nil {
		step("scheduler", 30*time.Second, func(c context.Context) { a.sched.Stop(c) })
	}
	if a.server != nil {
		step("metrics", 2*time.Second, func(c context.Context) { a.server.Stop(c) })
	}
	step("supervisor", 2*time.Second, func(c context.Context) { _ = a.sup.Wait(c) })
	if a.stopObserve != nil {
		a.stopObserve()
	}
	a.log.Info("stopped")
	a.Close()
	return nil
}

// Close releases the store and log sinks.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
		a.logs = nil
	}
}

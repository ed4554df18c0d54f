package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"waketimer/internal/config"
	"waketimer/internal/eventbus"
	"waketimer/internal/power"
	"waketimer/internal/runtime/supervisor"
	"waketimer/internal/storage"
	"waketimer/internal/timer"
	logx "waketimer/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sd    serviceManager

	monitor *power.Monitor
	source  power.Source
	timers  *timerSet
	wd      *timer.Timer
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogConfig())
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	monitor := power.NewMonitor(
		power.WithLogger(log.With(logx.String("comp", "power"))),
		power.WithBus(bus),
	)
	pctx := power.NewContext(power.Resume)
	pctx.SetIgnoreStatusChange(cfg.Power.IgnoresStatusChange())
	monitor.Configure(pctx)

	sc, err := cfg.Power.SourceConfig()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	source, err := power.NewSource(sc, log.With(logx.String("comp", "power")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	// Storage (optional)
	store, err := OpenStore(cfg, log)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		store = nil
	case err != nil:
		_ = logSvc.Close()
		return nil, err
	default:
		log.Info("storage enabled", logx.String("driver", cfg.StorageDriver()))
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sd:      systemdManager{},
		monitor: monitor,
		source:  source,
		timers:  newTimerSet(log.With(logx.String("comp", "timer")), monitor, bus),
	}, nil
}

// Monitor exposes the power monitor, e.g. for manual Notify.
func (a *App) Monitor() *power.Monitor { return a.monitor }

// Timers returns a snapshot of every configured timer, sorted by name.
func (a *App) Timers() []timer.Snapshot { return a.timers.snapshot() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, err := cfg.EnabledTimers()
		return err
	})

	a.sup.GoRestart("power.source", func(c context.Context) error {
		return a.monitor.Run(c, a.source)
	}, supervisor.WithRestartBackoff(time.Second, time.Minute))

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, timer.EventRound, power.EventModeChanged)
		j := newJournal(a.store, a.log.With(logx.String("comp", "journal")))
		a.sup.Go("journal", func(c context.Context) error {
			defer unsub()
			return j.run(c, events)
		})
	}

	specs, err := a.cfgm.Get().EnabledTimers()
	if err != nil {
		return err
	}
	a.timers.apply(runCtx, specs)

	a.wd = startWatchdog(a.sd, a.monitor, a.log.With(logx.String("comp", "watchdog")))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	notify(a.log, "ready", a.sd.Ready)
	a.status()
	a.log.Info("app started", logx.Int("timers", a.timers.len()), logx.String("power_source", a.source.Name()))
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, td := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	notify(a.log, "reloading", a.sd.Reloading)
	defer notify(a.log, "ready", a.sd.Ready)

	a.logs.Apply(newCfg.LogConfig())

	for _, s := range sections {
		switch s {
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "power":
			a.monitor.Context().SetIgnoreStatusChange(newCfg.Power.IgnoresStatusChange())
			if !strings.EqualFold(strings.TrimSpace(oldCfg.Power.Source), strings.TrimSpace(newCfg.Power.Source)) {
				a.log.Warn("power source changed; restart required for changes to take effect")
			}
		case "timers":
			specs, err := newCfg.EnabledTimers()
			if err != nil {
				a.log.Warn("invalid timers config; keeping previous", logx.Err(err))
				continue
			}
			a.timers.apply(ctx, specs)
			a.status()
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if !td.Empty() {
		a.log.Debug("timer changes", logx.Strs("added", td.Added), logx.Strs("removed", td.Removed), logx.Strs("changed", td.Changed))
	}
}

func (a *App) status() {
	msg := fmt.Sprintf("%d timers, power %s", a.timers.len(), a.monitor.CurrentMode())
	notify(a.log, "status", func() (bool, error) { return a.sd.Status(msg) })
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notify(a.log, "stopping", a.sd.Stopping)

	// Timers first so no new rounds start while the rest unwinds.
	a.timers.closeAll()
	if a.wd != nil {
		_ = a.wd.Close()
	}

	// Cancel the run context; running commands are killed through it.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			// fn must honor stepCtx; if it doesn't, note it and move on.
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Supervised goroutines (journal drain, config watch/reload, power source).
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

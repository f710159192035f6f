// Package app wires the configuration, storage, supla-server client and the
// execution engine into one process with config hot-reload.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lesny8/supla-cloud/internal/config"
	"github.com/lesny8/supla-cloud/internal/dispatch"
	"github.com/lesny8/supla-cloud/internal/eventbus"
	"github.com/lesny8/supla-cloud/internal/manager"
	"github.com/lesny8/supla-cloud/internal/runtime/supervisor"
	"github.com/lesny8/supla-cloud/internal/services/scheduler"
	"github.com/lesny8/supla-cloud/internal/storage"
	"github.com/lesny8/supla-cloud/internal/supla"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

type App struct {
	cfgMgr *config.ConfigManager
	logSvc *logx.Service
	log    logx.Logger

	store     *storage.Store
	directory *supla.Directory
	server    supla.Server
	bus       eventbus.Bus
	manager   *manager.Manager
	engine    *scheduler.Service

	sup     *supervisor.Supervisor
	cfgSub  chan *config.Config
	stopped chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewConfigManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))
	cfgMgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		if err := c.Validate(); err != nil {
			return err
		}
		_, err := scheduler.ParseConfig(c.Scheduler)
		return err
	})

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	suplaTimeout, err := config.ParseDurationField("supla.timeout", cfg.Supla.Timeout)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	directory := supla.NewDirectory()
	server := supla.NewClient(cfg.Supla.SocketPath, suplaTimeout, log.With(logx.String("comp", "supla")))
	bus := eventbus.New()

	dispatchTimeout, err := config.ParseDurationField("scheduler.dispatch_timeout", cfg.Scheduler.DispatchTimeout)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dispatcher := dispatch.New(dispatch.Config{
		Timeout:    dispatchTimeout,
		RatePerSec: cfg.Scheduler.RatePerSec,
	}, directory, server, store, log.With(logx.String("comp", "dispatch")))

	sweepWindow, err := config.ParseDurationField("scheduler.sweep_window", cfg.Scheduler.SweepWindow)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	refillWindow, err := config.ParseDurationField("scheduler.refill_window", cfg.Scheduler.RefillWindow)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	mgr := manager.New(manager.Config{
		GenerationWindow: refillWindow,
		SweepWindow:      sweepWindow,
		DefaultTimezone:  cfg.Scheduler.Timezone,
	}, store, directory, directory, bus, log.With(logx.String("comp", "manager")))

	engineCfg, err := scheduler.ParseConfig(cfg.Scheduler)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engine := scheduler.New(engineCfg, store, dispatcher, mgr, log.With(logx.String("comp", "engine")))

	return &App{
		cfgMgr:    cfgMgr,
		logSvc:    logSvc,
		log:       log,
		store:     store,
		directory: directory,
		server:    server,
		bus:       bus,
		manager:   mgr,
		engine:    engine,
		stopped:   make(chan struct{}),
	}, nil
}

// Directory exposes the subject registry for embedding callers that populate
// channels and groups at runtime.
func (a *App) Directory() *supla.Directory { return a.directory }

func (a *App) Manager() *manager.Manager { return a.manager }

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	a.sup.GoRestart("config.watch", func(ctx context.Context) error {
		return a.cfgMgr.Watch(ctx)
	}, supervisor.WithStopOnCleanExit(true))

	a.cfgSub = a.cfgMgr.Subscribe(4)
	a.sup.Go0("config.apply", a.applyLoop)

	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	} else {
		a.log.Info("engine disabled by config")
	}
	return nil
}

// applyLoop reacts to hot-reloaded configs: logging is swapped live, engine
// tunables are applied, and the enabled flag starts/stops the engine.
func (a *App) applyLoop(ctx context.Context) {
	old := a.cfgMgr.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok || cfg == nil {
				return
			}
			changed, attrs := config.SummarizeConfigChange(old, cfg)
			if len(changed) > 0 {
				a.log.Info("config reloaded", append(attrs,
					logx.String("sections", strings.Join(changed, ",")))...)
			}

			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig(cfg.Logging.File),
			})

			engineCfg, err := scheduler.ParseConfig(cfg.Scheduler)
			if err != nil {
				// Validator should have rejected this before publish.
				a.log.Warn("reloaded scheduler config rejected", logx.Err(err))
				old = cfg
				continue
			}
			wasEnabled := a.engine.Enabled()
			a.engine.Apply(engineCfg)
			switch {
			case engineCfg.Enabled && !wasEnabled:
				a.engine.Start(ctx)
			case !engineCfg.Enabled && wasEnabled:
				a.engine.Stop(ctx)
			}
			old = cfg
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	defer close(a.stopped)

	stopCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	a.engine.Stop(stopCtx)
	if a.cfgSub != nil {
		a.cfgMgr.Unsubscribe(a.cfgSub)
	}
	var err error
	if a.sup != nil {
		err = a.sup.Stop(stopCtx)
	}
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("shutdown complete")
	return err
}

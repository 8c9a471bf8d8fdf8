package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"trackcast/internal/broadcast"
	"trackcast/internal/command"
	"trackcast/internal/config"
	"trackcast/internal/eventbus"
	"trackcast/internal/gamehost"
	"trackcast/internal/host/mainloop"
	rtsup "trackcast/internal/runtime/supervisor"
	"trackcast/internal/storage"
	"trackcast/internal/tracker"
	kit "trackcast/internal/transport"
	telegram "trackcast/internal/transport/telegram/adapter"
	"trackcast/internal/transport/telegram/router"
	logx "trackcast/pkg/logx"
	"trackcast/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	loop       *mainloop.Loop
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	tasks      *mainloop.Tasks

	server  *gamehost.Server
	console *gamehost.Console
	tracker *tracker.Tracker
	disp    *command.Dispatcher

	// nil when telegram is disabled
	adapter kit.Adapter
	router  *router.Router
	mirror  *router.Mirror

	listen  string
	updates chan kit.Message
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validate)
	cfg, created, err := cfgm.LoadOrInit()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))
	if created {
		log.Info("wrote default config", logx.String("path", cfgPath))
	}

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	loop := mainloop.New(512, log.With(logx.String("comp", "mainloop")))
	tasks := mainloop.NewTasks(loop, log.With(logx.String("comp", "tasks")))

	server := gamehost.New(gamehost.Config{
		Listen:     cfg.Server.Listen,
		Operators:  cfg.Server.Operators,
		SpawnWorld: cfg.Server.SpawnWorld,
	}, loop, nil, bus, log)

	sinks := broadcast.Fanout{server}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		loop:    loop,
		tasks:   tasks,
		server:  server,
		listen:  cfg.Server.Listen,
		updates: make(chan kit.Message, 64),
	}

	if cfg.Telegram.Enabled {
		timeout, err := pollTimeout(cfg)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: timeout,
		}, log)
		if err != nil {
			return nil, err
		}
		a.adapter = ad
		if raw := strings.TrimSpace(cfg.Telegram.BroadcastChat); raw != "" {
			to, err := router.ParseChatTarget(raw)
			if err != nil {
				return nil, err
			}
			a.mirror = router.NewMirror(ad, to, cfg.Telegram.RatePerSec, log)
			sinks = append(sinks, a.mirror)
		}
	}

	if cfg.Server.Console {
		a.console = gamehost.NewConsole(loop, nil, server, os.Stdin, os.Stdout, log)
		sinks = append(sinks, a.console)
	}

	a.tracker = tracker.New(tracker.Deps{
		Config:   cfgm,
		Resolver: server,
		Tasks:    tasks,
		Sink:     sinks,
		Audit:    store,
		Bus:      bus,
		Log:      log,
	})
	a.disp = command.New(a.tracker, log)
	server.SetDispatcher(a.disp)
	if a.console != nil {
		a.console.SetDispatcher(a.disp)
	}
	if a.adapter != nil {
		a.router = router.New(a.adapter, loop, a.disp, store, cfg.Telegram.OwnerUserIDs, log)
	}
	return a, nil
}

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
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// The loop outlives the supervisor so shutdown steps can still post to it.
	loopCtx, cancel := context.WithCancel(context.Background())
	a.loopCancel = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		_ = a.loop.Run(loopCtx)
	}()
	a.tasks.Start()

	var initErr error
	if err := a.loop.Do(ctx, func() { initErr = a.tracker.Init() }); err != nil {
		return err
	}
	if initErr != nil {
		return fmt.Errorf("tracker init: %w", initErr)
	}

	a.sup.Go("gamehost", func(c context.Context) error {
		return a.server.ListenAndServe(c, a.listen)
	})
	if a.console != nil {
		a.sup.Go("console", a.console.Run)
	}

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		a.sup.Go("telegram.router", func(c context.Context) error {
			return a.router.Run(c, a.updates)
		})
		if a.mirror != nil {
			a.sup.Go("telegram.mirror", a.mirror.Run)
		}
		if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
			a.sup.Go("telegram.menu", func(c context.Context) error {
				mctx, cancel := context.WithTimeout(c, 10*time.Second)
				defer cancel()
				if err := mu.UpdateMenuCommands(mctx, router.Commands()); err != nil {
					a.log.Warn("menu update failed", logx.Err(err))
				}
				return nil
			})
		}
	}

	// Optional: log events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", systemd.Watchdog)

	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	a.log.Info("app started", logx.String("listen", a.listen), logx.Bool("telegram", a.adapter != nil))
	return nil
}

// reloadLoop applies committed external edits. Tracker and host state are
// changed on the main loop; logging and Telegram owners are changed here.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if restart := config.RestartOnly(sections); len(restart) > 0 {
				a.log.Warn("config change needs a restart to take effect", logx.Strs("sections", restart))
			}

			a.logs.Apply(logConfig(newCfg))
			if a.router != nil {
				a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)
			}
			err := a.loop.Do(c, func() {
				a.tracker.Apply(newCfg)
				a.server.SetOperators(newCfg.Server.Operators)
			})
			if err != nil {
				a.log.Warn("config reload not applied", logx.Err(err))
				return
			}
			a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})

			if len(sections) > 0 {
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			} else {
				a.log.Info("config reloaded (no changes)")
			}
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Players and tracker state first, while the loop and sockets are still up.
	step("players", time.Second, func(c context.Context) error {
		return a.loop.Do(c, func() { a.server.Kick("Server closing.") })
	})
	step("tracker", 2*time.Second, func(c context.Context) error {
		var closeErr error
		if err := a.loop.Do(c, func() { closeErr = a.tracker.Close() }); err != nil {
			return err
		}
		return closeErr
	})
	step("tasks", time.Second, func(c context.Context) error { a.tasks.Stop(c); return nil })

	a.sup.Cancel()
	step("adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	// Wait for supervised goroutines (host, console, config watch/reload, router).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("mainloop", time.Second, func(c context.Context) error {
		a.loopCancel()
		select {
		case <-a.loopDone:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Uint64("events_dropped", a.bus.Dropped()))
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

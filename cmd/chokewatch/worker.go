// This file contains the worker subcommand: the background process that
// receives push events and decides whether each alert is shown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chokewatch/internal/cache"
	"chokewatch/internal/config"
	"chokewatch/internal/logging"
	"chokewatch/internal/notify"
	"chokewatch/internal/prefs"
	"chokewatch/internal/push"
	"chokewatch/internal/worker"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	drainTimeout           = 10 * time.Second
	defaultTakeoverTimeout = 20 * time.Second
)

const workerHelpText = `chokewatch worker - Run the alert worker

USAGE:
    chokewatch worker [OPTIONS]

OPTIONS:
    --addr ADDR        HTTP ingress address (default from config)
    --no-http          Disable the HTTP ingress
    --redis            Also receive alerts from Redis pub/sub
    --log-level LEVEL  Override the configured log level
    -h, --help         Show this help message

DESCRIPTION:
    Installs and immediately activates a new worker instance. The new
    instance never waits for a running one: it purges stale caches, takes
    control in ~/.chokewatch/worker.json and the previous worker notices,
    releases the HTTP address, finishes the alerts it is handling and
    exits. If the new worker cannot bind the address within
    worker.takeover_timeout, it exits and hands control back.

    Each alert is checked against the stored quiet hours. Alerts that arrive
    inside the window are closed without being shown; all others are shown
    exactly as delivered. When the quiet hours cannot be read, alerts are
    shown.

INGRESS:
    POST /v1/push      {"notification": {"title": "...", "options": {...}}}
    GET  /v1/status    Worker version, state and decision counts
    GET  /healthz      Liveness
`

// workerStatus is served on GET /v1/status.
type workerStatus struct {
	ID         string         `json:"id"`
	Version    string         `json:"version"`
	State      worker.State   `json:"state"`
	Superseded bool           `json:"superseded"`
	Controller string         `json:"controller"`
	Decisions  worker.Counts  `json:"decisions"`
	Dispatch   push.Stats     `json:"dispatch"`
	Started    time.Time      `json:"started"`
	Quiet      *quietSnapshot `json:"quiet_hours,omitempty"`
}

type quietSnapshot struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

// runWorker handles the "chokewatch worker" subcommand.
func runWorker(args []string) {
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	addr := fs.String("addr", "", "HTTP ingress address")
	noHTTP := fs.Bool("no-http", false, "disable the HTTP ingress")
	useRedis := fs.Bool("redis", false, "receive alerts from Redis pub/sub")
	level := fs.String("log-level", "", "log level")
	parseFlags(fs, workerHelpText, args)

	cfg := loadConfig()
	if *addr != "" {
		cfg.Push.HTTP.Addr = *addr
	}
	if *noHTTP {
		cfg.Push.HTTP.Enabled = false
	}
	if *useRedis {
		cfg.Push.Redis.Enabled = true
	}
	if *level != "" {
		cfg.Log.Level = *level
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.LogFile(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		fatalf("%v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serveWorker(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("worker stopped")
		closer.Close()
		os.Exit(1)
	}
}

// serveWorker wires the worker and blocks until ctx ends or another worker
// takes control.
func serveWorker(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	if !cfg.Push.HTTP.Enabled && !cfg.Push.Redis.Enabled {
		return errors.New("no ingress enabled: enable push.http or push.redis")
	}

	dataDir := cfg.GetDataDir()
	ver := workerVersion(cfg)

	var rdb *redis.Client
	if cfg.Push.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Push.Redis.Addr,
			Password: cfg.Push.Redis.Password,
			DB:       cfg.Push.Redis.DB,
		})
		defer rdb.Close()
	}

	var purgers []cache.Purger
	if cfg.Cache.DirEnabled {
		purgers = append(purgers, cache.NewDirCache(filepath.Join(dataDir, "cache")))
	}
	if cfg.Push.Redis.Enabled && cfg.Cache.RedisPrefix != "" {
		purgers = append(purgers, cache.NewRedisCache(rdb, cfg.Cache.RedisPrefix))
	}

	store := prefs.New(prefs.Path(dataDir), prefs.RoleReadOnly, prefs.WithLogger(logger))
	defer store.Close()

	notifier := notify.New(cfg.Notifications.AppName, cfg.Notifications.Sound)
	if !notifier.IsSupported() {
		logger.Warn("desktop notifications are not supported here; alerts will be logged only")
	}
	registration := push.NewRegistration(notifier)

	registry := worker.NewRegistry(worker.RegistryPath(dataDir))
	lifecycle := worker.NewLifecycle(worker.LifecycleOptions{
		Version:     ver,
		Registry:    registry,
		Purgers:     purgers,
		PurgeCaches: cfg.Worker.PurgeCaches,
		Logger:      logger,
	})

	interceptor := worker.NewInterceptor(store, registration,
		worker.WithLookupTimeout(cfg.Worker.LookupTimeoutDuration()),
		worker.WithLogger(logger),
	)
	dispatcher := push.NewDispatcher(interceptor, registration, lifecycle, logger)

	started := time.Now()
	status := func() any {
		st := workerStatus{
			ID:         lifecycle.ID(),
			Version:    lifecycle.Version(),
			State:      lifecycle.State(),
			Superseded: lifecycle.Superseded(),
			Decisions:  interceptor.Counts(),
			Dispatch:   dispatcher.Stats(),
			Started:    started,
		}
		if snap, err := registry.Load(); err == nil {
			st.Controller = snap.Controller
		}
		if w, ok := store.Get(context.Background()); ok {
			st.Quiet = &quietSnapshot{Start: w.Start, End: w.End, Label: w.String()}
		}
		return st
	}

	if err := lifecycle.Start(ctx); err != nil {
		_ = lifecycle.Retire()
		return fmt.Errorf("start worker: %w", err)
	}
	logger.WithFields(log.Fields{
		"worker":  lifecycle.ID(),
		"version": ver,
		"store":   store.Path(),
	}).Info("worker running")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if cfg.Push.HTTP.Enabled {
		srv := push.NewServer(cfg.Push.HTTP.Addr, dispatcher, status, logger)
		wait := cfg.Worker.TakeoverTimeoutDuration()
		if wait == 0 {
			wait = defaultTakeoverTimeout
		}
		g.Go(func() error { return srv.Run(gctx, wait) })
	}
	if cfg.Push.Redis.Enabled {
		src := push.NewRedisSource(rdb, cfg.Push.Redis.Channel, dispatcher, logger)
		g.Go(func() error { return src.Run(gctx) })
	}
	g.Go(func() error {
		err := lifecycle.WatchSupersession(gctx, func(worker.Instance) {
			cancel()
		})
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	runErr := g.Wait()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if err := dispatcher.Drain(drainCtx); err != nil {
		logger.WithError(err).Warn("in-flight alerts did not settle")
	}
	if err := lifecycle.Retire(); err != nil {
		logger.WithError(err).Warn("could not remove worker from registry")
	}

	counts := interceptor.Counts()
	logger.WithFields(log.Fields{
		"shown":      counts.Shown,
		"suppressed": counts.Suppressed,
		"ignored":    counts.Ignored,
		"superseded": lifecycle.Superseded(),
	}).Info("worker exited")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hum-tech/tsoam/internal/adapter"
	"github.com/hum-tech/tsoam/internal/adapter/remote"
	"github.com/hum-tech/tsoam/internal/connectivity"
	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/hum-tech/tsoam/internal/service"
	"github.com/hum-tech/tsoam/internal/store"
)

const initialProbeTimeout = 5 * time.Second

// app holds the wired coordinator and everything it owns.
type app struct {
	svc    *service.OfflineService
	store  domain.DurableStore
	prober *connectivity.Prober // nil when forced offline
	logger *slog.Logger
}

// newApp opens the store, builds the API client and connectivity source,
// and creates the offline service. A store that cannot be opened leaves
// the service running without an offline cache.
func newApp(ctx context.Context, cfg *adapter.Config, offline bool, logger *slog.Logger) (*app, error) {
	client, err := remote.NewClientFromConfig(&cfg.API, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		logger.Warn("failed to open offline store", "driver", cfg.Store.Driver, "path", cfg.Store.Path, "error", err)
		st = nil
	}

	a := &app{store: st, logger: logger}

	var conn domain.ConnectivityObserver
	if offline || cfg.API.StartOffline {
		conn = connectivity.NewManual(false)
	} else {
		a.prober = connectivity.NewProber(client, cfg.API.ProbePath, cfg.API.ProbeInterval, logger)
		probeCtx, cancel := context.WithTimeout(ctx, initialProbeTimeout)
		a.prober.Probe(probeCtx)
		cancel()
		conn = a.prober
	}
	if cfg.API.WatchTokenFile && cfg.API.TokenFile != "" {
		conn = connectivity.NewTokenWatcher(conn, cfg.API.TokenFile, logger)
	}

	registry := domain.NewModuleRegistry(cfg.Modules)
	warmer := remote.NewWarmer(client, registry, logger)

	a.svc = service.NewOfflineService(service.Options{
		Store:        st,
		Remote:       client,
		Connectivity: conn,
		CacheWorker:  warmer,
		Registry:     registry,
		Logger:       logger,
		Interval:     cfg.Sync.Interval,
		MaxRetries:   cfg.Sync.MaxRetries,
		GCAge:        cfg.Sync.GCAge,
		GCMinRetries: cfg.Sync.GCMinRetries,
	})
	warmer.SetSink(a.svc)

	return a, nil
}

// run drives probing and the sync loop until ctx is cancelled. svc.Run
// re-reads the connectivity state after subscribing, so a transition the
// prober publishes first is not lost.
func (a *app) run(ctx context.Context) error {
	if a.prober != nil {
		go a.prober.Run(ctx)
	}
	return a.svc.Run(ctx)
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// withApp builds the app for one command and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx, cfg, forceOffline, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close offline store", "error", err)
		}
	}()
	return fn(a)
}

// Command dashboard-api serves per-deployment user analytics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/dashboard-api/internal/adapters/http/api"
	"github.com/okian/dashboard-api/internal/adapters/http/server"
	"github.com/okian/dashboard-api/internal/adapters/http/site"
	"github.com/okian/dashboard-api/internal/adapters/http/swagger"
	"github.com/okian/dashboard-api/internal/adapters/repository"
	service "github.com/okian/dashboard-api/internal/app"
	"github.com/okian/dashboard-api/internal/config"
	"github.com/okian/dashboard-api/pkg/logger"
	"github.com/okian/dashboard-api/pkg/metrics"
)

const (
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		if errors.Is(err, server.ErrBind) || errors.Is(err, server.ErrPrivilege) {
			logger.Get().Error(ctx, "cannot bind listener", logger.Error(err))
		} else {
			logger.Get().Error(ctx, "dashboard-api failed", logger.Error(err))
		}
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run loads configuration, wires the service and serves until ctx is done.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet.
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		return err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	initMetrics(cfg)

	store, err := repository.Open(ctx, repository.Settings{
		Driver:        cfg.StoreDriver,
		PostgresDSN:   cfg.PostgresDSN,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	log.Info(ctx, "event store opened", logger.String("driver", cfg.StoreDriver))

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithStore(store),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithDefaultRangeDays(cfg.DefaultRangeDays),
		service.WithMaxRecentSignups(cfg.MaxRecentSignupsLimit),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "service shutdown failed", logger.Error(err))
		}
	}()

	srv := server.New(cfg.Addr, newHandler(cfg, svc),
		server.WithReadTimeout(cfg.ReadTimeout()),
		server.WithReadHeaderTimeout(cfg.ReadHeaderTimeout()),
		server.WithWriteTimeout(cfg.WriteTimeout()),
		server.WithIdleTimeout(cfg.IdleTimeout()),
		server.WithShutdownTimeout(cfg.ShutdownTimeout()),
		server.WithLogger(log.Named("http")),
	)
	if err := srv.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		runMetricsUpdater(gctx, svc)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}

// initMetrics rebuilds the global recorders with the configured naming.
func initMetrics(cfg *config.Config) {
	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsLatencyBucketsMS),
		metrics.WithConstLabels(cfg.MetricsConstLabels),
	)
}

// newHandler builds the router with the API, docs and dashboard routes.
func newHandler(cfg *config.Config, svc *service.Service) http.Handler {
	return api.NewServer(svc, svc,
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithMaxRecentSignupsLimit(cfg.MaxRecentSignupsLimit),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
		api.WithMount(swagger.Register),
		api.WithMount(site.Register),
		api.WithLogger(logger.Named("api")),
	).Handler()
}

// runMetricsUpdater refreshes system and service gauges until ctx is done.
func runMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
			st := svc.Status(ctx)
			metrics.UpdateWorkerCount(st.WorkerCount)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

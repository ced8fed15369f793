package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/raidx/scorer/internal/archive"
	"github.com/raidx/scorer/internal/auth"
	"github.com/raidx/scorer/internal/config"
	"github.com/raidx/scorer/internal/httpapi"
	"github.com/raidx/scorer/internal/hub"
	"github.com/raidx/scorer/internal/metrics"
	"github.com/raidx/scorer/internal/session"
	"github.com/raidx/scorer/internal/store"
	"github.com/raidx/scorer/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	snapshots, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, snapshots.Close()) }()

	sessCfg := session.Config{
		Store:        snapshots,
		Logger:       log,
		Metrics:      m,
		IdleTimeout:  cfg.SessionIdleTimeout,
		StoreTimeout: cfg.StoreTimeout,
	}
	if cfg.DatabaseURL != "" {
		ar, aerr := archive.Open(ctx, cfg.DatabaseURL)
		if aerr != nil {
			return fmt.Errorf("open archive: %w", aerr)
		}
		defer func() { err = multierr.Append(err, ar.Close()) }()
		sessCfg.Archive = ar
		log.Info("match archive enabled")
	}

	h := hub.NewHub(ctx, sessCfg)
	gateway := ws.NewGateway(h, snapshots, auth.NewVerifier(cfg.JWTSecret), log, m, ws.Options{
		OriginPatterns: cfg.WSOriginPatterns,
		RateLimit:      rate.Limit(cfg.WSRateLimit),
		RateBurst:      cfg.WSRateBurst,
		OutboxSize:     cfg.OutboxSize,
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:      h,
			Store:    snapshots,
			Gateway:  gateway,
			Registry: reg,
			Logger:   log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		// Sessions flush their last snapshot before the stores close.
		return multierr.Combine(srv.Shutdown(sctx), h.Shutdown(sctx))
	})
	return g.Wait()
}

type snapshotStore interface {
	session.Store
	Close() error
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (snapshotStore, error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, snapshots are kept in memory only")
		return store.NewMemory(), nil
	}
	sctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	r, err := store.NewRedis(sctx, cfg.RedisURL, cfg.EndedSnapshotTTL)
	if err != nil {
		return nil, err
	}
	log.Info("using redis snapshot store")
	return r, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

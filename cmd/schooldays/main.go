package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schooldays/internal/calendar"
	"schooldays/internal/capture"
	"schooldays/internal/config"
	"schooldays/internal/data"
	"schooldays/internal/overrides"
	"schooldays/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	logger, err := newLogger()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("schooldays starting", zap.String("config", flags.configPath))

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err), zap.String("config_path", flags.configPath))
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}

	logger.Info("effective config",
		zap.String("listen", cfg.Listen),
		zap.String("timezone", cfg.Timezone),
		zap.String("term", cfg.FirstDay+".."+cfg.LastDay),
		zap.String("refresh", cfg.RefreshCron),
		zap.Bool("once", flags.once),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, flags.once); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
	logger.Info("schooldays exiting")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, once bool) error {
	fetcher := data.NewFetcher(cfg.CacheDir, logger)

	snap, err := calendar.Load(ctx, cfg, fetcher, logger)
	if err != nil {
		return err
	}
	holder := calendar.NewHolder(snap)

	ov := overrides.NewManager(overrides.NewFileStore(cfg.OverridesPath))

	refresh := func(ctx context.Context) error {
		next, err := calendar.Load(ctx, cfg, fetcher, logger)
		if err != nil {
			return err
		}
		holder.Set(next)
		return nil
	}

	srv := web.NewServer(cfg, holder, ov, logger, refresh)

	if once {
		// Single-shot mode: data is loaded, optionally capture, then exit.
		if cfg.Snapshot != nil {
			return captureSnapshot(ctx, cfg, logger)
		}
		return nil
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := cron.New()
	if cfg.RefreshCron != "" {
		_, err := scheduler.AddFunc(cfg.RefreshCron, func() {
			refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			if err := refresh(refreshCtx); err != nil {
				logger.Warn("scheduled refresh failed", zap.Error(err))
				return
			}
			if cfg.Snapshot != nil {
				if err := captureSnapshot(refreshCtx, cfg, logger); err != nil {
					logger.Warn("snapshot capture failed", zap.Error(err))
				}
			}
		})
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		stopCtx := scheduler.Stop()
		<-stopCtx.Done()

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutCtx)
	})

	return g.Wait()
}

// captureSnapshot renders the dashboard to PNG via headless Chromium. The
// capture hits this process's own HTTP endpoint, so in -once mode (no
// server) it targets whatever cfg.Snapshot.URL points at.
func captureSnapshot(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	sc := cfg.Snapshot
	start := time.Now()
	err := capture.DashboardPNG(ctx, capture.Options{
		URL:        sc.URL,
		OutputPath: sc.Output,
		Width:      sc.Width,
		Height:     sc.Height,
	})
	if err != nil {
		return err
	}
	logger.Info("dashboard snapshot written",
		zap.String("output", sc.Output),
		zap.Duration("took", time.Since(start)))
	return nil
}

func newLogger() (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.Encoding = "console"
	logCfg.EncoderConfig.EncodeTime = nil
	if os.Getenv("SCHOOLDAYS_DEBUG") != "" {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return logCfg.Build()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load data once (and capture if configured), then exit")

	flag.Parse()

	return cfg
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaocaoooo/yemoshot/internal/browser"
	"github.com/xiaocaoooo/yemoshot/internal/capture"
	"github.com/xiaocaoooo/yemoshot/internal/config"
	"github.com/xiaocaoooo/yemoshot/internal/observability"
	"github.com/xiaocaoooo/yemoshot/internal/ratelimit"
	"github.com/xiaocaoooo/yemoshot/internal/server"
	"github.com/xiaocaoooo/yemoshot/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the capture API, the file download routes and the retention sweeper.

SIGINT or SIGTERM drains in-flight requests and stops the sweeper before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	store := capture.NewFileStore(cfg.Storage.OutputDir)
	if err := store.EnsureDir(); err != nil {
		return err
	}

	chrome := browser.NewChrome(browser.Options{
		ExecPath:       cfg.Browser.ExecPath,
		Headless:       cfg.Browser.Headless,
		RemoteURL:      cfg.Browser.RemoteURL,
		BrowserlessURL: cfg.Browser.BrowserlessURL,
		DialTimeout:    cfg.Browser.DialTimeout,
		Logger:         logger.Named("browser"),
	})

	orchestrator := capture.NewOrchestrator(chrome, store, capture.Options{
		NavigationTimeout: cfg.Capture.NavigationTimeout,
		DefaultDelay:      cfg.Capture.DefaultDelay,
		MaxDelay:          cfg.Capture.MaxDelay,
		JPEGQuality:       cfg.Capture.JPEGQuality,
		Logger:            logger.Named("capture"),
		Metrics:           metrics,
	})

	limiter := ratelimit.New(ratelimit.Policy{
		Window:      cfg.RateLimit.Window,
		MaxRequests: cfg.RateLimit.MaxRequests,
		Ban:         cfg.RateLimit.Ban,
	})

	sw := sweeper.New(cfg.Storage.OutputDir, cfg.Storage.MaxAge,
		sweeper.WithLogger(logger.Named("sweeper")),
		sweeper.WithMetrics(metrics),
	)
	scheduler := sweeper.NewScheduler(logger.Named("scheduler"))
	scheduler.Every("sweep", cfg.Storage.SweepInterval, func(ctx context.Context) {
		sw.Sweep(ctx)
	})
	if cfg.RateLimit.Enabled && cfg.RateLimit.PruneInterval > 0 {
		scheduler.Every("ratelimit-prune", cfg.RateLimit.PruneInterval, func(context.Context) {
			if n := limiter.Prune(); n > 0 {
				logger.Debug("pruned rate limit entries", zap.Int("removed", n), zap.Int("remaining", limiter.Len()))
			}
		})
	}

	srv := server.New(server.Deps{
		Config:   cfg,
		Capturer: orchestrator,
		Store:    store,
		Limiter:  limiter,
		Browser:  chrome,
		Metrics:  metrics,
		Logger:   logger,
	})

	logger.Info("Initializing server",
		zap.String("version", versionInfo.Version),
		zap.String("addr", srv.Addr()),
		zap.String("browser_mode", chrome.Mode()),
		zap.Bool("remote_browser", cfg.Browser.Remote()),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Int("rate_limit_max", limiter.Policy().MaxRequests),
		zap.Duration("rate_limit_window", limiter.Policy().Window),
		zap.Duration("retention", cfg.Storage.MaxAge),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})
	return g.Wait()
}

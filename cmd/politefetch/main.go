package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitford/politefetch/internal/api"
	"github.com/mwhitford/politefetch/internal/config"
	"github.com/mwhitford/politefetch/internal/engine"
	"github.com/mwhitford/politefetch/internal/extract"
	"github.com/mwhitford/politefetch/internal/fetcher"
	"github.com/mwhitford/politefetch/internal/fetcher/collyfetch"
	"github.com/mwhitford/politefetch/internal/fetcher/headless"
	"github.com/mwhitford/politefetch/internal/fetcher/httpfetch"
	"github.com/mwhitford/politefetch/internal/logging"
	"github.com/mwhitford/politefetch/internal/robots"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, closeTransport, err := buildTransport(cfg)
	if err != nil {
		logger.Error("transport init failed", zap.Error(err))
		os.Exit(1)
	}
	defer closeTransport()

	engineCfg := engine.Config{
		DefaultTimeout:    cfg.FetchTimeout(),
		DefaultRetries:    cfg.Fetch.Retries,
		DefaultRetryDelay: cfg.RetryDelay(),
		MaxPerOrigin:      cfg.Politeness.PerOriginMax,
		OriginRPS:         cfg.Politeness.OriginRPS,
		Robots: robots.NewGate(cfg.Politeness.RespectRobots, robots.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Logger:    logger.Named("robots"),
		}),
		Logger: logger.Named("engine"),
	}
	if cfg.Cache.Enabled {
		engineCfg.CacheTTL = cfg.CacheTTL()
		engineCfg.CacheMaxEntries = cfg.Cache.MaxEntries
	} else {
		engineCfg.CacheDisabled = true
	}
	eng := engine.New(engineCfg, transport, extract.NewHTML())
	defer eng.Close()

	apiServer := api.NewServer(eng, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("backend", cfg.Fetch.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildTransport selects the fetch backend and returns its cleanup func.
func buildTransport(cfg config.Config) (fetcher.Fetcher, func(), error) {
	switch cfg.Fetch.Backend {
	case config.BackendColly:
		f := collyfetch.New(collyfetch.Config{
			UserAgent:      cfg.Fetch.UserAgent,
			DefaultTimeout: cfg.FetchTimeout(),
		})
		return f, f.Close, nil
	case config.BackendHeadless:
		f, err := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("headless fetcher: %w", err)
		}
		return f, f.Close, nil
	default:
		f := httpfetch.New(httpfetch.Config{
			UserAgent:      cfg.Fetch.UserAgent,
			DefaultTimeout: cfg.FetchTimeout(),
		})
		return f, f.Close, nil
	}
}

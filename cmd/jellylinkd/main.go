package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Nomadcxx/jellylink/internal/config"
	"github.com/Nomadcxx/jellylink/internal/daemon"
	"github.com/Nomadcxx/jellylink/internal/logging"
)

const version = "0.1.0-dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(os.Stderr, loggingOptions(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	logger.Info("jellylinkd starting", "version", version, "roots", len(cfg.Roots), "debounce", cfg.Daemon.Debounce)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	dm, err := start(cfg, logger)
	if err != nil {
		logger.Error("failed to start daemon", "error", err)
		closeLog()
		os.Exit(1)
	}

	for {
		select {
		case err := <-dm.failed:
			logger.Error("watcher stopped, exiting", "error", err)
			closeLog()
			os.Exit(1)

		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading configuration")
				newCfg, err := loadConfig()
				if err != nil {
					logger.Error("failed to reload config", "error", err)
					continue
				}

				dm.stop()
				next, err := start(newCfg, logger)
				if err != nil {
					// Keep serving the previous configuration
					logger.Error("new configuration rejected", "error", err)
					if next, err = start(cfg, logger); err != nil {
						logger.Error("failed to restart daemon", "error", err)
						closeLog()
						os.Exit(1)
					}
				} else {
					cfg = newCfg
					logger.Info("configuration reloaded", "roots", len(cfg.Roots))
				}
				dm = next

			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("received shutdown signal, exiting", "signal", sig.String())
				dm.stop()
				return
			}
		}
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Debug:  cfg.Run.Debug,
	}
}

// running is one started daemon. failed receives the error that stopped
// the watcher before stop was called.
type running struct {
	stop   func()
	failed <-chan error
}

// start runs every root once and then watches them in the background
func start(cfg *config.Config, logger *slog.Logger) (*running, error) {
	d, err := daemon.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	failed := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		summaries, err := d.RunAll(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("initial run finished with errors", "error", err)
		}
		for _, s := range summaries {
			logger.Info("initial run", "input", s.Input, "created", s.CreatedFiles,
				"existed", s.ExistedFiles, "titles_failed", s.TitlesFailed)
		}

		if err := d.Watch(ctx); err != nil && ctx.Err() == nil {
			failed <- err
		}
	}()

	return &running{
		stop: func() {
			cancel()
			wg.Wait()
		},
		failed: failed,
	}, nil
}

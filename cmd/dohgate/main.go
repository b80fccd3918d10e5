package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nullbind/dohgate/internal/bootstrap"
	"github.com/nullbind/dohgate/internal/cache"
	"github.com/nullbind/dohgate/internal/config"
	"github.com/nullbind/dohgate/internal/logging"
	"github.com/nullbind/dohgate/internal/resolver"
	"github.com/nullbind/dohgate/internal/server"
	"github.com/nullbind/dohgate/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run implements the startup sequence: load config, init logging, init
// cache, bootstrap upstream hostnames, build the shared HTTP/2 client,
// start maintenance tasks, bind the UDP socket and start workers, then
// block until a shutdown signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.Configure(logging.Config{Level: cfg.LogLevel})
	logger.Info("dohgate starting",
		"listen", cfg.ListenAddr(),
		"upstreams", cfg.DoHUpstream,
		"workers", cfg.WorkerCount,
		"queue_size", cfg.QueueSize,
		"cache_enabled", cfg.CacheOn,
	)

	c := cache.New(cfg.CacheOn)

	urls := make([]string, len(cfg.DoHUpstream))
	hostHeaders := make([]string, len(cfg.DoHUpstream))
	for i, u := range cfg.DoHUpstream {
		res := bootstrap.Resolve(logger, u, cfg.BootstrapDNS)
		urls[i] = res.URL
		hostHeaders[i] = res.HostOverride
		if res.HostOverride != "" {
			logger.Info("bootstrapped upstream", "original", u, "resolved", res.URL)
		}
	}
	mgr := upstream.New(urls, hostHeaders)

	httpClient, err := resolver.NewHTTPClient()
	if err != nil {
		return fmt.Errorf("building http client: %w", err)
	}
	res := resolver.New(httpClient, mgr)

	srv := server.New(logger, res, c, cfg.WorkerCount, cfg.QueueSize)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopMaintenance := startMaintenance(ctx, logger, c, mgr, srv)
	defer func() {
		// Cancel first so the maintenance goroutines exit even when the
		// server returns an error before any shutdown signal.
		cancel()
		stopMaintenance()
	}()

	logger.Info("dohgate listening", "addr", cfg.ListenAddr())
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr(), config.ShutdownDrainTimeout); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}

	logger.Info("dohgate stopped")
	return nil
}

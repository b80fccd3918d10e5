package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/nullbind/dohgate/internal/cache"
	"github.com/nullbind/dohgate/internal/config"
	"github.com/nullbind/dohgate/internal/server"
	"github.com/nullbind/dohgate/internal/upstream"
)

// startMaintenance launches the cache pruner and stats reporter goroutines.
// Both run until ctx is cancelled; the returned stop func blocks until they
// have exited.
func startMaintenance(ctx context.Context, logger *slog.Logger, c *cache.Cache, mgr *upstream.Manager, srv *server.Server) (stop func()) {
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		prune(ctx, logger, c)
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		reportStats(ctx, logger, mgr, srv)
	}()

	return func() {
		<-done
		<-done
	}
}

func prune(ctx context.Context, logger *slog.Logger, c *cache.Cache) {
	ticker := time.NewTicker(config.CachePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := c.Prune()
			if logger != nil && removed > 0 {
				logger.Info("cache pruned", "removed", removed)
			}
		}
	}
}

func reportStats(ctx context.Context, logger *slog.Logger, mgr *upstream.Manager, srv *server.Server) {
	ticker := time.NewTicker(config.StatsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStats(logger, mgr, srv)
		}
	}
}

func logStats(logger *slog.Logger, mgr *upstream.Manager, srv *server.Server) {
	if logger == nil {
		return
	}
	s := srv.Stats()
	logger.Info("server stats",
		"received", s.Received,
		"dropped", s.Dropped,
		"cache_hits", s.CacheHits,
		"cache_misses", s.CacheMisses,
		"errors", s.Errors,
		"avg_latency_ms", s.AvgLatencyMs,
	)
	for _, ep := range mgr.StatsSnapshot() {
		logger.Info("upstream stats",
			"url", ep.URL,
			"healthy", ep.Healthy,
			"successes", ep.Successes,
			"failures", ep.Failures,
			"avg_response_ms", ep.AvgResponseTimeMs,
		)
	}
}

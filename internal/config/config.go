// Package config loads dohgate's runtime configuration from environment
// variables.
//
// Every setting lives in a single flat namespace (no YAML file, no nested
// sections) per the variable table this proxy's environment contract
// defines, so the config struct is parsed directly with struct tags rather
// than going through a layered file+env loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v7"
	"github.com/nullbind/dohgate/internal/helpers"
)

// Reasonable ceilings on the two pool-sizing knobs, enforced the same way a
// misconfigured env var can't size a goroutine pool or channel arbitrarily
// large.
const (
	maxWorkerCount = 10000
	maxQueueSize   = 1000000
)

// Config holds every environment-driven setting for the proxy.
type Config struct {
	ListenHost string `env:"LISTEN_HOST" envDefault:"0.0.0.0"`
	ListenPort int    `env:"LISTEN_PORT" envDefault:"5053"`

	DoHUpstream  []string `env:"DOH_UPSTREAM"  envSeparator:"," envDefault:"https://cloudflare-dns.com/dns-query"`
	BootstrapDNS string   `env:"BOOTSTRAP_DNS" envDefault:"8.8.8.8"`

	WorkerCount int  `env:"WORKER_COUNT"  envDefault:"10"`
	QueueSize   int  `env:"QUEUE_SIZE"    envDefault:"1000"`
	CacheOn     bool `env:"CACHE_ENABLED" envDefault:"true"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Load reads and validates the process environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize clamps and validates fields after parsing, the way a
// post-load validation pass would on any config struct in this style.
func (c *Config) normalize() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("config: LISTEN_PORT must be 1..65535, got %d", c.ListenPort)
	}

	c.DoHUpstream = cleanList(c.DoHUpstream)
	if len(c.DoHUpstream) == 0 {
		return fmt.Errorf("config: DOH_UPSTREAM must name at least one endpoint")
	}

	if c.WorkerCount <= 0 {
		c.WorkerCount = 10
	}
	c.WorkerCount = helpers.ClampInt(c.WorkerCount, 1, maxWorkerCount)

	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	c.QueueSize = helpers.ClampInt(c.QueueSize, 1, maxQueueSize)

	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}

	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ListenAddr returns the "host:port" pair the UDP listener binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// These are fixed constants rather than environment knobs, so they live
// here instead of in the Config struct.
const (
	// CachePruneInterval is how often the cache cleaner sweeps expired entries.
	CachePruneInterval = 60 * time.Second
	// StatsReportInterval is how often the stats reporter logs a summary line.
	StatsReportInterval = 300 * time.Second
	// ShutdownDrainTimeout bounds how long shutdown waits for in-flight work.
	ShutdownDrainTimeout = 5 * time.Second
)

// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the tuning surface the sync/cache core consumes.
type Config struct {
	SyncTTL         time.Duration // cached records older than this are stale
	DefaultPageSize int           // stream page size when the caller passes none
	MaxPageSize     int
	PollInterval    time.Duration // coordinator poll cadence
	PollOnStart     bool          // perform one poll immediately on Start
	DisabledRoutes  []string      // route prefixes that pause the coordinators
	// Per-stream-type default limits, keyed by the stream ID's first segment.
	StreamLimits      map[string]int
	NotificationLimit int
}

// DefaultConfig returns the defaults used by the shipped client.
func DefaultConfig() *Config {
	return &Config{
		SyncTTL:         5 * time.Minute,
		DefaultPageSize: 30,
		MaxPageSize:     100,
		PollInterval:    20 * time.Second,
		PollOnStart:     true,
		DisabledRoutes:  []string{"/settings", "/logout", "/onboarding"},
		StreamLimits: map[string]int{
			"timeline":      30,
			"followers":     50,
			"following":     50,
			"notifications": 20,
		},
		NotificationLimit: 20,
	}
}

// LoadFromEnv overlays environment overrides onto cfg and returns it.
func LoadFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.SyncTTL = getenvDuration("FRANKY_SYNC_TTL", cfg.SyncTTL)
	cfg.PollInterval = getenvDuration("FRANKY_POLL_INTERVAL", cfg.PollInterval)
	cfg.DefaultPageSize = getenvInt("FRANKY_PAGE_SIZE", cfg.DefaultPageSize)
	cfg.MaxPageSize = getenvInt("FRANKY_MAX_PAGE_SIZE", cfg.MaxPageSize)
	if routes := os.Getenv("FRANKY_DISABLED_ROUTES"); routes != "" {
		cfg.DisabledRoutes = strings.Split(routes, ",")
	}
	return cfg
}

// PageSize clamps a requested limit to [1, MaxPageSize], substituting the
// default when the caller passes zero.
func (c *Config) PageSize(requested int) int {
	if requested <= 0 {
		return c.DefaultPageSize
	}
	if requested > c.MaxPageSize {
		return c.MaxPageSize
	}
	return requested
}

// StreamLimit returns the default limit for a stream ID, keyed by its first
// segment.
func (c *Config) StreamLimit(streamID string) int {
	kind, _, _ := strings.Cut(streamID, ":")
	if limit, ok := c.StreamLimits[kind]; ok {
		return limit
	}
	return c.DefaultPageSize
}

func getenvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

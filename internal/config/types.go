package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Supla   SuplaConfig   `json:"supla"`

	// Scheduler controls the execution engine loops (dispatch tick, horizon
	// refill, auto-disable sweep).
	Scheduler SchedulerConfig `json:"scheduler"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the SQLite persistence layer.
//
// Example:
//
//	"storage": { "path": "/var/lib/supla-scheduler/scheduler.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// SuplaConfig points at the supla-server control socket.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type SuplaConfig struct {
	SocketPath string `json:"socket_path"`
	// Timeout bounds one control-socket command round trip.
	Timeout string `json:"timeout,omitempty"`
}

// SchedulerConfig controls the execution engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "10s"
//   - workers: 4
//   - queue_size: 64
//   - dispatch_timeout: "10s"
//   - rate_per_sec: 10
//   - claim_ttl: "5m"
//   - refill_interval: "10m"
//   - refill_window: "24h"
//   - sweep_interval: "1h"
//   - sweep_window: "672h" (4 weeks)
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// TickInterval is how often due executions are claimed.
	TickInterval string `json:"tick_interval,omitempty"`
	Workers      int    `json:"workers,omitempty"`
	QueueSize    int    `json:"queue_size,omitempty"`

	// DispatchTimeout bounds one action against supla-server.
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	// RatePerSec caps outbound commands across all workers.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// ClaimTTL is how long an in-flight claim stays valid before a crashed
	// worker's executions become reclaimable.
	ClaimTTL string `json:"claim_ttl,omitempty"`

	// RefillInterval/RefillWindow control the horizon refill job.
	RefillInterval string `json:"refill_interval,omitempty"`
	RefillWindow   string `json:"refill_window,omitempty"`

	// SweepInterval/SweepWindow control the auto-disable sweep.
	SweepInterval string `json:"sweep_interval,omitempty"`
	SweepWindow   string `json:"sweep_window,omitempty"`

	// Timezone is the default for schedules that don't carry their own.
	Timezone string `json:"timezone,omitempty"`
}

// Validate checks field syntax (durations, required paths, timezone). It does
// not touch the filesystem, so it is safe to run on every hot-reload
// candidate before committing it.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	durations := map[string]string{
		"storage.busy_timeout":       c.Storage.BusyTimeout,
		"supla.timeout":              c.Supla.Timeout,
		"scheduler.tick_interval":    c.Scheduler.TickInterval,
		"scheduler.dispatch_timeout": c.Scheduler.DispatchTimeout,
		"scheduler.claim_ttl":        c.Scheduler.ClaimTTL,
		"scheduler.refill_interval":  c.Scheduler.RefillInterval,
		"scheduler.refill_window":    c.Scheduler.RefillWindow,
		"scheduler.sweep_interval":   c.Scheduler.SweepInterval,
		"scheduler.sweep_window":     c.Scheduler.SweepWindow,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if c.Scheduler.Workers < 0 || c.Scheduler.QueueSize < 0 || c.Scheduler.RatePerSec < 0 {
		return errors.New("scheduler: workers/queue_size/rate_per_sec must be >= 0")
	}
	return nil
}

package config

import (
	"sort"
	"strings"

	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage
	if strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Supla server
	if strings.TrimSpace(oldCfg.Supla.SocketPath) != strings.TrimSpace(newCfg.Supla.SocketPath) ||
		strings.TrimSpace(oldCfg.Supla.Timeout) != strings.TrimSpace(newCfg.Supla.Timeout) {
		changed = append(changed, "supla")
		attrs = append(attrs,
			logx.String("supla.socket_path", strings.TrimSpace(newCfg.Supla.SocketPath)),
			logx.String("supla.timeout", strings.TrimSpace(newCfg.Supla.Timeout)),
		)
	}

	// Scheduler
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick_interval", strings.TrimSpace(newCfg.Scheduler.TickInterval)),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.queue_size", newCfg.Scheduler.QueueSize),
			logx.String("scheduler.dispatch_timeout", strings.TrimSpace(newCfg.Scheduler.DispatchTimeout)),
			logx.Int("scheduler.rate_per_sec", newCfg.Scheduler.RatePerSec),
			logx.String("scheduler.claim_ttl", strings.TrimSpace(newCfg.Scheduler.ClaimTTL)),
			logx.String("scheduler.refill_interval", strings.TrimSpace(newCfg.Scheduler.RefillInterval)),
			logx.String("scheduler.sweep_interval", strings.TrimSpace(newCfg.Scheduler.SweepInterval)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

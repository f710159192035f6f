package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lesny8/supla-cloud/internal/dispatch"
	"github.com/lesny8/supla-cloud/internal/eventbus"
	"github.com/lesny8/supla-cloud/internal/schedule"
	"github.com/lesny8/supla-cloud/internal/storage"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

// maxHorizonRows caps one generation batch so a dense interval rule cannot
// flood the log in a single refill.
const maxHorizonRows = 2000

// Config controls horizon sizes and the auto-disable policy.
//
// All windows are trailing/leading durations relative to "now".
type Config struct {
	// GenerationWindow is how far ahead executions are materialized.
	GenerationWindow time.Duration // default 24h
	// ValidationWindow is how far ahead enable-time satisfiability looks.
	ValidationWindow time.Duration // default 5 days
	// PreviewWindow/PreviewLimit bound the next-run-dates preview.
	PreviewWindow time.Duration // default 7 days
	PreviewLimit  int           // default 3
	// SweepWindow is the trailing window of outcomes the auto-disable sweep
	// inspects; SweepMinFailures is the minimum number of uniform failures
	// required before disabling.
	SweepWindow      time.Duration // default 4 weeks
	SweepMinFailures int           // default 1

	// DefaultTimezone is stamped onto schedules saved without one. Empty
	// leaves them zone-less, which evaluates as UTC.
	DefaultTimezone string

	// Now overrides the clock (tests). Nil means time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.GenerationWindow <= 0 {
		c.GenerationWindow = 24 * time.Hour
	}
	if c.ValidationWindow <= 0 {
		c.ValidationWindow = 5 * 24 * time.Hour
	}
	if c.PreviewWindow <= 0 {
		c.PreviewWindow = 7 * 24 * time.Hour
	}
	if c.PreviewLimit <= 0 {
		c.PreviewLimit = 3
	}
	if c.SweepWindow <= 0 {
		c.SweepWindow = 4 * 7 * 24 * time.Hour
	}
	if c.SweepMinFailures <= 0 {
		c.SweepMinFailures = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// DeviceChannelLister exposes the channel composition of an I/O device.
type DeviceChannelLister interface {
	DeviceChannels(ctx context.Context, deviceID int64) ([]int64, error)
}

type Manager struct {
	cfg      Config
	store    *storage.Store
	resolver dispatch.SubjectResolver
	channels DeviceChannelLister
	bus      eventbus.Bus
	log      logx.Logger
}

func New(cfg Config, store *storage.Store, resolver dispatch.SubjectResolver, channels DeviceChannelLister, bus eventbus.Bus, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		store:    store,
		resolver: resolver,
		channels: channels,
		bus:      bus,
		log:      log,
	}
}

// Create validates and persists a new schedule. The schedule starts disabled;
// when the subject is enabled it is armed immediately, mirroring the save
// flow of the HTTP layer.
func (m *Manager) Create(ctx context.Context, sch *schedule.Schedule) error {
	subject, err := m.validate(ctx, sch)
	if err != nil {
		return err
	}
	sch.Enabled = false
	if err := m.store.CreateSchedule(ctx, sch); err != nil {
		return err
	}
	if subject.SubjectEnabled() {
		return m.Enable(ctx, sch)
	}
	return nil
}

// Update applies a structural edit: the pending horizon is torn down, the new
// definition validated and persisted, and the horizon rebuilt when the
// schedule ends up enabled. enable requests arming a currently disabled
// schedule as part of the edit.
func (m *Manager) Update(ctx context.Context, sch *schedule.Schedule, enable bool) error {
	subject, err := m.validate(ctx, sch)
	if err != nil {
		return err
	}
	if _, err := m.store.DeletePendingExecutions(ctx, sch.ID); err != nil {
		return err
	}
	if sch.Enabled && !subject.SubjectEnabled() {
		sch.Enabled = false
	}
	if err := m.store.UpdateSchedule(ctx, sch); err != nil {
		return err
	}
	if !sch.Enabled && enable && subject.SubjectEnabled() {
		return m.Enable(ctx, sch)
	}
	if sch.Enabled {
		return m.GenerateScheduledExecutions(ctx, sch, m.cfg.GenerationWindow)
	}
	return nil
}

// validate resolves the subject, normalizes action params and the timezone in
// place and checks that the rule yields at least one occurrence in the
// validation window.
func (m *Manager) validate(ctx context.Context, sch *schedule.Schedule) (schedule.Subject, error) {
	if strings.TrimSpace(sch.Timezone) == "" {
		sch.Timezone = m.cfg.DefaultTimezone
	}
	subject, err := m.resolver.Resolve(ctx, sch.UserID, sch.SubjectType, sch.SubjectID)
	if err != nil {
		return nil, err
	}
	normalized, err := dispatch.ValidateActionParams(subject, sch.Action, sch.ActionParams)
	if err != nil {
		return nil, err
	}
	sch.ActionParams = normalized

	dates, err := m.GetNextRunDates(ctx, sch, m.cfg.ValidationWindow, 1)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, schedule.ErrUnsatisfiable
	}
	return subject, nil
}

// Enable arms the schedule and materializes its initial horizon. A rule with
// no future occurrence within the validation window cannot be armed.
func (m *Manager) Enable(ctx context.Context, sch *schedule.Schedule) error {
	dates, err := m.GetNextRunDates(ctx, sch, m.cfg.ValidationWindow, 1)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return schedule.ErrUnsatisfiable
	}
	if err := m.store.SetScheduleEnabled(ctx, sch.ID, true); err != nil {
		return err
	}
	sch.Enabled = true
	return m.GenerateScheduledExecutions(ctx, sch, m.cfg.GenerationWindow)
}

// Disable disarms the schedule and deletes its pending executions. Resolved
// rows stay for audit.
func (m *Manager) Disable(ctx context.Context, sch *schedule.Schedule) error {
	if err := m.store.SetScheduleEnabled(ctx, sch.ID, false); err != nil {
		return err
	}
	sch.Enabled = false
	_, err := m.store.DeletePendingExecutions(ctx, sch.ID)
	return err
}

// Delete removes the schedule and, via cascade, its whole execution log.
func (m *Manager) Delete(ctx context.Context, sch *schedule.Schedule) error {
	return m.store.DeleteSchedule(ctx, sch.ID)
}

// GenerateScheduledExecutions materializes the missing occurrences in
// [now, now+window] beyond the newest already-planned timestamp. Calling it
// repeatedly is a no-op: no duplicates, no gaps.
func (m *Manager) GenerateScheduledExecutions(ctx context.Context, sch *schedule.Schedule, window time.Duration) error {
	if window <= 0 {
		window = m.cfg.GenerationWindow
	}
	expr, err := schedule.ParseExpression(sch.Mode, sch.TimeExpression, sch.Location())
	if err != nil {
		return err
	}

	now := m.cfg.Now()
	horizon := now.Add(window)
	from := now
	if last, ok, err := m.store.LastPlannedAt(ctx, sch.ID); err != nil {
		return err
	} else if ok && last.After(from) {
		from = last
	}
	remaining := horizon.Sub(from)
	if remaining <= 0 {
		return nil
	}

	occurrences := expr.NextOccurrences(from, remaining, maxHorizonRows, false)
	if len(occurrences) == 0 {
		return nil
	}
	n, err := m.store.AppendExecutions(ctx, sch.ID, occurrences)
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Debug("horizon refilled",
			logx.Int64("schedule_id", sch.ID),
			logx.Int("new_executions", n),
			logx.Time("until", horizon))
	}
	return nil
}

// GetNextRunDates previews the schedule's next occurrences within window.
// It is pure: nothing is persisted, so it serves both UI previews and the
// enable-time satisfiability check.
func (m *Manager) GetNextRunDates(ctx context.Context, sch *schedule.Schedule, window time.Duration, limit int) ([]time.Time, error) {
	if window <= 0 {
		window = m.cfg.PreviewWindow
	}
	if limit <= 0 {
		limit = m.cfg.PreviewLimit
	}
	expr, err := schedule.ParseExpression(sch.Mode, sch.TimeExpression, sch.Location())
	if err != nil {
		return nil, err
	}
	return expr.NextOccurrences(m.cfg.Now(), window, limit, false), nil
}

// RecalculateScheduledExecutions reacts to a timezone edit: when the new zone
// has a different UTC offset at "now" than oldTimezone, the pending horizon is
// regenerated so wall-clock-local semantics survive the move. Equal offsets
// leave pending rows untouched.
func (m *Manager) RecalculateScheduledExecutions(ctx context.Context, sch *schedule.Schedule, oldTimezone string) (bool, error) {
	oldLoc, err := time.LoadLocation(oldTimezone)
	if err != nil {
		return false, fmt.Errorf("old timezone %q: %w", oldTimezone, err)
	}
	now := m.cfg.Now()
	_, oldOffset := now.In(oldLoc).Zone()
	_, newOffset := now.In(sch.Location()).Zone()
	if oldOffset == newOffset {
		return false, nil
	}

	if _, err := m.store.DeletePendingExecutions(ctx, sch.ID); err != nil {
		return false, err
	}
	if !sch.Enabled {
		return true, nil
	}
	return true, m.GenerateScheduledExecutions(ctx, sch, m.cfg.GenerationWindow)
}

// FindSchedulesForDevice returns the user's schedules targeting any channel of
// the device.
func (m *Manager) FindSchedulesForDevice(ctx context.Context, userID, deviceID int64) ([]*schedule.Schedule, error) {
	channelIDs, err := m.channels.DeviceChannels(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return m.store.ListSchedulesForChannels(ctx, userID, channelIDs)
}

// RefillHorizons extends the horizon of every enabled schedule. It is the
// body of the periodic refill job; a failing schedule does not stop the
// sweep over the others. A window <= 0 falls back to the configured
// generation window.
func (m *Manager) RefillHorizons(ctx context.Context, window time.Duration) error {
	schedules, err := m.store.ListEnabledSchedules(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, sch := range schedules {
		if err := m.GenerateScheduledExecutions(ctx, sch, window); err != nil {
			m.log.Warn("horizon refill failed",
				logx.Int64("schedule_id", sch.ID), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

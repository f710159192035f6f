package manager

import (
	"context"

	"github.com/lesny8/supla-cloud/internal/eventbus"
	"github.com/lesny8/supla-cloud/internal/storage"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

// EventScheduleBrokenDisabled is the audit/bus event emitted when the sweep
// disables a schedule whose recent outcomes are uniformly failures.
const EventScheduleBrokenDisabled = "schedule_broken_disabled"

// BrokenScheduleEvent is the bus payload for EventScheduleBrokenDisabled.
type BrokenScheduleEvent struct {
	ScheduleID int64
	UserID     int64
	Failures   int
}

// SweepBrokenSchedules disables enabled schedules whose resolved outcomes
// inside the trailing sweep window are all failures. A schedule with no
// resolved outcome in the window (pending-only, or its last success simply
// aged out) is left alone. Returns the number of schedules disabled.
func (m *Manager) SweepBrokenSchedules(ctx context.Context) (int, error) {
	schedules, err := m.store.ListEnabledSchedules(ctx)
	if err != nil {
		return 0, err
	}

	now := m.cfg.Now()
	since := now.Add(-m.cfg.SweepWindow)

	disabled := 0
	for _, sch := range schedules {
		outcomes, err := m.store.RecentOutcomes(ctx, sch.ID, since, now)
		if err != nil {
			m.log.Warn("sweep: outcome query failed",
				logx.Int64("schedule_id", sch.ID), logx.Err(err))
			continue
		}
		if len(outcomes) < m.cfg.SweepMinFailures {
			continue
		}
		broken := true
		for _, o := range outcomes {
			if !o.Result.Failed() {
				broken = false
				break
			}
		}
		if !broken {
			continue
		}

		if err := m.Disable(ctx, sch); err != nil {
			m.log.Warn("sweep: disable failed",
				logx.Int64("schedule_id", sch.ID), logx.Err(err))
			continue
		}
		if err := m.store.AppendAudit(ctx, storage.AuditEntry{
			At:         now,
			Event:      EventScheduleBrokenDisabled,
			UserID:     sch.UserID,
			ScheduleID: sch.ID,
		}); err != nil {
			m.log.Warn("sweep: audit append failed",
				logx.Int64("schedule_id", sch.ID), logx.Err(err))
		}
		m.publishBroken(sch.ID, sch.UserID, len(outcomes))
		m.log.Info("schedule disabled: every recent execution failed",
			logx.Int64("schedule_id", sch.ID),
			logx.Int64("user_id", sch.UserID),
			logx.Int("failures", len(outcomes)))
		disabled++
	}
	return disabled, nil
}

func (m *Manager) publishBroken(scheduleID, userID int64, failures int) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type: EventScheduleBrokenDisabled,
		Data: BrokenScheduleEvent{ScheduleID: scheduleID, UserID: userID, Failures: failures},
	})
}

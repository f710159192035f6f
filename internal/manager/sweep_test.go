package manager

import (
	"context"
	"testing"
	"time"

	"github.com/lesny8/supla-cloud/internal/schedule"
	"github.com/lesny8/supla-cloud/internal/storage"
)

// resolve materializes one execution at plannedAt and drives it to result
// through the normal claim path.
func resolve(t *testing.T, st *storage.Store, scheduleID int64, plannedAt time.Time, result schedule.Result) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.AppendExecutions(ctx, scheduleID, []time.Time{plannedAt}); err != nil {
		t.Fatalf("append: %v", err)
	}
	exec, err := st.ClaimDue(ctx, plannedAt.Add(time.Second), "sweep-test", time.Minute)
	if err != nil || exec == nil {
		t.Fatalf("claim at %v: exec=%v err=%v", plannedAt, exec, err)
	}
	if err := st.RecordResult(ctx, exec.ID, result, plannedAt.Add(time.Second)); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func enabledSchedule(t *testing.T, st *storage.Store, subjectID int64) *schedule.Schedule {
	t.Helper()
	sch := cronSchedule(subjectID)
	sch.Enabled = true
	if err := st.CreateSchedule(context.Background(), sch); err != nil {
		t.Fatalf("create: %v", err)
	}
	return sch
}

func TestSweepDisablesUniformlyFailingSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addLight(10, 100, true)
	sch := enabledSchedule(t, f.store, 10)

	events, unsub := f.bus.Subscribe(4)
	defer unsub()

	for i := 3; i >= 1; i-- {
		resolve(t, f.store, sch.ID, testNow.Add(-time.Duration(i)*time.Hour), schedule.ResultFailure)
	}

	disabled, err := f.mgr.SweepBrokenSchedules(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if disabled != 1 {
		t.Fatalf("disabled = %d, want 1", disabled)
	}

	stored, err := f.store.GetSchedule(context.Background(), sch.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Enabled {
		t.Fatal("schedule should be disabled")
	}

	audits, err := f.store.ListAudit(context.Background(), 10)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(audits) != 1 || audits[0].Event != EventScheduleBrokenDisabled || audits[0].ScheduleID != sch.ID {
		t.Fatalf("audit entries = %+v", audits)
	}

	select {
	case e := <-events:
		if e.Type != EventScheduleBrokenDisabled {
			t.Fatalf("event type = %s", e.Type)
		}
		data, ok := e.Data.(BrokenScheduleEvent)
		if !ok || data.ScheduleID != sch.ID || data.Failures != 3 {
			t.Fatalf("event data = %+v", e.Data)
		}
	default:
		t.Fatal("no bus event published")
	}
}

func TestSweepKeepsScheduleWithRecentSuccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addLight(10, 100, true)
	sch := enabledSchedule(t, f.store, 10)

	resolve(t, f.store, sch.ID, testNow.Add(-3*time.Hour), schedule.ResultFailure)
	resolve(t, f.store, sch.ID, testNow.Add(-2*time.Hour), schedule.ResultFailure)
	resolve(t, f.store, sch.ID, testNow.Add(-time.Hour), schedule.ResultSuccess)

	disabled, err := f.mgr.SweepBrokenSchedules(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if disabled != 0 {
		t.Fatalf("disabled = %d, want 0", disabled)
	}
}

func TestSweepTreatsUnconfirmedAsHealthy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addLight(10, 100, true)
	sch := enabledSchedule(t, f.store, 10)

	resolve(t, f.store, sch.ID, testNow.Add(-2*time.Hour), schedule.ResultFailure)
	resolve(t, f.store, sch.ID, testNow.Add(-time.Hour), schedule.ResultExecutedWithoutConfirmation)

	disabled, err := f.mgr.SweepBrokenSchedules(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if disabled != 0 {
		t.Fatalf("disabled = %d, want 0", disabled)
	}
}

func TestSweepSkipsPendingOnlySchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addLight(10, 100, true)
	sch := enabledSchedule(t, f.store, 10)

	future := []time.Time{testNow.Add(time.Hour), testNow.Add(2 * time.Hour)}
	if _, err := f.store.AppendExecutions(context.Background(), sch.ID, future); err != nil {
		t.Fatalf("append: %v", err)
	}

	disabled, err := f.mgr.SweepBrokenSchedules(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if disabled != 0 {
		t.Fatalf("disabled = %d, want 0", disabled)
	}
}

func TestSweepIgnoresSuccessOutsideWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addLight(10, 100, true)
	sch := enabledSchedule(t, f.store, 10)

	// A success older than the sweep window does not save the schedule when
	// everything inside the window failed.
	old := testNow.Add(-5 * 7 * 24 * time.Hour)
	resolve(t, f.store, sch.ID, old, schedule.ResultSuccess)
	resolve(t, f.store, sch.ID, testNow.Add(-2*time.Hour), schedule.ResultDeviceUnreachable)
	resolve(t, f.store, sch.ID, testNow.Add(-time.Hour), schedule.ResultFailure)

	disabled, err := f.mgr.SweepBrokenSchedules(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if disabled != 1 {
		t.Fatalf("disabled = %d, want 1", disabled)
	}
}

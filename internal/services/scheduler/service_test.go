package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lesny8/supla-cloud/internal/config"
	"github.com/lesny8/supla-cloud/internal/dispatch"
	"github.com/lesny8/supla-cloud/internal/eventbus"
	"github.com/lesny8/supla-cloud/internal/manager"
	"github.com/lesny8/supla-cloud/internal/schedule"
	"github.com/lesny8/supla-cloud/internal/storage"
	"github.com/lesny8/supla-cloud/internal/supla"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

func newEngine(t *testing.T) (*Service, *storage.Store, *supla.Fake) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	dir := supla.NewDirectory()
	dir.AddChannel(&supla.Channel{ID: 10, IODeviceID: 100, UserID: 1, Function: supla.FunctionLightSwitch, Enabled: true})
	fake := supla.NewFake()
	fake.SetDeviceConnected(100, true)

	d := dispatch.New(dispatch.Config{Timeout: time.Second, RatePerSec: 100}, dir, fake, st, logx.Nop())
	mgr := manager.New(manager.Config{}, st, dir, dir, eventbus.New(), logx.Nop())
	svc := New(Config{
		Enabled:      true,
		TickInterval: 20 * time.Millisecond,
		Workers:      2,
		// Long auxiliary intervals so only the initial run fires during tests.
		RefillInterval: time.Hour,
		SweepInterval:  time.Hour,
	}, st, d, mgr, logx.Nop())
	return svc, st, fake
}

func waitForResult(t *testing.T, st *storage.Store, scheduleID int64, want schedule.Result) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		execs, err := st.ListExecutions(context.Background(), scheduleID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, e := range execs {
			if e.Result == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no execution reached %s in time", want)
}

func TestEngineDispatchesDueExecution(t *testing.T) {
	t.Parallel()
	svc, st, fake := newEngine(t)

	sch := &schedule.Schedule{
		UserID:         1,
		SubjectType:    schedule.SubjectChannel,
		SubjectID:      10,
		Action:         schedule.ActionTurnOn,
		TimeExpression: "*/5 * * * *",
		Mode:           schedule.ModeCron,
		Enabled:        true,
	}
	ctx := context.Background()
	if err := st.CreateSchedule(ctx, sch); err != nil {
		t.Fatalf("create: %v", err)
	}
	due := time.Now().Add(-time.Minute)
	if _, err := st.AppendExecutions(ctx, sch.ID, []time.Time{due}); err != nil {
		t.Fatalf("append: %v", err)
	}

	svc.Start(ctx)
	defer svc.Stop(ctx)

	waitForResult(t, st, sch.ID, schedule.ResultSuccess)
	if cmds := fake.ExecutedCommands(); len(cmds) != 1 || cmds[0].Action != schedule.ActionTurnOn {
		t.Fatalf("executed commands = %+v", cmds)
	}
}

func TestEngineStartStopStart(t *testing.T) {
	t.Parallel()
	svc, st, _ := newEngine(t)
	ctx := context.Background()

	svc.Start(ctx)
	svc.Stop(ctx)
	svc.Start(ctx)
	defer svc.Stop(ctx)

	sch := &schedule.Schedule{
		UserID:         1,
		SubjectType:    schedule.SubjectChannel,
		SubjectID:      10,
		Action:         schedule.ActionTurnOn,
		TimeExpression: "30m",
		Mode:           schedule.ModeInterval,
		Enabled:        true,
	}
	if err := st.CreateSchedule(ctx, sch); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.AppendExecutions(ctx, sch.ID, []time.Time{time.Now().Add(-time.Second)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	waitForResult(t, st, sch.ID, schedule.ResultSuccess)
}

func TestParseConfig(t *testing.T) {
	t.Parallel()
	cfg, err := ParseConfig(config.SchedulerConfig{
		Enabled:      true,
		TickInterval: "5s",
		Workers:      8,
		ClaimTTL:     "2m",
		SweepWindow:  "672h",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Enabled || cfg.TickInterval != 5*time.Second || cfg.Workers != 8 || cfg.ClaimTTL != 2*time.Minute {
		t.Fatalf("parsed config = %+v", cfg)
	}

	if _, err := ParseConfig(config.SchedulerConfig{TickInterval: "soon"}); err == nil {
		t.Fatal("bad duration must be rejected")
	}
}

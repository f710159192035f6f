package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lesny8/supla-cloud/internal/schedule"
	"github.com/lesny8/supla-cloud/internal/storage"
	"github.com/lesny8/supla-cloud/internal/supla"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

func newFixture(t *testing.T) (*storage.Store, *supla.Directory, *supla.Fake) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, supla.NewDirectory(), supla.NewFake()
}

func claimOne(t *testing.T, st *storage.Store, sch *schedule.Schedule, planned time.Time) *schedule.Execution {
	t.Helper()
	ctx := context.Background()
	if _, err := st.AppendExecutions(ctx, sch.ID, []time.Time{planned}); err != nil {
		t.Fatalf("append: %v", err)
	}
	exec, err := st.ClaimDue(ctx, planned.Add(time.Second), "test-worker", time.Minute)
	if err != nil || exec == nil {
		t.Fatalf("claim: exec=%v err=%v", exec, err)
	}
	return exec
}

func lightSchedule(t *testing.T, st *storage.Store) *schedule.Schedule {
	t.Helper()
	sch := &schedule.Schedule{
		UserID:         1,
		SubjectType:    schedule.SubjectChannel,
		SubjectID:      10,
		Action:         schedule.ActionTurnOn,
		TimeExpression: "*/5 * * * *",
		Mode:           schedule.ModeCron,
		Enabled:        true,
	}
	if err := st.CreateSchedule(context.Background(), sch); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return sch
}

func TestDispatchOutcomes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		connected bool
		scripted  []supla.Outcome
		want      schedule.Result
	}{
		{name: "acknowledged", connected: true, want: schedule.ResultSuccess},
		{name: "device offline", connected: false, want: schedule.ResultDeviceUnreachable},
		{name: "server error", connected: true, scripted: []supla.Outcome{supla.OutcomeError}, want: schedule.ResultFailure},
		{name: "no confirmation", connected: true, scripted: []supla.Outcome{supla.OutcomeAcknowledgedWithoutConfirmation}, want: schedule.ResultExecutedWithoutConfirmation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st, dir, fake := newFixture(t)
			dir.AddChannel(&supla.Channel{ID: 10, IODeviceID: 100, UserID: 1, Function: supla.FunctionLightSwitch, Enabled: true})
			fake.SetDeviceConnected(100, tt.connected)
			fake.ScriptOutcome(10, tt.scripted...)

			sch := lightSchedule(t, st)
			planned := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
			exec := claimOne(t, st, sch, planned)

			d := New(Config{Timeout: time.Second}, dir, fake, st, logx.Nop())
			got, err := d.Dispatch(context.Background(), exec, sch)
			if err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if got != tt.want {
				t.Fatalf("result = %s, want %s", got, tt.want)
			}

			execs, err := st.ListExecutions(context.Background(), sch.ID)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if execs[0].Result != tt.want {
				t.Fatalf("recorded result = %s, want %s", execs[0].Result, tt.want)
			}
			if execs[0].FiredAt.IsZero() {
				t.Fatal("fired_at not set")
			}
		})
	}
}

func TestDispatchGroupSkipsConnectivityProbe(t *testing.T) {
	t.Parallel()
	st, dir, fake := newFixture(t)
	dir.AddGroup(&supla.ChannelGroup{ID: 20, UserID: 1, Function: supla.FunctionLightSwitch, Enabled: true})
	fake.ScriptOutcome(20, supla.OutcomeAcknowledgedWithoutConfirmation)

	sch := &schedule.Schedule{
		UserID:         1,
		SubjectType:    schedule.SubjectChannelGroup,
		SubjectID:      20,
		Action:         schedule.ActionTurnOff,
		TimeExpression: "30m",
		Mode:           schedule.ModeInterval,
		Enabled:        true,
	}
	if err := st.CreateSchedule(context.Background(), sch); err != nil {
		t.Fatalf("create: %v", err)
	}
	exec := claimOne(t, st, sch, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))

	d := New(Config{Timeout: time.Second}, dir, fake, st, logx.Nop())
	got, err := d.Dispatch(context.Background(), exec, sch)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != schedule.ResultExecutedWithoutConfirmation {
		t.Fatalf("result = %s, want EXECUTED_WITHOUT_CONFIRMATION", got)
	}
	cmds := fake.ExecutedCommands()
	if len(cmds) != 1 || cmds[0].Action != schedule.ActionTurnOff {
		t.Fatalf("executed commands = %+v", cmds)
	}
}

func TestDispatchDisabledSubjectFails(t *testing.T) {
	t.Parallel()
	st, dir, fake := newFixture(t)
	dir.AddChannel(&supla.Channel{ID: 10, IODeviceID: 100, UserID: 1, Function: supla.FunctionLightSwitch, Enabled: false})
	fake.SetDeviceConnected(100, true)

	sch := lightSchedule(t, st)
	exec := claimOne(t, st, sch, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))

	d := New(Config{Timeout: time.Second}, dir, fake, st, logx.Nop())
	got, err := d.Dispatch(context.Background(), exec, sch)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != schedule.ResultFailure {
		t.Fatalf("result = %s, want FAILURE", got)
	}
	if len(fake.ExecutedCommands()) != 0 {
		t.Fatal("no command should reach the server for a disabled subject")
	}
}

func TestDispatchCancelledBeforeSendLeavesClaim(t *testing.T) {
	t.Parallel()
	st, dir, fake := newFixture(t)
	dir.AddChannel(&supla.Channel{ID: 10, IODeviceID: 100, UserID: 1, Function: supla.FunctionLightSwitch, Enabled: true})
	fake.SetDeviceConnected(100, true)

	sch := lightSchedule(t, st)
	exec := claimOne(t, st, sch, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(Config{Timeout: time.Second}, dir, fake, st, logx.Nop())
	if _, err := d.Dispatch(ctx, exec, sch); err == nil {
		t.Fatal("expected error for a dispatch cancelled before the command")
	}

	// No command reached the server and no outcome was recorded; the claim
	// stays in flight for the TTL reclaim.
	if len(fake.ExecutedCommands()) != 0 {
		t.Fatal("command executed despite cancelled context")
	}
	execs, err := st.ListExecutions(context.Background(), sch.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if execs[0].Result != schedule.ResultInFlight {
		t.Fatalf("result = %s, want IN_FLIGHT", execs[0].Result)
	}
}

func TestValidateActionParams(t *testing.T) {
	t.Parallel()
	shutter := &supla.Channel{ID: 1, UserID: 1, Function: supla.FunctionRollerShutter, Enabled: true}
	light := &supla.Channel{ID: 2, UserID: 1, Function: supla.FunctionLightSwitch, Enabled: true}
	rgb := &supla.Channel{ID: 3, UserID: 1, Function: supla.FunctionRGBLighting, Enabled: true}

	tests := []struct {
		name    string
		subject schedule.Subject
		action  schedule.Action
		params  map[string]string
		ok      bool
		want    map[string]string
	}{
		{name: "turn-on no params", subject: light, action: schedule.ActionTurnOn, ok: true, want: map[string]string{}},
		{name: "turn-on stray param", subject: light, action: schedule.ActionTurnOn, params: map[string]string{"x": "1"}, ok: false},
		{name: "unsupported action", subject: light, action: schedule.ActionShut, ok: false},
		{name: "reveal-partially", subject: shutter, action: schedule.ActionRevealPartially, params: map[string]string{"percentage": " 40 "}, ok: true, want: map[string]string{"percentage": "40"}},
		{name: "reveal-partially missing", subject: shutter, action: schedule.ActionRevealPartially, ok: false},
		{name: "reveal-partially out of range", subject: shutter, action: schedule.ActionRevealPartially, params: map[string]string{"percentage": "120"}, ok: false},
		{name: "rgbw hex color", subject: rgb, action: schedule.ActionSetRGBW, params: map[string]string{"color": "0xFF0000"}, ok: true, want: map[string]string{"color": "16711680", "color_brightness": "100", "brightness": "100"}},
		{name: "rgbw bad color", subject: rgb, action: schedule.ActionSetRGBW, params: map[string]string{"color": "red"}, ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateActionParams(tt.subject, tt.action, tt.params)
			if tt.ok {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				for k, v := range tt.want {
					if got[k] != v {
						t.Fatalf("param %s = %q, want %q", k, got[k], v)
					}
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, schedule.ErrInvalidActionParams) {
				t.Fatalf("error %v is not ErrInvalidActionParams", err)
			}
		})
	}
}

package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/lesny8/supla-cloud/internal/schedule"
	"github.com/lesny8/supla-cloud/internal/storage"
	"github.com/lesny8/supla-cloud/internal/supla"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

// Config controls dispatch behavior.
type Config struct {
	// Timeout bounds one action call against supla-server.
	Timeout time.Duration
	// RatePerSec caps outbound commands across all workers (0 = 10/s).
	RatePerSec int
}

// SubjectResolver looks up a schedule's subject at dispatch and save time.
type SubjectResolver interface {
	Resolve(ctx context.Context, userID int64, st schedule.SubjectType, id int64) (schedule.Subject, error)
}

// Dispatcher executes claimed executions and records their outcome.
type Dispatcher struct {
	cfg      Config
	resolver SubjectResolver
	server   supla.Server
	store    *storage.Store
	limiter  *rate.Limiter
	log      logx.Logger
}

func New(cfg Config, resolver SubjectResolver, server supla.Server, store *storage.Store, log logx.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:      cfg,
		resolver: resolver,
		server:   server,
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		log:      log,
	}
}

// Dispatch runs one claimed execution to a terminal result and records it.
// It never returns an error for dispatch failures — those become the recorded
// result; only the recording itself can fail, and a lost record race
// (ErrAlreadyRecorded) is swallowed as an expected concurrency outcome.
//
// A context cancelled before the command was attempted (engine shutdown while
// rate-limited) is the exception: nothing is recorded, the claim is left in
// flight and becomes reclaimable after the claim TTL.
func (d *Dispatcher) Dispatch(ctx context.Context, exec *schedule.Execution, sch *schedule.Schedule) (schedule.Result, error) {
	result, err := d.execute(ctx, sch)
	if err != nil {
		return "", err
	}

	err = d.store.RecordResult(ctx, exec.ID, result, time.Now())
	if errors.Is(err, schedule.ErrAlreadyRecorded) {
		d.log.Debug("execution result already recorded; skipping",
			logx.Int64("execution_id", exec.ID), logx.Int64("schedule_id", sch.ID))
		return result, nil
	}
	if err != nil {
		return result, err
	}

	d.log.Info("execution dispatched",
		logx.Int64("schedule_id", sch.ID),
		logx.Int64("execution_id", exec.ID),
		logx.Time("planned_at", exec.PlannedAt),
		logx.String("result", string(result)))
	return result, nil
}

// execute runs the command and maps its outcome to a result. A non-nil error
// means the command was never attempted and nothing should be recorded.
func (d *Dispatcher) execute(ctx context.Context, sch *schedule.Schedule) (schedule.Result, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	subject, err := d.resolver.Resolve(callCtx, sch.UserID, sch.SubjectType, sch.SubjectID)
	if err != nil {
		d.log.Warn("subject resolution failed",
			logx.Int64("schedule_id", sch.ID), logx.Err(err))
		return schedule.ResultFailure, nil
	}
	if !subject.SubjectEnabled() {
		return schedule.ResultFailure, nil
	}

	// Channels get a reachability probe first; group fan-out has no single
	// device to probe.
	if sch.SubjectType == schedule.SubjectChannel {
		connected, err := d.server.IsDeviceConnected(callCtx, sch.UserID, subject.DeviceID())
		if err != nil || !connected {
			return schedule.ResultDeviceUnreachable, nil
		}
	}

	outcome, err := d.server.ExecuteAction(callCtx, sch.UserID, subject, sch.Action, sch.ActionParams)
	if err != nil && outcome != supla.OutcomeUnreachable {
		d.log.Warn("action execution failed",
			logx.Int64("schedule_id", sch.ID), logx.Err(err))
	}

	switch outcome {
	case supla.OutcomeAcknowledged:
		return schedule.ResultSuccess, nil
	case supla.OutcomeAcknowledgedWithoutConfirmation:
		return schedule.ResultExecutedWithoutConfirmation, nil
	case supla.OutcomeUnreachable:
		return schedule.ResultDeviceUnreachable, nil
	default:
		return schedule.ResultFailure, nil
	}
}

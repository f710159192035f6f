package scheduler

import (
	"context"
	"time"

	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

// loop runs fn once immediately and then on every tick until stopped. The
// immediate run means a fresh boot fills horizons and claims overdue work
// without waiting a full interval.
func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}, interval time.Duration, fn func(ctx context.Context)) {
	defer s.wg.Done()

	fn(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// claimDue drains the store of due executions, one claim at a time, and hands
// them to the worker pool. Enqueueing blocks when all workers are busy; the
// claim is already ours, so backpressure here just delays the dispatch.
func (s *Service) claimDue(ctx context.Context, stopCh <-chan struct{}, queue chan<- claimed) {
	cfg := s.snapshot()
	for {
		exec, err := s.store.ClaimDue(ctx, time.Now(), s.instanceID, cfg.ClaimTTL)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("claim failed", logx.Err(err))
			}
			return
		}
		if exec == nil {
			return
		}
		sch, err := s.store.GetSchedule(ctx, exec.ScheduleID)
		if err != nil {
			// Schedule deleted between claim and load; the cascade takes the
			// execution row with it, nothing to record.
			s.log.Debug("claimed execution lost its schedule",
				logx.Int64("execution_id", exec.ID),
				logx.Int64("schedule_id", exec.ScheduleID))
			continue
		}
		lateness := time.Since(exec.PlannedAt)
		if lateness > time.Minute {
			s.log.Debug("dispatching late execution",
				logx.Int64("schedule_id", sch.ID),
				logx.Duration("late_by", lateness))
		}
		select {
		case queue <- claimed{exec: exec, sch: sch}:
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		}
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan claimed, idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case c := <-queue:
			if _, err := s.dispatcher.Dispatch(ctx, c.exec, c.sch); err != nil && ctx.Err() == nil {
				s.log.Warn("result recording failed",
					logx.Int("worker", idx),
					logx.Int64("execution_id", c.exec.ID),
					logx.Err(err))
			}
		}
	}
}

func (s *Service) refill(ctx context.Context) {
	if err := s.mgr.RefillHorizons(ctx, s.snapshot().RefillWindow); err != nil && ctx.Err() == nil {
		s.log.Warn("horizon refill incomplete", logx.Err(err))
	}
}

func (s *Service) sweep(ctx context.Context) {
	n, err := s.mgr.SweepBrokenSchedules(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Warn("auto-disable sweep failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("auto-disable sweep finished", logx.Int("disabled", n))
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lesny8/supla-cloud/internal/schedule"
)

// AppendExecutions materializes the given planned timestamps for a schedule.
// Timestamps already present are skipped, so a repeated refill is a no-op;
// new rows get consecutive sequence numbers after the current maximum. The
// whole batch is one transaction — a concurrent disable sees either all rows
// or none.
func (s *Store) AppendExecutions(ctx context.Context, scheduleID int64, timestamps []time.Time) (int, error) {
	if len(timestamps) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM scheduled_executions WHERE schedule_id=?`,
		scheduleID).Scan(&maxSeq)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, ts := range timestamps {
		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM scheduled_executions WHERE schedule_id=? AND planned_at=?`,
			scheduleID, ts.UnixMilli()).Scan(&exists)
		if err != nil {
			return 0, err
		}
		if exists > 0 {
			continue
		}
		maxSeq++
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scheduled_executions(schedule_id, seq, planned_at, result)
			 VALUES(?,?,?,?)`,
			scheduleID, maxSeq, ts.UnixMilli(), string(schedule.ResultPending))
		if err != nil {
			return 0, err
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ClaimDue atomically claims one due execution for owner and returns it, or
// nil when there is nothing to claim. The claim is a conditional transition
// PENDING -> IN_FLIGHT; under concurrent callers exactly one wins a given row
// and the losers move on. In-flight rows whose claim is older than claimTTL
// (crashed worker) are claimable again, so no execution is lost on worker
// failure.
//
// At most one execution per schedule is in flight at a time: a schedule with a
// live claim is skipped until that claim resolves or goes stale.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, owner string, claimTTL time.Duration) (*schedule.Execution, error) {
	if claimTTL <= 0 {
		claimTTL = 5 * time.Minute
	}
	stale := now.Add(-claimTTL).UnixMilli()
	nowMs := now.UnixMilli()

	candidates, err := s.dueCandidates(ctx, nowMs, stale)
	if err != nil {
		return nil, err
	}
	for _, id := range candidates {
		ok, err := s.tryClaim(ctx, id, owner, nowMs, stale)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost the race for this row; try the next candidate.
			continue
		}
		return s.getExecution(ctx, id)
	}
	return nil, nil
}

func (s *Store) dueCandidates(ctx context.Context, nowMs, stale int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id FROM scheduled_executions e
		 WHERE ((e.result=? AND e.planned_at<=?) OR (e.result=? AND e.claimed_at<=?))
		   AND NOT EXISTS (
		     SELECT 1 FROM scheduled_executions live
		     WHERE live.schedule_id = e.schedule_id AND live.result=? AND live.claimed_at>? AND live.id <> e.id)
		 ORDER BY e.planned_at
		 LIMIT 16`,
		string(schedule.ResultPending), nowMs,
		string(schedule.ResultInFlight), stale,
		string(schedule.ResultInFlight), stale)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		candidates = append(candidates, id)
	}
	return candidates, rows.Err()
}

// tryClaim performs the conditional PENDING/stale -> IN_FLIGHT transition. The
// candidate query also filters on the live-claim guard, but another process can
// claim a sibling row between that query and this update, so the guard is
// repeated here; rows-affected decides the winner.
func (s *Store) tryClaim(ctx context.Context, id int64, owner string, nowMs, stale int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_executions SET result=?, claimed_by=?, claimed_at=?
		 WHERE id=? AND ((result=? AND planned_at<=?) OR (result=? AND claimed_at<=?))
		   AND NOT EXISTS (
		     SELECT 1 FROM scheduled_executions live
		     WHERE live.schedule_id = scheduled_executions.schedule_id
		       AND live.result=? AND live.claimed_at>? AND live.id <> scheduled_executions.id)`,
		string(schedule.ResultInFlight), owner, nowMs,
		id,
		string(schedule.ResultPending), nowMs,
		string(schedule.ResultInFlight), stale,
		string(schedule.ResultInFlight), stale)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordResult performs the terminal transition of a claimed execution.
// It returns schedule.ErrAlreadyRecorded if the row is not in flight.
func (s *Store) RecordResult(ctx context.Context, executionID int64, result schedule.Result, firedAt time.Time) error {
	if !result.Resolved() {
		return errors.New("result must be terminal")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_executions SET result=?, fired_at=? WHERE id=? AND result=?`,
		string(result), firedAt.UnixMilli(), executionID, string(schedule.ResultInFlight))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schedule.ErrAlreadyRecorded
	}
	return nil
}

// DeletePendingExecutions removes every not-yet-claimed row of the schedule in
// one statement, so a concurrent dispatcher never observes a half-deleted
// horizon. Resolved and in-flight rows are kept for the audit trail.
func (s *Store) DeletePendingExecutions(ctx context.Context, scheduleID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_executions WHERE schedule_id=? AND result=?`,
		scheduleID, string(schedule.ResultPending))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecentOutcomes returns the schedule's resolved (timestamp, result) pairs
// with planned timestamps in [since, until], ordered by time. It feeds the
// auto-disable policy.
func (s *Store) RecentOutcomes(ctx context.Context, scheduleID int64, since, until time.Time) ([]schedule.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT planned_at, result FROM scheduled_executions
		 WHERE schedule_id=? AND planned_at>=? AND planned_at<=? AND result NOT IN (?,?)
		 ORDER BY planned_at`,
		scheduleID, since.UnixMilli(), until.UnixMilli(),
		string(schedule.ResultPending), string(schedule.ResultInFlight))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Outcome
	for rows.Next() {
		var (
			ms     int64
			result string
		)
		if err := rows.Scan(&ms, &result); err != nil {
			return nil, err
		}
		out = append(out, schedule.Outcome{PlannedAt: time.UnixMilli(ms).UTC(), Result: schedule.Result(result)})
	}
	return out, rows.Err()
}

// LastPlannedAt returns the newest materialized timestamp of the schedule,
// or ok=false when no rows exist. Refill continues from here.
func (s *Store) LastPlannedAt(ctx context.Context, scheduleID int64) (time.Time, bool, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(planned_at) FROM scheduled_executions WHERE schedule_id=?`,
		scheduleID).Scan(&ms)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

// ListExecutions returns the schedule's full log in planned order.
func (s *Store) ListExecutions(ctx context.Context, scheduleID int64) ([]schedule.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, seq, planned_at, fired_at, result, claimed_by, claimed_at
		 FROM scheduled_executions WHERE schedule_id=? ORDER BY planned_at`,
		scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) getExecution(ctx context.Context, id int64) (*schedule.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, schedule_id, seq, planned_at, fired_at, result, claimed_by, claimed_at
		 FROM scheduled_executions WHERE id=?`, id)
	return scanExecution(row)
}

func scanExecution(row rowScanner) (*schedule.Execution, error) {
	var (
		e         schedule.Execution
		plannedMs int64
		firedMs   sql.NullInt64
		result    string
		claimedBy sql.NullString
		claimedMs sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.ScheduleID, &e.Seq, &plannedMs, &firedMs, &result, &claimedBy, &claimedMs)
	if err != nil {
		return nil, err
	}
	e.PlannedAt = time.UnixMilli(plannedMs).UTC()
	e.FiredAt = msToTime(firedMs)
	e.Result = schedule.Result(result)
	e.ClaimedBy = claimedBy.String
	e.ClaimedAt = msToTime(claimedMs)
	return &e, nil
}

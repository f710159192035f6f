package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lesny8/supla-cloud/internal/schedule"
)

const scheduleColumns = `id, user_id, subject_type, subject_id, action_id, action_params,
	time_expression, mode, timezone, enabled, created_at, updated_at`

// CreateSchedule inserts sch and fills in its ID and timestamps.
func (s *Store) CreateSchedule(ctx context.Context, sch *schedule.Schedule) error {
	now := time.Now()
	sch.CreatedAt = now
	sch.UpdatedAt = now
	params, err := encodeParams(sch.ActionParams)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(user_id, subject_type, subject_id, action_id, action_params,
		  time_expression, mode, timezone, enabled, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		sch.UserID, string(sch.SubjectType), sch.SubjectID, string(sch.Action), params,
		sch.TimeExpression, string(sch.Mode), sch.Timezone, boolInt(sch.Enabled),
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return err
	}
	sch.ID, err = res.LastInsertId()
	return err
}

// UpdateSchedule persists the mutable fields of sch.
func (s *Store) UpdateSchedule(ctx context.Context, sch *schedule.Schedule) error {
	sch.UpdatedAt = time.Now()
	params, err := encodeParams(sch.ActionParams)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET subject_type=?, subject_id=?, action_id=?, action_params=?,
		  time_expression=?, mode=?, timezone=?, enabled=?, updated_at=?
		 WHERE id=?`,
		string(sch.SubjectType), sch.SubjectID, string(sch.Action), params,
		sch.TimeExpression, string(sch.Mode), sch.Timezone, boolInt(sch.Enabled),
		sch.UpdatedAt.UnixMilli(), sch.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("schedule %d not found", sch.ID)
	}
	return err
}

// SetScheduleEnabled flips just the enabled flag.
func (s *Store) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled=?, updated_at=? WHERE id=?`,
		boolInt(enabled), time.Now().UnixMilli(), id)
	return err
}

func (s *Store) GetSchedule(ctx context.Context, id int64) (*schedule.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id=?`, id)
	sch, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d not found", id)
	}
	return sch, err
}

// DeleteSchedule removes the schedule; its execution log goes with it
// (ON DELETE CASCADE).
func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id=?`, id)
	return err
}

func (s *Store) ListEnabledSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE enabled=1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ListSchedulesForChannels returns the user's schedules targeting any of the
// given channel ids directly.
func (s *Store) ListSchedulesForChannels(ctx context.Context, userID int64, channelIDs []int64) ([]*schedule.Schedule, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(channelIDs)), ",")
	args := make([]any, 0, len(channelIDs)+2)
	args = append(args, userID, string(schedule.SubjectChannel))
	for _, id := range channelIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE user_id=? AND subject_type=? AND subject_id IN (`+placeholders+`)
		 ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*schedule.Schedule, error) {
	var (
		sch                  schedule.Schedule
		subjectType, mode    string
		action, params       string
		enabled              int
		createdMs, updatedMs int64
	)
	err := row.Scan(&sch.ID, &sch.UserID, &subjectType, &sch.SubjectID, &action, &params,
		&sch.TimeExpression, &mode, &sch.Timezone, &enabled, &createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	sch.SubjectType = schedule.SubjectType(subjectType)
	sch.Action = schedule.Action(action)
	sch.Mode = schedule.Mode(mode)
	sch.Enabled = enabled != 0
	sch.CreatedAt = time.UnixMilli(createdMs).UTC()
	sch.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	if err := json.Unmarshal([]byte(params), &sch.ActionParams); err != nil {
		return nil, fmt.Errorf("schedule %d: decode action params: %w", sch.ID, err)
	}
	return &sch, nil
}

func scanSchedules(rows *sql.Rows) ([]*schedule.Schedule, error) {
	var out []*schedule.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

func encodeParams(p map[string]string) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode action params: %w", err)
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

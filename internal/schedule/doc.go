// Package schedule holds the domain model of the schedule execution engine.
//
// # Overview
//
// A Schedule is a user-defined recurring rule ("turn on channel X every day at
// 18:00"): a time expression plus an action on a subject (channel or channel
// group). The engine materializes a Schedule into concrete Executions — one row
// per planned occurrence — dispatches them when due, and records the outcome.
//
// # Recurrence modes
//
// Three modes are supported:
//
//   - ModeOnce: the expression is an RFC3339 timestamp; the schedule fires once.
//   - ModeInterval: the expression is a cadence — a Go duration string ("30m")
//     or compact HH:MM ("02:30" = every 2h30m); occurrences are computed
//     arithmetically, aligned to the cadence.
//   - ModeCron: the expression is a 5-field cron line (minute hour dom month
//     dow, with *, ranges, steps and lists) or a descriptor like "@daily",
//     evaluated in the schedule's timezone.
//
// Expression evaluation is pure: no side effects, deterministic for a given
// (expression, reference instant, timezone).
package schedule

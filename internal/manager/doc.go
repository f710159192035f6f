// Package manager orchestrates the schedule lifecycle: save-time validation,
// enable/disable, horizon generation and refill, next-run-date preview,
// timezone recalculation, and the auto-disable sweep over execution history.
//
// # Horizon
//
// An enabled schedule keeps a forward window of pre-materialized executions
// (default one day). Refill is idempotent: it only appends occurrences beyond
// the newest already-materialized timestamp, so repeated sweeps produce no
// duplicates and no gaps. Every structural edit tears the pending horizon down
// and rebuilds it; resolved rows are never touched.
//
// # Auto-disable
//
// A periodic sweep disables schedules whose resolved outcomes inside a
// trailing window are uniformly failures. A single SUCCESS or
// EXECUTED_WITHOUT_CONFIRMATION in the window keeps the schedule alive;
// schedules with no resolved outcome in the window are left alone. Each
// disable appends an audit entry and publishes a bus event.
package manager

// Package storage is the durable home of schedules and their execution log.
//
// It is SQLite-backed (modernc.org/sqlite, no cgo) and is the engine's sole
// mutual-exclusion point: dispatcher workers — possibly several processes —
// race on ClaimDue, which performs a single conditional state transition
// (PENDING -> IN_FLIGHT) so that exactly one worker wins a given execution.
// Losers get nothing to claim; no in-process lock is involved.
//
// The execution log is append-only per schedule: planned timestamps are unique
// and strictly increasing, results are recorded exactly once, and the only
// other mutation is the bulk deletion of PENDING rows when a schedule is
// edited, disabled or deleted. Resolved rows survive as an audit trail.
package storage

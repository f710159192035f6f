// Package scheduler runs the periodic loops of the schedule execution engine.
//
// # Overview
//
// Three loops share one service lifecycle:
//
//   - The dispatch tick claims due executions from the store and hands them to
//     a worker pool, which resolves the subject and fires the action against
//     supla-server.
//   - The refill job extends every enabled schedule's horizon of materialized
//     executions.
//   - The sweep job disables schedules whose recent executions are uniformly
//     failing.
//
// # Exactly-once
//
// Claiming is an atomic PENDING -> IN_FLIGHT transition in the store, so an
// execution is dispatched by exactly one worker even when several engine
// instances poll the same database. A claim abandoned by a crashed instance
// becomes reclaimable after the claim TTL.
//
// # Lifecycle
//
// The Service can be started/stopped at runtime (e.g. via config hot reload).
// Apply() updates tunables in place; interval changes take effect on the next
// start.
package scheduler

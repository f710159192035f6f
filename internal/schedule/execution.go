package schedule

import "time"

// Result is the terminal (or transient) state of one execution.
type Result string

const (
	// ResultPending: materialized, waiting for its planned timestamp.
	ResultPending Result = "PENDING"
	// ResultInFlight: claimed by a dispatcher worker; transient.
	ResultInFlight Result = "IN_FLIGHT"
	ResultSuccess  Result = "SUCCESS"
	// ResultDeviceUnreachable: the subject's device was offline or timed out.
	ResultDeviceUnreachable Result = "DEVICE_UNREACHABLE"
	ResultFailure           Result = "FAILURE"
	// ResultExecutedWithoutConfirmation: the command was accepted but the
	// subject gave no definitive acknowledgment.
	ResultExecutedWithoutConfirmation Result = "EXECUTED_WITHOUT_CONFIRMATION"
)

// Resolved reports whether r is terminal (the execution already ran).
func (r Result) Resolved() bool {
	switch r {
	case ResultSuccess, ResultDeviceUnreachable, ResultFailure, ResultExecutedWithoutConfirmation:
		return true
	}
	return false
}

// Failed reports whether r counts as a failure for the auto-disable policy.
// EXECUTED_WITHOUT_CONFIRMATION is healthy: the command was accepted even
// without an ack.
func (r Result) Failed() bool {
	return r == ResultDeviceUnreachable || r == ResultFailure
}

// Execution is one concrete materialized occurrence of a schedule.
//
// Invariants (enforced by the store):
//   - per schedule, PlannedAt is strictly increasing and unique;
//   - Seq is monotonic within a schedule, for ordering and dedup;
//   - PENDING -> IN_FLIGHT -> terminal happens exactly once per row.
type Execution struct {
	ID         int64
	ScheduleID int64
	Seq        int64
	PlannedAt  time.Time
	// FiredAt is zero until the execution was dispatched.
	FiredAt time.Time
	Result  Result
	// ClaimedBy/ClaimedAt identify the worker holding the in-flight claim.
	// A stale claim (crashed worker) becomes reclaimable after the claim TTL.
	ClaimedBy string
	ClaimedAt time.Time
}

// Outcome is one resolved (timestamp, result) pair of a schedule's history,
// as consumed by the auto-disable policy.
type Outcome struct {
	PlannedAt time.Time
	Result    Result
}

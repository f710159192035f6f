package schedule

import "errors"

// Error taxonomy of the engine. Caller-input errors surface synchronously at
// save/enable time; dispatch-time failures are recorded in execution history
// instead of being raised.
var (
	// ErrInvalidExpression: the recurrence rule cannot be parsed. Surfaced at
	// save time, never at dispatch time.
	ErrInvalidExpression = errors.New("invalid time expression")

	// ErrUnsatisfiable: the rule parses but yields no future occurrence within
	// the validation window, so the schedule cannot be armed.
	ErrUnsatisfiable = errors.New("schedule cannot be enabled")

	ErrSubjectNotFound     = errors.New("schedule subject not found")
	ErrNotOwnedByAccount   = errors.New("subject does not belong to the account")
	ErrInvalidActionParams = errors.New("invalid action parameters")

	// ErrAlreadyRecorded: the execution is not in-flight; a losing racer or a
	// double record. Expected under concurrency, silently skipped by callers.
	ErrAlreadyRecorded = errors.New("execution result already recorded")
)

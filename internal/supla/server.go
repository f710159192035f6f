package supla

import (
	"context"

	"github.com/lesny8/supla-cloud/internal/schedule"
)

// Outcome classifies one action-execution attempt against a subject.
type Outcome int

const (
	// OutcomeAcknowledged: the server confirmed the action.
	OutcomeAcknowledged Outcome = iota
	// OutcomeAcknowledgedWithoutConfirmation: the command was accepted but the
	// subject gives no definitive acknowledgment (e.g. channel group fan-out).
	OutcomeAcknowledgedWithoutConfirmation
	// OutcomeUnreachable: the device is offline or the server did not answer
	// within the deadline.
	OutcomeUnreachable
	// OutcomeError: the server answered with a failure.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "acknowledged"
	case OutcomeAcknowledgedWithoutConfirmation:
		return "acknowledged-without-confirmation"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "error"
	}
}

// Server is the boundary to supla-server. Calls must respect ctx deadlines;
// the dispatcher always passes a bounded context.
type Server interface {
	// ExecuteAction performs action with normalized params on the subject.
	ExecuteAction(ctx context.Context, userID int64, subject schedule.Subject, action schedule.Action, params map[string]string) (Outcome, error)
	// IsDeviceConnected reports device reachability.
	IsDeviceConnected(ctx context.Context, userID, deviceID int64) (bool, error)
}

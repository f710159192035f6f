package supla

import (
	"context"
	"errors"
	"sync"

	"github.com/lesny8/supla-cloud/internal/schedule"
)

// Fake is an in-memory Server for tests. Each instance owns its state —
// construct one per test; there is deliberately no shared registry of
// executed commands or scripted responses.
type Fake struct {
	mu sync.Mutex

	// connected device ids; everything else reports unreachable.
	connected map[int64]bool
	// scripted outcomes per subject id, consumed in order. Empty means
	// acknowledge everything.
	scripted map[int64][]Outcome

	executed []FakeCommand
}

// FakeCommand records one ExecuteAction call.
type FakeCommand struct {
	UserID  int64
	Subject schedule.Subject
	Action  schedule.Action
	Params  map[string]string
}

func NewFake() *Fake {
	return &Fake{
		connected: map[int64]bool{},
		scripted:  map[int64][]Outcome{},
	}
}

var _ Server = (*Fake)(nil)

// SetDeviceConnected marks a device reachable.
func (f *Fake) SetDeviceConnected(deviceID int64, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[deviceID] = connected
}

// ScriptOutcome queues an outcome for the subject's next executions.
func (f *Fake) ScriptOutcome(subjectID int64, outcomes ...Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[subjectID] = append(f.scripted[subjectID], outcomes...)
}

// ExecutedCommands returns a copy of everything executed so far.
func (f *Fake) ExecutedCommands() []FakeCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCommand, len(f.executed))
	copy(out, f.executed)
	return out
}

func (f *Fake) ExecuteAction(ctx context.Context, userID int64, subject schedule.Subject, action schedule.Action, params map[string]string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeUnreachable, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.executed = append(f.executed, FakeCommand{UserID: userID, Subject: subject, Action: action, Params: params})

	id := subject.SubjectID()
	if queue := f.scripted[id]; len(queue) > 0 {
		out := queue[0]
		f.scripted[id] = queue[1:]
		if out == OutcomeUnreachable {
			return out, errors.New("scripted unreachable")
		}
		return out, nil
	}
	return OutcomeAcknowledged, nil
}

func (f *Fake) IsDeviceConnected(ctx context.Context, userID, deviceID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[deviceID], nil
}

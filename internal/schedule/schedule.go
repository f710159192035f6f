package schedule

import (
	"strings"
	"time"
)

// Mode selects how a schedule's time expression is interpreted.
type Mode string

const (
	ModeOnce     Mode = "once"
	ModeInterval Mode = "interval"
	ModeCron     Mode = "cron"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOnce:
		return ModeOnce, true
	case ModeInterval:
		return ModeInterval, true
	case ModeCron:
		return ModeCron, true
	}
	return "", false
}

// SubjectType discriminates what a schedule acts on.
type SubjectType string

const (
	SubjectChannel      SubjectType = "channel"
	SubjectChannelGroup SubjectType = "channelGroup"
)

// Action identifies the operation a schedule performs on its subject.
type Action string

const (
	ActionTurnOn          Action = "turn-on"
	ActionTurnOff         Action = "turn-off"
	ActionOpen            Action = "open"
	ActionClose           Action = "close"
	ActionShut            Action = "shut"
	ActionReveal          Action = "reveal"
	ActionRevealPartially Action = "reveal-partially"
	ActionSetRGBW         Action = "set-rgbw"
)

// Schedule is a user-defined recurring rule mapping a time expression to an
// action on a subject.
type Schedule struct {
	ID          int64
	UserID      int64
	SubjectType SubjectType
	SubjectID   int64
	Action      Action
	// ActionParams is an opaque key-value payload validated against the
	// subject's capability set when the schedule is saved.
	ActionParams map[string]string
	// TimeExpression is the recurrence rule, interpreted per Mode.
	TimeExpression string
	Mode           Mode
	// Timezone is an IANA name; wall-clock semantics of the expression follow it.
	Timezone  string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the schedule's timezone, falling back to UTC.
func (s *Schedule) Location() *time.Location {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Subject is what a schedule acts upon. A subject declares the actions it
// supports; the dispatcher is polymorphic over that capability set instead of
// branching on concrete subject kinds.
type Subject interface {
	SubjectID() int64
	SubjectType() SubjectType
	// DeviceID returns the owning I/O device for channels, 0 for groups.
	DeviceID() int64
	// SubjectEnabled reports whether the subject itself is armed; a schedule
	// acting on a disabled subject cannot stay enabled.
	SubjectEnabled() bool
	// Capabilities returns the declared set of supported actions.
	Capabilities() []Action
}

// Supports reports whether action is in the subject's capability set.
func Supports(subj Subject, action Action) bool {
	for _, a := range subj.Capabilities() {
		if a == action {
			return true
		}
	}
	return false
}

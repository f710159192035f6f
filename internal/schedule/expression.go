package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the classic 5-field grammar plus descriptors ("@daily",
// "@every 55m"). No seconds field: the engine's resolution is one minute.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Expression is a parsed, immutable recurrence rule. Evaluation is pure and
// deterministic for a given (expression, from, timezone).
type Expression struct {
	mode Mode
	loc  *time.Location

	once  time.Time     // ModeOnce
	every time.Duration // ModeInterval
	cron  cron.Schedule // ModeCron
}

// ParseExpression parses raw according to mode, evaluating wall-clock fields in
// loc (nil means UTC). It returns ErrInvalidExpression (wrapped with detail)
// when raw cannot be parsed, so bad rules surface at save time, never at
// dispatch time.
func ParseExpression(mode Mode, raw string, loc *time.Location) (*Expression, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	e := &Expression{mode: mode, loc: loc}
	switch mode {
	case ModeOnce:
		t, err := parseOnce(raw, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, raw, err)
		}
		e.once = t
	case ModeInterval:
		d, err := parseCadence(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, raw, err)
		}
		e.every = d
	case ModeCron:
		sched, err := cronParser.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, raw, err)
		}
		e.cron = sched
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidExpression, mode)
	}
	return e, nil
}

// NextOccurrences returns up to limit strictly increasing future instants of
// the expression, each within (from, from+window] — or [from, from+window]
// when inclusive. An empty result means no occurrence falls inside the window;
// the search never scans unbounded time.
func (e *Expression) NextOccurrences(from time.Time, window time.Duration, limit int, inclusive bool) []time.Time {
	if window <= 0 || limit <= 0 {
		return nil
	}
	horizon := from.Add(window)

	switch e.mode {
	case ModeOnce:
		t := e.once
		if afterFrom(t, from, inclusive) && !t.After(horizon) {
			return []time.Time{t}
		}
		return nil

	case ModeInterval:
		// Cadence-aligned arithmetic: occurrences sit on multiples of the
		// interval since the epoch, so refills stay deterministic regardless
		// of when the horizon is regenerated.
		t := from.Truncate(e.every)
		if !afterFrom(t, from, inclusive) {
			t = t.Add(e.every)
		}
		var out []time.Time
		for !t.After(horizon) && len(out) < limit {
			out = append(out, t)
			t = t.Add(e.every)
		}
		return out

	case ModeCron:
		// cron.Schedule.Next is strictly-after; back up one second so an
		// occurrence exactly at from is kept in inclusive mode.
		start := from.In(e.loc)
		if inclusive {
			start = start.Add(-time.Second)
		}
		var out []time.Time
		for len(out) < limit {
			next := e.cron.Next(start)
			if next.IsZero() || next.After(horizon) {
				break
			}
			out = append(out, next)
			start = next
		}
		return out
	}
	return nil
}

func afterFrom(t, from time.Time, inclusive bool) bool {
	if inclusive {
		return !t.Before(from)
	}
	return t.After(from)
}

func parseOnce(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	// Zone-less forms follow the schedule's timezone.
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a timestamp")
}

// parseCadence accepts a Go duration string ("30m", "2h30m") or the compact
// HH:MM form where "00:50" means every 50 minutes.
func parseCadence(raw string) (time.Duration, error) {
	if parts := strings.Split(raw, ":"); len(parts) == 2 {
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 == nil && err2 == nil {
			if h < 0 || m < 0 || m > 59 || (h == 0 && m == 0) {
				return 0, fmt.Errorf("invalid HH:MM cadence")
			}
			return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
		}
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < time.Minute {
		return 0, fmt.Errorf("cadence below 1 minute")
	}
	return d, nil
}

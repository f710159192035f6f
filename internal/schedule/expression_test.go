package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseExpressionVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		mode Mode
		raw  string
		ok   bool
	}{
		{name: "cron", mode: ModeCron, raw: "*/5 * * * *", ok: true},
		{name: "cron descriptor", mode: ModeCron, raw: "@daily", ok: true},
		{name: "cron six fields", mode: ModeCron, raw: "0 0 * * * *", ok: false},
		{name: "cron garbage", mode: ModeCron, raw: "every day at noon", ok: false},
		{name: "interval duration", mode: ModeInterval, raw: "30m", ok: true},
		{name: "interval hhmm", mode: ModeInterval, raw: "02:30", ok: true},
		{name: "interval zero", mode: ModeInterval, raw: "00:00", ok: false},
		{name: "interval sub-minute", mode: ModeInterval, raw: "5s", ok: false},
		{name: "once rfc3339", mode: ModeOnce, raw: "2024-06-01T18:00:00Z", ok: true},
		{name: "once local", mode: ModeOnce, raw: "2024-06-01 18:00", ok: true},
		{name: "once garbage", mode: ModeOnce, raw: "tomorrow", ok: false},
		{name: "empty", mode: ModeCron, raw: "", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpression(tt.mode, tt.raw, time.UTC)
			if tt.ok && err != nil {
				t.Fatalf("ParseExpression(%q) error: %v", tt.raw, err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("ParseExpression(%q) expected error", tt.raw)
				}
				if !errors.Is(err, ErrInvalidExpression) {
					t.Fatalf("error %v is not ErrInvalidExpression", err)
				}
			}
		})
	}
}

func TestNextOccurrencesCronEveryFiveMinutes(t *testing.T) {
	t.Parallel()
	e, err := ParseExpression(ModeCron, "*/5 * * * *", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := e.NextOccurrences(from, 24*time.Hour, 1000, false)

	if len(got) != 288 {
		t.Fatalf("got %d occurrences, want 288", len(got))
	}
	if !got[0].Equal(from.Add(5 * time.Minute)) {
		t.Fatalf("first = %v, want %v", got[0], from.Add(5*time.Minute))
	}
	if !got[len(got)-1].Equal(from.Add(24 * time.Hour)) {
		t.Fatalf("last = %v, want %v", got[len(got)-1], from.Add(24*time.Hour))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].After(got[i-1]) {
			t.Fatalf("occurrences not strictly increasing at %d: %v then %v", i, got[i-1], got[i])
		}
	}
}

func TestNextOccurrencesWithinWindow(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mode   Mode
		raw    string
		window time.Duration
		limit  int
		want   int
	}{
		{name: "daily cron in one day", mode: ModeCron, raw: "0 18 * * *", window: 24 * time.Hour, limit: 10, want: 1},
		{name: "daily cron window too small", mode: ModeCron, raw: "0 9 * * *", window: 2 * time.Hour, limit: 10, want: 0},
		{name: "interval limit", mode: ModeInterval, raw: "1h", window: 24 * time.Hour, limit: 3, want: 3},
		{name: "once inside", mode: ModeOnce, raw: "2024-01-01T15:00:00Z", window: 6 * time.Hour, limit: 5, want: 1},
		{name: "once outside", mode: ModeOnce, raw: "2024-01-02T15:00:00Z", window: 6 * time.Hour, limit: 5, want: 0},
		{name: "once in the past", mode: ModeOnce, raw: "2023-12-31T15:00:00Z", window: 6 * time.Hour, limit: 5, want: 0},
		{name: "zero window", mode: ModeInterval, raw: "1h", window: 0, limit: 5, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseExpression(tt.mode, tt.raw, time.UTC)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := e.NextOccurrences(from, tt.window, tt.limit, false)
			if len(got) != tt.want {
				t.Fatalf("got %d occurrences, want %d (%v)", len(got), tt.want, got)
			}
			horizon := from.Add(tt.window)
			for _, occ := range got {
				if !occ.After(from) || occ.After(horizon) {
					t.Fatalf("occurrence %v outside (%v, %v]", occ, from, horizon)
				}
			}
		})
	}
}

func TestNextOccurrencesInclusive(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)

	e, err := ParseExpression(ModeCron, "0 18 * * *", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := e.NextOccurrences(from, time.Hour, 5, true)
	if len(got) != 1 || !got[0].Equal(from) {
		t.Fatalf("inclusive: got %v, want [%v]", got, from)
	}
	got = e.NextOccurrences(from, time.Hour, 5, false)
	if len(got) != 0 {
		t.Fatalf("exclusive: got %v, want none", got)
	}
}

func TestNextOccurrencesIntervalAligned(t *testing.T) {
	t.Parallel()
	e, err := ParseExpression(ModeInterval, "01:00", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	from := time.Date(2024, 1, 1, 10, 17, 0, 0, time.UTC)
	got := e.NextOccurrences(from, 3*time.Hour, 10, false)
	want := []time.Time{
		time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNextOccurrencesHonorTimezone(t *testing.T) {
	t.Parallel()
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	e, err := ParseExpression(ModeCron, "0 18 * * *", warsaw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// 12:00 UTC in winter is 13:00 in Warsaw (CET, +1).
	from := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	got := e.NextOccurrences(from, 24*time.Hour, 1, false)
	if len(got) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(got))
	}
	want := time.Date(2024, 1, 10, 18, 0, 0, 0, warsaw)
	if !got[0].Equal(want) {
		t.Fatalf("occurrence = %v, want %v", got[0], want)
	}
}

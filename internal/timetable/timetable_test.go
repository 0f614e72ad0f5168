package timetable

import (
	"testing"
	"time"
)

func mustNew(t *testing.T, cfg Config) *TimeTable {
	t.Helper()
	tt, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) error: %v", cfg, err)
	}
	return tt
}

func TestNextBeforeSlotSameDay(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{Slot: "08:15", Timezone: "UTC"})

	from := time.Date(2024, 11, 14, 6, 0, 0, 0, time.UTC)
	got := tt.Next(from)
	want := time.Date(2024, 11, 14, 8, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next(%v) = %v, want %v", from, got, want)
	}
}

func TestNextAtSlotAdvancesOneDay(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{Slot: "08:15", Timezone: "UTC"})

	from := time.Date(2024, 11, 14, 8, 15, 0, 0, time.UTC)
	got := tt.Next(from)
	want := time.Date(2024, 11, 15, 8, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next(at slot) = %v, want %v", got, want)
	}
}

func TestNextAfterSlotAdvancesOneDay(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{Slot: "08:15", Timezone: "UTC"})

	from := time.Date(2024, 11, 14, 8, 15, 0, 1, time.UTC)
	got := tt.Next(from)
	want := time.Date(2024, 11, 15, 8, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next(just past slot) = %v, want %v", got, want)
	}
}

func TestNextConvertsToConfiguredZone(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{}) // defaults: 08:15 America/New_York

	// 2024-11-14 06:00 UTC is 01:00 in New York (EST, UTC-5).
	from := time.Date(2024, 11, 14, 6, 0, 0, 0, time.UTC)
	got := tt.Next(from)

	if got.Hour() != 8 || got.Minute() != 15 {
		t.Fatalf("wall clock = %02d:%02d, want 08:15", got.Hour(), got.Minute())
	}
	if got.Location().String() != "America/New_York" {
		t.Fatalf("location = %s, want America/New_York", got.Location())
	}
	if !got.After(from) {
		t.Fatalf("Next(%v) = %v is not after input", from, got)
	}
}

func TestNextNStrictlyIncreasingDaily(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{Slot: "08:15", Timezone: "UTC"})

	from := time.Date(2024, 11, 14, 12, 0, 0, 0, time.UTC)
	slots := tt.NextN(from, 5)
	if len(slots) != 5 {
		t.Fatalf("NextN returned %d slots, want 5", len(slots))
	}
	prev := from
	for i, s := range slots {
		if !s.After(prev) {
			t.Fatalf("slot %d (%v) not after previous (%v)", i, s, prev)
		}
		if s.Hour() != 8 || s.Minute() != 15 {
			t.Fatalf("slot %d wall clock = %02d:%02d", i, s.Hour(), s.Minute())
		}
		if i > 0 && s.Sub(slots[i-1]) != 24*time.Hour {
			t.Fatalf("slot spacing = %v, want 24h", s.Sub(slots[i-1]))
		}
		prev = s
	}
}

func TestNextPreservesWallClockAcrossDST(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{Slot: "08:15", Timezone: "America/New_York"})

	// US spring forward: 2025-03-09. The 08:15 slots on the 8th and 9th are
	// 23 real hours apart but both read 08:15 locally.
	from := time.Date(2025, 3, 8, 0, 0, 0, 0, tt.Location())
	slots := tt.NextN(from, 2)
	if len(slots) != 2 {
		t.Fatalf("NextN returned %d slots", len(slots))
	}
	for i, s := range slots {
		if s.Hour() != 8 || s.Minute() != 15 {
			t.Fatalf("slot %d wall clock = %02d:%02d", i, s.Hour(), s.Minute())
		}
	}
	if d := slots[1].Sub(slots[0]); d != 23*time.Hour {
		t.Fatalf("spring-forward spacing = %v, want 23h", d)
	}
}

func TestSharedSlotsCollapseToOneInstant(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{Slot: "08:15", Timezone: "UTC"})

	from := time.Date(2024, 11, 14, 6, 0, 0, 0, time.UTC)
	slots := tt.SharedSlots([]string{"twitter", "linkedin", "facebook"}, from, 15*time.Minute)
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}
	want := time.Date(2024, 11, 14, 8, 15, 0, 0, time.UTC)
	for p, got := range slots {
		if !got.Equal(want) {
			t.Fatalf("slot for %s = %v, want %v (stagger must not shift times)", p, got, want)
		}
	}
}

func TestNewRawCronSpec(t *testing.T) {
	t.Parallel()
	tt := mustNew(t, Config{Slot: "30 9 * * 1-5", Timezone: "UTC"})

	h, m := tt.Slot()
	if h != -1 || m != -1 {
		t.Fatalf("raw spec Slot() = %d:%d, want -1:-1", h, m)
	}

	// Friday 2024-11-15 10:00 UTC: next weekday 09:30 is Monday the 18th.
	from := time.Date(2024, 11, 15, 10, 0, 0, 0, time.UTC)
	got := tt.Next(from)
	want := time.Date(2024, 11, 18, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "bad zone", cfg: Config{Timezone: "Mars/Olympus"}},
		{name: "bad slot", cfg: Config{Slot: "25:99"}},
		{name: "bad cron", cfg: Config{Slot: "* * *"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatalf("New(%+v) should fail", tt.cfg)
			}
		})
	}
}

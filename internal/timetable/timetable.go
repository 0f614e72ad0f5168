// Package timetable computes upcoming occurrences of the recurring daily
// posting slot. It is pure time arithmetic: no goroutines, no state beyond
// the parsed schedule.
package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSlot = "08:15"
	DefaultZone = "America/New_York"
)

// Config selects the daily slot and the zone its wall-clock time lives in.
//
// Slot accepts "HH:MM" shorthand or a raw 5-field cron spec for operators who
// want more than one slot per day ("15 8,18 * * *").
type Config struct {
	Slot     string `json:"slot"`
	Timezone string `json:"timezone"`
}

// TimeTable answers "when is the next posting slot after t".
// Safe for concurrent use; all fields are immutable after New.
type TimeTable struct {
	loc   *time.Location
	spec  string
	hour  int // -1 when Slot is a raw cron spec
	min   int
	sched cron.Schedule
}

// New parses the slot and loads the zone. A zone that cannot be loaded is an
// error here rather than a silent fallback: the slot's meaning depends on it.
func New(cfg Config) (*TimeTable, error) {
	zone := strings.TrimSpace(cfg.Timezone)
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("timetable: load timezone %q: %w", zone, err)
	}

	slot := strings.TrimSpace(cfg.Slot)
	if slot == "" {
		slot = DefaultSlot
	}

	hour, min := -1, -1
	spec := slot
	if h, m, err := parseHHMM(slot); err == nil {
		hour, min = h, m
		spec = fmt.Sprintf("%d %d * * *", m, h)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("timetable: parse slot %q: %w", slot, err)
	}

	return &TimeTable{loc: loc, spec: spec, hour: hour, min: min, sched: sched}, nil
}

// Next returns the first slot strictly after from, expressed in the
// timetable's zone. A from that lands exactly on the slot instant resolves to
// the following day.
func (t *TimeTable) Next(from time.Time) time.Time {
	return t.sched.Next(from.In(t.loc))
}

// NextN returns n successive slots after from, each strictly after the last.
func (t *TimeTable) NextN(from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	cur := from
	for i := 0; i < n; i++ {
		cur = t.Next(cur)
		if cur.IsZero() {
			break
		}
		out = append(out, cur)
	}
	return out
}

// SharedSlots maps every platform onto the same next slot after from.
// The stagger argument is accepted for call-site symmetry with the engine's
// multi-platform staggering; it does not shift the returned times, spacing
// only ever happens at dispatch time.
func (t *TimeTable) SharedSlots(platforms []string, from time.Time, stagger time.Duration) map[string]time.Time {
	_ = stagger
	next := t.Next(from)
	out := make(map[string]time.Time, len(platforms))
	for _, p := range platforms {
		out[p] = next
	}
	return out
}

// Slot reports the configured daily wall-clock slot.
// For raw cron specs it reports -1, -1.
func (t *TimeTable) Slot() (hour, minute int) { return t.hour, t.min }

func (t *TimeTable) Location() *time.Location { return t.loc }

func (t *TimeTable) String() string {
	if t.hour >= 0 {
		return fmt.Sprintf("%02d:%02d %s", t.hour, t.min, t.loc)
	}
	return fmt.Sprintf("%q %s", t.spec, t.loc)
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

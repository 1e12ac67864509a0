package scheduling

import (
	"sort"
	"time"

	"github.com/campuswell/wellbeing-api/internal/config"
	"github.com/campuswell/wellbeing-api/internal/model"
)

const slotStep = 30 * time.Minute

// Fallback hours used when a therapist has published no availability.
var (
	fallbackHours       = []int{9, 11, 14, 16}
	fallbackCrisisHours = []int{10, 14, 16}
)

const (
	fallbackHorizonDays       = 5
	fallbackCrisisHorizonDays = 2
)

// SlotGenerator turns a therapist's weekly availability into concrete
// bookable instants. All slot arithmetic happens in the configured
// campus timezone.
type SlotGenerator struct {
	cfg config.SchedulingConfig
	loc *time.Location
	now func() time.Time
}

func NewSlotGenerator(cfg config.SchedulingConfig) *SlotGenerator {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return &SlotGenerator{cfg: cfg, loc: loc, now: time.Now}
}

// Location is the campus timezone slots are generated in.
func (g *SlotGenerator) Location() *time.Location {
	return g.loc
}

// Horizon is the number of days ahead the generator searches for a
// given crisis level.
func (g *SlotGenerator) Horizon(level model.CrisisLevel) int {
	if level.AtLeast(model.CrisisHigh) {
		return g.cfg.UrgentHorizonDays
	}
	return g.cfg.HorizonDays
}

// Generate emits the therapist's open half-hour-aligned instants over
// the horizon, skipping anything within the buffer of an already booked
// pending or confirmed session. Results are ascending and capped at the
// configured suggestion count.
func (g *SlotGenerator) Generate(therapist *model.Therapist, booked []*model.Appointment, level model.CrisisLevel) []time.Time {
	now := g.now().In(g.loc)
	urgent := level.AtLeast(model.CrisisHigh)

	var candidates []time.Time
	if len(therapist.Availability) == 0 {
		candidates = g.fallbackCandidates(now, urgent)
	} else {
		candidates = g.availabilityCandidates(now, therapist.Availability, urgent)
	}

	slots := make([]time.Time, 0, g.cfg.MaxSuggestions)
	for _, t := range candidates {
		if !t.After(now) {
			continue
		}
		if g.buffered(t, booked) {
			continue
		}
		slots = append(slots, t)
		if len(slots) == g.cfg.MaxSuggestions {
			break
		}
	}
	return slots
}

// First returns the earliest open slot, or the zero time when the
// therapist has nothing available over the horizon.
func (g *SlotGenerator) First(therapist *model.Therapist, booked []*model.Appointment, level model.CrisisLevel) (time.Time, bool) {
	slots := g.Generate(therapist, booked, level)
	if len(slots) == 0 {
		return time.Time{}, false
	}
	return slots[0], true
}

// Contains reports whether the instant is one of the generator's
// current offers for the therapist.
func (g *SlotGenerator) Contains(therapist *model.Therapist, booked []*model.Appointment, level model.CrisisLevel, instant time.Time) bool {
	for _, slot := range g.Generate(therapist, booked, level) {
		if slot.Equal(instant) {
			return true
		}
	}
	return false
}

func (g *SlotGenerator) availabilityCandidates(now time.Time, availability model.WeeklyAvailability, urgent bool) []time.Time {
	horizon := g.cfg.HorizonDays
	if urgent {
		horizon = g.cfg.UrgentHorizonDays
	}

	var out []time.Time
	for offset := 1; offset <= horizon; offset++ {
		day := now.AddDate(0, 0, offset)
		windows, ok := availability[weekdayKey(day)]
		if !ok {
			continue
		}
		for _, w := range windows {
			out = append(out, g.windowInstants(day, w, urgent)...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// windowInstants expands one [start, end) window into aligned instants,
// dropping the final half-hour boundary so a session never starts at
// the very edge of the window.
func (g *SlotGenerator) windowInstants(day time.Time, w model.TimeWindow, urgent bool) []time.Time {
	start, err := atClock(day, w.Start, g.loc)
	if err != nil {
		return nil
	}
	end, err := atClock(day, w.End, g.loc)
	if err != nil || !end.After(start) {
		return nil
	}
	start = alignUp(start)

	var out []time.Time
	for t := start; !t.Add(slotStep).After(end); t = t.Add(slotStep) {
		out = append(out, t)
	}
	if len(out) > 0 {
		out = out[:len(out)-1]
	}
	if urgent {
		out = g.priorityOnly(out)
	}
	return out
}

// priorityOnly keeps the on-the-hour crisis slots so urgent sessions
// land in the hours staff keep clear for them.
func (g *SlotGenerator) priorityOnly(instants []time.Time) []time.Time {
	if len(g.cfg.PriorityHours) == 0 {
		return instants
	}
	allowed := make(map[int]bool, len(g.cfg.PriorityHours))
	for _, h := range g.cfg.PriorityHours {
		allowed[h] = true
	}
	kept := instants[:0]
	for _, t := range instants {
		if t.Minute() == 0 && allowed[t.Hour()] {
			kept = append(kept, t)
		}
	}
	return kept
}

func (g *SlotGenerator) fallbackCandidates(now time.Time, urgent bool) []time.Time {
	horizon := fallbackHorizonDays
	hours := fallbackHours
	if urgent {
		horizon = fallbackCrisisHorizonDays
		hours = fallbackCrisisHours
	}

	var out []time.Time
	for offset := 1; offset <= horizon; offset++ {
		day := now.AddDate(0, 0, offset)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, h := range hours {
			out = append(out, time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, g.loc))
		}
	}
	return out
}

// buffered reports whether the instant falls within the configured
// buffer of any booked session's start.
func (g *SlotGenerator) buffered(t time.Time, booked []*model.Appointment) bool {
	buffer := time.Duration(g.cfg.BufferMinutes) * time.Minute
	for _, apt := range booked {
		diff := t.Sub(apt.StartTime)
		if diff < 0 {
			diff = -diff
		}
		if diff < buffer {
			return true
		}
	}
	return false
}

func weekdayKey(day time.Time) string {
	switch day.Weekday() {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}

func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	parsed, err := time.ParseInLocation("15:04", clock, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}

// alignUp rounds an instant forward to the next hour or half-hour.
func alignUp(t time.Time) time.Time {
	rem := time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	step := rem % slotStep
	if step == 0 && t.Second() == 0 {
		return t
	}
	return t.Add(slotStep - step).Truncate(time.Minute)
}

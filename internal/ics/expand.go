package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "sharecal/internal/log"
	"sharecal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the window; an occurrence is included when
	// it overlaps [RangeStart, RangeEnd).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and optionally
// information about truncation.
type ExpandResult struct {
	Occurrences []model.Occurrence `json:"occurrences"`
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string `json:"truncated_events,omitempty"`
}

// ExpandOccurrences turns stored events into concrete occurrences within the
// configured window, sorted by start. Recurring events are expanded with
// their RRULE minus EXDATEs; all-day occurrences keep their calendar date in
// the display zone.
func ExpandOccurrences(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	all := make([]model.Occurrence, 0)
	for _, ev := range events {
		if ev.RRule == "" {
			if overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
				all = append(all, makeOccurrence(ev, ev.Start, ev.End, cfg.DisplayLocation))
			}
			continue
		}

		occ, hitCap := expandRecurring(ev, cfg)
		all = append(all, occ...)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start.Equal(all[j].Start) {
			return all[i].Summary < all[j].Summary
		}
		return all[i].Start.Before(all[j].Start)
	})

	result.Occurrences = all
	return result, nil
}

func expandRecurring(ev model.Event, cfg ExpandConfig) ([]model.Occurrence, bool) {
	out := make([]model.Occurrence, 0)

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Widen by the duration so occurrences already in progress at RangeStart
	// are found.
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())

	times := set.Between(from, to, true)
	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, start := range times {
		end := start.Add(dur)
		if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(ev, start, end, cfg.DisplayLocation))
	}
	return out, hitCap
}

// makeOccurrence converts one instance of ev into displayLoc.
func makeOccurrence(ev model.Event, start, end time.Time, displayLoc *time.Location) model.Occurrence {
	var startLocal, endLocal time.Time
	if ev.AllDay {
		// All-day instants are UTC midnights; keep the calendar dates.
		s := start.UTC()
		e := end.UTC()
		startLocal = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, displayLoc)
		endLocal = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, displayLoc)
	} else {
		startLocal = start.In(displayLoc)
		endLocal = end.In(displayLoc)
	}

	return model.Occurrence{
		EventID:     ev.ID,
		CalendarID:  ev.CalendarID,
		UID:         ev.UID,
		InstanceKey: fmt.Sprintf("%s@%s", ev.UID, start.UTC().Format(layoutUTC)),
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       startLocal,
		End:         endLocal,
	}
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd).
// Zero-length events count when they start inside the window.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

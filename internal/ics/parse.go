package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "sharecal/internal/log"
	"sharecal/internal/model"
)

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

// ErrEmptyBody is returned by ParseICS for an empty payload.
var ErrEmptyBody = errors.New("empty ICS body")

// ParseICS parses an iCalendar payload into events ready for import.
//
//   - All-day events (VALUE=DATE or a date-only DTSTART) are anchored at UTC
//     midnight, the same way events created from text are.
//   - RRULE and EXDATE are kept as data; see ExpandOccurrences.
//   - A VEVENT carrying RECURRENCE-ID becomes a standalone event with a
//     derived UID, and the instance it replaces is excluded from its series.
//
// VEVENTs that cannot be read (missing UID, bad DTSTART) are logged and
// skipped.
func ParseICS(body []byte) ([]model.Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	events := make([]model.Event, 0)
	var overrides []override

	for _, comp := range cal.Events() {
		ev, rid, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "uid", ev.UID)
			continue
		}
		if rid != nil {
			overrides = append(overrides, override{index: len(events), rid: *rid})
		}
		events = append(events, ev)
	}

	applyOverrides(events, overrides)

	appLog.Info("ics parse completed", "event_count", len(events), "override_count", len(overrides))
	return events, nil
}

type override struct {
	index int
	rid   time.Time
}

func applyOverrides(events []model.Event, overrides []override) {
	for _, o := range overrides {
		uid := events[o.index].UID
		for i := range events {
			if events[i].UID == uid && events[i].RRule != "" {
				events[i].ExDates = append(events[i].ExDates, o.rid)
			}
		}
		events[o.index].UID = uid + "/" + o.rid.UTC().Format(layoutUTC)
	}
}

func parseVEvent(ve *ical.VEvent) (model.Event, *time.Time, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, nil, errors.New("missing UID")
	}
	out.UID = strings.TrimSpace(uidProp.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, nil, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := time.ParseInLocation(layoutDate, strings.TrimSpace(dtStart.Value), time.UTC)
		if err != nil {
			return out, nil, err
		}
		out.Start = start
		out.End = start.Add(24 * time.Hour)
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
			if end, err := time.ParseInLocation(layoutDate, strings.TrimSpace(p.Value), time.UTC); err == nil && end.After(start) {
				out.End = end
			}
		}
		out.TimeZone = "UTC"
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, nil, err
		}
		out.Start = start
		out.End = start
		if end, err := ve.GetEndAt(); err == nil && !end.Before(start) {
			out.End = end
		}
		out.TimeZone = start.Location().String()
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := paramLocation(p)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	var rid *time.Time
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, paramLocation(p)); err == nil {
			rid = &t
		}
	}

	return out, rid, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// paramLocation resolves a TZID parameter; floating times use time.Local.
func paramLocation(p *ical.IANAProperty) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return time.Local
}

// parseICSTime parses a DATE or DATE-TIME value. Dates are UTC midnight.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse(layoutUTC, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation(layoutLocal, v, loc)
	default:
		return time.ParseInLocation(layoutDate, v, time.UTC)
	}
}

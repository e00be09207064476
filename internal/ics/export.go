package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"sharecal/internal/model"
)

// DefaultProductID identifies calendars written by this application.
const DefaultProductID = "-//sharecal//sharecal 1.0//EN"

// Export renders events as a single VCALENDAR (METHOD:PUBLISH).
//
// All-day events are written as VALUE=DATE; timed events are written in UTC.
func Export(events []model.Event, prodID string) string {
	if prodID == "" {
		prodID = DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetMethod(ical.MethodPublish)

	stamp := time.Now().UTC()
	for _, ev := range events {
		addEvent(cal, ev, stamp)
	}
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, ev model.Event, stamp time.Time) {
	ve := cal.AddEvent(ev.UID)

	dtstamp := stamp
	if !ev.CreatedAt.IsZero() {
		dtstamp = ev.CreatedAt.UTC()
	}
	ve.SetDtStampTime(dtstamp)
	ve.SetSummary(ev.Summary)
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}

	if ev.AllDay {
		ve.SetAllDayStartAt(ev.Start.UTC())
		ve.SetAllDayEndAt(ev.End.UTC())
	} else {
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
	}

	if ev.RRule != "" {
		ve.SetProperty(ical.ComponentPropertyRrule, ev.RRule)
	}
	if len(ev.ExDates) > 0 {
		parts := make([]string, len(ev.ExDates))
		for i, t := range ev.ExDates {
			if ev.AllDay {
				parts[i] = t.UTC().Format(layoutDate)
			} else {
				parts[i] = t.UTC().Format(layoutUTC)
			}
		}
		if ev.AllDay {
			ve.SetProperty(ical.ComponentPropertyExdate, strings.Join(parts, ","), ical.WithValue("DATE"))
		} else {
			ve.SetProperty(ical.ComponentPropertyExdate, strings.Join(parts, ","))
		}
	}
}

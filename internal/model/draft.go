package model

import "time"

// EventDraft is the structured result of parsing one sentence. It is a plain
// value: callers may copy and edit it before saving.
type EventDraft struct {
	Title     string     `json:"title"`
	StartDate Date       `json:"start_date"`
	StartTime *TimeOfDay `json:"start_time,omitempty"`
	EndTime   *TimeOfDay `json:"end_time,omitempty"`
	Location  string     `json:"location"`
	IsAllDay  bool       `json:"is_all_day"`

	// Description is never filled by the parser; the share flow stores the
	// original text here.
	Description string `json:"description,omitempty"`
}

// Span returns the concrete start and end instants of the draft.
//
// All-day drafts span [StartDate 00:00 UTC, +24h). Timed drafts are placed
// on StartDate in loc; an end time that is not after the start time is taken
// to fall on the following day. A timed draft without an end lasts one hour.
func (d EventDraft) Span(loc *time.Location) (time.Time, time.Time) {
	if d.IsAllDay || d.StartTime == nil {
		start := d.StartDate.In(time.UTC)
		return start, start.Add(24 * time.Hour)
	}

	start := d.StartTime.On(d.StartDate, loc)
	endTime := d.StartTime.Add(time.Hour)
	if d.EndTime != nil {
		endTime = *d.EndTime
	}
	end := endTime.On(d.StartDate, loc)
	if !end.After(start) {
		end = endTime.On(d.StartDate.AddDays(1), loc)
	}
	return start, end
}

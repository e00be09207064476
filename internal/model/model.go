package model

import "time"

// Calendar is a named destination that events are saved into.
type Calendar struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account"`
	Color   int    `json:"color"`
}

// Event is a persisted calendar event. Events created from parsed text are
// never recurring; RRule and ExDates are only populated for events imported
// from iCalendar files.
type Event struct {
	ID         int64  `json:"id"`
	UID        string `json:"uid"` // iCalendar UID
	CalendarID int64  `json:"calendar_id"`

	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`

	AllDay bool `json:"all_day"`

	// Start / End are absolute instants. TimeZone names the zone the event
	// was authored in ("UTC" for all-day events).
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	TimeZone string    `json:"timezone"`

	RRule   string      `json:"rrule,omitempty"`
	ExDates []time.Time `json:"exdates,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	EventID    int64  `json:"event_id"`
	CalendarID int64  `json:"calendar_id"`
	UID        string `json:"uid"`

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, derived from the local start time.
	InstanceKey string `json:"instance_key"`

	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`

	AllDay bool `json:"all_day"`

	// Start / End are in the configured display timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewEventFromDraft converts a confirmed draft into an event for the given
// calendar. Timed drafts are anchored in loc.
func NewEventFromDraft(calendarID int64, d EventDraft, loc *time.Location) Event {
	if loc == nil {
		loc = time.Local
	}
	start, end := d.Span(loc)
	tz := loc.String()
	if d.IsAllDay {
		tz = "UTC"
	}
	return Event{
		CalendarID:  calendarID,
		Summary:     d.Title,
		Description: d.Description,
		Location:    d.Location,
		AllDay:      d.IsAllDay,
		Start:       start,
		End:         end,
		TimeZone:    tz,
	}
}

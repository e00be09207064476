// Package parser turns a single free-form English sentence into an
// EventDraft.
//
// Parsing runs a fixed pipeline over the text: date, start time, end time or
// duration, location, and finally the title, which is whatever is left. Each
// stage removes the text it recognized before the next stage runs, so a time
// like "at 3pm" is gone before the location stage looks for "at <Place>".
//
//	draft := parser.Parse("Team meeting next Tuesday at 3pm for 1 hour in Conference Room B", ref)
//	// draft.Title == "Team meeting", draft.Location == "Conference Room B"
//
// Parse never fails. Fragments that do not match a rule stay in the title,
// and every field has a default. All patterns are compiled at package init
// and shared read-only, so Parse is safe for concurrent use.
package parser

import (
	"strings"
	"time"
	"unicode"

	"sharecal/internal/model"
)

// Parse extracts an event from text, resolving relative expressions against
// ref. A zero ref means today in the local zone.
func Parse(text string, ref model.Date) model.EventDraft {
	if ref.IsZero() {
		ref = model.Today(time.Local)
	}

	rest := strings.TrimSpace(text)
	date, rest := extractDate(rest, ref)
	start, rest := extractStartTime(rest)
	end, rest := extractEndTime(rest, start)
	location, rest := extractLocation(rest)

	draft := model.EventDraft{
		Title:     CleanTitle(rest),
		StartDate: ref,
		StartTime: start,
		Location:  location,
		IsAllDay:  start == nil,
	}
	if date != nil {
		draft.StartDate = *date
	}
	if start != nil {
		if end == nil {
			def := start.Add(time.Hour)
			end = &def
		}
		draft.EndTime = end
	}
	return draft
}

// ParseNow parses text relative to the current day in loc.
func ParseNow(text string, loc *time.Location) model.EventDraft {
	return Parse(text, model.Today(loc))
}

// CleanTitle collapses whitespace runs and strips leading and trailing
// spaces, commas, semicolons and hyphens. CleanTitle(CleanTitle(s)) ==
// CleanTitle(s).
func CleanTitle(s string) string {
	s = reWhitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimFunc(s, isTitleEdge)
}

func isTitleEdge(r rune) bool {
	switch r {
	case ',', ';', '-':
		return true
	}
	return unicode.IsSpace(r)
}

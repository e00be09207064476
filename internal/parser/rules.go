package parser

import (
	"regexp"
	"strings"
	"time"
)

// Lookup tables. Read-only after package init.
var (
	monthNames = map[string]time.Month{
		"january": time.January, "jan": time.January,
		"february": time.February, "feb": time.February,
		"march": time.March, "mar": time.March,
		"april": time.April, "apr": time.April,
		"may":  time.May,
		"june": time.June, "jun": time.June,
		"july": time.July, "jul": time.July,
		"august": time.August, "aug": time.August,
		"september": time.September, "sep": time.September, "sept": time.September,
		"october": time.October, "oct": time.October,
		"november": time.November, "nov": time.November,
		"december": time.December, "dec": time.December,
	}

	weekdayNames = map[string]time.Weekday{
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
		"sunday":    time.Sunday,
	}
)

// Alternations are spelled out (longest spelling first) so the compiled
// patterns do not depend on map iteration order.
const (
	monthAlternation   = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	weekdayAlternation = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
)

// Compiled once; *regexp.Regexp is safe for concurrent use.
var (
	reToday       = regexp.MustCompile(`(?i)\btoday\b`)
	reTomorrow    = regexp.MustCompile(`(?i)\btomorrow\b`)
	reRelative    = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(days?|weeks?)\b`)
	reNextWeekday = regexp.MustCompile(`(?i)\bnext\s+(` + weekdayAlternation + `)\b`)
	reOnWeekday   = regexp.MustCompile(`(?i)\bon\s+(` + weekdayAlternation + `)\b`)
	reMonthDay    = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:[,\s]+(\d{4}))?\b`)
	reNumericDate = regexp.MustCompile(`\b(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})\b`)

	reNoon           = regexp.MustCompile(`(?i)\b(?:at\s+)?noon\b`)
	reMidnight       = regexp.MustCompile(`(?i)\b(?:at\s+)?midnight\b`)
	reAtTime         = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	reStandaloneTime = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)

	reDurationHours   = regexp.MustCompile(`(?i)\bfor\s+(\d+)\s*(?:hours?|hrs?)(?:\s*(?:and\s*)?(\d+)\s*(?:minutes?|mins?))?\b`)
	reDurationMinutes = regexp.MustCompile(`(?i)\bfor\s+(\d+)\s*(?:minutes?|mins?)\b`)
	reUntil           = regexp.MustCompile(`(?i)\buntil\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

	// The keyword is case-insensitive, the place must start with a capital.
	reLocation       = regexp.MustCompile(`(?m)\b(?i:at|in)\s+([A-Z][A-Za-z0-9' ]+?)\s*$`)
	reLeadingDigits  = regexp.MustCompile(`^\d+`)
	reWhitespaceRuns = regexp.MustCompile(`\s{2,}`)
)

// rule is one pattern of a stage together with the function that turns its
// capture groups into a value. C carries per-call input (the reference date
// for dates, the start time for end times).
type rule[C, T any] struct {
	name    string
	pattern *regexp.Regexp
	eval    func(groups []string, c C) (T, bool)
}

// firstMatch tries rules in order and returns the value of the first rule
// whose leftmost match evaluates, plus text with that match removed. A rule
// whose leftmost match does not evaluate (e.g. "February 30") is skipped;
// later matches of the same pattern are not considered.
func firstMatch[C, T any](text string, c C, rules []rule[C, T]) (T, string, bool) {
	for _, r := range rules {
		loc := r.pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		v, ok := r.eval(groups(text, loc), c)
		if !ok {
			continue
		}
		return v, removeSpan(text, loc[0], loc[1]), true
	}
	var zero T
	return zero, text, false
}

// groups converts a submatch index slice into strings; unmatched optional
// groups become "".
func groups(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if start := loc[2*i]; start >= 0 {
			out[i] = text[start:loc[2*i+1]]
		}
	}
	return out
}

func removeSpan(text string, start, end int) string {
	return strings.TrimSpace(text[:start] + text[end:])
}

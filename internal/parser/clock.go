package parser

import (
	"strconv"
	"strings"
	"time"

	"sharecal/internal/model"
)

var startTimeRules = []rule[struct{}, model.TimeOfDay]{
	{name: "noon", pattern: reNoon, eval: func(_ []string, _ struct{}) (model.TimeOfDay, bool) {
		return model.TimeOfDay{Hour: 12}, true
	}},
	{name: "midnight", pattern: reMidnight, eval: func(_ []string, _ struct{}) (model.TimeOfDay, bool) {
		return model.TimeOfDay{}, true
	}},
	{name: "at time", pattern: reAtTime, eval: clockGroups},
	{name: "standalone time", pattern: reStandaloneTime, eval: clockGroups},
}

var endTimeRules = []rule[*model.TimeOfDay, model.TimeOfDay]{
	{name: "hours", pattern: reDurationHours, eval: func(g []string, start *model.TimeOfDay) (model.TimeOfDay, bool) {
		if start == nil {
			return model.TimeOfDay{}, false
		}
		hours, ok := parseCount(g[1])
		if !ok {
			return model.TimeOfDay{}, false
		}
		minutes := int64(0)
		if g[2] != "" {
			if minutes, ok = parseCount(g[2]); !ok {
				return model.TimeOfDay{}, false
			}
		}
		return start.Add(wrapDuration(hours, time.Hour) + wrapDuration(minutes, time.Minute)), true
	}},
	{name: "minutes", pattern: reDurationMinutes, eval: func(g []string, start *model.TimeOfDay) (model.TimeOfDay, bool) {
		if start == nil {
			return model.TimeOfDay{}, false
		}
		minutes, ok := parseCount(g[1])
		if !ok {
			return model.TimeOfDay{}, false
		}
		return start.Add(wrapDuration(minutes, time.Minute)), true
	}},
	{name: "until", pattern: reUntil, eval: func(g []string, _ *model.TimeOfDay) (model.TimeOfDay, bool) {
		return clockGroups(g, struct{}{})
	}},
}

// extractStartTime is the second pipeline stage.
func extractStartTime(text string) (*model.TimeOfDay, string) {
	t, rest, ok := firstMatch(text, struct{}{}, startTimeRules)
	if !ok {
		return nil, text
	}
	return &t, rest
}

// extractEndTime is the third pipeline stage. Durations need a start time;
// an "until" clause is consumed either way.
func extractEndTime(text string, start *model.TimeOfDay) (*model.TimeOfDay, string) {
	t, rest, ok := firstMatch(text, start, endTimeRules)
	if !ok {
		return nil, text
	}
	return &t, rest
}

func clockGroups(g []string, _ struct{}) (model.TimeOfDay, bool) {
	return clockTime(g[1], g[2], g[3])
}

// clockTime builds a time of day from an hour, an optional minute and an
// optional am/pm marker. Without a marker the hour is read as 24-hour.
func clockTime(hourStr, minuteStr, marker string) (model.TimeOfDay, bool) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return model.TimeOfDay{}, false
	}
	minute := 0
	if minuteStr != "" {
		if m, err := strconv.Atoi(minuteStr); err == nil {
			minute = m
		}
	}

	switch strings.ToLower(marker) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}

	return model.NewTimeOfDay(hour, minute)
}

func parseCount(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// wrapDuration converts n units to a duration modulo one day, which is all a
// time of day can observe, without overflowing time.Duration.
func wrapDuration(n int64, unit time.Duration) time.Duration {
	perDay := int64(24 * time.Hour / unit)
	return time.Duration(n%perDay) * unit
}

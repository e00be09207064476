package parser

import (
	"strconv"
	"strings"
	"time"

	"sharecal/internal/model"
)

// maxOffsetDays bounds "in N days/weeks" so the result stays within
// year 9999.
const maxOffsetDays = 3_000_000

var dateRules = []rule[model.Date, model.Date]{
	{name: "today", pattern: reToday, eval: func(_ []string, ref model.Date) (model.Date, bool) {
		return ref, true
	}},
	{name: "tomorrow", pattern: reTomorrow, eval: func(_ []string, ref model.Date) (model.Date, bool) {
		return inRange(ref.AddDays(1))
	}},
	{name: "relative", pattern: reRelative, eval: relativeDate},
	{name: "next weekday", pattern: reNextWeekday, eval: func(g []string, ref model.Date) (model.Date, bool) {
		return weekdayAfter(ref, g[1], false)
	}},
	{name: "on weekday", pattern: reOnWeekday, eval: func(g []string, ref model.Date) (model.Date, bool) {
		return weekdayAfter(ref, g[1], true)
	}},
	{name: "month day", pattern: reMonthDay, eval: monthDayDate},
	{name: "numeric", pattern: reNumericDate, eval: numericDate},
}

// extractDate is the first pipeline stage.
func extractDate(text string, ref model.Date) (*model.Date, string) {
	d, rest, ok := firstMatch(text, ref, dateRules)
	if !ok {
		return nil, text
	}
	return &d, rest
}

func relativeDate(g []string, ref model.Date) (model.Date, bool) {
	n, err := strconv.Atoi(g[1])
	if err != nil || n > maxOffsetDays {
		return model.Date{}, false
	}
	days := n
	if strings.HasPrefix(strings.ToLower(g[2]), "week") {
		if n > maxOffsetDays/7 {
			return model.Date{}, false
		}
		days = n * 7
	}
	return inRange(ref.AddDays(days))
}

// inRange rejects dates past year 9999, which have no YYYY-MM-DD form.
func inRange(d model.Date) (model.Date, bool) {
	return model.NewDate(d.Year, d.Month, d.Day)
}

// weekdayAfter returns the next occurrence of the named weekday after ref.
// With sameDay, ref itself qualifies when it already falls on that day.
func weekdayAfter(ref model.Date, name string, sameDay bool) (model.Date, bool) {
	// Case-insensitive matching also accepts Unicode folds like "ſunday"
	// that are not table keys.
	wd, ok := weekdayNames[strings.ToLower(name)]
	if !ok {
		return model.Date{}, false
	}
	delta := (int(wd) - int(ref.Weekday()) + 7) % 7
	if delta == 0 && !sameDay {
		delta = 7
	}
	return inRange(ref.AddDays(delta))
}

func monthDayDate(g []string, ref model.Date) (model.Date, bool) {
	month, ok := monthNames[strings.ToLower(g[1])]
	if !ok {
		return model.Date{}, false
	}
	day, err := strconv.Atoi(g[2])
	if err != nil {
		return model.Date{}, false
	}

	if g[3] != "" {
		year, err := strconv.Atoi(g[3])
		if err != nil {
			return model.Date{}, false
		}
		return model.NewDate(year, month, day)
	}

	// No year: this year, or next year once the day has passed.
	d, ok := model.NewDate(ref.Year, month, day)
	if !ok {
		return model.Date{}, false
	}
	if d.Before(ref) {
		return model.NewDate(ref.Year+1, month, day)
	}
	return d, true
}

func numericDate(g []string, _ model.Date) (model.Date, bool) {
	month, err := strconv.Atoi(g[1])
	if err != nil {
		return model.Date{}, false
	}
	day, err := strconv.Atoi(g[2])
	if err != nil {
		return model.Date{}, false
	}
	year, err := strconv.Atoi(g[3])
	if err != nil {
		return model.Date{}, false
	}
	return model.NewDate(year, time.Month(month), day)
}

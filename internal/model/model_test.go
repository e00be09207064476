package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDate(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		day   int
		ok    bool
	}{
		{"regular day", 2025, time.January, 15, true},
		{"leap day", 2024, time.February, 29, true},
		{"february 29 in common year", 2025, time.February, 29, false},
		{"february 30", 2025, time.February, 30, false},
		{"month 13", 2025, 13, 1, false},
		{"day zero", 2025, time.March, 0, false},
		{"year zero", 0, time.March, 1, false},
		{"year past 9999", 10000, time.March, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := NewDate(tt.year, tt.month, tt.day)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, Date{tt.year, tt.month, tt.day}, d)
			}
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{2025, time.January, 10}

	assert.Equal(t, time.Friday, d.Weekday())
	assert.Equal(t, Date{2025, time.January, 11}, d.AddDays(1))
	assert.Equal(t, Date{2025, time.February, 1}, d.AddDays(22))
	assert.Equal(t, Date{2024, time.December, 31}, d.AddDays(-10))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))
	assert.Equal(t, "2025-01-10", d.String())
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(Date{2025, time.June, 5})
	require.NoError(t, err)
	assert.Equal(t, `"2025-06-05"`, string(b))

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2026-12-31"`), &d))
	assert.Equal(t, Date{2026, time.December, 31}, d)

	assert.Error(t, json.Unmarshal([]byte(`"31/12/2026"`), &d))
}

func TestTimeOfDayAdd(t *testing.T) {
	tests := []struct {
		name  string
		start TimeOfDay
		d     time.Duration
		want  TimeOfDay
	}{
		{"one hour", TimeOfDay{15, 0}, time.Hour, TimeOfDay{16, 0}},
		{"hours and minutes", TimeOfDay{13, 0}, 2*time.Hour + 30*time.Minute, TimeOfDay{15, 30}},
		{"wraps past midnight", TimeOfDay{23, 30}, time.Hour, TimeOfDay{0, 30}},
		{"full days are dropped", TimeOfDay{9, 0}, 49 * time.Hour, TimeOfDay{10, 0}},
		{"negative", TimeOfDay{0, 15}, -30 * time.Minute, TimeOfDay{23, 45}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.start.Add(tt.d))
		})
	}
}

func TestTimeOfDayText(t *testing.T) {
	tod, ok := NewTimeOfDay(7, 5)
	require.True(t, ok)
	assert.Equal(t, "07:05", tod.String())

	_, ok = NewTimeOfDay(24, 0)
	assert.False(t, ok)
	_, ok = NewTimeOfDay(12, 60)
	assert.False(t, ok)

	parsed, err := ParseTimeOfDay("18:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{18, 30}, parsed)
}

func TestEventDraftSpan(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	day := Date{2025, time.January, 14}

	t.Run("all day", func(t *testing.T) {
		start, end := EventDraft{StartDate: day, IsAllDay: true}.Span(loc)
		assert.Equal(t, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, 24*time.Hour, end.Sub(start))
	})

	t.Run("timed", func(t *testing.T) {
		st, et := TimeOfDay{15, 0}, TimeOfDay{16, 30}
		start, end := EventDraft{StartDate: day, StartTime: &st, EndTime: &et}.Span(loc)
		assert.Equal(t, time.Date(2025, 1, 14, 15, 0, 0, 0, loc), start)
		assert.Equal(t, time.Date(2025, 1, 14, 16, 30, 0, 0, loc), end)
	})

	t.Run("end past midnight", func(t *testing.T) {
		st, et := TimeOfDay{23, 0}, TimeOfDay{0, 0}
		start, end := EventDraft{StartDate: day, StartTime: &st, EndTime: &et}.Span(loc)
		assert.Equal(t, time.Hour, end.Sub(start))
		assert.Equal(t, 15, end.Day())
	})

	t.Run("missing end defaults to one hour", func(t *testing.T) {
		st := TimeOfDay{9, 0}
		start, end := EventDraft{StartDate: day, StartTime: &st}.Span(loc)
		assert.Equal(t, time.Hour, end.Sub(start))
	})
}

func TestNewEventFromDraft(t *testing.T) {
	st, et := TimeOfDay{10, 0}, TimeOfDay{11, 0}
	draft := EventDraft{
		Title:       "Review",
		StartDate:   Date{2025, time.January, 24},
		StartTime:   &st,
		EndTime:     &et,
		Location:    "Room 4",
		Description: "Review in 2 weeks at 10am in Room 4",
	}

	ev := NewEventFromDraft(3, draft, time.UTC)
	assert.Equal(t, int64(3), ev.CalendarID)
	assert.Equal(t, "Review", ev.Summary)
	assert.Equal(t, "Room 4", ev.Location)
	assert.Equal(t, draft.Description, ev.Description)
	assert.False(t, ev.AllDay)
	assert.Equal(t, "UTC", ev.TimeZone)
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))

	allDay := NewEventFromDraft(3, EventDraft{Title: "Offsite", StartDate: draft.StartDate, IsAllDay: true}, time.Local)
	assert.True(t, allDay.AllDay)
	assert.Equal(t, "UTC", allDay.TimeZone)
}

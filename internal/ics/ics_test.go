package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharecal/internal/model"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@example.com\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250106T090000Z\r\n" +
	"DTEND:20250106T091500Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO;COUNT=4\r\n" +
	"EXDATE:20250113T090000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@example.com\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"RECURRENCE-ID:20250120T090000Z\r\n" +
	"DTSTART:20250120T100000Z\r\n" +
	"DTEND:20250120T101500Z\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday@example.com\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20250120\r\n" +
	"DTEND;VALUE=DATE:20250121\r\n" +
	"SUMMARY:Holiday\r\n" +
	"LOCATION:Everywhere\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250106T090000Z\r\n" +
	"SUMMARY:No UID\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func byUID(events []model.Event) map[string]model.Event {
	m := make(map[string]model.Event, len(events))
	for _, ev := range events {
		m[ev.UID] = ev
	}
	return m
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS([]byte(sampleICS))
	require.NoError(t, err)
	require.Len(t, events, 3, "event without UID is skipped")

	m := byUID(events)

	standup := m["standup@example.com"]
	assert.Equal(t, "Standup", standup.Summary)
	assert.False(t, standup.AllDay)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO;COUNT=4", standup.RRule)
	assert.True(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC).Equal(standup.Start))
	assert.Equal(t, 15*time.Minute, standup.End.Sub(standup.Start))
	require.Len(t, standup.ExDates, 2, "EXDATE plus the overridden instance")
	assert.True(t, time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC).Equal(standup.ExDates[0]))
	assert.True(t, time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC).Equal(standup.ExDates[1]))

	moved, ok := m["standup@example.com/20250120T090000Z"]
	require.True(t, ok)
	assert.Equal(t, "Standup (moved)", moved.Summary)
	assert.Empty(t, moved.RRule)

	holiday := m["holiday@example.com"]
	assert.True(t, holiday.AllDay)
	assert.Equal(t, "UTC", holiday.TimeZone)
	assert.Equal(t, "Everywhere", holiday.Location)
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), holiday.Start)
	assert.Equal(t, time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC), holiday.End)
}

func TestParseICS_Errors(t *testing.T) {
	_, err := ParseICS(nil)
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = ParseICS([]byte("   \r\n"))
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestExport_RoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	events := []model.Event{
		{
			UID:         "a@sharecal",
			Summary:     "Team meeting",
			Description: "Team meeting tomorrow at 3pm in Room B",
			Location:    "Room B",
			Start:       time.Date(2025, 3, 11, 15, 0, 0, 0, berlin),
			End:         time.Date(2025, 3, 11, 16, 0, 0, 0, berlin),
			TimeZone:    "Europe/Berlin",
			CreatedAt:   created,
		},
		{
			UID:       "b@sharecal",
			Summary:   "Conference",
			AllDay:    true,
			Start:     time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC),
			End:       time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
			TimeZone:  "UTC",
			CreatedAt: created,
		},
		{
			UID:       "c@sharecal",
			Summary:   "Gym",
			Start:     time.Date(2025, 3, 3, 18, 0, 0, 0, time.UTC),
			End:       time.Date(2025, 3, 3, 19, 0, 0, 0, time.UTC),
			RRule:     "FREQ=WEEKLY;BYDAY=MO",
			ExDates:   []time.Time{time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)},
			CreatedAt: created,
		},
	}

	out := Export(events, "")
	assert.Contains(t, out, "PRODID:"+DefaultProductID)
	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20250220")
	assert.Contains(t, out, "DTSTART:20250311T140000Z")

	parsed, err := ParseICS([]byte(out))
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	m := byUID(parsed)

	a := m["a@sharecal"]
	assert.Equal(t, "Team meeting", a.Summary)
	assert.Equal(t, "Room B", a.Location)
	assert.Equal(t, "Team meeting tomorrow at 3pm in Room B", a.Description)
	assert.True(t, events[0].Start.Equal(a.Start))
	assert.True(t, events[0].End.Equal(a.End))

	b := m["b@sharecal"]
	assert.True(t, b.AllDay)
	assert.Equal(t, events[1].Start, b.Start)
	assert.Equal(t, events[1].End, b.End)

	c := m["c@sharecal"]
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", c.RRule)
	require.Len(t, c.ExDates, 1)
	assert.True(t, events[2].ExDates[0].Equal(c.ExDates[0]))
}

func TestExpandOccurrences(t *testing.T) {
	events, err := ParseICS([]byte(sampleICS))
	require.NoError(t, err)

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedEvents)

	var got []string
	for _, o := range res.Occurrences {
		got = append(got, o.Start.Format("01-02 15:04")+" "+o.Summary)
	}
	assert.Equal(t, []string{
		"01-06 09:00 Standup",
		"01-20 00:00 Holiday",
		"01-20 10:00 Standup (moved)",
		"01-27 09:00 Standup",
	}, got)
}

func TestExpandOccurrences_AllDayKeepsDateInDisplayZone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	ev := model.Event{
		UID:    "x",
		AllDay: true,
		Start:  time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
	}
	res, err := ExpandOccurrences([]model.Event{ev}, ExpandConfig{
		DisplayLocation: la,
		RangeStart:      time.Date(2025, 7, 1, 0, 0, 0, 0, la),
		RangeEnd:        time.Date(2025, 7, 8, 0, 0, 0, 0, la),
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, time.Date(2025, 7, 4, 0, 0, 0, 0, la), res.Occurrences[0].Start)
	assert.Equal(t, time.Date(2025, 7, 5, 0, 0, 0, 0, la), res.Occurrences[0].End)
}

func TestExpandOccurrences_Cap(t *testing.T) {
	ev := model.Event{
		UID:   "daily",
		Start: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC),
		RRule: "FREQ=DAILY",
	}
	res, err := ExpandOccurrences([]model.Event{ev}, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Occurrences, 10)
	assert.Equal(t, []string{"daily"}, res.TruncatedEvents)
}

func TestExpandOccurrences_InvalidRange(t *testing.T) {
	now := time.Now()
	_, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := func(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }

	assert.True(t, overlaps(h(1), h(2), h(0), h(3)))
	assert.True(t, overlaps(h(-1), h(1), h(0), h(3)), "in progress at window start")
	assert.False(t, overlaps(h(-2), h(0), h(0), h(3)), "ends exactly at window start")
	assert.False(t, overlaps(h(3), h(4), h(0), h(3)), "starts exactly at window end")
	assert.True(t, overlaps(h(0), h(0), h(0), h(3)), "zero length at window start")
}

func TestLoader_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	require.NoError(t, os.WriteFile(path, []byte(sampleICS), 0o600))

	events, err := NewLoader("").LoadEvents(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	_, err = NewLoader("").Load(context.Background(), filepath.Join(t.TempDir(), "missing.ics"))
	assert.Error(t, err)

	_, err = NewLoader("").Load(context.Background(), "  ")
	assert.Error(t, err)
}

func TestLoader_RemoteWithCache(t *testing.T) {
	var hits, conditional atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	l := NewLoader(t.TempDir())
	ctx := context.Background()
	src := srv.URL + "/private.ics?token=secret"

	body, err := l.Load(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, sampleICS, string(body))

	body, err = l.Load(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, sampleICS, string(body))
	assert.Equal(t, int32(1), conditional.Load())

	fail.Store(true)
	body, err = l.Load(ctx, src)
	require.NoError(t, err, "falls back to cached body")
	assert.Equal(t, sampleICS, string(body))
	assert.Equal(t, int32(3), hits.Load())

	_, err = NewLoader("").Load(ctx, src)
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/p/private.ics?token=x"))
	assert.True(t, strings.HasPrefix(redactURL("not a url"), "ics://"))
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharecal/internal/share"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv("SHARECAL_DB_PATH", "")
	t.Setenv("SHARECAL_LOG_LEVEL", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "db_path: " + filepath.Join(dir, "sharecal.db") + "\ntimezone: UTC\nlog_level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dir
}

func runCmd(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), configPath, args, &out)
	return out.String(), err
}

func TestRun_Parse(t *testing.T) {
	cfg, _ := writeConfig(t)

	out, err := runCmd(t, cfg, "parse", "-ref", "2025-03-10", "Lunch with Sarah tomorrow at noon")
	require.NoError(t, err)
	assert.Contains(t, out, "Title:    Lunch with Sarah")
	assert.Contains(t, out, "Date:     2025-03-11 (Tuesday)")
	assert.Contains(t, out, "Time:     12:00-13:00")

	out, err = runCmd(t, cfg, "parse", "-ref", "2025-03-10", "-json", "Offsite on Friday")
	require.NoError(t, err)
	assert.Contains(t, out, `"start_date": "2025-03-14"`)
	assert.Contains(t, out, `"title": "Offsite"`)
	assert.Contains(t, out, `"is_all_day": true`)

	// A weekday needs "on" or "next"; otherwise the reference date is kept.
	out, err = runCmd(t, cfg, "parse", "-ref", "2025-03-10", "-json", "Offsite Friday")
	require.NoError(t, err)
	assert.Contains(t, out, `"start_date": "2025-03-10"`)
	assert.Contains(t, out, `"title": "Offsite Friday"`)

	_, err = runCmd(t, cfg, "parse")
	assert.Error(t, err)

	_, err = runCmd(t, cfg, "parse", "-ref", "tomorrow", "Lunch")
	assert.Error(t, err)
}

func TestRun_CalendarSaveExportImport(t *testing.T) {
	cfg, dir := writeConfig(t)

	out, err := runCmd(t, cfg, "calendars")
	require.NoError(t, err)
	assert.Contains(t, out, "No calendars")

	_, err = runCmd(t, cfg, "save", "Dentist Jan 15 at 10:30am")
	assert.ErrorIs(t, err, share.ErrNoCalendarSelected)

	out, err = runCmd(t, cfg, "calendars", "-add", "Personal", "-account", "me@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `Created calendar 1 "Personal"`)

	out, err = runCmd(t, cfg, "select", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected calendar 1")

	out, err = runCmd(t, cfg, "calendars")
	require.NoError(t, err)
	assert.Contains(t, out, "*   1  Personal")

	out, err = runCmd(t, cfg, "save", "-ref", "2025-01-01", "Dentist Jan 15 at 10:30am")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved event 1")

	icsPath := filepath.Join(dir, "out", "calendar.ics")
	out, err = runCmd(t, cfg, "export", "-o", icsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 1 events")
	data, err := os.ReadFile(icsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:Dentist")

	out, err = runCmd(t, cfg, "export", "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")

	_, err = runCmd(t, cfg, "calendars", "-add", "Imported")
	require.NoError(t, err)
	out, err = runCmd(t, cfg, "import", "-calendar", "2", icsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 events into calendar 2")

	_, err = runCmd(t, cfg, "select", "abc")
	assert.Error(t, err)
	_, err = runCmd(t, cfg, "select", "99")
	assert.Error(t, err)
	_, err = runCmd(t, cfg, "import")
	assert.Error(t, err)
}

func TestRun_UnknownCommand(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := runCmd(t, cfg, "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)

	out, err := runCmd(t, cfg, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sharecal "+version)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sharecal/internal/log"
	"sharecal/internal/model"
)

// Fixed-width so that text ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const prefSelectedCalendar = "selected_calendar_id"

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens (creating if needed) the database at dbPath and applies
// pending migrations. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Debug("store opened", "path", dbPath, "driver", DriverName, "mode", BuildMode)
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Calendar operations

func (s *SQLiteStore) CreateCalendar(ctx context.Context, cal *model.Calendar) error {
	name := strings.TrimSpace(cal.Name)
	if name == "" {
		return fmt.Errorf("calendar name is required: %w", ErrInvalid)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO calendars (name, account, color) VALUES (?, ?, ?)`,
		name, cal.Account, cal.Color)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("calendar %q: %w", name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create calendar: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get calendar ID: %w", err)
	}
	cal.ID = id
	cal.Name = name
	return nil
}

func (s *SQLiteStore) GetCalendar(ctx context.Context, id int64) (*model.Calendar, error) {
	var cal model.Calendar
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, account, color FROM calendars WHERE id = ?`, id).
		Scan(&cal.ID, &cal.Name, &cal.Account, &cal.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar: %w", err)
	}
	return &cal, nil
}

func (s *SQLiteStore) ListCalendars(ctx context.Context) ([]model.Calendar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, account, color FROM calendars ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	defer rows.Close()

	var out []model.Calendar
	for rows.Next() {
		var cal model.Calendar
		if err := rows.Scan(&cal.ID, &cal.Name, &cal.Account, &cal.Color); err != nil {
			return nil, err
		}
		out = append(out, cal)
	}
	return out, rows.Err()
}

// Event operations

func (s *SQLiteStore) InsertEvent(ctx context.Context, calendarID int64, ev *model.Event) (int64, error) {
	if _, err := s.GetCalendar(ctx, calendarID); err != nil {
		return 0, err
	}

	if ev.UID == "" {
		ev.UID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	ev.CalendarID = calendarID

	id, err := insertEventWithQuerier(ctx, s.db, insertEventSQL, ev)
	if err != nil {
		return 0, err
	}
	ev.ID = id
	return id, nil
}

const insertEventSQL = `
	INSERT INTO events (calendar_id, uid, summary, description, location, all_day,
		start_at, end_at, timezone, rrule, exdates, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const upsertEventSQL = insertEventSQL + `
	ON CONFLICT(calendar_id, uid) DO UPDATE SET
		summary = excluded.summary,
		description = excluded.description,
		location = excluded.location,
		all_day = excluded.all_day,
		start_at = excluded.start_at,
		end_at = excluded.end_at,
		timezone = excluded.timezone,
		rrule = excluded.rrule,
		exdates = excluded.exdates
`

// insertEventWithQuerier writes ev with query (insertEventSQL or
// upsertEventSQL) on q, which is s.db for single saves and the import
// transaction for UpsertEvents.
func insertEventWithQuerier(ctx context.Context, q querier, query string, ev *model.Event) (int64, error) {
	if err := checkEventTimes(ev); err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, eventArgs(ev)...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("event %q: %w", ev.UID, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("failed to write event %q: %w", ev.UID, err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpsertEvents(ctx context.Context, calendarID int64, events []model.Event) (int, error) {
	if _, err := s.GetCalendar(ctx, calendarID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	n := 0
	for i := range events {
		ev := events[i]
		if ev.UID == "" {
			ev.UID = uuid.NewString()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		ev.CalendarID = calendarID
		if _, err := insertEventWithQuerier(ctx, tx, upsertEventSQL, &ev); err != nil {
			return 0, err
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, calendarID int64) ([]model.Event, error) {
	query := `
		SELECT id, calendar_id, uid, summary, description, location, all_day,
			start_at, end_at, timezone, rrule, exdates, created_at
		FROM events
	`
	var args []interface{}
	if calendarID != 0 {
		query += " WHERE calendar_id = ?"
		args = append(args, calendarID)
	}
	query += " ORDER BY start_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Preferences

func (s *SQLiteStore) SelectedCalendarID(ctx context.Context) (int64, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, prefSelectedCalendar).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read preference: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s %q: %w", prefSelectedCalendar, v, err)
	}
	return id, true, nil
}

func (s *SQLiteStore) SetSelectedCalendarID(ctx context.Context, id int64) error {
	if _, err := s.GetCalendar(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		prefSelectedCalendar, strconv.FormatInt(id, 10))
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// helpers

func eventArgs(ev *model.Event) []interface{} {
	tz := ev.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	return []interface{}{
		ev.CalendarID,
		ev.UID,
		ev.Summary,
		ev.Description,
		ev.Location,
		ev.AllDay,
		formatTime(ev.Start),
		formatTime(ev.End),
		tz,
		ev.RRule,
		joinTimes(ev.ExDates),
		formatTime(ev.CreatedAt),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(r rowScanner) (model.Event, error) {
	var (
		ev                        model.Event
		start, end, exdates, crAt string
	)
	err := r.Scan(&ev.ID, &ev.CalendarID, &ev.UID, &ev.Summary, &ev.Description, &ev.Location,
		&ev.AllDay, &start, &end, &ev.TimeZone, &ev.RRule, &exdates, &crAt)
	if err != nil {
		return model.Event{}, err
	}

	loc, err := time.LoadLocation(ev.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	if ev.Start, err = parseTime(start, loc); err != nil {
		return model.Event{}, err
	}
	if ev.End, err = parseTime(end, loc); err != nil {
		return model.Event{}, err
	}
	if ev.CreatedAt, err = parseTime(crAt, time.Local); err != nil {
		return model.Event{}, err
	}
	if exdates != "" {
		for _, s := range strings.Split(exdates, ",") {
			t, err := parseTime(s, loc)
			if err != nil {
				return model.Event{}, err
			}
			ev.ExDates = append(ev.ExDates, t)
		}
	}
	return ev, nil
}

// checkEventTimes rejects instants that timeLayout cannot round-trip.
func checkEventTimes(ev *model.Event) error {
	times := append([]time.Time{ev.Start, ev.End, ev.CreatedAt}, ev.ExDates...)
	for _, t := range times {
		if y := t.UTC().Year(); y < 1 || y > 9999 {
			return fmt.Errorf("event %q: time %s out of range: %w", ev.UID, t.UTC().Format(time.RFC3339), ErrInvalid)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t.In(loc), nil
}

func joinTimes(ts []time.Time) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = formatTime(t)
	}
	return strings.Join(parts, ",")
}

// Both drivers report constraint failures with the SQLite message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

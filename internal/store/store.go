// Package store persists calendars, events and user preferences in SQLite.
//
// The default build uses the pure Go driver (modernc.org/sqlite). Building
// with the sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
//
// Instants are stored as RFC 3339 text in UTC and returned in the zone the
// event was authored in.
package store

import (
	"context"
	"errors"

	"sharecal/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalid is returned for entities that fail validation
	ErrInvalid = errors.New("invalid")
)

// Store is the calendar and preferences persistence used by the rest of the
// application.
type Store interface {
	CreateCalendar(ctx context.Context, cal *model.Calendar) error
	GetCalendar(ctx context.Context, id int64) (*model.Calendar, error)
	ListCalendars(ctx context.Context) ([]model.Calendar, error)

	// InsertEvent stores ev in the calendar and returns its new ID. An empty
	// UID is replaced with a random one.
	InsertEvent(ctx context.Context, calendarID int64, ev *model.Event) (int64, error)
	// UpsertEvents inserts or replaces events by UID within one calendar.
	UpsertEvents(ctx context.Context, calendarID int64, events []model.Event) (int, error)
	// ListEvents returns events ordered by start; calendarID 0 means all.
	ListEvents(ctx context.Context, calendarID int64) ([]model.Event, error)

	SelectedCalendarID(ctx context.Context) (int64, bool, error)
	SetSelectedCalendarID(ctx context.Context, id int64) error

	Close() error
}

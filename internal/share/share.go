// Package share implements the "share text, confirm, save" flow on top of the
// parser and the calendar store.
package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"sharecal/internal/log"
	"sharecal/internal/model"
	"sharecal/internal/parser"
	"sharecal/internal/store"
)

// TitleMaxLength is the default limit applied to prepared titles, in runes.
const TitleMaxLength = 50

var (
	ErrNoCalendarSelected = errors.New("no calendar selected")
	ErrEmptyTitle         = errors.New("event title cannot be empty")
	ErrCalendarNotFound   = errors.New("calendar not found")
	ErrInvalidDate        = errors.New("event date is missing or invalid")
)

// Store is the subset of store.Store the service needs.
type Store interface {
	GetCalendar(ctx context.Context, id int64) (*model.Calendar, error)
	InsertEvent(ctx context.Context, calendarID int64, ev *model.Event) (int64, error)
	SelectedCalendarID(ctx context.Context) (int64, bool, error)
}

// Service prepares drafts from shared text and saves confirmed drafts.
type Service struct {
	store    Store
	loc      *time.Location
	titleMax int
}

// NewService returns a Service that places timed events in loc and shortens
// titles to titleMax runes (TitleMaxLength when titleMax <= 0).
func NewService(st Store, loc *time.Location, titleMax int) *Service {
	if loc == nil {
		loc = time.Local
	}
	if titleMax <= 0 {
		titleMax = TitleMaxLength
	}
	return &Service{store: st, loc: loc, titleMax: titleMax}
}

// Location is the zone timed events are placed in.
func (s *Service) Location() *time.Location { return s.loc }

// Prepare parses text and returns a draft ready for confirmation: the title
// is shortened and the original text becomes the description. A zero ref
// means today in the service's zone.
func (s *Service) Prepare(text string, ref model.Date) model.EventDraft {
	if ref.IsZero() {
		ref = model.Today(s.loc)
	}
	d := parser.Parse(text, ref)
	d.Title = ShortenTitle(d.Title, s.titleMax)
	d.Description = strings.TrimSpace(text)
	return d
}

// Save stores draft in the selected calendar and returns the new event ID.
func (s *Service) Save(ctx context.Context, draft model.EventDraft) (int64, error) {
	id, ok, err := s.store.SelectedCalendarID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read selected calendar: %w", err)
	}
	if !ok {
		return 0, ErrNoCalendarSelected
	}
	return s.SaveTo(ctx, id, draft)
}

// SaveTo stores draft in the given calendar.
func (s *Service) SaveTo(ctx context.Context, calendarID int64, draft model.EventDraft) (int64, error) {
	if calendarID <= 0 {
		return 0, ErrNoCalendarSelected
	}
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return 0, ErrEmptyTitle
	}
	sd := draft.StartDate
	if _, ok := model.NewDate(sd.Year, sd.Month, sd.Day); !ok {
		return 0, fmt.Errorf("start date %s: %w", sd, ErrInvalidDate)
	}
	if _, err := s.store.GetCalendar(ctx, calendarID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("calendar %d: %w", calendarID, ErrCalendarNotFound)
		}
		return 0, fmt.Errorf("load calendar %d: %w", calendarID, err)
	}

	// Edited drafts may have cleared the start time without the flag.
	if draft.StartTime == nil {
		draft.IsAllDay = true
		draft.EndTime = nil
	}

	ev := model.NewEventFromDraft(calendarID, draft, s.loc)
	id, err := s.store.InsertEvent(ctx, calendarID, &ev)
	if err != nil {
		log.Error("event save failed", err, "calendar_id", calendarID)
		return 0, fmt.Errorf("save event: %w", err)
	}

	log.Info("event saved", "calendar_id", calendarID, "event_id", id, "uid", ev.UID, "all_day", ev.AllDay)
	return id, nil
}

// ShortenTitle keeps title if it fits in max runes. Otherwise it tries the
// first sentence, and finally cuts at a word boundary and appends "…".
func ShortenTitle(title string, max int) string {
	title = strings.TrimSpace(title)
	if max <= 0 {
		max = TitleMaxLength
	}
	if utf8.RuneCountInString(title) <= max {
		return title
	}

	if i := strings.IndexAny(title, ".!?"); i >= 0 {
		first := strings.TrimSpace(title[:i])
		if first != "" && utf8.RuneCountInString(first) <= max {
			return first
		}
	}

	keep := max - 3
	if keep < 1 {
		keep = 1
	}
	cut := string([]rune(title)[:keep])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

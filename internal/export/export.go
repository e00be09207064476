// Package export writes the stored calendar to an .ics file, on demand or on
// a cron schedule.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sharecal/internal/config"
	"sharecal/internal/ics"
	appLog "sharecal/internal/log"
	"sharecal/internal/model"
)

// EventLister is the store dependency of the exporter.
type EventLister interface {
	ListEvents(ctx context.Context, calendarID int64) ([]model.Event, error)
}

// Exporter renders every stored event into one iCalendar file.
type Exporter struct {
	events EventLister
	path   string
	prodID string

	// runTimeout bounds one scheduled run.
	runTimeout time.Duration

	mu   sync.Mutex // serializes runs
	cron *cron.Cron
}

// New returns an Exporter writing to path.
func New(events EventLister, path string) *Exporter {
	return &Exporter{
		events:     events,
		path:       path,
		prodID:     ics.DefaultProductID,
		runTimeout: time.Minute,
		cron:       cron.New(),
	}
}

// Run writes the file once and returns the number of events written.
// The file is replaced atomically with mode 0600.
func (e *Exporter) Run(ctx context.Context) (int, error) {
	if strings.TrimSpace(e.path) == "" {
		return 0, errors.New("export path is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	events, err := e.events.ListEvents(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	body := ics.Export(events, e.prodID)
	if err := config.WriteFileAtomic(e.path, []byte(body)); err != nil {
		return 0, fmt.Errorf("write %s: %w", e.path, err)
	}

	appLog.Info("ics export written", "path", e.path, "event_count", len(events), "bytes", len(body))
	return len(events), nil
}

// Schedule registers a periodic Run using a standard 5-field cron spec or a
// descriptor such as "@hourly".
func (e *Exporter) Schedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return errors.New("empty cron spec")
	}
	_, err := e.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.runTimeout)
		defer cancel()
		if _, err := e.Run(ctx); err != nil {
			appLog.Error("scheduled ics export failed", err, "path", e.path)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	appLog.Info("ics export scheduled", "spec", spec, "path", e.path)
	return nil
}

// Start starts the scheduler in its own goroutine.
func (e *Exporter) Start() {
	e.cron.Start()
}

// Stop stops the scheduler and waits for a running export to finish or for
// ctx to be done.
func (e *Exporter) Stop(ctx context.Context) error {
	done := e.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

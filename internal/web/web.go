package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"sharecal/internal/config"
	"sharecal/internal/ics"
	appLog "sharecal/internal/log"
	"sharecal/internal/model"
	"sharecal/internal/share"
	"sharecal/internal/store"
)

const (
	maxRequestBody = 1 << 20
	agendaCacheTTL = 30 * time.Second
)

// Server provides the HTTP JSON API for parsing and saving events.
type Server struct {
	cfg   *config.Config
	store store.Store
	share *share.Service
	mux   *http.ServeMux

	// Expanded agendas keyed by query; dropped whenever events change.
	agendaMu    sync.RWMutex
	agendaCache map[agendaKey]agendaCache
	agendaGen   uint64 // bumped by invalidateAgenda
}

type agendaKey struct {
	days, backfill int
}

type agendaCache struct {
	resp      agendaResponse
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st store.Store, svc *share.Service) *Server {
	s := &Server{
		cfg:         cfg,
		store:       st,
		share:       svc,
		mux:         http.NewServeMux(),
		agendaCache: make(map[agendaKey]agendaCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("stopping HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Blank credentials leave auth off.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="sharecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/parse", s.handleParse)
	s.mux.HandleFunc("/api/calendars", s.handleCalendars)
	s.mux.HandleFunc("/api/preferences", s.handlePreferences)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/agenda", s.handleAgenda)
	s.mux.HandleFunc("/api/export.ics", s.handleExport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// parseRequest is the body of POST /api/parse.
type parseRequest struct {
	Text          string     `json:"text"`
	ReferenceDate model.Date `json:"reference_date"`
}

// handleParse turns text into a draft without saving anything.
//
// POST /api/parse {"text": "...", "reference_date": "2025-03-10"}
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req parseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.share.Prepare(req.Text, req.ReferenceDate))
}

// GET /api/calendars, POST /api/calendars {"name", "account", "color"}
func (s *Server) handleCalendars(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodGet {
		cals, err := s.store.ListCalendars(ctx)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if cals == nil {
			cals = []model.Calendar{}
		}
		writeJSON(w, http.StatusOK, cals)
		return
	}

	var cal model.Calendar
	if !decodeJSON(w, r, &cal) {
		return
	}
	cal.ID = 0
	if err := s.store.CreateCalendar(ctx, &cal); err != nil {
		writeStoreError(w, err)
		return
	}
	appLog.Info("calendar created", "id", cal.ID, "name", cal.Name)
	writeJSON(w, http.StatusCreated, cal)
}

type preferencesDTO struct {
	SelectedCalendarID *int64 `json:"selected_calendar_id"`
}

// GET /api/preferences, PUT /api/preferences {"selected_calendar_id": 1}
func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodPut {
		var req preferencesDTO
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.SelectedCalendarID == nil {
			writeError(w, http.StatusBadRequest, "selected_calendar_id is required")
			return
		}
		if err := s.store.SetSelectedCalendarID(ctx, *req.SelectedCalendarID); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	id, ok, err := s.store.SelectedCalendarID(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var resp preferencesDTO
	if ok {
		resp.SelectedCalendarID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

// saveRequest is the body of POST /api/events. Either Event (a confirmed,
// possibly edited draft) or Text must be set.
type saveRequest struct {
	CalendarID    int64             `json:"calendar_id,omitempty"`
	Event         *model.EventDraft `json:"event,omitempty"`
	Text          string            `json:"text,omitempty"`
	ReferenceDate model.Date        `json:"reference_date"`
}

type saveResponse struct {
	ID    int64            `json:"id"`
	Event model.EventDraft `json:"event"`
}

// GET /api/events?calendar_id=1, POST /api/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodGet {
		calID := parseInt64Default(r.URL.Query().Get("calendar_id"), 0)
		events, err := s.store.ListEvents(ctx, calID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if events == nil {
			events = []model.Event{}
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	var req saveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var draft model.EventDraft
	switch {
	case req.Event != nil:
		draft = *req.Event
	case req.Text != "":
		draft = s.share.Prepare(req.Text, req.ReferenceDate)
	default:
		writeError(w, http.StatusBadRequest, "event or text is required")
		return
	}

	var (
		id  int64
		err error
	)
	if req.CalendarID != 0 {
		id, err = s.share.SaveTo(ctx, req.CalendarID, draft)
	} else {
		id, err = s.share.Save(ctx, draft)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.invalidateAgenda()
	writeJSON(w, http.StatusCreated, saveResponse{ID: id, Event: draft})
}

// agendaResponse is the JSON response shape for /api/agenda.
type agendaResponse struct {
	Occurrences     []model.Occurrence `json:"occurrences"`
	TruncatedUIDs   []string           `json:"truncated_uids,omitempty"`
	RangeStart      time.Time          `json:"range_start"`
	RangeEnd        time.Time          `json:"range_end"`
	DisplayTimeZone string             `json:"display_timezone"`
}

// handleAgenda returns expanded occurrences of all stored events.
//
// GET /api/agenda?days=7&backfill=1
//   - days:     days ahead of today to include (default 7)
//   - backfill: days before today to include (default 1)
//
// Times are in the configured timezone.
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 || days > 366 {
		days = 7
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 || backfill > 366 {
		backfill = 0
	}
	key := agendaKey{days: days, backfill: backfill}

	s.agendaMu.RLock()
	ac, ok := s.agendaCache[key]
	gen := s.agendaGen
	s.agendaMu.RUnlock()
	if ok && time.Since(ac.updatedAt) < agendaCacheTTL {
		writeJSON(w, http.StatusOK, ac.resp)
		return
	}

	loc := s.cfg.Location()
	today := model.Today(loc)
	rangeStart := today.AddDays(-backfill).In(loc)
	rangeEnd := today.AddDays(days).In(loc)

	events, err := s.store.ListEvents(ctx, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	res, err := ics.ExpandOccurrences(events, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		appLog.Error("api agenda: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	resp := agendaResponse{
		Occurrences:     res.Occurrences,
		TruncatedUIDs:   res.TruncatedEvents,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: loc.String(),
	}

	s.storeAgenda(key, resp, gen)

	writeJSON(w, http.StatusOK, resp)
}

// storeAgenda caches resp unless events changed after gen was read.
func (s *Server) storeAgenda(key agendaKey, resp agendaResponse, gen uint64) bool {
	s.agendaMu.Lock()
	defer s.agendaMu.Unlock()
	if s.agendaGen != gen {
		return false
	}
	s.agendaCache[key] = agendaCache{resp: resp, updatedAt: time.Now()}
	return true
}

func (s *Server) invalidateAgenda() {
	s.agendaMu.Lock()
	clear(s.agendaCache)
	s.agendaGen++
	s.agendaMu.Unlock()
}

// GET /api/export.ics
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	events, err := s.store.ListEvents(r.Context(), 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sharecal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Export(events, "")))
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	for _, m := range methods {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeStoreError maps service and store errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, share.ErrNoCalendarSelected), errors.Is(err, share.ErrEmptyTitle),
		errors.Is(err, share.ErrInvalidDate), errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, share.ErrCalendarNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appLog.Error("api request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseInt64Default(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

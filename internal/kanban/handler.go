package kanban

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"jobmate/dashboard-service/internal/jobs"
	"jobmate/dashboard-service/internal/journal"
	"jobmate/dashboard-service/internal/model"
	"jobmate/dashboard-service/internal/pipeline"
	"jobmate/dashboard-service/internal/settings"
	"jobmate/dashboard-service/internal/trigger"
)

const maxBodyBytes = 1 << 20

// Session is the credential holder the handler sets on login.
type Session interface {
	Set(ctx context.Context, token string) error
	Authenticated() bool
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	repo     *jobs.Repository
	disp     *Dispatcher
	settings *settings.Service
	session  Session
	journal  journal.Journal
	log      *slog.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(repo *jobs.Repository, disp *Dispatcher, svc *settings.Service, sess Session, j journal.Journal, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, disp: disp, settings: svc, session: sess, journal: j, log: log}
}

// Routes returns the dashboard router:
//
//	GET    /health                         → liveness + session state
//	GET    /jobs?status=&q=&view=          → filtered collection
//	GET    /jobs/counts                    → jobs per status
//	GET    /jobs/{id}                      → one job
//	POST   /jobs/{id}/actions/{action}     → dispatch a card action
//	POST   /jobs/{id}/move                 → manual kanban move
//	POST   /refresh                        → non-silent fetch
//	GET    /settings                       → configuration tables
//	POST   /settings/filters               → add a filter rule
//	PUT    /settings/filters/{index}       → update a filter rule
//	DELETE /settings/filters/{index}       → delete a filter rule
//	POST   /scores/recalculate             → rescore the collection
//	GET    /notices                        → live notices
//	GET    /journal?limit=                 → recent dispatches
//	PUT    /session                        → set the bearer credential
//	DELETE /session                        → log out
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", h.health)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Get("/counts", h.counts)
		r.Get("/{id}", h.getJob)
		r.Post("/{id}/actions/{action}", h.dispatch)
		r.Post("/{id}/move", h.move)
	})
	r.Post("/refresh", h.refresh)

	r.Get("/settings", h.getSettings)
	r.Route("/settings/filters", func(r chi.Router) {
		r.Post("/", h.addFilter)
		r.Put("/{index}", h.updateFilter)
		r.Delete("/{index}", h.deleteFilter)
	})

	r.Post("/scores/recalculate", h.recalculate)
	r.Get("/notices", h.notices)
	r.Get("/journal", h.recentJournal)

	r.Put("/session", h.login)
	r.Delete("/session", h.logout)
	return r
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	var lastFetch *time.Time
	if t := h.repo.LastFetch(); !t.IsZero() {
		lastFetch = &t
	}
	body := map[string]any{
		"status":        "ok",
		"service":       "dashboard-service",
		"authenticated": h.session.Authenticated(),
		"loading":       h.repo.Loading(),
		"pending":       h.repo.Pending(),
		"lastFetch":     lastFetch,
	}
	if err := h.repo.LastError(); err != nil {
		body["lastError"] = err.Error()
	}
	jsonOK(w, body)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var statuses []pipeline.Status
	if view := q.Get("view"); view != "" {
		vs, ok := model.Views[view]
		if !ok {
			jsonError(w, fmt.Sprintf("unknown view %q", view), http.StatusBadRequest)
			return
		}
		statuses = append(statuses, vs...)
	}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := pipeline.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}
			statuses = append(statuses, st)
		}
	}

	jsonOK(w, model.Filter(h.repo.Jobs(), q.Get("q"), statuses...))
}

func (h *Handler) counts(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.repo.Counts())
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.repo.Find(chi.URLParam(r, "id"))
	if !ok {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	jsonOK(w, job)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		jsonError(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = nil
	}

	out := h.disp.Dispatch(r.Context(), strings.ToUpper(chi.URLParam(r, "action")), chi.URLParam(r, "id"), raw)
	if out.Err != nil {
		h.writeErr(w, out.Err)
		return
	}
	jsonOK(w, out)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Status == "" {
		jsonError(w, "body must contain status", http.StatusBadRequest)
		return
	}

	job, err := h.disp.Move(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, job)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Fetch(r.Context(), jobs.FetchOptions{}); err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, map[string]any{"count": len(h.repo.Jobs()), "pending": h.repo.Pending()})
}

// ─── Settings ────────────────────────────────────────────────────────────────

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.settings.Snapshot())
}

func (h *Handler) addFilter(w http.ResponseWriter, r *http.Request) {
	var rule model.FilterRule
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&rule); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.settings.AddFilter(r.Context(), rule); err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, h.settings.Snapshot().Filters)
}

func (h *Handler) updateFilter(w http.ResponseWriter, r *http.Request) {
	index, ok := filterIndex(w, r)
	if !ok {
		return
	}
	var rule model.FilterRule
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&rule); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.settings.UpdateFilter(r.Context(), index, rule); err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, h.settings.Snapshot().Filters)
}

func (h *Handler) deleteFilter(w http.ResponseWriter, r *http.Request) {
	index, ok := filterIndex(w, r)
	if !ok {
		return
	}
	if err := h.settings.DeleteFilter(r.Context(), index); err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, h.settings.Snapshot().Filters)
}

func filterIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		jsonError(w, "index must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return index, true
}

// ─── Triggers, notices, journal ──────────────────────────────────────────────

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	if err := h.disp.RecalculateScores(r.Context()); err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, map[string]bool{"success": true})
}

func (h *Handler) notices(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.disp.Notices().List())
}

func (h *Handler) recentJournal(w http.ResponseWriter, r *http.Request) {
	limit := journal.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > journal.MaxLimit {
			jsonError(w, fmt.Sprintf("limit must be an integer between 1 and %d", journal.MaxLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error("journal recent failed", "err", err)
		jsonError(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	jsonOK(w, entries)
}

// ─── Session ─────────────────────────────────────────────────────────────────

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Token == "" {
		jsonError(w, "body must contain token", http.StatusBadRequest)
		return
	}
	if err := h.session.Set(r.Context(), body.Token); err != nil {
		h.log.Error("set credential failed", "err", err)
		jsonError(w, "could not store credential", http.StatusInternalServerError)
		return
	}
	if err := h.repo.Fetch(r.Context(), jobs.FetchOptions{}); err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, map[string]any{"authenticated": true, "count": len(h.repo.Jobs())})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.repo.Logout(r.Context())
	jsonOK(w, map[string]bool{"authenticated": false})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// writeErr maps domain errors to HTTP statuses.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var (
		ve  *ValidationError
		sve *settings.ValidationError
		fe  *jobs.FetchError
		we  *jobs.WriteError
		te  *trigger.Error
	)
	switch {
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	case errors.As(err, &sve):
		jsonError(w, sve.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound), errors.Is(err, jobs.ErrNotFound), errors.Is(err, settings.ErrNoRule):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, jobs.ErrAuth):
		jsonError(w, "not authenticated", http.StatusUnauthorized)
	case errors.Is(err, trigger.ErrNotConfigured), errors.Is(err, trigger.ErrPlaceholder):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &fe), errors.As(err, &we), errors.As(err, &te):
		h.log.Warn("upstream failure", "err", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		h.log.Error("request failed", "err", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

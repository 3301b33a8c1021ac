package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/generate"
	"github.com/hyperengineering/simtracker/internal/host"
	"github.com/hyperengineering/simtracker/internal/migrate"
	"github.com/hyperengineering/simtracker/internal/store"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

// Runner executes a closure on the render goroutine and waits for it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Regenerator rewrites the tracker block of one message.
type Regenerator interface {
	Regenerate(ctx context.Context, id int) (*generate.Result, error)
}

// Handler implements the API handlers
type Handler struct {
	runner    Runner
	host      *host.Host
	live      *config.Live
	generator Regenerator
	chats     store.Store
	version   string
}

// NewHandler creates a Handler. generator and chats may be nil; their
// routes then answer 503.
func NewHandler(r Runner, h *host.Host, live *config.Live, g Regenerator, chats store.Store, version string) *Handler {
	return &Handler{
		runner:    r,
		host:      h,
		live:      live,
		generator: g,
		chats:     chats,
		version:   version,
	}
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Messages        int    `json:"messages"`
	Position        string `json:"position"`
	Generating      bool   `json:"generating"`
	SettingsVersion int    `json:"settings_version"`
}

// run executes fn on the render goroutine.
func (h *Handler) run(ctx context.Context, fn func() error) error {
	var err error
	if derr := h.runner.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Version: h.version, SettingsVersion: h.live.Version()}
	err := h.run(r.Context(), func() error {
		resp.Messages = len(h.host.Messages())
		resp.Position = string(h.host.Session().Position())
		resp.Generating = h.host.Session().Generating()
		return nil
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Page handles GET /: the rendered chat page.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	var out string
	err := h.run(r.Context(), func() error {
		var err error
		out, err = h.host.HTML()
		return err
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(out))
}

// Render handles POST /api/v1/render/{id}
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "id")
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.run(r.Context(), func() error { return h.host.RenderMessage(r.Context(), id) }); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/v1/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.run(r.Context(), func() error { return h.host.Refresh(r.Context()) }); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Migrate handles POST /api/v1/migrate[?dry_run=true]
func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	var res migrate.Result
	err := h.run(r.Context(), func() error {
		t := h.host.Tracker()
		format, err := tracker.ParseFormat(t.Format)
		if err != nil {
			return err
		}
		res, err = migrate.Apply(r.Context(), h.host.Store(), t.Identifier, format, dryRun)
		if err != nil {
			return err
		}
		if dryRun || res.MigratedCount == 0 {
			return nil
		}
		return h.host.Refresh(r.Context())
	})
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSettings handles GET /api/v1/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.live.Tracker())
}

// PutSettings handles PUT /api/v1/settings. Fields missing from the body
// keep their current values.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	next := h.live.Tracker()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if err := next.Validate(); err != nil {
		MapError(w, r, err)
		return
	}
	if err := h.run(r.Context(), func() error { return h.host.UpdateSettings(r.Context(), next) }); err != nil {
		MapError(w, r, err)
		return
	}
	if err := h.live.Set(next); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.live.Tracker())
}

// ClickTab handles POST /api/v1/sidebar/{side}/tabs/{index}
func (h *Handler) ClickTab(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	side := chi.URLParam(r, "side")
	if err := h.run(r.Context(), func() error { return h.host.ClickTab(side, index) }); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /api/v1/generate/{id}. The model call runs off the
// render goroutine; the rewritten message is rendered through the event queue.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Tracker generation is not enabled")
		return
	}
	id, err := intParam(r, "id")
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.generator.Regenerate(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListChats handles GET /api/v1/chats
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	if h.chats == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "No chat database configured")
		return
	}
	chats, err := h.chats.ListChats(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	if chats == nil {
		chats = []store.ChatInfo{}
	}
	writeJSON(w, http.StatusOK, chats)
}

// GetChat handles GET /api/v1/chats/{chatID}
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	c, err := ChatFromContext(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Revisions handles GET /api/v1/chats/{chatID}/messages/{position}/revisions
func (h *Handler) Revisions(w http.ResponseWriter, r *http.Request) {
	c, err := ChatFromContext(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	pos, err := intParam(r, "position")
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	revs, err := h.chats.Revisions(r.Context(), c.ID, pos)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if revs == nil {
		revs = []store.Revision{}
	}
	writeJSON(w, http.StatusOK, revs)
}

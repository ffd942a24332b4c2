package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/supervisor"
	"github.com/desertthunder/ytrpc/internal/tracks"
)

// maxTrackBody bounds POST /api/track payloads.
const maxTrackBody = 64 << 10

// HistoryLister reads confirmed presences.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// APIHandler serves the JSON control surface.
type APIHandler struct {
	engine  Engine
	tracks  tracks.Submitter
	history HistoryLister
	logger  *log.Logger
}

// NewAPIHandler creates an [APIHandler]. history may be nil, in which case /api/history is not registered.
func NewAPIHandler(engine Engine, submitter tracks.Submitter, history HistoryLister, logger *log.Logger) *APIHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &APIHandler{engine: engine, tracks: submitter, history: history, logger: logger}
}

// Register adds every API route to r.
func (h *APIHandler) Register(r Router) {
	r.Handle(http.MethodGet, "/api/status", http.HandlerFunc(h.status))
	r.Handle(http.MethodPost, "/api/track", http.HandlerFunc(h.track))
	r.Handle(http.MethodPost, "/api/connect", h.command(h.engine.Connect))
	r.Handle(http.MethodPost, "/api/reconnect", h.command(h.engine.Reconnect))
	r.Handle(http.MethodPost, "/api/disconnect", h.command(h.engine.Disconnect))
	if h.history != nil {
		r.Handle(http.MethodGet, "/api/history", http.HandlerFunc(h.listHistory))
	}
}

func (h *APIHandler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *APIHandler) track(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTrackBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ev, err := models.ParseSourceEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.tracks.SubmitTrack(ev)
	w.WriteHeader(http.StatusAccepted)
}

// command runs an engine command and replies with the resulting status.
func (h *APIHandler) command(run func(context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := run(r.Context()); err != nil {
			code := http.StatusInternalServerError
			switch {
			case errors.Is(err, supervisor.ErrStopped):
				code = http.StatusServiceUnavailable
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				code = http.StatusGatewayTimeout
			}
			h.logger.Warn("command failed", "path", r.URL.Path, "error", err)
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusOK, h.engine.Status())
	})
}

func (h *APIHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

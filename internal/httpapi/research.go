package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/server"
	"github.com/autoshop-ai/orchestrator/internal/store"
	"github.com/autoshop-ai/orchestrator/internal/tracing"
)

// ResearchHandler exposes the caller-facing research endpoints.
type ResearchHandler struct {
	svc    *server.Service
	logger *zap.Logger
}

// NewResearchHandler creates the handler.
func NewResearchHandler(svc *server.Service, logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers research endpoints on the provided mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/research", h.handleCollection)
	mux.HandleFunc("/api/research/", h.handleItem)
}

type submitRequest struct {
	Question string `json:"question"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

// handleCollection serves POST /api/research (submit) and GET /api/research
// (list, with optional ?status= filter).
func (h *ResearchHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submit(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ResearchHandler) submit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Start(r.Context(), "http.submit_research")
	defer span.End()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.svc.SubmitResearch(ctx, req.Question)
	if err != nil {
		if errors.Is(err, server.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Research submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start research")
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{RequestID: id})
}

func (h *ResearchHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Start(r.Context(), "http.list_research")
	defer span.End()

	reqs, err := h.svc.ListResearch(ctx, r.URL.Query().Get("status"))
	if err != nil {
		if errors.Is(err, server.ErrInvalidStatus) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Research listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list research requests")
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// handleItem serves GET /api/research/{id}.
func (h *ResearchHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/research/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	ctx, span := tracing.Start(r.Context(), "http.get_research")
	defer span.End()

	req, err := h.svc.GetResearch(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "research request not found")
			return
		}
		h.logger.Error("Research lookup failed", zap.String("request_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load research request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

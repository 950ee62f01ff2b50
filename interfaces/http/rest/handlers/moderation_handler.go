package handlers

import (
	"net/http"
	"strconv"

	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/pkg/common"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

// ModerationHandler serves the moderator queue
type ModerationHandler struct {
	gate   *moderation.Gate
	errors *apperrors.ErrorHandler
	logger *zap.Logger
}

// NewModerationHandler creates a new moderation handler
func NewModerationHandler(gate *moderation.Gate, errHandler *apperrors.ErrorHandler, logger *zap.Logger) *ModerationHandler {
	return &ModerationHandler{
		gate:   gate,
		errors: errHandler,
		logger: logger,
	}
}

// Routes mounts the moderation endpoints on r
func (h *ModerationHandler) Routes(r chi.Router) {
	r.Get("/pending", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
}

// List handles GET /api/moderation/pending?status=&limit=
func (h *ModerationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := entities.PendingStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = entities.PendingStatusPending
	}

	limit := defaultPendingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errors.Handle(w, r, apperrors.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = min(n, maxPendingLimit)
	}

	actions, err := h.gate.List(r.Context(), status, limit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, actions)
}

// Get handles GET /api/moderation/{id}
func (h *ModerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	pa, err := h.gate.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, pa)
}

// Approve handles POST /api/moderation/{id}/approve
func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	pa, err := h.gate.Approve(r.Context(), chi.URLParam(r, "id"), common.Actor(r.Context()))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, pa)
}

// Reject handles POST /api/moderation/{id}/reject
func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	pa, err := h.gate.Reject(r.Context(), chi.URLParam(r, "id"), common.Actor(r.Context()))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, pa)
}

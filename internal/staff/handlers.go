package staff

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/common"
)

// Handler exposes the roster over HTTP.
type Handler struct {
	Svc *Service
}

type createRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// List handles GET /api/v1/salespeople.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.List(r.Context())
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Create handles POST /api/v1/salespeople.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	item, err := h.Svc.Create(r.Context(), payload.Name, payload.Phone)
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": item})
}

// Deactivate handles DELETE /api/v1/salespeople/{salespersonID}.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "salespersonID"))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid salesperson id", nil)
		return
	}
	item, err := h.Svc.Deactivate(r.Context(), pgtype.UUID{Bytes: parsed, Valid: true})
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

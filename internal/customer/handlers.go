package customer

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/common"
)

// Handler exposes the buyer directory over HTTP.
type Handler struct {
	Svc *Service
}

// List handles GET /api/v1/customers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	items, total, err := h.Svc.List(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", fmt.Sprintf("%d", total))
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "meta": map[string]any{
		"page": page, "perPage": perPage, "total": total,
	}})
}

// Get handles GET /api/v1/customers/{customerID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "customerID"))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid customer id", nil)
		return
	}
	item, err := h.Svc.Get(r.Context(), pgtype.UUID{Bytes: parsed, Valid: true})
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

// Lookup handles GET /api/v1/customers/lookup?phone=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	item, err := h.Svc.LookupByPhone(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

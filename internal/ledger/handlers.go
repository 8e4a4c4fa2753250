package ledger

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
)

// Handler serves the movement history for a product.
type Handler struct {
	Svc *Service
}

type movementResponse struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	ChangeType     string `json:"changeType"`
	QuantityBefore int32  `json:"quantityBefore"`
	QuantityAfter  int32  `json:"quantityAfter"`
	InvoiceID      string `json:"invoiceId,omitempty"`
	CreatedBy      string `json:"createdBy"`
	CreatedAt      string `json:"createdAt"`
}

// Movements handles GET /products/{productID}/movements.
func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "productID"))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid product id", nil)
		return
	}
	productID := pgtype.UUID{Bytes: parsed, Valid: true}

	page, perPage := common.ParsePagination(r, 50)
	items, total, err := h.Svc.MovementsFor(r.Context(), productID, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.HTTPError(w, err)
		return
	}

	out := make([]movementResponse, 0, len(items))
	for _, m := range items {
		out = append(out, toMovementResponse(m))
	}
	w.Header().Set("X-Total-Count", fmt.Sprintf("%d", total))
	common.JSON(w, http.StatusOK, map[string]any{"data": out, "meta": map[string]any{
		"page": page, "perPage": perPage, "total": total,
	}})
}

func toMovementResponse(m db.StockMovement) movementResponse {
	resp := movementResponse{
		ID:             uuidToString(m.ID),
		ProductID:      uuidToString(m.ProductID),
		ChangeType:     m.ChangeType,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		CreatedBy:      m.CreatedBy,
	}
	if m.InvoiceID.Valid {
		resp.InvoiceID = uuidToString(m.InvoiceID)
	}
	if m.CreatedAt.Valid {
		resp.CreatedAt = m.CreatedAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func uuidToString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	v, err := id.Value()
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

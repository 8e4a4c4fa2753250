package billing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
)

// Handler exposes the billing surface over HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type lineRequest struct {
	ProductID   string `json:"productId" validate:"required,uuid4"`
	Quantity    int32  `json:"quantity" validate:"required,gt=0"`
	DiscountBps *int32 `json:"discountBps" validate:"omitempty,gte=0,lte=10000"`
}

type buyerRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"omitempty,inphone"`
	Address string `json:"address"`
	GSTIN   string `json:"gstin" validate:"omitempty,gstin"`
}

type previewRequest struct {
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Taxed      bool          `json:"taxed"`
	BuyerGSTIN string        `json:"buyerGstin" validate:"omitempty,gstin"`
}

type commitRequest struct {
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Buyer         buyerRequest  `json:"buyer" validate:"required"`
	SalespersonID string        `json:"salespersonId" validate:"required,uuid4"`
	Taxed         bool          `json:"taxed"`
	PaymentMode   string        `json:"paymentMode" validate:"omitempty,oneof=CASH CARD UPI CREDIT"`
}

type lineResponse struct {
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	HSNCode     string `json:"hsnCode,omitempty"`
	BatchNo     string `json:"batchNo,omitempty"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	Quantity    int32  `json:"quantity"`
	ListPrice   int64  `json:"listPrice"`
	DiscountBps int32  `json:"discountBps"`
	Rate        int64  `json:"rate"`
	Amount      int64  `json:"amount"`
}

type totalsResponse struct {
	Subtotal       int64  `json:"subtotal"`
	DiscountAmount int64  `json:"discountAmount"`
	TaxableAmount  int64  `json:"taxableAmount"`
	TotalTax       int64  `json:"totalTax"`
	CGST           int64  `json:"cgst"`
	SGST           int64  `json:"sgst"`
	IGST           int64  `json:"igst"`
	RoundOff       int64  `json:"roundOff"`
	GrandTotal     int64  `json:"grandTotal"`
	AmountInWords  string `json:"amountInWords"`
}

type sellerResponse struct {
	Name      string `json:"name,omitempty"`
	GSTIN     string `json:"gstin,omitempty"`
	StateCode string `json:"stateCode"`
}

type invoiceResponse struct {
	ID            string          `json:"id"`
	InvoiceNo     string          `json:"invoiceNo"`
	Seller        *sellerResponse `json:"seller,omitempty"`
	BuyerName     string          `json:"buyerName"`
	BuyerPhone    string          `json:"buyerPhone,omitempty"`
	BuyerAddress  string          `json:"buyerAddress,omitempty"`
	BuyerGSTIN    string          `json:"buyerGstin,omitempty"`
	SalespersonID string          `json:"salespersonId"`
	Taxed         bool            `json:"taxed"`
	PaymentMode   string          `json:"paymentMode"`
	Totals        totalsResponse  `json:"totals"`
	Lines         []lineResponse  `json:"lines,omitempty"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     string          `json:"createdAt"`
}

// PriceLine prices a single prospective line without saving anything.
func (h *Handler) PriceLine(w http.ResponseWriter, r *http.Request) {
	var payload lineRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	productID, err := parseUUID(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid product id", nil)
		return
	}
	var cart Cart
	line, err := h.Svc.AddLine(r.Context(), &cart, productID, payload.Quantity, payload.DiscountBps)
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toLineResponse(line)})
}

// Preview computes the totals a cart would commit at.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var payload previewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	cart, err := h.buildCart(r, payload.Lines)
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	totals := h.Svc.PreviewTotals(cart, payload.Taxed, payload.BuyerGSTIN)
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"lines":  toLineResponses(cart.Lines),
		"totals": toTotalsResponse(totals),
	}})
}

// Commit turns the submitted cart into a committed invoice.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var payload commitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	spID, err := parseUUID(payload.SalespersonID)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid salesperson id", nil)
		return
	}
	cart, err := h.buildCart(r, payload.Lines)
	if err != nil {
		common.HTTPError(w, err)
		return
	}

	createdBy := "counter"
	if actor, ok := common.ActorID(r.Context()); ok && actor != "" {
		createdBy = actor
	}
	rec, err := h.Svc.Commit(r.Context(), CommitInput{
		Cart: cart,
		Buyer: Buyer{
			Name:    payload.Buyer.Name,
			Phone:   payload.Buyer.Phone,
			Address: payload.Buyer.Address,
			GSTIN:   payload.Buyer.GSTIN,
		},
		SalespersonID: spID,
		Taxed:         payload.Taxed,
		PaymentMode:   payload.PaymentMode,
		CreatedBy:     createdBy,
	})
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.invoiceDetail(rec)})
}

// List pages through committed invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	items, total, err := h.Svc.ListInvoices(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(items))
	for _, inv := range items {
		out = append(out, toInvoiceHeader(inv))
	}
	w.Header().Set("X-Total-Count", fmt.Sprintf("%d", total))
	common.JSON(w, http.StatusOK, map[string]any{"data": out, "meta": map[string]any{
		"page": page, "perPage": perPage, "total": total,
	}})
}

// Get returns one invoice with its lines.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "invoiceID"))
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid invoice id", nil)
		return
	}
	rec, err := h.Svc.InvoiceByID(r.Context(), id)
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.invoiceDetail(rec)})
}

// Lookup returns one invoice by its printable number.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(r.URL.Query().Get("number"))
	if number == "" {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "number query parameter is required", nil)
		return
	}
	rec, err := h.Svc.InvoiceByNumber(r.Context(), number)
	if err != nil {
		common.HTTPError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.invoiceDetail(rec)})
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func (h *Handler) buildCart(r *http.Request, lines []lineRequest) (*Cart, error) {
	var cart Cart
	for _, l := range lines {
		productID, err := parseUUID(l.ProductID)
		if err != nil {
			return nil, common.NewAppError("VALIDATION_ERROR", "invalid product id", http.StatusUnprocessableEntity, err)
		}
		if _, err := h.Svc.AddLine(r.Context(), &cart, productID, l.Quantity, l.DiscountBps); err != nil {
			return nil, err
		}
	}
	return &cart, nil
}

func parseUUID(raw string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func toLineResponse(l CartLine) lineResponse {
	resp := lineResponse{
		ProductID:   uuidString(l.ProductID),
		Name:        l.Name,
		Quantity:    l.Quantity,
		ListPrice:   l.ListPrice,
		DiscountBps: l.DiscountBps,
		Rate:        l.Rate,
		Amount:      l.Amount,
	}
	if l.HSNCode.Valid {
		resp.HSNCode = l.HSNCode.String
	}
	if l.BatchNo.Valid {
		resp.BatchNo = l.BatchNo.String
	}
	if l.ExpiryDate.Valid {
		resp.ExpiryDate = l.ExpiryDate.Time.Format("2006-01-02")
	}
	return resp
}

func toLineResponses(lines []CartLine) []lineResponse {
	out := make([]lineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, toLineResponse(l))
	}
	return out
}

func toTotalsResponse(t Totals) totalsResponse {
	return totalsResponse{
		Subtotal:       t.Subtotal,
		DiscountAmount: t.DiscountAmount,
		TaxableAmount:  t.TaxableAmount,
		TotalTax:       t.TotalTax,
		CGST:           t.CGST,
		SGST:           t.SGST,
		IGST:           t.IGST,
		RoundOff:       t.RoundOff,
		GrandTotal:     t.GrandTotal,
		AmountInWords:  t.AmountInWords,
	}
}

func toInvoiceHeader(inv db.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:            uuidString(inv.ID),
		InvoiceNo:     inv.InvoiceNo,
		BuyerName:     inv.BuyerName,
		SalespersonID: uuidString(inv.SalespersonID),
		Taxed:         inv.Taxed,
		PaymentMode:   inv.PaymentMode,
		CreatedBy:     inv.CreatedBy,
		Totals: totalsResponse{
			Subtotal:       inv.Subtotal,
			DiscountAmount: inv.DiscountTotal,
			TaxableAmount:  inv.TaxableAmount,
			TotalTax:       inv.CGST + inv.SGST + inv.IGST,
			CGST:           inv.CGST,
			SGST:           inv.SGST,
			IGST:           inv.IGST,
			RoundOff:       inv.RoundOff,
			GrandTotal:     inv.GrandTotal,
		},
	}
	if inv.BuyerPhone.Valid {
		resp.BuyerPhone = inv.BuyerPhone.String
	}
	if inv.BuyerAddress.Valid {
		resp.BuyerAddress = inv.BuyerAddress.String
	}
	if inv.BuyerGSTIN.Valid {
		resp.BuyerGSTIN = inv.BuyerGSTIN.String
	}
	if inv.CreatedAt.Valid {
		resp.CreatedAt = inv.CreatedAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// invoiceDetail renders a full invoice payload with the seller tax profile
// stamped on, the way a printed bill carries the shop's own GSTIN.
func (h *Handler) invoiceDetail(rec Receipt) invoiceResponse {
	resp := toInvoiceResponse(rec)
	resp.Seller = &sellerResponse{
		Name:      h.Svc.SellerName,
		GSTIN:     h.Svc.SellerGSTIN,
		StateCode: h.Svc.SellerStateCode,
	}
	return resp
}

func toInvoiceResponse(rec Receipt) invoiceResponse {
	resp := toInvoiceHeader(rec.Invoice)
	resp.Totals.AmountInWords = rec.Totals.AmountInWords
	for _, l := range rec.Lines {
		line := lineResponse{
			ProductID: uuidString(l.ProductID),
			Name:      l.Name,
			Quantity:  l.Quantity,
			Rate:      l.Rate,
			Amount:    l.Amount,
		}
		if l.HSNCode.Valid {
			line.HSNCode = l.HSNCode.String
		}
		if l.BatchNo.Valid {
			line.BatchNo = l.BatchNo.String
		}
		if l.ExpiryDate.Valid {
			line.ExpiryDate = l.ExpiryDate.Time.Format("2006-01-02")
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp
}

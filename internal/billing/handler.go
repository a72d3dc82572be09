package billing

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/platform/httpx"
	"github.com/sitestock/sitestock/internal/shared"
)

// Handler serves invoice and GST endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects/{projectID}/invoices", h.list)
	r.Get("/invoices/by-history/{historyID}", h.getByHistory)
	r.Post("/gst/compute", h.computeGST)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	invoices, err := h.service.ListByProject(r.Context(), chi.URLParam(r, "projectID"), limit, offset)
	if err != nil {
		h.logger.Error("list invoices failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	responses := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		responses = append(responses, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": responses})
}

func (h *Handler) getByHistory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetByHistory(r.Context(), chi.URLParam(r, "historyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// ComputeGSTDTO is the JSON payload for a standalone tax split preview.
type ComputeGSTDTO struct {
	TaxableAmount float64 `json:"taxable_amount" validate:"required,gt=0"`
	GSTRate       float64 `json:"gst_rate" validate:"required,gt=0,lte=100"`
	SupplierState string  `json:"supplier_state" validate:"required"`
	ClientState   string  `json:"client_state" validate:"required"`
}

func (h *Handler) computeGST(w http.ResponseWriter, r *http.Request) {
	var dto ComputeGSTDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	breakup := ComputeGST(
		decimal.NewFromFloat(dto.TaxableAmount),
		decimal.NewFromFloat(dto.GSTRate),
		dto.SupplierState, dto.ClientState)
	httpx.JSON(w, http.StatusOK, breakup)
}

type invoiceResponse struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	ProjectID    string `json:"project_id"`
	HistoryID    string `json:"history_id"`
	MaterialID   string `json:"material_id"`
	MaterialName string `json:"material_name"`
	Qty          string `json:"qty"`
	Unit         string `json:"unit"`
	BasePrice    string `json:"base_price"`
	GSTRate      string `json:"gst_rate"`
	GSTAmount    string `json:"gst_amount"`
	TotalAmount  string `json:"total_amount"`
	GeneratedBy  string `json:"generated_by"`
	GeneratedAt  string `json:"generated_at"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:           inv.ID,
		Number:       inv.Number,
		ProjectID:    inv.ProjectID,
		HistoryID:    inv.HistoryID,
		MaterialID:   inv.MaterialID,
		MaterialName: inv.MaterialName,
		Qty:          inv.Qty.String(),
		Unit:         inv.Unit,
		BasePrice:    inv.BasePrice.String(),
		GSTRate:      inv.GSTRate.String(),
		GSTAmount:    inv.GSTAmount.String(),
		TotalAmount:  inv.TotalAmount.String(),
		GeneratedBy:  inv.GeneratedBy,
		GeneratedAt:  inv.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

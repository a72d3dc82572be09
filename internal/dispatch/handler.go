package dispatch

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/observability"
	"github.com/sitestock/sitestock/internal/platform/httpx"
	"github.com/sitestock/sitestock/internal/shared"
)

// Handler manages dispatch endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), metrics: metrics}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/dispatch/send", h.send)
	r.Post("/dispatch/{id}/receive", h.receive)
	r.Post("/dispatch/{id}/invoice", h.issueInvoice)
	r.Get("/dispatch", h.list)
	r.Get("/dispatch/{id}", h.get)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var dto SendDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	history, err := h.service.Send(r.Context(), SendInput{
		RequestID: dto.RequestID,
		ActorID:   actor.ID,
		GSTRate:   decimal.NewFromFloat(dto.GSTRate),
	})
	h.observe("send", err)
	if err != nil {
		h.logger.Warn("send material failed", slog.String("request_id", dto.RequestID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(history))
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var dto ReceiveDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	history, err := h.service.Receive(r.Context(), ReceiveInput{
		HistoryID:     chi.URLParam(r, "id"),
		ActorID:       actor.ID,
		ProofPhotoURL: dto.ProofPhotoURL,
		Latitude:      dto.Latitude,
		Longitude:     dto.Longitude,
		GeoLocation:   dto.GeoLocation,
	})
	h.observe("receive", err)
	if err != nil {
		h.logger.Warn("receive material failed", slog.String("history_id", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(history))
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.IssueInvoice(r.Context(), chi.URLParam(r, "id"), actor.ID)
	h.observe("invoice", err)
	if err != nil {
		h.logger.Warn("issue invoice failed", slog.String("history_id", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           inv.ID,
		"number":       inv.Number,
		"history_id":   inv.HistoryID,
		"total_amount": inv.TotalAmount.String(),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(history))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "project_id is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, 0)

	items, total, err := h.service.List(r.Context(), ListFilters{
		ProjectID: projectID,
		Status:    Status(r.URL.Query().Get("status")),
	}, pagination.PerPage, pagination.Offset())
	if err != nil {
		h.logger.Error("list histories failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	responses := make([]HistoryResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      responses,
		"pagination": shared.NewPagination(pagination.Page, pagination.PerPage, total),
	})
}

func (h *Handler) observe(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	h.metrics.ObserveTransition("purchase_history", action, outcome)
}

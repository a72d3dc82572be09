package requests

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sitestock/sitestock/internal/observability"
	"github.com/sitestock/sitestock/internal/platform/httpx"
	"github.com/sitestock/sitestock/internal/shared"
)

// Handler manages material request endpoints.
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

// MountRoutes registers request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests", h.create)
	r.Get("/requests", h.list)
	r.Get("/requests/{id}", h.get)
	r.Post("/requests/{id}/approve", h.approve)
	r.Post("/requests/{id}/reject", h.reject)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dto CreateRequestDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	created, err := h.service.Create(r.Context(), CreateInput{
		ProjectID:   dto.ProjectID,
		MaterialID:  dto.MaterialID,
		Qty:         qtyFromFloat(dto.Qty),
		Unit:        dto.Unit,
		Reason:      dto.Reason,
		RequestedBy: actor.ID,
	})
	h.observe("create", err)
	if err != nil {
		h.logger.Warn("create request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	req, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), actor.ID)
	h.observe("approve", err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var dto RejectRequestDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	req, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), actor.ID, dto.Reason)
	h.observe("reject", err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req))
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
		h.logger.Error("list requests failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	responses := make([]RequestResponse, 0, len(items))
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
	h.metrics.ObserveTransition("material_request", action, outcome)
}

package ledger

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

// Handler serves stock balance, alert and movement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects/{projectID}/stock/balance", h.balance)
	r.Get("/projects/{projectID}/stock/alerts", h.alerts)
	r.Get("/projects/{projectID}/stock/ledger", h.entries)
	r.Post("/projects/{projectID}/stock/adjustments", h.adjust)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	balances, err := h.service.Balance(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.logger.Error("stock balance failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if balances == nil {
		balances = []MaterialBalance{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": balances})
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.Alerts(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.logger.Error("stock alerts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": alerts})
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.service.Entries(r.Context(), chi.URLParam(r, "projectID"), limit, offset)
	if err != nil {
		h.logger.Error("stock ledger list failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	responses := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": responses})
}

// AdjustDTO records a manual stock correction.
type AdjustDTO struct {
	MaterialID   string  `json:"material_id" validate:"required"`
	MaterialName string  `json:"material_name" validate:"required,max=200"`
	Movement     string  `json:"movement" validate:"required,oneof=IN OUT"`
	Qty          float64 `json:"qty" validate:"required,gt=0"`
	Unit         string  `json:"unit" validate:"required,max=20"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var dto AdjustDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.Append(r.Context(), Entry{
		ProjectID:    chi.URLParam(r, "projectID"),
		MaterialID:   dto.MaterialID,
		MaterialName: dto.MaterialName,
		Movement:     Movement(dto.Movement),
		Qty:          decimal.NewFromFloat(dto.Qty),
		Unit:         dto.Unit,
		Source:       SourceAdjustment,
		RefKind:      RefNone,
		ActorID:      actor.ID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

type entryResponse struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	MaterialID   string `json:"material_id"`
	MaterialName string `json:"material_name"`
	Movement     string `json:"movement"`
	Qty          string `json:"qty"`
	Unit         string `json:"unit"`
	Source       string `json:"source"`
	RefKind      string `json:"ref_kind"`
	RefID        string `json:"ref_id,omitempty"`
	ActorID      string `json:"actor_id"`
	CreatedAt    string `json:"created_at"`
}

func toEntryResponse(entry Entry) entryResponse {
	return entryResponse{
		ID:           entry.ID,
		ProjectID:    entry.ProjectID,
		MaterialID:   entry.MaterialID,
		MaterialName: entry.MaterialName,
		Movement:     string(entry.Movement),
		Qty:          entry.Qty.String(),
		Unit:         entry.Unit,
		Source:       string(entry.Source),
		RefKind:      string(entry.RefKind),
		RefID:        entry.RefID,
		ActorID:      entry.ActorID,
		CreatedAt:    entry.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

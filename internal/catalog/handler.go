package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitestock/sitestock/internal/platform/httpx"
)

// Handler serves material master data.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials", h.list)
	r.Get("/materials/{id}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	materials, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list materials failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	responses := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		responses = append(responses, toMaterialResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": responses})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	material, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaterialResponse(material))
}

type materialResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	UnitPrice string `json:"unit_price"`
	GSTRate   string `json:"gst_rate"`
}

func toMaterialResponse(m Material) materialResponse {
	return materialResponse{
		ID:        m.ID,
		Name:      m.Name,
		Unit:      m.Unit,
		UnitPrice: m.UnitPrice.String(),
		GSTRate:   m.GSTRate.String(),
	}
}

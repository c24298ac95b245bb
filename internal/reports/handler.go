package reports

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relaytrack/relaytrack/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/donor-shipments", h.donorShipments)
	r.Get("/reports/donor-categories", h.donorCategories)
}

func (h *Handler) donorShipments(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.DonorShipments(r.Context())
	if err != nil {
		h.logger.Error("donor shipment report", "error", err)
		shared.RespondError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	shared.RespondJSON(w, http.StatusOK, data)
}

func (h *Handler) donorCategories(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.DonorCategories(r.Context())
	if err != nil {
		h.logger.Error("donor category report", "error", err)
		shared.RespondError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	shared.RespondJSON(w, http.StatusOK, data)
}

package users

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/relaytrack/relaytrack/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
	})
}

type createUserRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", "error", err)
		shared.RespondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		shared.RespondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.service.Create(r.Context(), User{Code: req.Code, Name: req.Name, Email: req.Email}, req.Password)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, u)
}

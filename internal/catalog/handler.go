package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

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

// MountRoutes registers the catalog CRUD endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/donors", func(r chi.Router) {
		r.Get("/", h.listDonors)
		r.Post("/", h.createDonor)
		r.Get("/{id}", h.showDonor)
		r.Put("/{id}", h.updateDonor)
		r.Delete("/{id}", h.deleteDonor)
		r.Get("/{id}/codes", h.listDonorCodes)
		r.Post("/{id}/codes", h.createDonorCode)
	})
	r.Delete("/donor-codes/{id}", h.deleteDonorCode)

	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", h.listSuppliers)
		r.Post("/", h.createSupplier)
		r.Put("/{id}", h.updateSupplier)
		r.Delete("/{id}", h.deleteSupplier)
	})
	r.Route("/transporters", func(r chi.Router) {
		r.Get("/", h.listTransporters)
		r.Post("/", h.createTransporter)
		r.Put("/{id}", h.updateTransporter)
		r.Delete("/{id}", h.deleteTransporter)
	})
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.createCategory)
		r.Put("/{id}", h.updateCategory)
		r.Delete("/{id}", h.deleteCategory)
	})
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.listItems)
		r.Post("/", h.createItem)
		r.Get("/{id}", h.showItem)
		r.Put("/{id}", h.updateItem)
		r.Delete("/{id}", h.deleteItem)
	})
}

func urlID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		shared.RespondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return v, false
	}
	return v, true
}

func (h *Handler) respondList(w http.ResponseWriter, v any, err error, what string) {
	if err != nil {
		h.logger.Error("list "+what, "error", err)
		shared.RespondError(w, http.StatusInternalServerError, "failed to list "+what)
		return
	}
	shared.RespondJSON(w, http.StatusOK, v)
}

func (h *Handler) listDonors(w http.ResponseWriter, r *http.Request) {
	donors, err := h.service.ListDonors(r.Context())
	h.respondList(w, donors, err, "donors")
}

func (h *Handler) showDonor(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	donor, err := h.service.GetDonor(r.Context(), id)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, donor)
}

func (h *Handler) createDonor(w http.ResponseWriter, r *http.Request) {
	in, ok := decode[Donor](w, r)
	if !ok {
		return
	}
	donor, err := h.service.CreateDonor(r.Context(), in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, donor)
}

func (h *Handler) updateDonor(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	in, ok := decode[Donor](w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateDonor(r.Context(), id, in); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteDonor(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDonor(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDonorCodes(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	codes, err := h.service.ListDonorCodes(r.Context(), id)
	h.respondList(w, codes, err, "donor codes")
}

func (h *Handler) createDonorCode(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	in, ok := decode[DonorCode](w, r)
	if !ok {
		return
	}
	in.DonorID = id
	code, err := h.service.CreateDonorCode(r.Context(), in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, code)
}

func (h *Handler) deleteDonorCode(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDonorCode(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	h.respondList(w, suppliers, err, "suppliers")
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	in, ok := decode[Supplier](w, r)
	if !ok {
		return
	}
	sup, err := h.service.CreateSupplier(r.Context(), in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, sup)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	in, ok := decode[Supplier](w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateSupplier(r.Context(), id, in); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSupplier(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTransporters(w http.ResponseWriter, r *http.Request) {
	transporters, err := h.service.ListTransporters(r.Context())
	h.respondList(w, transporters, err, "transporters")
}

func (h *Handler) createTransporter(w http.ResponseWriter, r *http.Request) {
	in, ok := decode[Transporter](w, r)
	if !ok {
		return
	}
	t, err := h.service.CreateTransporter(r.Context(), in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, t)
}

func (h *Handler) updateTransporter(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	in, ok := decode[Transporter](w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateTransporter(r.Context(), id, in); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteTransporter(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTransporter(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	h.respondList(w, categories, err, "categories")
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	in, ok := decode[ItemCategory](w, r)
	if !ok {
		return
	}
	c, err := h.service.CreateCategory(r.Context(), in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, c)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	in, ok := decode[ItemCategory](w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateCategory(r.Context(), id, in); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	h.respondList(w, items, err, "items")
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	in, ok := decode[Item](w, r)
	if !ok {
		return
	}
	item, err := h.service.CreateItem(r.Context(), in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	in, ok := decode[Item](w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateItem(r.Context(), id, in); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

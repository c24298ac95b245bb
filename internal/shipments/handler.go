package shipments

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/relaytrack/relaytrack/internal/shared"
)

// Deleter enqueues the background cascade delete for a shipment. Deletions
// can outlive a request timeout, so they never run inline.
type Deleter interface {
	EnqueueShipmentDelete(ctx context.Context, shipmentID int64) error
}

// Handler wires the shipment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	deleter  Deleter
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, deleter Deleter) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		deleter:  deleter,
		validate: validator.New(),
	}
}

// MountRoutes registers shipment routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Post("/finalize", h.lifecycle((*Service).Finalize))
			r.Post("/cancel", h.lifecycle((*Service).Cancel))
			r.Post("/reopen", h.lifecycle((*Service).Reopen))
			r.Post("/lost", h.markLost)
			r.Post("/printed", h.markPrinted)
			r.Get("/packages", h.listPackages)
			r.Post("/packages", h.createPackages)
			r.Get("/scans", h.listScans)
		})
	})
	r.Route("/kits", func(r chi.Router) {
		r.Get("/", h.listKits)
		r.Post("/", h.createKit)
		r.Delete("/{id}", h.deleteKit)
		r.Post("/{id}/items/{itemID}", h.addItemToKit)
	})
	r.Get("/packages/code/{code}", h.packageByCode)
	r.Post("/packages/{id}/items", h.addItemToPackage)
	r.Delete("/items/{id}", h.removeItem)
}

type shipmentRequest struct {
	Description   string  `json:"description"`
	ShipmentDate  string  `json:"shipment_date"`
	StoreRelease  string  `json:"store_release"`
	DateExpected  *string `json:"date_expected"`
	TransporterID *int64  `json:"transporter_id"`
	PartnerID     int64   `json:"partner_id" validate:"required,gt=0"`
	StatusNote    string  `json:"status_note"`
}

type shipmentResponse struct {
	ID                  int64   `json:"id"`
	Description         string  `json:"description"`
	DisplayName         string  `json:"display_name"`
	ShipmentDate        string  `json:"shipment_date"`
	StoreRelease        string  `json:"store_release"`
	Status              int     `json:"status"`
	StatusText          string  `json:"status_text"`
	PartnerID           int64   `json:"partner_id"`
	TransporterID       *int64  `json:"transporter_id,omitempty"`
	Acceptable          bool    `json:"acceptable"`
	StatusNote          string  `json:"status_note,omitempty"`
	Donor               string  `json:"donor,omitempty"`
	LastScanStatusLabel *string `json:"last_scan_status_label,omitempty"`
	DatePickedUp        *string `json:"date_picked_up,omitempty"`
	DateInTransit       *string `json:"date_in_transit,omitempty"`
	DateExpected        *string `json:"date_expected,omitempty"`
	DateReceived        *string `json:"date_received,omitempty"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func (h *Handler) shipmentResponse(ctx context.Context, sh *Shipment) shipmentResponse {
	statusText, err := h.service.VerboseStatusText(ctx, sh)
	if err != nil {
		h.logger.Error("verbose status", "error", err, "shipment", sh.ID)
		statusText = sh.Status.String()
	}
	return shipmentResponse{
		ID:                  sh.ID,
		Description:         sh.Description,
		DisplayName:         sh.DisplayName(),
		ShipmentDate:        sh.ShipmentDate.Format("2006-01-02"),
		StoreRelease:        sh.StoreRelease,
		Status:              int(sh.Status),
		StatusText:          statusText,
		PartnerID:           sh.PartnerID,
		TransporterID:       sh.TransporterID,
		Acceptable:          sh.Acceptable,
		StatusNote:          sh.StatusNote,
		Donor:               sh.Donor,
		LastScanStatusLabel: sh.LastScanStatusLabel,
		DatePickedUp:        formatDate(sh.DatePickedUp),
		DateInTransit:       formatDate(sh.DateInTransit),
		DateExpected:        formatDate(sh.DateExpected),
		DateReceived:        formatDate(sh.DateReceived),
	}
}

func (h *Handler) decodeShipment(w http.ResponseWriter, r *http.Request) (ShipmentInput, bool) {
	var req shipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return ShipmentInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return ShipmentInput{}, false
	}
	in := ShipmentInput{
		Description:   req.Description,
		StoreRelease:  req.StoreRelease,
		TransporterID: req.TransporterID,
		PartnerID:     req.PartnerID,
		StatusNote:    req.StatusNote,
	}
	if req.ShipmentDate != "" {
		d, err := time.Parse("2006-01-02", req.ShipmentDate)
		if err != nil {
			shared.RespondError(w, http.StatusBadRequest, "invalid shipment_date")
			return ShipmentInput{}, false
		}
		in.ShipmentDate = d
	}
	if req.DateExpected != nil {
		d, err := time.Parse("2006-01-02", *req.DateExpected)
		if err != nil {
			shared.RespondError(w, http.StatusBadRequest, "invalid date_expected")
			return ShipmentInput{}, false
		}
		in.DateExpected = &d
	}
	return in, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeShipment(w, r)
	if !ok {
		return
	}
	sh, err := h.service.CreateShipment(r.Context(), in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, h.shipmentResponse(r.Context(), sh))
}

type shipmentListResponse struct {
	Shipments  []shipmentResponse `json:"shipments"`
	Pagination shared.Pagination  `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListShipments(r.Context())
	if err != nil {
		h.logger.Error("list shipments", "error", err)
		shared.RespondError(w, http.StatusInternalServerError, "failed to list shipments")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, len(items))

	start := (p.Page - 1) * p.PerPage
	if start > len(items) {
		start = len(items)
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	window := items[start:end]

	out := make([]shipmentResponse, 0, len(window))
	for i := range window {
		out = append(out, h.shipmentResponse(r.Context(), &window[i]))
	}
	shared.RespondJSON(w, http.StatusOK, shipmentListResponse{Shipments: out, Pagination: p})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	sh, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, h.shipmentResponse(r.Context(), sh))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.decodeShipment(w, r)
	if !ok {
		return
	}
	sh, err := h.service.UpdateShipment(r.Context(), id, in)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, h.shipmentResponse(r.Context(), sh))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.service.GetShipment(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	if err := h.deleter.EnqueueShipmentDelete(r.Context(), id); err != nil {
		h.logger.Error("enqueue shipment delete", "error", err, "shipment", id)
		shared.RespondError(w, http.StatusInternalServerError, "failed to schedule deletion")
		return
	}
	shared.RespondJSON(w, http.StatusAccepted, map[string]string{
		"status": "shipment will be deleted in the background",
	})
}

func (h *Handler) lifecycle(op func(*Service, context.Context, int64) (*Shipment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.urlID(w, r, "id")
		if !ok {
			return
		}
		sh, err := op(h.service, r.Context(), id)
		if err != nil {
			shared.RespondDomainError(w, err)
			return
		}
		shared.RespondJSON(w, http.StatusOK, h.shipmentResponse(r.Context(), sh))
	}
}

type lostRequest struct {
	Acceptable bool   `json:"acceptable"`
	Notes      string `json:"notes"`
}

func (h *Handler) markLost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	var req lostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sh, err := h.service.MarkLost(r.Context(), id, req.Acceptable, req.Notes)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, h.shipmentResponse(r.Context(), sh))
}

func (h *Handler) markPrinted(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.MarkPrinted(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createPackagesRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Count       int            `json:"count" validate:"required,gt=0"`
	Kits        map[string]int `json:"kits"`
}

type packageResponse struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	Description         string  `json:"description,omitempty"`
	ShipmentID          int64   `json:"shipment_id"`
	NumberInShipment    int     `json:"number_in_shipment"`
	Code                string  `json:"code"`
	Status              int     `json:"status"`
	StatusText          string  `json:"status_text"`
	KitID               *int64  `json:"kit_id,omitempty"`
	LastScanStatusLabel *string `json:"last_scan_status_label,omitempty"`
}

func (h *Handler) packageResponse(p *Package, dateExpected *time.Time) packageResponse {
	status := p.EffectiveStatus(dateExpected, time.Now().UTC())
	return packageResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Description:         p.Description,
		ShipmentID:          p.ShipmentID,
		NumberInShipment:    p.NumberInShipment,
		Code:                p.Code,
		Status:              int(status),
		StatusText:          status.String(),
		KitID:               p.KitID,
		LastScanStatusLabel: p.LastScanStatusLabel,
	}
}

func (h *Handler) createPackages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	var req createPackagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	kitQuantities := make(map[int64]int, len(req.Kits))
	for kitID, qty := range req.Kits {
		kid, err := strconv.ParseInt(kitID, 10, 64)
		if err != nil {
			shared.RespondError(w, http.StatusBadRequest, "invalid kit id "+kitID)
			return
		}
		kitQuantities[kid] = qty
	}
	pkgs, err := h.service.CreatePackagesAndItems(r.Context(), id, req.Name, req.Description, req.Count, kitQuantities)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	sh, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	out := make([]packageResponse, 0, len(pkgs))
	for i := range pkgs {
		out = append(out, h.packageResponse(&pkgs[i], sh.DateExpected))
	}
	shared.RespondJSON(w, http.StatusCreated, out)
}

func (h *Handler) listPackages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	sh, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	pkgs, err := h.service.ListPackages(r.Context(), id)
	if err != nil {
		h.logger.Error("list packages", "error", err, "shipment", id)
		shared.RespondError(w, http.StatusInternalServerError, "failed to list packages")
		return
	}
	out := make([]packageResponse, 0, len(pkgs))
	for i := range pkgs {
		out = append(out, h.packageResponse(&pkgs[i], sh.DateExpected))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) listScans(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	scans, err := h.service.ListScans(r.Context(), id)
	if err != nil {
		h.logger.Error("list scans", "error", err, "shipment", id)
		shared.RespondError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	shared.RespondJSON(w, http.StatusOK, scans)
}

func (h *Handler) packageByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	pkg, err := h.service.GetPackageByCode(r.Context(), code)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	sh, err := h.service.GetShipment(r.Context(), pkg.ShipmentID)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, h.packageResponse(pkg, sh.DateExpected))
}

type kitRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) createKit(w http.ResponseWriter, r *http.Request) {
	var req kitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	kit, err := h.service.CreateKit(r.Context(), req.Name, req.Description)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, kit)
}

func (h *Handler) listKits(w http.ResponseWriter, r *http.Request) {
	kits, err := h.service.ListKits(r.Context())
	if err != nil {
		h.logger.Error("list kits", "error", err)
		shared.RespondError(w, http.StatusInternalServerError, "failed to list kits")
		return
	}
	shared.RespondJSON(w, http.StatusOK, kits)
}

func (h *Handler) deleteKit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteKit(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addKitItemResponse struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

func (h *Handler) addItemToKit(w http.ResponseWriter, r *http.Request) {
	kitID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.urlID(w, r, "itemID")
	if !ok {
		return
	}
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || quantity < 1 {
		shared.RespondError(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}
	// The cap is checked before any write so an oversized request cannot
	// leave partial state behind.
	if quantity > MaxItemQuantity {
		shared.RespondError(w, http.StatusBadRequest, ErrQuantityOutOfRange.Error())
		return
	}
	total, err := h.service.AddItemToKit(r.Context(), kitID, itemID, quantity)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, addKitItemResponse{Added: quantity, Total: total})
}

type addPackageItemRequest struct {
	CatalogItemID int64 `json:"catalog_item_id" validate:"required,gt=0"`
	Quantity      int   `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) addItemToPackage(w http.ResponseWriter, r *http.Request) {
	packageID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	var req addPackageItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.service.AddItemToPackage(r.Context(), packageID, req.CatalogItemID, req.Quantity)
	if err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RemovePackageItem(r.Context(), id); err != nil {
		shared.RespondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		shared.RespondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

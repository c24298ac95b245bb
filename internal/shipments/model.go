package shipments

import (
	"fmt"
	"strings"
	"time"
)

// Status enumerates the lifecycle states shared by shipments and packages.
// The first five form a linear progression; Overdue, Lost and Canceled sit
// outside the ordering.
type Status int

const (
	StatusInProgress Status = 1
	StatusReady      Status = 2
	StatusPickedUp   Status = 3
	StatusInTransit  Status = 4
	StatusReceived   Status = 5
	StatusOverdue    Status = 6
	StatusLost       Status = 7
	StatusCanceled   Status = 8
)

var statusLabels = map[Status]string{
	StatusInProgress: "In progress",
	StatusReady:      "Ready for pickup",
	StatusPickedUp:   "Picked up",
	StatusInTransit:  "In transit",
	StatusReceived:   "Received",
	StatusOverdue:    "Overdue",
	StatusLost:       "Lost",
	StatusCanceled:   "Canceled",
}

// statusNames maps the STATUS_* identifiers used by the field-collection
// forms to status codes.
var statusNames = map[string]Status{
	"STATUS_IN_PROGRESS": StatusInProgress,
	"STATUS_READY":       StatusReady,
	"STATUS_PICKED_UP":   StatusPickedUp,
	"STATUS_IN_TRANSIT":  StatusInTransit,
	"STATUS_RECEIVED":    StatusReceived,
	"STATUS_OVERDUE":     StatusOverdue,
	"STATUS_LOST":        StatusLost,
	"STATUS_CANCELED":    StatusCanceled,
}

// String returns the display label for the status.
func (s Status) String() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether s is one of the eight known status codes.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseStatusName resolves a STATUS_* identifier (e.g. "STATUS_PICKED_UP")
// to its status code.
func ParseStatusName(name string) (Status, bool) {
	s, ok := statusNames[name]
	return s, ok
}

// Shipment is the header aggregating packages sent to one partner.
type Shipment struct {
	ID                  int64
	Description         string
	ShipmentDate        time.Time
	StoreRelease        string
	DatePickedUp        *time.Time
	DateInTransit       *time.Time
	DateExpected        *time.Time
	DateReceived        *time.Time
	Status              Status
	TransporterID       *int64
	PartnerID           int64
	PartnerName         string
	Acceptable          bool
	StatusNote          string
	Donor               string
	LastScanStatusLabel *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DisplayName falls back to "partner-storeRelease-date" when the description
// is blank.
func (s *Shipment) DisplayName() string {
	if strings.TrimSpace(s.Description) != "" {
		return s.Description
	}
	return strings.Join([]string{s.PartnerName, s.StoreRelease, s.ShipmentDate.Format("2006-01-02")}, "-")
}

func (s *Shipment) IsFinalized() bool { return s.Status != StatusInProgress }
func (s *Shipment) IsCanceled() bool  { return s.Status == StatusCanceled }
func (s *Shipment) IsLost() bool      { return s.ID != 0 && s.Status == StatusLost }

// HasShipped reports whether the shipment has at least been picked up.
// Lost and canceled sort above the linear states, so they count as shipped.
func (s *Shipment) HasShipped() bool {
	return s.ID != 0 && s.Status >= StatusPickedUp
}

func (s *Shipment) MayFinalize() bool {
	return s.ID != 0 && !s.IsFinalized() && !s.IsCanceled()
}

func (s *Shipment) MayCancel() bool {
	return s.ID != 0 &&
		s.Status != StatusCanceled && s.Status != StatusLost && s.Status != StatusReceived
}

func (s *Shipment) MayReopen() bool {
	return s.ID != 0 && s.IsFinalized() && !s.IsCanceled() && !s.HasShipped()
}

func (s *Shipment) MayLose() bool {
	return s.ID != 0 && s.IsFinalized() && s.HasShipped() && !s.IsLost()
}

// DeliveryDays is the number of days from shipment date to expected delivery.
func (s *Shipment) DeliveryDays() int {
	if s.DateExpected == nil {
		return 0
	}
	return int(s.DateExpected.Sub(s.ShipmentDate).Hours() / 24)
}

// VerboseStatus renders the shipment status with a partial-completion
// percentage. The parenthetical appears only for Received and In transit,
// only when the shipment has packages, and only below 100%: that matches
// the per-status counting the legacy system did and is deliberate.
func VerboseStatus(status Status, sameStatusCount, numPackages int) string {
	text := status.String()
	if status == StatusReceived || status == StatusInTransit {
		if numPackages > 0 && sameStatusCount < numPackages {
			text += fmt.Sprintf(" (%d%%)", 100*sameStatusCount/numPackages)
		}
	}
	return text
}

// Package is one physical package within a shipment.
type Package struct {
	ID               int64
	Name             string
	Description      string
	ShipmentID       int64
	NumberInShipment int
	// Status is the stored field. Display and branching must go through
	// EffectiveStatus; only Canceled, Lost and In progress are authoritative
	// here.
	Status              *Status
	Code                string
	KitID               *int64
	LastScanID          *int64
	DatePickedUp        *time.Time
	DateInTransit       *time.Time
	DateReceived        *time.Time
	LastScanStatusLabel *string
}

// EffectiveStatus derives the package status from the stored field and the
// date markers. The stored value wins only for the three authoritative
// states; otherwise the most advanced date marker decides.
func (p *Package) EffectiveStatus(dateExpected *time.Time, now time.Time) Status {
	if p.Status != nil {
		switch *p.Status {
		case StatusCanceled, StatusLost, StatusInProgress:
			return *p.Status
		}
	}
	switch {
	case p.DateReceived != nil:
		return StatusReceived
	case p.DateInTransit != nil:
		if dateExpected != nil && now.After(*dateExpected) {
			return StatusOverdue
		}
		return StatusInTransit
	case p.DatePickedUp != nil:
		return StatusPickedUp
	default:
		return StatusReady
	}
}

// PackageCode derives the deterministic QR code for a package.
func PackageCode(prefix string, shipmentID int64, numberInShipment int) string {
	return fmt.Sprintf("%s%d.%d", prefix, shipmentID, numberInShipment)
}

// PackageItem is some quantity of one catalog item in a package. Prices,
// weight, category, donor and supplier are snapshots taken from the catalog
// item when the row is created, so later catalog edits never rewrite
// shipment history.
type PackageItem struct {
	ID            int64
	PackageID     int64
	CatalogItemID *int64
	Description   string
	Unit          string
	// Price of ONE unit; multiply by Quantity for the extended price.
	PriceUSD       float64
	PriceLocal     float64
	ItemCategoryID *int64
	DonorID        *int64
	DonorT1ID      *int64
	SupplierID     *int64
	Weight         float64
	Quantity       int
}

func (i *PackageItem) ExtendedPriceUSD() float64   { return float64(i.Quantity) * i.PriceUSD }
func (i *PackageItem) ExtendedPriceLocal() float64 { return float64(i.Quantity) * i.PriceLocal }

// MaxItemQuantity caps quantities on kit additions and package creation so
// bulk kit expansion cannot overflow.
const MaxItemQuantity = 50000000

// Kit is a named template bundling catalog items with quantities.
type Kit struct {
	ID          int64
	Name        string
	Description string
}

// KitItem holds the quantity of one catalog item in a kit. At most one row
// may exist per (kit, catalog item); duplicate additions merge.
type KitItem struct {
	ID            int64
	KitID         int64
	CatalogItemID int64
	Quantity      int
}

// PackageScan is an immutable geolocated status observation of one package.
// The shipment reference is redundant but speeds up per-shipment queries.
type PackageScan struct {
	ID          int64
	PackageID   int64
	ShipmentID  int64
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	Accuracy    *float64
	When        time.Time
	StatusLabel *string
}

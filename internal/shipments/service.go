package shipments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaytrack/relaytrack/internal/shared"
)

var (
	// ErrUnknownStatusName indicates a scan whose location code prefix does
	// not name one of the known statuses. The scan itself is still recorded.
	ErrUnknownStatusName = errors.New("unknown status name in location code")
	// ErrQuantityOutOfRange indicates a kit or item quantity outside 1..MaxItemQuantity.
	ErrQuantityOutOfRange = fmt.Errorf("quantity must be between 1 and %d", MaxItemQuantity)
)

// Aggregates recomputes the denormalized donor report rows. The write path
// calls it explicitly so recomputation order stays visible, instead of
// hiding it behind an event bus.
type Aggregates interface {
	OnItemChanged(ctx context.Context, donorID, categoryID *int64, shipmentID int64) error
	DeleteShipmentData(ctx context.Context, shipmentID int64) error
	RefreshDonorCategory(ctx context.Context, donorID, categoryID *int64) error
}

// CatalogItemSnapshot carries the catalog fields copied onto a PackageItem
// at creation time.
type CatalogItemSnapshot struct {
	ID             int64
	Description    string
	Unit           string
	PriceUSD       float64
	PriceLocal     float64
	ItemCategoryID *int64
	DonorID        *int64
	DonorT1ID      *int64
	SupplierID     *int64
	Weight         float64
}

// CatalogSource resolves catalog items for snapshotting.
type CatalogSource interface {
	ItemSnapshot(ctx context.Context, id int64) (CatalogItemSnapshot, error)
}

// Service implements the shipment/package lifecycle.
type Service struct {
	repo       Repository
	aggregates Aggregates
	catalog    CatalogSource
	codePrefix string
	logger     *slog.Logger
	clock      func() time.Time
}

// NewService constructs the shipments service.
func NewService(repo Repository, aggregates Aggregates, catalog CatalogSource, codePrefix string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		aggregates: aggregates,
		catalog:    catalog,
		codePrefix: codePrefix,
		logger:     logger,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// ShipmentInput carries the writable shipment fields.
type ShipmentInput struct {
	Description   string
	ShipmentDate  time.Time
	StoreRelease  string
	DateExpected  *time.Time
	TransporterID *int64
	PartnerID     int64
	StatusNote    string
}

// CreateShipment creates a new in-progress shipment.
func (s *Service) CreateShipment(ctx context.Context, in ShipmentInput) (*Shipment, error) {
	if in.PartnerID <= 0 {
		return nil, errors.New("partner is required")
	}
	sh := &Shipment{
		Description:   in.Description,
		ShipmentDate:  in.ShipmentDate,
		StoreRelease:  in.StoreRelease,
		DateExpected:  in.DateExpected,
		TransporterID: in.TransporterID,
		PartnerID:     in.PartnerID,
		StatusNote:    in.StatusNote,
		Status:        StatusInProgress,
	}
	if sh.ShipmentDate.IsZero() {
		sh.ShipmentDate = s.clock().Truncate(24 * time.Hour)
	}
	if err := s.repo.CreateShipment(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// GetShipment loads one shipment.
func (s *Service) GetShipment(ctx context.Context, id int64) (*Shipment, error) {
	return s.repo.GetShipment(ctx, id)
}

// ListShipments lists all shipments.
func (s *Service) ListShipments(ctx context.Context) ([]Shipment, error) {
	return s.repo.ListShipments(ctx)
}

// UpdateShipment applies edits and re-runs the save-time side effects.
func (s *Service) UpdateShipment(ctx context.Context, id int64, in ShipmentInput) (*Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	sh.Description = in.Description
	if !in.ShipmentDate.IsZero() {
		sh.ShipmentDate = in.ShipmentDate
	}
	sh.StoreRelease = in.StoreRelease
	sh.DateExpected = in.DateExpected
	sh.TransporterID = in.TransporterID
	if in.PartnerID > 0 {
		sh.PartnerID = in.PartnerID
	}
	sh.StatusNote = in.StatusNote
	if err := s.saveShipment(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// saveShipment recomputes the donor summary and stamps the picked-up /
// in-transit dates the first time the matching status appears.
func (s *Service) saveShipment(ctx context.Context, sh *Shipment) error {
	if sh.ID != 0 {
		donor, err := s.computeDonorName(ctx, sh.ID)
		if err != nil {
			return err
		}
		sh.Donor = donor
	}
	s.stampStatusDates(sh)
	return s.repo.UpdateShipment(ctx, sh)
}

func (s *Service) stampStatusDates(sh *Shipment) {
	now := s.clock()
	if sh.DatePickedUp == nil && sh.Status == StatusPickedUp {
		sh.DatePickedUp = &now
	}
	if sh.DateInTransit == nil && sh.Status == StatusInTransit {
		sh.DateInTransit = &now
	}
}

// computeDonorName summarises the item donors: the single donor's name, or
// "Multiple", or "None".
func (s *Service) computeDonorName(ctx context.Context, shipmentID int64) (string, error) {
	names, err := s.repo.DistinctDonorNames(ctx, shipmentID)
	if err != nil {
		return "", err
	}
	switch len(names) {
	case 0:
		return "None", nil
	case 1:
		return names[0], nil
	default:
		return "Multiple", nil
	}
}

// Finalize moves an in-progress shipment to ready and pulls any packages
// that have not started changing status along with it.
func (s *Service) Finalize(ctx context.Context, id int64) (*Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sh.MayFinalize() {
		return nil, fmt.Errorf("finalize shipment %d: %w", id, shared.ErrInvalidTransition)
	}
	sh.Status = StatusReady
	if err := s.saveShipment(ctx, sh); err != nil {
		return nil, err
	}
	inProgress := StatusInProgress
	if err := s.repo.MovePackagesStatus(ctx, id, []*Status{nil, &inProgress}, StatusReady); err != nil {
		return nil, err
	}
	return sh, nil
}

// Cancel cancels a shipment. Packages keep their stored status.
func (s *Service) Cancel(ctx context.Context, id int64) (*Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sh.MayCancel() {
		return nil, fmt.Errorf("cancel shipment %d: %w", id, shared.ErrInvalidTransition)
	}
	sh.Status = StatusCanceled
	if err := s.saveShipment(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// Reopen reverts a finalized, unshipped shipment to in progress, pulling
// ready packages back with it.
func (s *Service) Reopen(ctx context.Context, id int64) (*Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sh.MayReopen() {
		return nil, fmt.Errorf("reopen shipment %d: %w", id, shared.ErrInvalidTransition)
	}
	sh.Status = StatusInProgress
	if err := s.saveShipment(ctx, sh); err != nil {
		return nil, err
	}
	ready := StatusReady
	if err := s.repo.MovePackagesStatus(ctx, id, []*Status{&ready}, StatusInProgress); err != nil {
		return nil, err
	}
	return sh, nil
}

// MarkLost marks a shipped shipment as lost, recording whether the loss was
// acceptable and a free-text note.
func (s *Service) MarkLost(ctx context.Context, id int64, acceptable bool, note string) (*Shipment, error) {
	sh, err := s.repo.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sh.MayLose() {
		return nil, fmt.Errorf("mark shipment %d lost: %w", id, shared.ErrInvalidTransition)
	}
	sh.Status = StatusLost
	sh.Acceptable = acceptable
	sh.StatusNote = note
	if err := s.saveShipment(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// MarkPrinted records the barcode/manifest print side effect: shipment and
// packages still in progress advance to ready.
func (s *Service) MarkPrinted(ctx context.Context, id int64) error {
	if _, err := s.repo.GetShipment(ctx, id); err != nil {
		return err
	}
	if err := s.repo.UpdateShipmentStatusWhere(ctx, id, StatusInProgress, StatusReady); err != nil {
		return err
	}
	inProgress := StatusInProgress
	return s.repo.MovePackagesStatus(ctx, id, []*Status{&inProgress}, StatusReady)
}

// VerboseStatusText renders the shipment status with the partial-completion
// percentage, counting packages whose stored status equals the shipment's.
func (s *Service) VerboseStatusText(ctx context.Context, sh *Shipment) (string, error) {
	counts, total, err := s.repo.PackageStatusCounts(ctx, sh.ID)
	if err != nil {
		return "", err
	}
	return VerboseStatus(sh.Status, counts[sh.Status], total), nil
}

// NextPackageNumber returns 1 + the highest number already used in the
// shipment. Numbers are never reused after deletion.
func (s *Service) NextPackageNumber(ctx context.Context, shipmentID int64) (int, error) {
	max, err := s.repo.MaxPackageNumber(ctx, shipmentID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// SavePackage persists package edits, ratcheting the parent shipment up to
// picked-up when the package has advanced at least that far.
func (s *Service) SavePackage(ctx context.Context, p *Package) error {
	if p.Status != nil && *p.Status >= StatusPickedUp {
		sh, err := s.repo.GetShipment(ctx, p.ShipmentID)
		if err != nil {
			return err
		}
		if sh.Status < StatusPickedUp {
			sh.Status = StatusPickedUp
			if err := s.saveShipment(ctx, sh); err != nil {
				return err
			}
		}
	}
	return s.repo.UpdatePackage(ctx, p)
}

// GetPackageByCode resolves a package from its QR code.
func (s *Service) GetPackageByCode(ctx context.Context, code string) (*Package, error) {
	return s.repo.GetPackageByCode(ctx, code)
}

// ListPackages lists a shipment's packages in number order.
func (s *Service) ListPackages(ctx context.Context, shipmentID int64) ([]Package, error) {
	return s.repo.ListPackages(ctx, shipmentID)
}

// ListScans lists a shipment's scans, most recent first.
func (s *Service) ListScans(ctx context.Context, shipmentID int64) ([]PackageScan, error) {
	return s.repo.ListScansByShipment(ctx, shipmentID)
}

// CreatePackagesAndItems allocates count new packages with sequential
// numbers, stamping package items out of the given kits. The whole batch is
// one transaction so partial packages are never visible. With exactly one
// kit the packages are tagged with it for later bulk edits.
func (s *Service) CreatePackagesAndItems(ctx context.Context, shipmentID int64, name, description string, count int, kitQuantities map[int64]int) ([]Package, error) {
	if count <= 0 {
		return nil, errors.New("package count must be positive")
	}
	for _, qty := range kitQuantities {
		if qty < 1 || qty > MaxItemQuantity {
			return nil, ErrQuantityOutOfRange
		}
	}

	var created []Package
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		sh, err := tx.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}

		max, err := tx.MaxPackageNumber(ctx, shipmentID)
		if err != nil {
			return err
		}
		firstNumber := max + 1

		var onlyKit *int64
		if len(kitQuantities) == 1 {
			for kitID := range kitQuantities {
				id := kitID
				onlyKit = &id
			}
		}

		pkgs := make([]Package, 0, count)
		for i := 0; i < count; i++ {
			number := firstNumber + i
			pkgs = append(pkgs, Package{
				Name:             name,
				Description:      description,
				ShipmentID:       sh.ID,
				NumberInShipment: number,
				Code:             PackageCode(s.codePrefix, sh.ID, number),
				KitID:            onlyKit,
			})
		}
		if err := tx.CreatePackages(ctx, pkgs); err != nil {
			return err
		}

		var items []PackageItem
		for kitID, multiplier := range kitQuantities {
			kitItems, err := tx.ListKitItems(ctx, kitID)
			if err != nil {
				return err
			}
			for _, ki := range kitItems {
				snap, err := s.catalog.ItemSnapshot(ctx, ki.CatalogItemID)
				if err != nil {
					return err
				}
				for i := range pkgs {
					items = append(items, newItemFromSnapshot(pkgs[i].ID, snap, multiplier*ki.Quantity))
				}
			}
		}
		if err := tx.CreatePackageItems(ctx, items); err != nil {
			return err
		}
		created = pkgs
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.refreshAfterShipmentChange(ctx, shipmentID); err != nil {
		return nil, err
	}
	return created, nil
}

func newItemFromSnapshot(packageID int64, snap CatalogItemSnapshot, quantity int) PackageItem {
	return PackageItem{
		PackageID:      packageID,
		CatalogItemID:  &snap.ID,
		Description:    snap.Description,
		Unit:           snap.Unit,
		PriceUSD:       snap.PriceUSD,
		PriceLocal:     snap.PriceLocal,
		ItemCategoryID: snap.ItemCategoryID,
		DonorID:        snap.DonorID,
		DonorT1ID:      snap.DonorT1ID,
		SupplierID:     snap.SupplierID,
		Weight:         snap.Weight,
		Quantity:       quantity,
	}
}

// refreshAfterShipmentChange recomputes aggregates and the shipment donor
// summary after a bulk item change.
func (s *Service) refreshAfterShipmentChange(ctx context.Context, shipmentID int64) error {
	pairs, err := s.repo.DonorCategoryPairs(ctx, shipmentID)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		if err := s.aggregates.OnItemChanged(ctx, pair[0], pair[1], shipmentID); err != nil {
			return err
		}
	}
	sh, err := s.repo.GetShipment(ctx, shipmentID)
	if err != nil {
		return err
	}
	return s.saveShipment(ctx, sh)
}

// AddItemToPackage stamps a package item from a catalog item and refreshes
// the affected aggregates.
func (s *Service) AddItemToPackage(ctx context.Context, packageID, catalogItemID int64, quantity int) (*PackageItem, error) {
	if quantity < 1 || quantity > MaxItemQuantity {
		return nil, ErrQuantityOutOfRange
	}
	pkg, err := s.repo.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	snap, err := s.catalog.ItemSnapshot(ctx, catalogItemID)
	if err != nil {
		return nil, err
	}
	item := newItemFromSnapshot(pkg.ID, snap, quantity)
	if err := s.repo.CreatePackageItem(ctx, &item); err != nil {
		return nil, err
	}
	if err := s.aggregates.OnItemChanged(ctx, item.DonorID, item.ItemCategoryID, pkg.ShipmentID); err != nil {
		return nil, err
	}
	sh, err := s.repo.GetShipment(ctx, pkg.ShipmentID)
	if err != nil {
		return nil, err
	}
	if err := s.saveShipment(ctx, sh); err != nil {
		return nil, err
	}
	return &item, nil
}

// RemovePackageItem deletes a package item and refreshes the affected
// aggregates.
func (s *Service) RemovePackageItem(ctx context.Context, itemID int64) error {
	item, err := s.repo.GetPackageItem(ctx, itemID)
	if err != nil {
		return err
	}
	pkg, err := s.repo.GetPackage(ctx, item.PackageID)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePackageItem(ctx, itemID); err != nil {
		return err
	}
	return s.aggregates.OnItemChanged(ctx, item.DonorID, item.ItemCategoryID, pkg.ShipmentID)
}

// AddItemToKit adds quantity of a catalog item to a kit, keeping at most one
// KitItem row per (kit, catalog item). Pre-existing duplicate rows are merged
// first. Returns the resulting total quantity.
func (s *Service) AddItemToKit(ctx context.Context, kitID, catalogItemID int64, quantity int) (int, error) {
	if quantity < 1 || quantity > MaxItemQuantity {
		return 0, ErrQuantityOutOfRange
	}
	if _, err := s.repo.GetKit(ctx, kitID); err != nil {
		return 0, err
	}

	existing, err := s.repo.KitItemsFor(ctx, kitID, catalogItemID)
	if err != nil {
		return 0, err
	}

	switch len(existing) {
	case 0:
		item := KitItem{KitID: kitID, CatalogItemID: catalogItemID, Quantity: quantity}
		if err := s.repo.CreateKitItem(ctx, &item); err != nil {
			return 0, err
		}
		return item.Quantity, nil
	default:
		keep := existing[0]
		if len(existing) > 1 {
			var extraIDs []int64
			for _, dup := range existing[1:] {
				keep.Quantity += dup.Quantity
				extraIDs = append(extraIDs, dup.ID)
			}
			if err := s.repo.DeleteKitItems(ctx, extraIDs); err != nil {
				return 0, err
			}
		}
		keep.Quantity += quantity
		if err := s.repo.UpdateKitItemQuantity(ctx, keep.ID, keep.Quantity); err != nil {
			return 0, err
		}
		return keep.Quantity, nil
	}
}

// CreateKit creates a kit template.
func (s *Service) CreateKit(ctx context.Context, name, description string) (*Kit, error) {
	if name == "" {
		return nil, errors.New("kit name is required")
	}
	k := &Kit{Name: name, Description: description}
	if err := s.repo.CreateKit(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// ListKits lists kit templates.
func (s *Service) ListKits(ctx context.Context) ([]Kit, error) {
	return s.repo.ListKits(ctx)
}

// DeleteKit removes a kit and its items, clearing the historical reference
// from any packages created from it.
func (s *Service) DeleteKit(ctx context.Context, id int64) error {
	if err := s.repo.ClearKitFromPackages(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteKit(ctx, id)
}

// ScanInput is one field observation of a package, already parsed and
// label-resolved by the ingestion layer.
type ScanInput struct {
	Code        string
	When        time.Time
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	Accuracy    *float64
	StatusName  string
	StatusLabel string
}

// ApplyScan records the scan and pushes the derived status onto the package
// and its shipment. The scan row is written even when the status name is
// unrecognized; in that case ErrUnknownStatusName is returned after the
// scan is stored so the caller can log the data-quality problem.
func (s *Service) ApplyScan(ctx context.Context, in ScanInput) error {
	pkg, err := s.repo.GetPackageByCode(ctx, in.Code)
	if err != nil {
		return err
	}

	var label *string
	if in.StatusLabel != "" {
		label = &in.StatusLabel
	}
	scan := &PackageScan{
		PackageID:   pkg.ID,
		ShipmentID:  pkg.ShipmentID,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Altitude:    in.Altitude,
		Accuracy:    in.Accuracy,
		When:        in.When,
		StatusLabel: label,
	}
	if err := s.repo.CreateScan(ctx, scan); err != nil && !errors.Is(err, shared.ErrConflict) {
		return err
	}
	if err := s.refreshLastScan(ctx, pkg); err != nil {
		return err
	}

	status, ok := ParseStatusName(in.StatusName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatusName, in.StatusName)
	}

	pkg.LastScanStatusLabel = label
	if pkg.Status == nil || *pkg.Status != status {
		st := status
		pkg.Status = &st
	}
	// First write wins: a date marker is only stamped while still unset.
	when := in.When
	switch status {
	case StatusReceived:
		if pkg.DateReceived == nil {
			pkg.DateReceived = &when
		}
	case StatusPickedUp:
		if pkg.DatePickedUp == nil {
			pkg.DatePickedUp = &when
		}
	case StatusInTransit:
		if pkg.DateInTransit == nil {
			pkg.DateInTransit = &when
		}
	}
	if err := s.repo.UpdatePackage(ctx, pkg); err != nil {
		return err
	}

	sh, err := s.repo.GetShipment(ctx, pkg.ShipmentID)
	if err != nil {
		return err
	}
	sh.Status = status
	sh.LastScanStatusLabel = label
	s.stampStatusDates(sh)
	return s.repo.UpdateShipment(ctx, sh)
}

func (s *Service) refreshLastScan(ctx context.Context, pkg *Package) error {
	last, err := s.repo.LastScan(ctx, pkg.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		pkg.LastScanID = nil
	case err != nil:
		return err
	default:
		pkg.LastScanID = &last.ID
	}
	return s.repo.UpdatePackage(ctx, pkg)
}

// DeleteShipmentCascade removes a shipment with everything hanging off it:
// items, scan back-references, scans, packages, report rows, then the
// shipment itself, finally recomputing the affected donor/category
// aggregates. Each step is idempotent so the background worker can re-run
// the whole operation after a crash.
func (s *Service) DeleteShipmentCascade(ctx context.Context, shipmentID int64) error {
	pairs, err := s.repo.DonorCategoryPairs(ctx, shipmentID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteItemsByShipment(ctx, shipmentID); err != nil {
		return err
	}
	if err := s.repo.ClearLastScanRefs(ctx, shipmentID); err != nil {
		return err
	}
	if err := s.repo.DeleteScansByShipment(ctx, shipmentID); err != nil {
		return err
	}
	if err := s.repo.DeletePackagesByShipment(ctx, shipmentID); err != nil {
		return err
	}
	if err := s.aggregates.DeleteShipmentData(ctx, shipmentID); err != nil {
		return err
	}
	if err := s.repo.DeleteShipmentRow(ctx, shipmentID); err != nil {
		return err
	}
	for _, pair := range pairs {
		if err := s.aggregates.RefreshDonorCategory(ctx, pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

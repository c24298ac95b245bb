package shipments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaytrack/relaytrack/internal/platform/db"
	"github.com/relaytrack/relaytrack/internal/shared"
)

// Repository persists shipments, packages, kits and scans in PostgreSQL.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	CreateShipment(ctx context.Context, s *Shipment) error
	GetShipment(ctx context.Context, id int64) (*Shipment, error)
	ListShipments(ctx context.Context) ([]Shipment, error)
	UpdateShipment(ctx context.Context, s *Shipment) error
	DeleteShipmentRow(ctx context.Context, id int64) error
	UpdateShipmentStatusWhere(ctx context.Context, id int64, from, to Status) error

	CreatePackage(ctx context.Context, p *Package) error
	CreatePackages(ctx context.Context, pkgs []Package) error
	GetPackage(ctx context.Context, id int64) (*Package, error)
	GetPackageByCode(ctx context.Context, code string) (*Package, error)
	ListPackages(ctx context.Context, shipmentID int64) ([]Package, error)
	UpdatePackage(ctx context.Context, p *Package) error
	MaxPackageNumber(ctx context.Context, shipmentID int64) (int, error)
	MovePackagesStatus(ctx context.Context, shipmentID int64, from []*Status, to Status) error
	DeletePackagesByShipment(ctx context.Context, shipmentID int64) error
	PackageStatusCounts(ctx context.Context, shipmentID int64) (map[Status]int, int, error)

	CreatePackageItem(ctx context.Context, it *PackageItem) error
	CreatePackageItems(ctx context.Context, items []PackageItem) error
	GetPackageItem(ctx context.Context, id int64) (*PackageItem, error)
	ListPackageItems(ctx context.Context, packageID int64) ([]PackageItem, error)
	DeletePackageItem(ctx context.Context, id int64) error
	DeleteItemsByShipment(ctx context.Context, shipmentID int64) error
	DistinctDonorNames(ctx context.Context, shipmentID int64) ([]string, error)
	DonorCategoryPairs(ctx context.Context, shipmentID int64) ([][2]*int64, error)

	CreateKit(ctx context.Context, k *Kit) error
	GetKit(ctx context.Context, id int64) (*Kit, error)
	ListKits(ctx context.Context) ([]Kit, error)
	DeleteKit(ctx context.Context, id int64) error
	ClearKitFromPackages(ctx context.Context, kitID int64) error
	ListKitItems(ctx context.Context, kitID int64) ([]KitItem, error)
	KitItemsFor(ctx context.Context, kitID, catalogItemID int64) ([]KitItem, error)
	CreateKitItem(ctx context.Context, it *KitItem) error
	UpdateKitItemQuantity(ctx context.Context, id int64, quantity int) error
	DeleteKitItems(ctx context.Context, ids []int64) error

	CreateScan(ctx context.Context, sc *PackageScan) error
	LastScan(ctx context.Context, packageID int64) (*PackageScan, error)
	ListScansByShipment(ctx context.Context, shipmentID int64) ([]PackageScan, error)
	ClearLastScanRefs(ctx context.Context, shipmentID int64) error
	DeleteScansByShipment(ctx context.Context, shipmentID int64) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
	q    dbtx
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, q: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{pool: r.pool, q: tx})
	})
}

const shipmentColumns = `id, description, shipment_date, store_release,
	date_picked_up, date_in_transit, date_expected, date_received,
	status, transporter_id, partner_id, acceptable, status_note, donor,
	last_scan_status_label, created_at, updated_at`

func scanShipment(row pgx.Row) (*Shipment, error) {
	var s Shipment
	err := row.Scan(&s.ID, &s.Description, &s.ShipmentDate, &s.StoreRelease,
		&s.DatePickedUp, &s.DateInTransit, &s.DateExpected, &s.DateReceived,
		&s.Status, &s.TransporterID, &s.PartnerID, &s.Acceptable, &s.StatusNote,
		&s.Donor, &s.LastScanStatusLabel, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) CreateShipment(ctx context.Context, s *Shipment) error {
	now := time.Now()
	err := r.q.QueryRow(ctx, `INSERT INTO shipments
		(description, shipment_date, store_release, date_picked_up, date_in_transit,
		 date_expected, date_received, status, transporter_id, partner_id,
		 acceptable, status_note, donor, last_scan_status_label, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
		RETURNING id`,
		s.Description, s.ShipmentDate, s.StoreRelease, s.DatePickedUp, s.DateInTransit,
		s.DateExpected, s.DateReceived, s.Status, s.TransporterID, s.PartnerID,
		s.Acceptable, s.StatusNote, s.Donor, s.LastScanStatusLabel, now).Scan(&s.ID)
	if err != nil {
		return err
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (r *repository) GetShipment(ctx context.Context, id int64) (*Shipment, error) {
	return scanShipment(r.q.QueryRow(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
}

func (r *repository) ListShipments(ctx context.Context) ([]Shipment, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+shipmentColumns+` FROM shipments ORDER BY shipment_date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *repository) UpdateShipment(ctx context.Context, s *Shipment) error {
	_, err := r.q.Exec(ctx, `UPDATE shipments SET
		description = $1, shipment_date = $2, store_release = $3,
		date_picked_up = $4, date_in_transit = $5, date_expected = $6,
		date_received = $7, status = $8, transporter_id = $9, partner_id = $10,
		acceptable = $11, status_note = $12, donor = $13,
		last_scan_status_label = $14, updated_at = $15
		WHERE id = $16`,
		s.Description, s.ShipmentDate, s.StoreRelease,
		s.DatePickedUp, s.DateInTransit, s.DateExpected,
		s.DateReceived, s.Status, s.TransporterID, s.PartnerID,
		s.Acceptable, s.StatusNote, s.Donor,
		s.LastScanStatusLabel, time.Now(), s.ID)
	return err
}

func (r *repository) DeleteShipmentRow(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	return err
}

func (r *repository) UpdateShipmentStatusWhere(ctx context.Context, id int64, from, to Status) error {
	_, err := r.q.Exec(ctx,
		`UPDATE shipments SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, id, from)
	return err
}

const packageColumns = `id, name, description, shipment_id, number_in_shipment,
	status, code, kit_id, last_scan_id, date_picked_up, date_in_transit,
	date_received, last_scan_status_label`

func scanPackage(row pgx.Row) (*Package, error) {
	var p Package
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ShipmentID, &p.NumberInShipment,
		&p.Status, &p.Code, &p.KitID, &p.LastScanID, &p.DatePickedUp, &p.DateInTransit,
		&p.DateReceived, &p.LastScanStatusLabel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) CreatePackage(ctx context.Context, p *Package) error {
	return r.q.QueryRow(ctx, `INSERT INTO packages
		(name, description, shipment_id, number_in_shipment, status, code, kit_id,
		 last_scan_id, date_picked_up, date_in_transit, date_received, last_scan_status_label)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		p.Name, p.Description, p.ShipmentID, p.NumberInShipment, p.Status, p.Code,
		p.KitID, p.LastScanID, p.DatePickedUp, p.DateInTransit, p.DateReceived,
		p.LastScanStatusLabel).Scan(&p.ID)
}

func (r *repository) CreatePackages(ctx context.Context, pkgs []Package) error {
	for i := range pkgs {
		if err := r.CreatePackage(ctx, &pkgs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) GetPackage(ctx context.Context, id int64) (*Package, error) {
	return scanPackage(r.q.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
}

func (r *repository) GetPackageByCode(ctx context.Context, code string) (*Package, error) {
	return scanPackage(r.q.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE code = $1`, code))
}

func (r *repository) ListPackages(ctx context.Context, shipmentID int64) ([]Package, error) {
	return r.queryPackages(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE shipment_id = $1 ORDER BY number_in_shipment`,
		shipmentID)
}

func (r *repository) queryPackages(ctx context.Context, query string, args ...any) ([]Package, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) UpdatePackage(ctx context.Context, p *Package) error {
	_, err := r.q.Exec(ctx, `UPDATE packages SET
		name = $1, description = $2, status = $3, kit_id = $4, last_scan_id = $5,
		date_picked_up = $6, date_in_transit = $7, date_received = $8,
		last_scan_status_label = $9
		WHERE id = $10`,
		p.Name, p.Description, p.Status, p.KitID, p.LastScanID,
		p.DatePickedUp, p.DateInTransit, p.DateReceived,
		p.LastScanStatusLabel, p.ID)
	return err
}

func (r *repository) MaxPackageNumber(ctx context.Context, shipmentID int64) (int, error) {
	var max *int
	err := r.q.QueryRow(ctx,
		`SELECT MAX(number_in_shipment) FROM packages WHERE shipment_id = $1`,
		shipmentID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// MovePackagesStatus bulk-updates packages whose stored status matches one of
// the given values (nil matches NULL).
func (r *repository) MovePackagesStatus(ctx context.Context, shipmentID int64, from []*Status, to Status) error {
	var values []int
	matchNull := false
	for _, f := range from {
		if f == nil {
			matchNull = true
		} else {
			values = append(values, int(*f))
		}
	}
	query := `UPDATE packages SET status = $1 WHERE shipment_id = $2 AND (status = ANY($3)`
	if matchNull {
		query += ` OR status IS NULL`
	}
	query += `)`
	_, err := r.q.Exec(ctx, query, to, shipmentID, values)
	return err
}

func (r *repository) DeletePackagesByShipment(ctx context.Context, shipmentID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM packages WHERE shipment_id = $1`, shipmentID)
	return err
}

// PackageStatusCounts returns per-stored-status package counts and the total
// number of packages in the shipment.
func (r *repository) PackageStatusCounts(ctx context.Context, shipmentID int64) (map[Status]int, int, error) {
	rows, err := r.q.Query(ctx,
		`SELECT status, COUNT(*) FROM packages WHERE shipment_id = $1 GROUP BY status`,
		shipmentID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	total := 0
	for rows.Next() {
		var status *Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, 0, err
		}
		if status != nil {
			counts[*status] = n
		}
		total += n
	}
	return counts, total, rows.Err()
}

const itemColumns = `id, package_id, catalog_item_id, description, unit,
	price_usd, price_local, item_category_id, donor_id, donor_t1_id,
	supplier_id, weight, quantity`

func scanItem(row pgx.Row) (*PackageItem, error) {
	var it PackageItem
	err := row.Scan(&it.ID, &it.PackageID, &it.CatalogItemID, &it.Description, &it.Unit,
		&it.PriceUSD, &it.PriceLocal, &it.ItemCategoryID, &it.DonorID, &it.DonorT1ID,
		&it.SupplierID, &it.Weight, &it.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *repository) CreatePackageItem(ctx context.Context, it *PackageItem) error {
	return r.q.QueryRow(ctx, `INSERT INTO package_items
		(package_id, catalog_item_id, description, unit, price_usd, price_local,
		 item_category_id, donor_id, donor_t1_id, supplier_id, weight, quantity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		it.PackageID, it.CatalogItemID, it.Description, it.Unit, it.PriceUSD, it.PriceLocal,
		it.ItemCategoryID, it.DonorID, it.DonorT1ID, it.SupplierID, it.Weight,
		it.Quantity).Scan(&it.ID)
}

func (r *repository) CreatePackageItems(ctx context.Context, items []PackageItem) error {
	for i := range items {
		if err := r.CreatePackageItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) GetPackageItem(ctx context.Context, id int64) (*PackageItem, error) {
	return scanItem(r.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM package_items WHERE id = $1`, id))
}

func (r *repository) ListPackageItems(ctx context.Context, packageID int64) ([]PackageItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+itemColumns+` FROM package_items WHERE package_id = $1 ORDER BY id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PackageItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *repository) DeletePackageItem(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM package_items WHERE id = $1`, id)
	return err
}

func (r *repository) DeleteItemsByShipment(ctx context.Context, shipmentID int64) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM package_items WHERE package_id IN
		 (SELECT id FROM packages WHERE shipment_id = $1)`, shipmentID)
	return err
}

// DistinctDonorNames returns the distinct donor names across all items in a
// shipment, ignoring items without a donor.
func (r *repository) DistinctDonorNames(ctx context.Context, shipmentID int64) ([]string, error) {
	rows, err := r.q.Query(ctx,
		`SELECT DISTINCT d.name FROM package_items pi
		 JOIN donors d ON d.id = pi.donor_id
		 JOIN packages p ON p.id = pi.package_id
		 WHERE p.shipment_id = $1`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DonorCategoryPairs returns the distinct (donor, category) combinations for
// all items in a shipment; used to recompute aggregates after deletion.
func (r *repository) DonorCategoryPairs(ctx context.Context, shipmentID int64) ([][2]*int64, error) {
	rows, err := r.q.Query(ctx,
		`SELECT DISTINCT pi.donor_id, pi.item_category_id FROM package_items pi
		 JOIN packages p ON p.id = pi.package_id
		 WHERE p.shipment_id = $1`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs [][2]*int64
	for rows.Next() {
		var donorID, categoryID *int64
		if err := rows.Scan(&donorID, &categoryID); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]*int64{donorID, categoryID})
	}
	return pairs, rows.Err()
}

func (r *repository) CreateKit(ctx context.Context, k *Kit) error {
	return r.q.QueryRow(ctx,
		`INSERT INTO kits (name, description) VALUES ($1, $2) RETURNING id`,
		k.Name, k.Description).Scan(&k.ID)
}

func (r *repository) GetKit(ctx context.Context, id int64) (*Kit, error) {
	var k Kit
	err := r.q.QueryRow(ctx,
		`SELECT id, name, description FROM kits WHERE id = $1`, id).
		Scan(&k.ID, &k.Name, &k.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

func (r *repository) ListKits(ctx context.Context) ([]Kit, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, description FROM kits ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Kit
	for rows.Next() {
		var k Kit
		if err := rows.Scan(&k.ID, &k.Name, &k.Description); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *repository) DeleteKit(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM kit_items WHERE kit_id = $1`, id); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `DELETE FROM kits WHERE id = $1`, id)
	return err
}

// ClearKitFromPackages removes the historical kit reference from packages
// before a kit is deleted.
func (r *repository) ClearKitFromPackages(ctx context.Context, kitID int64) error {
	_, err := r.q.Exec(ctx, `UPDATE packages SET kit_id = NULL WHERE kit_id = $1`, kitID)
	return err
}

func (r *repository) ListKitItems(ctx context.Context, kitID int64) ([]KitItem, error) {
	return r.queryKitItems(ctx,
		`SELECT id, kit_id, catalog_item_id, quantity FROM kit_items
		 WHERE kit_id = $1 ORDER BY id`, kitID)
}

func (r *repository) KitItemsFor(ctx context.Context, kitID, catalogItemID int64) ([]KitItem, error) {
	return r.queryKitItems(ctx,
		`SELECT id, kit_id, catalog_item_id, quantity FROM kit_items
		 WHERE kit_id = $1 AND catalog_item_id = $2 ORDER BY id`, kitID, catalogItemID)
}

func (r *repository) queryKitItems(ctx context.Context, query string, args ...any) ([]KitItem, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KitItem
	for rows.Next() {
		var it KitItem
		if err := rows.Scan(&it.ID, &it.KitID, &it.CatalogItemID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repository) CreateKitItem(ctx context.Context, it *KitItem) error {
	return r.q.QueryRow(ctx,
		`INSERT INTO kit_items (kit_id, catalog_item_id, quantity)
		 VALUES ($1, $2, $3) RETURNING id`,
		it.KitID, it.CatalogItemID, it.Quantity).Scan(&it.ID)
}

func (r *repository) UpdateKitItemQuantity(ctx context.Context, id int64, quantity int) error {
	_, err := r.q.Exec(ctx, `UPDATE kit_items SET quantity = $1 WHERE id = $2`, quantity, id)
	return err
}

func (r *repository) DeleteKitItems(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `DELETE FROM kit_items WHERE id = ANY($1)`, ids)
	return err
}

// CreateScan inserts a scan. Duplicate (package, when) pairs are ignored so
// re-ingesting a submission never stores the same observation twice.
func (r *repository) CreateScan(ctx context.Context, sc *PackageScan) error {
	err := r.q.QueryRow(ctx, `INSERT INTO package_scans
		(package_id, shipment_id, latitude, longitude, altitude, accuracy, scanned_at, status_label)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (package_id, scanned_at) DO NOTHING
		RETURNING id`,
		sc.PackageID, sc.ShipmentID, sc.Latitude, sc.Longitude, sc.Altitude, sc.Accuracy,
		sc.When, sc.StatusLabel).Scan(&sc.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrConflict
	}
	return err
}

func (r *repository) LastScan(ctx context.Context, packageID int64) (*PackageScan, error) {
	var sc PackageScan
	err := r.q.QueryRow(ctx,
		`SELECT id, package_id, shipment_id, latitude, longitude, altitude, accuracy,
		        scanned_at, status_label
		 FROM package_scans WHERE package_id = $1
		 ORDER BY scanned_at DESC LIMIT 1`, packageID).
		Scan(&sc.ID, &sc.PackageID, &sc.ShipmentID, &sc.Latitude, &sc.Longitude,
			&sc.Altitude, &sc.Accuracy, &sc.When, &sc.StatusLabel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &sc, nil
}

func (r *repository) ListScansByShipment(ctx context.Context, shipmentID int64) ([]PackageScan, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, package_id, shipment_id, latitude, longitude, altitude, accuracy,
		        scanned_at, status_label
		 FROM package_scans WHERE shipment_id = $1 ORDER BY scanned_at DESC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PackageScan
	for rows.Next() {
		var sc PackageScan
		if err := rows.Scan(&sc.ID, &sc.PackageID, &sc.ShipmentID, &sc.Latitude, &sc.Longitude,
			&sc.Altitude, &sc.Accuracy, &sc.When, &sc.StatusLabel); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *repository) ClearLastScanRefs(ctx context.Context, shipmentID int64) error {
	_, err := r.q.Exec(ctx,
		`UPDATE packages SET last_scan_id = NULL WHERE shipment_id = $1 AND last_scan_id IS NOT NULL`,
		shipmentID)
	return err
}

func (r *repository) DeleteScansByShipment(ctx context.Context, shipmentID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM package_scans WHERE shipment_id = $1`, shipmentID)
	return err
}

package reports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaytrack/relaytrack/internal/shipments"
)

type Repository interface {
	RefreshDonorShipment(ctx context.Context, donorID, shipmentID int64) error
	RefreshDonorCategory(ctx context.Context, donorID, categoryID int64) error
	DeleteByShipment(ctx context.Context, shipmentID int64) error
	DonorShipmentExists(ctx context.Context, donorID, shipmentID int64) (bool, error)
	ListDonorShipments(ctx context.Context) ([]DonorShipmentData, error)
	ListDonorCategories(ctx context.Context) ([]DonorCategoryData, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// RefreshDonorShipment recomputes the (donor, shipment) rollup from the
// package items. An empty aggregate deletes the row instead of storing zeros.
func (r *repository) RefreshDonorShipment(ctx context.Context, donorID, shipmentID int64) error {
	var (
		packageCount, itemCount, deliveredCount int
		priceUSD, priceLocal                    float64
	)
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT pi.package_id),
		       COUNT(*),
		       COUNT(DISTINCT pi.package_id) FILTER (WHERE p.status = $3),
		       COALESCE(SUM(pi.quantity * pi.price_usd), 0),
		       COALESCE(SUM(pi.quantity * pi.price_local), 0)
		FROM package_items pi
		JOIN packages p ON p.id = pi.package_id
		WHERE pi.donor_id = $1 AND p.shipment_id = $2`,
		donorID, shipmentID, int(shipments.StatusReceived)).
		Scan(&packageCount, &itemCount, &deliveredCount, &priceUSD, &priceLocal)
	if err != nil {
		return err
	}

	if itemCount == 0 {
		_, err = r.db.Exec(ctx,
			`DELETE FROM donor_shipment_data WHERE donor_id = $1 AND shipment_id = $2`,
			donorID, shipmentID)
		return err
	}

	var shipmentTotal float64
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(pi.quantity * pi.price_usd), 0)
		FROM package_items pi
		JOIN packages p ON p.id = pi.package_id
		WHERE p.shipment_id = $1`, shipmentID).Scan(&shipmentTotal)
	if err != nil {
		return err
	}
	percentage := 0
	if shipmentTotal > 0 {
		percentage = int(100 * priceUSD / shipmentTotal)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO donor_shipment_data
			(donor_id, shipment_id, package_count, item_count, delivered_count, percentage_of_shipment, price_usd, price_local)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (donor_id, shipment_id) DO UPDATE SET
			package_count = EXCLUDED.package_count,
			item_count = EXCLUDED.item_count,
			delivered_count = EXCLUDED.delivered_count,
			percentage_of_shipment = EXCLUDED.percentage_of_shipment,
			price_usd = EXCLUDED.price_usd,
			price_local = EXCLUDED.price_local`,
		donorID, shipmentID, packageCount, itemCount, deliveredCount, percentage, priceUSD, priceLocal)
	return err
}

// RefreshDonorCategory recomputes the (donor, category) rollup across all
// shipments. Empty aggregates delete the row.
func (r *repository) RefreshDonorCategory(ctx context.Context, donorID, categoryID int64) error {
	var (
		itemCount            int
		totalQuantity        int64
		priceUSD, priceLocal float64
		firstDate, lastDate  *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(pi.quantity), 0),
		       COALESCE(SUM(pi.quantity * pi.price_usd), 0),
		       COALESCE(SUM(pi.quantity * pi.price_local), 0),
		       MIN(s.shipment_date)::text,
		       MAX(s.shipment_date)::text
		FROM package_items pi
		JOIN packages p ON p.id = pi.package_id
		JOIN shipments s ON s.id = p.shipment_id
		WHERE pi.donor_id = $1 AND pi.item_category_id = $2`,
		donorID, categoryID).
		Scan(&itemCount, &totalQuantity, &priceUSD, &priceLocal, &firstDate, &lastDate)
	if err != nil {
		return err
	}

	if itemCount == 0 {
		_, err = r.db.Exec(ctx,
			`DELETE FROM donor_category_data WHERE donor_id = $1 AND item_category_id = $2`,
			donorID, categoryID)
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO donor_category_data
			(donor_id, item_category_id, item_count, total_quantity, price_usd, price_local, first_shipment_date, last_shipment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::date)
		ON CONFLICT (donor_id, item_category_id) DO UPDATE SET
			item_count = EXCLUDED.item_count,
			total_quantity = EXCLUDED.total_quantity,
			price_usd = EXCLUDED.price_usd,
			price_local = EXCLUDED.price_local,
			first_shipment_date = EXCLUDED.first_shipment_date,
			last_shipment_date = EXCLUDED.last_shipment_date`,
		donorID, categoryID, itemCount, totalQuantity, priceUSD, priceLocal, firstDate, lastDate)
	return err
}

func (r *repository) DeleteByShipment(ctx context.Context, shipmentID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM donor_shipment_data WHERE shipment_id = $1`, shipmentID)
	return err
}

func (r *repository) DonorShipmentExists(ctx context.Context, donorID, shipmentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM donor_shipment_data WHERE donor_id = $1 AND shipment_id = $2)`,
		donorID, shipmentID).Scan(&exists)
	return exists, err
}

func (r *repository) ListDonorShipments(ctx context.Context) ([]DonorShipmentData, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, donor_id, shipment_id, package_count, item_count, delivered_count, percentage_of_shipment, price_usd, price_local
		FROM donor_shipment_data
		ORDER BY donor_id, shipment_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DonorShipmentData
	for rows.Next() {
		var d DonorShipmentData
		if err := rows.Scan(&d.ID, &d.DonorID, &d.ShipmentID, &d.PackageCount, &d.ItemCount,
			&d.DeliveredCount, &d.PercentageOfShipment, &d.PriceUSD, &d.PriceLocal); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) ListDonorCategories(ctx context.Context) ([]DonorCategoryData, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, donor_id, item_category_id, item_count, total_quantity, price_usd, price_local, first_shipment_date, last_shipment_date
		FROM donor_category_data
		ORDER BY donor_id, item_category_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DonorCategoryData
	for rows.Next() {
		var d DonorCategoryData
		if err := rows.Scan(&d.ID, &d.DonorID, &d.ItemCategoryID, &d.ItemCount, &d.TotalQuantity,
			&d.PriceUSD, &d.PriceLocal, &d.FirstShipmentDate, &d.LastShipmentDate); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

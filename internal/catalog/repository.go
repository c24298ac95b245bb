package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaytrack/relaytrack/internal/shared"
)

type Repository interface {
	ListDonors(ctx context.Context) ([]Donor, error)
	GetDonor(ctx context.Context, id int64) (Donor, error)
	CreateDonor(ctx context.Context, d Donor) (Donor, error)
	UpdateDonor(ctx context.Context, id int64, d Donor) error
	DeleteDonor(ctx context.Context, id int64) error

	ListDonorCodes(ctx context.Context, donorID int64) ([]DonorCode, error)
	CreateDonorCode(ctx context.Context, c DonorCode) (DonorCode, error)
	DeleteDonorCode(ctx context.Context, id int64) error

	ListSuppliers(ctx context.Context) ([]Supplier, error)
	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, id int64, s Supplier) error
	DeleteSupplier(ctx context.Context, id int64) error

	ListTransporters(ctx context.Context) ([]Transporter, error)
	CreateTransporter(ctx context.Context, t Transporter) (Transporter, error)
	UpdateTransporter(ctx context.Context, id int64, t Transporter) error
	DeleteTransporter(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]ItemCategory, error)
	CreateCategory(ctx context.Context, c ItemCategory) (ItemCategory, error)
	UpdateCategory(ctx context.Context, id int64, c ItemCategory) error
	DeleteCategory(ctx context.Context, id int64) error

	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	CreateItem(ctx context.Context, it Item) (Item, error)
	UpdateItem(ctx context.Context, id int64, it Item) error
	DeleteItem(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// mapWriteErr turns unique violations into shared.ErrConflict so handlers
// can answer 409 instead of 500.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}

func mapReadErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func (r *repository) ListDonors(ctx context.Context) ([]Donor, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at, updated_at FROM donors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var donors []Donor
	for rows.Next() {
		var d Donor
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		donors = append(donors, d)
	}
	return donors, rows.Err()
}

func (r *repository) GetDonor(ctx context.Context, id int64) (Donor, error) {
	var d Donor
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM donors WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt)
	return d, mapReadErr(err)
}

func (r *repository) CreateDonor(ctx context.Context, d Donor) (Donor, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO donors (name, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id`,
		d.Name, now).Scan(&d.ID)
	if err != nil {
		return Donor{}, mapWriteErr(err)
	}
	d.CreatedAt = now
	d.UpdatedAt = now
	return d, nil
}

func (r *repository) UpdateDonor(ctx context.Context, id int64, d Donor) error {
	_, err := r.db.Exec(ctx, `UPDATE donors SET name = $1, updated_at = $2 WHERE id = $3`,
		d.Name, time.Now(), id)
	return mapWriteErr(err)
}

func (r *repository) DeleteDonor(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM donors WHERE id = $1`, id)
	return err
}

func (r *repository) ListDonorCodes(ctx context.Context, donorID int64) ([]DonorCode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, code, donor_id FROM donor_codes WHERE donor_id = $1 ORDER BY code`, donorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []DonorCode
	for rows.Next() {
		var c DonorCode
		if err := rows.Scan(&c.ID, &c.Code, &c.DonorID); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *repository) CreateDonorCode(ctx context.Context, c DonorCode) (DonorCode, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO donor_codes (code, donor_id) VALUES ($1, $2) RETURNING id`,
		c.Code, c.DonorID).Scan(&c.ID)
	if err != nil {
		return DonorCode{}, mapWriteErr(err)
	}
	return c, nil
}

func (r *repository) DeleteDonorCode(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM donor_codes WHERE id = $1`, id)
	return err
}

func (r *repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *repository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (name) VALUES ($1) RETURNING id`, s.Name).Scan(&s.ID)
	if err != nil {
		return Supplier{}, mapWriteErr(err)
	}
	return s, nil
}

func (r *repository) UpdateSupplier(ctx context.Context, id int64, s Supplier) error {
	_, err := r.db.Exec(ctx, `UPDATE suppliers SET name = $1 WHERE id = $2`, s.Name, id)
	return mapWriteErr(err)
}

func (r *repository) DeleteSupplier(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	return err
}

func (r *repository) ListTransporters(ctx context.Context) ([]Transporter, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM transporters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transporters []Transporter
	for rows.Next() {
		var t Transporter
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		transporters = append(transporters, t)
	}
	return transporters, rows.Err()
}

func (r *repository) CreateTransporter(ctx context.Context, t Transporter) (Transporter, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO transporters (name) VALUES ($1) RETURNING id`, t.Name).Scan(&t.ID)
	if err != nil {
		return Transporter{}, mapWriteErr(err)
	}
	return t, nil
}

func (r *repository) UpdateTransporter(ctx context.Context, id int64, t Transporter) error {
	_, err := r.db.Exec(ctx, `UPDATE transporters SET name = $1 WHERE id = $2`, t.Name, id)
	return mapWriteErr(err)
}

func (r *repository) DeleteTransporter(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM transporters WHERE id = $1`, id)
	return err
}

func (r *repository) ListCategories(ctx context.Context) ([]ItemCategory, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM item_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []ItemCategory
	for rows.Next() {
		var c ItemCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) CreateCategory(ctx context.Context, c ItemCategory) (ItemCategory, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO item_categories (name) VALUES ($1) RETURNING id`, c.Name).Scan(&c.ID)
	if err != nil {
		return ItemCategory{}, mapWriteErr(err)
	}
	return c, nil
}

func (r *repository) UpdateCategory(ctx context.Context, id int64, c ItemCategory) error {
	_, err := r.db.Exec(ctx, `UPDATE item_categories SET name = $1 WHERE id = $2`, c.Name, id)
	return mapWriteErr(err)
}

func (r *repository) DeleteCategory(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM item_categories WHERE id = $1`, id)
	return err
}

const itemColumns = `id, description, unit, price_usd, price_local, item_category_id, donor_id, donor_t1_id, supplier_id, weight`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Description, &it.Unit, &it.PriceUSD, &it.PriceLocal,
		&it.ItemCategoryID, &it.DonorID, &it.DonorT1ID, &it.SupplierID, &it.Weight)
	return it, mapReadErr(err)
}

func (r *repository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM catalog_items ORDER BY description`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) GetItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id))
}

func (r *repository) CreateItem(ctx context.Context, it Item) (Item, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO catalog_items (description, unit, price_usd, price_local, item_category_id, donor_id, donor_t1_id, supplier_id, weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		it.Description, it.Unit, it.PriceUSD, it.PriceLocal,
		it.ItemCategoryID, it.DonorID, it.DonorT1ID, it.SupplierID, it.Weight).Scan(&it.ID)
	if err != nil {
		return Item{}, mapWriteErr(err)
	}
	return it, nil
}

func (r *repository) UpdateItem(ctx context.Context, id int64, it Item) error {
	_, err := r.db.Exec(ctx, `
		UPDATE catalog_items
		SET description = $1, unit = $2, price_usd = $3, price_local = $4,
		    item_category_id = $5, donor_id = $6, donor_t1_id = $7, supplier_id = $8, weight = $9
		WHERE id = $10`,
		it.Description, it.Unit, it.PriceUSD, it.PriceLocal,
		it.ItemCategoryID, it.DonorID, it.DonorT1ID, it.SupplierID, it.Weight, id)
	return mapWriteErr(err)
}

func (r *repository) DeleteItem(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	return err
}

package users

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
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	GetByCode(ctx context.Context, code string) (User, error)
	Create(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, id int64, u User) error
	ClearDevice(ctx context.Context, deviceID string) error
	AssignDevice(ctx context.Context, userID int64, deviceID string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const userColumns = `id, code, name, email, password_hash, device_id, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Code, &u.Name, &u.Email, &u.PasswordHash, &u.DeviceID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

func (r *repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM field_users ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM field_users WHERE id = $1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM field_users WHERE code = $1`, code))
}

func (r *repository) Create(ctx context.Context, u User) (User, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `
		INSERT INTO field_users (code, name, email, password_hash, device_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`,
		u.Code, u.Name, u.Email, u.PasswordHash, u.DeviceID, now).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, shared.ErrConflict
		}
		return User{}, err
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return u, nil
}

func (r *repository) Update(ctx context.Context, id int64, u User) error {
	_, err := r.db.Exec(ctx, `
		UPDATE field_users
		SET code = $1, name = $2, email = $3, password_hash = $4, device_id = $5, updated_at = $6
		WHERE id = $7`,
		u.Code, u.Name, u.Email, u.PasswordHash, u.DeviceID, time.Now(), id)
	return err
}

func (r *repository) ClearDevice(ctx context.Context, deviceID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE field_users SET device_id = NULL, updated_at = $2 WHERE device_id = $1`,
		deviceID, time.Now())
	return err
}

func (r *repository) AssignDevice(ctx context.Context, userID int64, deviceID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE field_users SET device_id = $1, updated_at = $3 WHERE id = $2`,
		deviceID, userID, time.Now())
	return err
}

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FormSubmission is one deduplicated record received from the survey
// platform. Rows are created once and never mutated.
type FormSubmission struct {
	ID             int64
	FormID         int64
	UUID           string
	Data           json.RawMessage
	SubmissionTime time.Time
}

type SubmissionStore interface {
	// Insert stores the submission unless its UUID already exists. The
	// boolean reports whether a row was created. Safe under concurrent
	// pollers: the unique constraint, not a read, decides.
	Insert(ctx context.Context, sub *FormSubmission) (bool, error)
	MostRecentTime(ctx context.Context, formID int64) (*time.Time, error)
}

type submissionStore struct {
	db *pgxpool.Pool
}

func NewSubmissionStore(db *pgxpool.Pool) SubmissionStore {
	return &submissionStore{db: db}
}

func (s *submissionStore) Insert(ctx context.Context, sub *FormSubmission) (bool, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO form_submissions (form_id, uuid, data, submission_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uuid) DO NOTHING
		RETURNING id`,
		sub.FormID, sub.UUID, sub.Data, sub.SubmissionTime).Scan(&sub.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		// Belt and braces for drivers that surface the conflict directly.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *submissionStore) MostRecentTime(ctx context.Context, formID int64) (*time.Time, error) {
	var t *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT MAX(submission_time) FROM form_submissions WHERE form_id = $1`, formID).Scan(&t)
	return t, err
}

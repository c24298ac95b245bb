package ingest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MinRetrievalTime is the checkpoint default, earlier than any real
// submission.
var MinRetrievalTime = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// CheckpointStore tracks the last retrieval watermark per external form.
type CheckpointStore interface {
	Get(ctx context.Context, formID int64) (time.Time, error)
	Save(ctx context.Context, formID int64, ts time.Time) error
}

type checkpointStore struct {
	db *pgxpool.Pool
}

func NewCheckpointStore(db *pgxpool.Pool) CheckpointStore {
	return &checkpointStore{db: db}
}

// Get returns the watermark for the form, creating the row at the default
// on first use.
func (s *checkpointStore) Get(ctx context.Context, formID int64) (time.Time, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO last_retrieval_timestamps (form_id, retrieved_at)
		VALUES ($1, $2)
		ON CONFLICT (form_id) DO NOTHING`,
		formID, MinRetrievalTime)
	if err != nil {
		return time.Time{}, err
	}
	var ts time.Time
	err = s.db.QueryRow(ctx,
		`SELECT retrieved_at FROM last_retrieval_timestamps WHERE form_id = $1`, formID).Scan(&ts)
	return ts.UTC(), err
}

func (s *checkpointStore) Save(ctx context.Context, formID int64, ts time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE last_retrieval_timestamps SET retrieved_at = $2 WHERE form_id = $1`,
		formID, ts)
	return err
}

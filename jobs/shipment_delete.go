package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/relaytrack/relaytrack/internal/jobs"
	"github.com/relaytrack/relaytrack/internal/shared"
)

// ShipmentDeleter runs the cascading shipment delete.
type ShipmentDeleter interface {
	DeleteShipmentCascade(ctx context.Context, shipmentID int64) error
}

// ShipmentDeleteJob removes a shipment and everything hanging off it.
// Item and scan counts can be large enough to exceed a request timeout,
// which is why this runs on the worker instead of inline.
type ShipmentDeleteJob struct {
	Service ShipmentDeleter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewShipmentDeleteJob constructs the job handler.
func NewShipmentDeleteJob(service ShipmentDeleter, logger *slog.Logger, metrics *jobmetrics.Metrics) *ShipmentDeleteJob {
	return &ShipmentDeleteJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the cascading delete.
func (j *ShipmentDeleteJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("shipment delete: dependencies not configured")
	}
	var payload ShipmentDeletePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ShipmentID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskShipmentDelete)
	start := j.now()
	err := j.Service.DeleteShipmentCascade(ctx, payload.ShipmentID)
	if errors.Is(err, shared.ErrNotFound) {
		// Already gone, likely a retry after a partial crash. Done.
		err = nil
	}
	if err != nil {
		j.log().Error("delete shipment", slog.Int64("shipment_id", payload.ShipmentID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("deleted shipment",
		slog.Int64("shipment_id", payload.ShipmentID),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *ShipmentDeleteJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ShipmentDeleteJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskShipmentDelete))
	}
	return slog.Default().With(slog.String("job", TaskShipmentDelete))
}

func (j *ShipmentDeleteJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ShipmentDeleteJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/relaytrack/relaytrack/internal/jobs"
)

// DevicePollJob periodically imports device binding form submissions.
type DevicePollJob struct {
	Pipeline Poller
	FormID   int64
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewDevicePollJob constructs the job handler.
func NewDevicePollJob(pipeline Poller, formID int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *DevicePollJob {
	return &DevicePollJob{
		Pipeline: pipeline,
		FormID:   formID,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one poll cycle.
func (j *DevicePollJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pipeline == nil {
		return errors.New("device poll: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskDevicePoll)
	start := j.now()
	j.Pipeline.PollDeviceBindings(ctx, j.FormID)
	j.log().Info("device binding poll finished",
		slog.Int64("form_id", j.FormID),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *DevicePollJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DevicePollJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDevicePoll))
	}
	return slog.Default().With(slog.String("job", TaskDevicePoll))
}

func (j *DevicePollJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *DevicePollJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
